package collab

import (
	"context"

	"github.com/samber/lo"

	"codecollab-server/core"
)

// MembershipView projects the transport's live membership of a room onto display
// names. Connections without a registry entry are mid-teardown and are skipped.
type MembershipView struct {
	transport Transport
	registry  *Registry
}

func NewMembershipView(transport Transport, registry *Registry) *MembershipView {
	return &MembershipView{transport: transport, registry: registry}
}

// ListMembers returns the display names present in a room. The order carries no
// meaning.
func (v *MembershipView) ListMembers(ctx context.Context, roomID core.RoomID) ([]string, error) {
	conns, err := v.transport.Members(ctx, roomID)
	if err != nil {
		return nil, err
	}

	return lo.FilterMap(conns, func(id core.ConnectionID, _ int) (string, bool) {
		return v.registry.Lookup(id)
	}), nil
}

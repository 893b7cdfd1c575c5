package collab

import (
	"context"
	"errors"

	"github.com/samber/lo"

	"codecollab-server/core"
)

// ConnectionOwner is a Transport that can tell which connections it carries.
type ConnectionOwner interface {
	Transport
	Owns(conn core.ConnectionID) bool
}

// MultiTransport lets connections from several transports share rooms. Calls about a
// single connection go to the transport that owns it; room-wide calls go to all.
type MultiTransport struct {
	transports []ConnectionOwner
}

func NewMultiTransport(transports ...ConnectionOwner) *MultiTransport {
	return &MultiTransport{transports: transports}
}

func (m *MultiTransport) owner(conn core.ConnectionID) (ConnectionOwner, error) {
	for _, t := range m.transports {
		if t.Owns(conn) {
			return t, nil
		}
	}
	return nil, ErrUnknownConnection
}

func (m *MultiTransport) Join(ctx context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	t, err := m.owner(conn)
	if err != nil {
		return err
	}
	return t.Join(ctx, conn, roomID)
}

func (m *MultiTransport) Leave(ctx context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	t, err := m.owner(conn)
	if err != nil {
		return err
	}
	return t.Leave(ctx, conn, roomID)
}

func (m *MultiTransport) Members(ctx context.Context, roomID core.RoomID) ([]core.ConnectionID, error) {
	var all []core.ConnectionID
	for _, t := range m.transports {
		conns, err := t.Members(ctx, roomID)
		if err != nil {
			return nil, err
		}
		all = append(all, conns...)
	}
	return lo.Uniq(all), nil
}

func (m *MultiTransport) Rooms(ctx context.Context, conn core.ConnectionID) ([]core.RoomID, error) {
	t, err := m.owner(conn)
	if err != nil {
		return nil, err
	}
	return t.Rooms(ctx, conn)
}

func (m *MultiTransport) Send(ctx context.Context, conn core.ConnectionID, msg core.Message) error {
	t, err := m.owner(conn)
	if err != nil {
		return err
	}
	return t.Send(ctx, conn, msg)
}

func (m *MultiTransport) SendRoom(ctx context.Context, roomID core.RoomID, msg core.Message) error {
	var errs []error
	for _, t := range m.transports {
		errs = append(errs, t.SendRoom(ctx, roomID, msg))
	}
	return errors.Join(errs...)
}

func (m *MultiTransport) SendOthers(ctx context.Context, roomID core.RoomID, except core.ConnectionID, msg core.Message) error {
	var errs []error
	for _, t := range m.transports {
		errs = append(errs, t.SendOthers(ctx, roomID, except, msg))
	}
	return errors.Join(errs...)
}

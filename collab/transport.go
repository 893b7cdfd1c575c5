package collab

import (
	"context"

	"codecollab-server/core"
)

// Transport is the connection layer the engine drives. It owns room membership: the
// engine asks it to join and leave rooms and derives everything else from Members and
// Rooms.
type Transport interface {
	Join(ctx context.Context, conn core.ConnectionID, roomID core.RoomID) error
	Leave(ctx context.Context, conn core.ConnectionID, roomID core.RoomID) error

	// Members lists the connections currently in a room.
	Members(ctx context.Context, roomID core.RoomID) ([]core.ConnectionID, error)
	// Rooms lists the rooms a connection is in, excluding any transport-private room.
	Rooms(ctx context.Context, conn core.ConnectionID) ([]core.RoomID, error)

	// Send delivers to a single connection.
	Send(ctx context.Context, conn core.ConnectionID, msg core.Message) error
	// SendRoom delivers to every member of a room.
	SendRoom(ctx context.Context, roomID core.RoomID, msg core.Message) error
	// SendOthers delivers to every member of a room except one connection.
	SendOthers(ctx context.Context, roomID core.RoomID, except core.ConnectionID, msg core.Message) error
}

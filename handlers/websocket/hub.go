package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"codecollab-server/core"
)

var errSendBufferFull = errors.New("send buffer full")

// Hub tracks raw websocket clients and their rooms. It implements the engine's
// transport for connections made to /ws.
type Hub struct {
	mu      sync.RWMutex
	clients map[core.ConnectionID]*Client
	// rooms maps each member to the sequence number of its join, so member lists
	// come out in room join order.
	rooms map[core.RoomID]map[core.ConnectionID]uint64
	seq   uint64
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[core.ConnectionID]*Client),
		rooms:   make(map[core.RoomID]map[core.ConnectionID]uint64),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	for roomID, members := range h.rooms {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	close(c.send)
}

func (h *Hub) Owns(conn core.ConnectionID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[conn]
	return ok
}

func (h *Hub) Join(_ context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; !ok {
		return nil
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[core.ConnectionID]uint64)
		h.rooms[roomID] = members
	}
	if _, ok := members[conn]; !ok {
		h.seq++
		members[conn] = h.seq
	}
	return nil
}

func (h *Hub) Leave(_ context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	return nil
}

func (h *Hub) Members(_ context.Context, roomID core.RoomID) ([]core.ConnectionID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	joinedAt := h.rooms[roomID]
	members := make([]core.ConnectionID, 0, len(joinedAt))
	for conn := range joinedAt {
		members = append(members, conn)
	}
	sort.Slice(members, func(i, j int) bool {
		return joinedAt[members[i]] < joinedAt[members[j]]
	})
	return members, nil
}

func (h *Hub) Rooms(_ context.Context, conn core.ConnectionID) ([]core.RoomID, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var rooms []core.RoomID
	for roomID, members := range h.rooms {
		if _, ok := members[conn]; ok {
			rooms = append(rooms, roomID)
		}
	}
	return rooms, nil
}

func (h *Hub) Send(_ context.Context, conn core.ConnectionID, msg core.Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[conn]; ok {
		return c.enqueue(frame)
	}
	return nil
}

func (h *Hub) SendRoom(ctx context.Context, roomID core.RoomID, msg core.Message) error {
	return h.SendOthers(ctx, roomID, "", msg)
}

func (h *Hub) SendOthers(_ context.Context, roomID core.RoomID, except core.ConnectionID, msg core.Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	var errs []error
	for conn := range h.rooms[roomID] {
		if conn == except {
			continue
		}
		if err := h.clients[conn].enqueue(frame); err != nil {
			logrus.WithFields(logrus.Fields{
				"connection_id": conn,
				"room_id":       roomID,
			}).WithError(err).Warn("Dropping slow client")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package collab

import (
	"sort"
	"sync"
	"time"

	"codecollab-server/core"
)

// RoomActivity is the last time an event touched a room, in unix milliseconds.
type RoomActivity struct {
	ID         core.RoomID
	LastActive int64
}

// RoomStore keeps the shared document of every room that has one. A document is
// created by the first field update and discarded when the room empties.
type RoomStore struct {
	mu        sync.RWMutex
	documents map[core.RoomID]*core.Document
	rooms     map[core.RoomID]int64
	now       func() time.Time
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		documents: make(map[core.RoomID]*core.Document),
		rooms:     make(map[core.RoomID]int64),
		now:       time.Now,
	}
}

// GetDocument returns a copy of the room's document.
func (s *RoomStore) GetDocument(roomID core.RoomID) (core.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[roomID]
	if !ok {
		return core.Document{}, false
	}
	return doc.Clone(), true
}

func (s *RoomStore) HasDocument(roomID core.RoomID) bool {
	s.mu.RLock()
	_, ok := s.documents[roomID]
	s.mu.RUnlock()
	return ok
}

// SetField overwrites one field of the room's document, creating the document with
// only that field when the room has none. It reports whether a document was created.
func (s *RoomStore) SetField(roomID core.RoomID, field core.Field, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[roomID]
	if !ok {
		doc = &core.Document{}
		s.documents[roomID] = doc
	}
	doc.Set(field, value)
	s.rooms[roomID] = s.now().UnixMilli()
	return !ok
}

// DropIfEmpty deletes the room's document when memberCount is zero.
func (s *RoomStore) DropIfEmpty(roomID core.RoomID, memberCount int) bool {
	if memberCount != 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.documents[roomID]
	delete(s.documents, roomID)
	delete(s.rooms, roomID)
	return ok
}

// Touch records activity in a room.
func (s *RoomStore) Touch(roomID core.RoomID) {
	s.mu.Lock()
	s.rooms[roomID] = s.now().UnixMilli()
	s.mu.Unlock()
}

// Activity lists every touched room, most recently active first.
func (s *RoomStore) Activity() []RoomActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]RoomActivity, 0, len(s.rooms))
	for id, last := range s.rooms {
		rooms = append(rooms, RoomActivity{ID: id, LastActive: last})
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].LastActive == rooms[j].LastActive {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].LastActive > rooms[j].LastActive
	})
	return rooms
}

package collab

import (
	"context"
	"errors"
	"sort"
	"sync"

	"codecollab-server/core"
)

// fakeTransport is an in-memory Transport that records every delivered message.
type fakeTransport struct {
	mu         sync.Mutex
	rooms      map[core.RoomID][]core.ConnectionID
	inbox      map[core.ConnectionID][]core.Message
	membersErr error
	joinErr    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		rooms: make(map[core.RoomID][]core.ConnectionID),
		inbox: make(map[core.ConnectionID][]core.Message),
	}
}

func (f *fakeTransport) Join(_ context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	for _, c := range f.rooms[roomID] {
		if c == conn {
			return nil
		}
	}
	f.rooms[roomID] = append(f.rooms[roomID], conn)
	return nil
}

func (f *fakeTransport) Leave(_ context.Context, conn core.ConnectionID, roomID core.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.rooms[roomID]
	for i, c := range members {
		if c == conn {
			f.rooms[roomID] = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(f.rooms[roomID]) == 0 {
		delete(f.rooms, roomID)
	}
	return nil
}

func (f *fakeTransport) Members(_ context.Context, roomID core.RoomID) ([]core.ConnectionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return append([]core.ConnectionID(nil), f.rooms[roomID]...), nil
}

func (f *fakeTransport) Rooms(_ context.Context, conn core.ConnectionID) ([]core.RoomID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rooms []core.RoomID
	for roomID, members := range f.rooms {
		for _, c := range members {
			if c == conn {
				rooms = append(rooms, roomID)
			}
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms, nil
}

func (f *fakeTransport) Send(_ context.Context, conn core.ConnectionID, msg core.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[conn] = append(f.inbox[conn], msg)
	return nil
}

func (f *fakeTransport) SendRoom(ctx context.Context, roomID core.RoomID, msg core.Message) error {
	return f.SendOthers(ctx, roomID, "", msg)
}

func (f *fakeTransport) SendOthers(_ context.Context, roomID core.RoomID, except core.ConnectionID, msg core.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rooms[roomID] {
		if c != except {
			f.inbox[c] = append(f.inbox[c], msg)
		}
	}
	return nil
}

func (f *fakeTransport) received(conn core.ConnectionID) []core.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Message(nil), f.inbox[conn]...)
}

func (f *fakeTransport) receivedKind(conn core.ConnectionID, kind core.EventKind) []core.Message {
	var out []core.Message
	for _, msg := range f.received(conn) {
		if msg.Event == kind {
			out = append(out, msg)
		}
	}
	return out
}

// lastMemberList is the member list a connection currently believes in.
func (f *fakeTransport) lastMemberList(conn core.ConnectionID) ([]string, bool) {
	lists := f.receivedKind(conn, core.EventMemberListUpdated)
	if len(lists) == 0 {
		return nil, false
	}
	return lists[len(lists)-1].Data.(core.MemberList).Users, true
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = make(map[core.ConnectionID][]core.Message)
}

type mockArtifactStore struct {
	mu       sync.Mutex
	blobs    map[core.RoomID]map[core.ArtifactKind]string
	writeErr error
}

func newMockArtifactStore() *mockArtifactStore {
	return &mockArtifactStore{blobs: make(map[core.RoomID]map[core.ArtifactKind]string)}
}

func (m *mockArtifactStore) Write(_ context.Context, roomID core.RoomID, kind core.ArtifactKind, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.blobs[roomID] == nil {
		m.blobs[roomID] = make(map[core.ArtifactKind]string)
	}
	m.blobs[roomID][kind] = data
	return nil
}

func (m *mockArtifactStore) Read(_ context.Context, roomID core.RoomID, kind core.ArtifactKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[roomID][kind]
	if !ok {
		return "", core.ErrArtifactNotFound
	}
	return data, nil
}

var errTransportDown = errors.New("transport down")

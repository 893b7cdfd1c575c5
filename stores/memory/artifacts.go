package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"codecollab-server/core"
)

type artifactStore struct {
	mu    sync.RWMutex
	blobs map[core.RoomID]map[core.ArtifactKind]string
}

func NewArtifactStore() core.ArtifactStore {
	return &artifactStore{
		blobs: make(map[core.RoomID]map[core.ArtifactKind]string),
	}
}

func (s *artifactStore) Write(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind, data string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}

	s.mu.Lock()
	room, ok := s.blobs[roomID]
	if !ok {
		room = make(map[core.ArtifactKind]string)
		s.blobs[roomID] = room
	}
	room[kind] = data
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"kind":        kind,
		"data_length": len(data),
	}).Debug("Artifact written")
	return nil
}

func (s *artifactStore) Read(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind) (string, error) {
	s.mu.RLock()
	data, ok := s.blobs[roomID][kind]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%s of room %s: %w", kind, roomID, core.ErrArtifactNotFound)
	}
	return data, nil
}

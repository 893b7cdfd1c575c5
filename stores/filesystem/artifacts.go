package filesystem

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"codecollab-server/core"
)

type artifactStore struct {
	basePath string
}

// NewArtifactStore keeps each room's blobs under basePath/<encoded room id>/<kind>.
func NewArtifactStore(basePath string) core.ArtifactStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &artifactStore{basePath: basePath}
}

// roomDir maps an opaque room id onto a single safe path segment.
func (s *artifactStore) roomDir(roomID core.RoomID) (string, error) {
	if roomID == "" {
		return "", fmt.Errorf("room id is required")
	}
	return filepath.Join(s.basePath, base64.RawURLEncoding.EncodeToString([]byte(roomID))), nil
}

func (s *artifactStore) Write(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind, data string) error {
	dir, err := s.roomDir(roomID)
	if err != nil {
		return err
	}
	filePath := filepath.Join(dir, string(kind))
	log := logrus.WithFields(logrus.Fields{
		"room_id":   roomID,
		"kind":      kind,
		"file_path": filePath,
	})

	if err := os.MkdirAll(dir, 0755); err != nil {
		log.WithError(err).Error("Failed to create room directory")
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+string(kind)+"-*")
	if err != nil {
		log.WithError(err).Error("Failed to create temporary artifact file")
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		log.WithError(err).Error("Failed to write artifact")
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		log.WithError(err).Error("Failed to move artifact into place")
		return err
	}

	log.WithField("data_length", len(data)).Debug("Artifact written")
	return nil
}

func (s *artifactStore) Read(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind) (string, error) {
	dir, err := s.roomDir(roomID)
	if err != nil {
		return "", err
	}
	filePath := filepath.Join(dir, string(kind))

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s of room %s: %w", kind, roomID, core.ErrArtifactNotFound)
		}
		logrus.WithField("file_path", filePath).WithError(err).Error("Failed to read artifact")
		return "", err
	}
	return string(data), nil
}

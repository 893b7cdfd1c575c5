package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"codecollab-server/core"
)

type artifactStore struct {
	db *sql.DB
}

func NewArtifactStore(dataSourceName string) core.ArtifactStore {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		stdlog.Fatal(err)
	}

	sts := `CREATE TABLE IF NOT EXISTS artifacts (
		room_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (room_id, kind)
	);`
	if _, err = db.Exec(sts); err != nil {
		stdlog.Fatal(err)
	}

	return &artifactStore{db}
}

func (s *artifactStore) Write(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind, data string) error {
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	log := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"kind":        kind,
		"data_length": len(data),
	})

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO artifacts (room_id, kind, data, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT(room_id, kind) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at",
		string(roomID), string(kind), []byte(data), time.Now().UnixMilli())
	if err != nil {
		log.WithError(err).Error("Failed to write artifact")
		return err
	}

	log.Debug("Artifact written")
	return nil
}

func (s *artifactStore) Read(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind) (string, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM artifacts WHERE room_id = ? AND kind = ?",
		string(roomID), string(kind)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s of room %s: %w", kind, roomID, core.ErrArtifactNotFound)
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to read artifact")
		return "", err
	}
	return string(data), nil
}

// Close releases the underlying database handle.
func (s *artifactStore) Close() error {
	return s.db.Close()
}

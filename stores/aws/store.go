package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"

	"codecollab-server/core"
)

// objectAPI is the subset of the S3 client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Store struct {
	s3Client objectAPI
	bucket   string
}

// NewArtifactStore creates a new S3-based artifact store.
func NewArtifactStore(bucketName string) core.ArtifactStore {
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucketName,
	}
}

func (s *s3Store) artifactKey(roomID core.RoomID, kind core.ArtifactKind) (string, error) {
	id := string(roomID)
	// Room ids become key prefixes; keep them to a single segment.
	if path.Base(id) != id || id == "." || id == ".." {
		return "", fmt.Errorf("invalid room id %q: must not be a path", id)
	}
	if id == "" {
		return "", fmt.Errorf("room id is required")
	}
	return path.Join(id, string(kind)), nil
}

func (s *s3Store) Write(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind, data string) error {
	key, err := s.artifactKey(roomID, kind)
	if err != nil {
		return err
	}

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(data)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %v", key, err)
	}

	logrus.WithFields(logrus.Fields{
		"bucket":      s.bucket,
		"key":         key,
		"data_length": len(data),
	}).Debug("Artifact uploaded")
	return nil
}

func (s *s3Store) Read(ctx context.Context, roomID core.RoomID, kind core.ArtifactKind) (string, error) {
	key, err := s.artifactKey(roomID, kind)
	if err != nil {
		return "", err
	}

	resp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", fmt.Errorf("%s: %w", key, core.ErrArtifactNotFound)
		}
		return "", fmt.Errorf("failed to get %s: %v", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %v", key, err)
	}
	return string(data), nil
}

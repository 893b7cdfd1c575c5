package stores

import (
	"io"

	"github.com/sirupsen/logrus"

	"codecollab-server/config"
	"codecollab-server/core"
	"codecollab-server/stores/aws"
	"codecollab-server/stores/filesystem"
	"codecollab-server/stores/memory"
	"codecollab-server/stores/sqlite"
)

// GetStore builds the artifact store selected by cfg.StorageType.
func GetStore(cfg *config.Config) core.ArtifactStore {
	var store core.ArtifactStore

	storageField := logrus.Fields{
		"storageType": cfg.StorageType,
	}

	switch cfg.StorageType {
	case "filesystem":
		storageField["basePath"] = cfg.LocalStoragePath
		store = filesystem.NewArtifactStore(cfg.LocalStoragePath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store = sqlite.NewArtifactStore(cfg.DataSourceName)
	case "s3":
		storageField["bucket"] = cfg.S3BucketName
		store = aws.NewArtifactStore(cfg.S3BucketName)
	default:
		store = memory.NewArtifactStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}

// Close releases the store's resources when it holds any, such as the sqlite handle.
func Close(store core.ArtifactStore) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

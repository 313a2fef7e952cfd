package backup

import (
	"context"
	"fmt"
	"path/filepath"
)

// Kind selects a Store backend.
type Kind string

const (
	KindFile Kind = "file"
	KindS3   Kind = "s3"
	KindGCS  Kind = "gcs"
)

// Config describes the backend to open. Only the fields of the selected Kind
// are read.
type Config struct {
	Kind    Kind
	DataDir string
	S3      S3Config
	GCS     struct {
		Bucket string
		Prefix string
	}
}

// Open returns the Store selected by cfg.Kind. The empty kind means file.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Kind {
	case "", KindFile:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "backups"))
	case KindS3:
		if cfg.S3.Region == "" {
			cfg.S3.Region = "us-east-1"
		}
		return NewS3Store(ctx, cfg.S3)
	case KindGCS:
		return openGCS(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix)
	default:
		return nil, fmt.Errorf("backup: unsupported store kind %q", cfg.Kind)
	}
}

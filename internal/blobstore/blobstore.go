// Package blobstore persists pipeline artifacts. Every artifact of a
// document lives under one key derived from the document ID and the stage
// that produced it, so a run's outputs can be found without consulting the
// database.
package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/finovo/creditocr/constants"
)

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is the artifact storage abstraction. Implementations are the local
// filesystem for development and MinIO for deployments.
type Store interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// Key builds the canonical artifact key for a document and stage.
// The extension must include its leading dot.
func Key(documentID uuid.UUID, stage constants.Stage, ext string) string {
	return fmt.Sprintf("%s/%s%s", documentID, stage, ext)
}

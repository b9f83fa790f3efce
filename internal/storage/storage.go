package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
}

// ObjectStore receives export artifacts. Delete is used to roll back a
// partially uploaded export and treats a missing object as success.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

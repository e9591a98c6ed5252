package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/finovo/creditocr/internal/common"
)

// localStore keeps artifacts on the local filesystem under a root directory.
type localStore struct {
	root string
}

func NewLocal(root string) (Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, common.WrapError(err, "create blob root")
	}
	return &localStore{root: root}, nil
}

func (s *localStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", common.NewAppError("BLOB_ERROR", "invalid blob key "+key, common.ErrInvalidInput)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *localStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return common.WrapError(err, "create blob directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return common.WrapError(err, "create temp blob")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return common.WrapError(err, "write blob")
	}
	if err := tmp.Close(); err != nil {
		return common.WrapError(err, "close blob")
	}
	// Rename keeps readers from ever observing a half-written artifact.
	if err := os.Rename(tmp.Name(), p); err != nil {
		return common.WrapError(err, "publish blob")
	}
	return nil
}

func (s *localStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, common.WrapError(err, "open blob")
	}
	return f, nil
}

func (s *localStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	p, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(p)
	if os.IsNotExist(err) {
		return ObjectInfo{}, common.ErrNotFound
	}
	if err != nil {
		return ObjectInfo{}, common.WrapError(err, "stat blob")
	}
	return ObjectInfo{Key: key, Size: fi.Size()}, nil
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return common.WrapError(err, "delete blob")
	}
	return nil
}

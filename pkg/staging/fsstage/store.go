// Package fsstage stages payloads as files under a root directory.
package fsstage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/targc/numbervault/pkg/models"
	"github.com/targc/numbervault/pkg/staging"
)

var _ staging.Store = (*Store)(nil)

type Store struct {
	root string
}

// New returns a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./staging"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if err := staging.ValidateKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.root, key)); err != nil {
		return fmt.Errorf("failed to stage %s: %w", key, err)
	}
	return nil
}

func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := staging.ValidateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("staged payload %s: %w", key, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open staged payload: %w", err)
	}
	return f, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := staging.ValidateKey(key); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete staged payload: %w", err)
	}
	return nil
}

// Package staging holds uploaded batch payloads between upload and ingestion.
package staging

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

type Store interface {
	// Put stores the payload under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns the payload stored under key. A missing key yields an error
	// wrapping models.ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key builds the staging key of an uploaded file: "<batchID>_<base name>".
func Key(batchID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "upload.csv"
	}
	return batchID + "_" + base
}

// ValidateKey rejects keys that could escape a staging root.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty staging key")
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("invalid staging key %q", key)
	}
	return nil
}

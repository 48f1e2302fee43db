// Package storage keeps backup blobs on one or more redundant backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrBlobNotFound is returned when no backend holds the requested key.
var ErrBlobNotFound = errors.New("backup blob not found")

// Backend stores opaque blobs under slash-separated keys.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrBlobNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when the key is already gone.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// cleanKey rejects keys that could escape a backend's root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return cleaned, nil
}

func withPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

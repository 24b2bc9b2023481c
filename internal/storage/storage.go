// Package storage provides the object storage abstraction behind
// object-store catalogs: S3 and the local filesystem.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrListFailed     = errors.New("list failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	// Path is the object path relative to the storage root, '/'-separated.
	Path         string
	Size         int64
	LastModified time.Time
}

// ObjectStorage abstracts the object storage operations catalogs need.
// Object paths are '/'-separated and relative to the storage root.
type ObjectStorage interface {
	// Put writes body to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, body io.Reader) error

	// Get reads the whole object. Missing objects return ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns every object under prefix, sorted by path.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// DeletePrefix removes every object under prefix and returns how many
	// were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// URI returns the externally visible location of objectPath,
	// e.g. s3://bucket/root/db/table/dt=1 or file:///data/db/table/dt=1.
	URI(objectPath string) string

	// ObjectPath is the inverse of URI. It reports false for URIs outside
	// this storage.
	ObjectPath(uri string) (string, bool)
}

// JoinPath joins path elements with '/', ignoring empty elements.
func JoinPath(elem ...string) string {
	parts := make([]string, 0, len(elem))
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}

// dirPrefix returns prefix with a trailing '/' so that listing "a/b" does
// not return "a/bc/...".
func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

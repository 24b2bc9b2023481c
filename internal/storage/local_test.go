package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func putAll(t *testing.T, s ObjectStorage, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := s.Put(context.Background(), p, strings.NewReader("data")); err != nil {
			t.Fatalf("Put %s failed: %v", p, err)
		}
	}
}

func TestLocalStorage_PutExistsDelete(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	objectPath := "db/events/dt=1/part-0.parquet"
	putAll(t, storage, objectPath)

	exists, err := storage.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}
	if exists, _ := storage.Exists(ctx, "db/events/dt=1"); exists {
		t.Error("directories are not objects")
	}
	data, err := storage.Get(ctx, objectPath)
	if err != nil || string(data) != "data" {
		t.Errorf("Get returned %q, %v", data, err)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if exists, _ := storage.Exists(ctx, objectPath); exists {
		t.Error("expected object to be deleted")
	}
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
	if _, err := storage.Get(ctx, objectPath); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	putAll(t, storage,
		"db/events/dt=2/b",
		"db/events/dt=1/a",
		"db/events2/dt=1/a",
	)

	objects, err := storage.ListObjects(context.Background(), "db/events")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %v", objects)
	}
	if objects[0].Path != "db/events/dt=1/a" || objects[1].Path != "db/events/dt=2/b" {
		t.Errorf("unexpected listing order %v", objects)
	}
	if objects[0].Size != 4 || objects[0].LastModified.IsZero() {
		t.Errorf("expected size and modification time, got %+v", objects[0])
	}

	missing, err := storage.ListObjects(context.Background(), "nope")
	if err != nil || len(missing) != 0 {
		t.Errorf("listing a missing prefix should be empty, got %v, %v", missing, err)
	}
}

func TestLocalStorage_DeletePrefix(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	putAll(t, storage, "db/t/dt=1/a", "db/t/dt=1/b", "db/t/dt=2/a")

	n, err := storage.DeletePrefix(context.Background(), "db/t/dt=1")
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	left, _ := storage.ListObjects(context.Background(), "db/t")
	if len(left) != 1 || left[0].Path != "db/t/dt=2/a" {
		t.Errorf("unexpected remaining objects %v", left)
	}

	if _, err := storage.DeletePrefix(context.Background(), "/"); err == nil {
		t.Error("expected deleting the root to be refused")
	}
}

func TestLocalStorage_URIRoundTrip(t *testing.T) {
	base := t.TempDir()
	storage, err := NewLocalStorage(base)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	uri := storage.URI("db/t/dt=1")
	if uri != "file://"+filepath.ToSlash(filepath.Join(base, "db", "t", "dt=1")) {
		t.Errorf("unexpected uri %s", uri)
	}
	path, ok := storage.ObjectPath(uri)
	if !ok || path != "db/t/dt=1" {
		t.Errorf("ObjectPath(%s) = %q, %v", uri, path, ok)
	}
	if _, ok := storage.ObjectPath("s3://bucket/db/t"); ok {
		t.Error("foreign uri must not map")
	}
	if _, ok := storage.ObjectPath("file://" + filepath.ToSlash(base) + "x/db"); ok {
		t.Error("sibling directory must not map")
	}
}

func TestS3URIRoundTrip(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		uri    string
	}{
		{"", "db/t/dt=1", "s3://lake/db/t/dt=1"},
		{"warehouse", "db/t/dt=1", "s3://lake/warehouse/db/t/dt=1"},
		{"/warehouse/", "", "s3://lake/warehouse"},
	}
	for _, tt := range tests {
		s := NewS3StorageWithClient(nil, "lake", tt.prefix)
		if got := s.URI(tt.path); got != tt.uri {
			t.Errorf("URI(%q) with prefix %q = %s, want %s", tt.path, tt.prefix, got, tt.uri)
		}
		path, ok := s.ObjectPath(tt.uri)
		if !ok || path != tt.path {
			t.Errorf("ObjectPath(%s) = %q, %v, want %q", tt.uri, path, ok, tt.path)
		}
	}

	s := NewS3StorageWithClient(nil, "lake", "warehouse")
	for _, uri := range []string{"s3://lake2/warehouse/db", "s3://lake/other/db", "file:///lake/warehouse"} {
		if _, ok := s.ObjectPath(uri); ok {
			t.Errorf("ObjectPath(%s) should not map", uri)
		}
	}
}

func TestJoinPath(t *testing.T) {
	if got := JoinPath("/root/", "", "db", "t/"); got != "root/db/t" {
		t.Errorf("unexpected join %q", got)
	}
	if got := dirPrefix("a/b"); got != "a/b/" {
		t.Errorf("unexpected dir prefix %q", got)
	}
	if got := dirPrefix(""); got != "" {
		t.Errorf("unexpected dir prefix %q", got)
	}
}

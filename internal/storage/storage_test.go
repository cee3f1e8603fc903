package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStorePublish(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := store.Publish(context.Background(), "/slots/s1/attempt-1.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if url != "http://localhost:8080/static/slots/s1/attempt-1.png" {
		t.Fatalf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "slots", "s1", "attempt-1.png"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "png" {
		t.Fatalf("data = %q, want png", data)
	}
}

func TestFileStorePublishWithoutBaseURL(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir, "")
	url, err := store.Publish(context.Background(), "a.png", "image/png", []byte("x"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "/a.png") {
		t.Fatalf("url = %q", url)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "http://x")
	for _, key := range []string{"../escape.png", "", "a/../../b.png"} {
		if _, err := store.Publish(context.Background(), key, "image/png", []byte("x")); err == nil {
			t.Fatalf("Publish(%q) succeeded, want error", key)
		}
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir(), "http://x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Publish(ctx, "a.png", "image/png", []byte("x")); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{"image/jpeg": "jpg", "IMAGE/WEBP": "webp", "image/png": "png", "": "png"}
	for in, want := range tests {
		if got := ExtensionFor(in); got != want {
			t.Fatalf("ExtensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewFileStore(dir, "http://x")
	for i := 0; i < 2; i++ {
		if _, err := store.Publish(context.Background(), "slots/s1/final.png", "image/png", []byte("v")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(dir, "slots", "s1"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "final.png" {
		t.Fatalf("entries = %v, want only final.png", entries)
	}
}

func TestCleanKey(t *testing.T) {
	tests := map[string]string{"/a/b.png": "a/b.png", "a\\b.png": "a/b.png", "a/./b/../c.png": "a/c.png"}
	for in, want := range tests {
		got, err := cleanKey(in)
		if err != nil || got != want {
			t.Fatalf("cleanKey(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"..", "../x", "  ", "/"} {
		if _, err := cleanKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("cleanKey(%q) error = %v, want ErrInvalidKey", bad, err)
		}
	}
}

package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	docID := uuid.New()
	content := []byte("%PDF-1.4 sample")

	path, err := store.Upload(ctx, docID, "نظام العمل.pdf", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.Contains(path, docID.String()) {
		t.Errorf("storage path %q must embed the document id", path)
	}
	if !strings.HasSuffix(path, ".pdf") {
		t.Errorf("storage path %q must keep the extension", path)
	}

	reader, err := store.Download(ctx, path)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer reader.Close()
	got, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("downloaded bytes differ from uploaded bytes")
	}

	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Download(ctx, path); err == nil {
		t.Error("expected error downloading a deleted document")
	}
	// deleting twice is not an error
	if err := store.Delete(ctx, path); err != nil {
		t.Errorf("second delete must be a no-op, got %v", err)
	}
}

func TestDocumentPathSanitizesSeparators(t *testing.T) {
	id := uuid.New()
	path := documentPath(id, "a/b\\c d.txt")
	if strings.Contains(path[3:], "/") || strings.Contains(path, "\\") || strings.Contains(path, " ") {
		t.Errorf("path %q still contains separators or spaces", path)
	}
}

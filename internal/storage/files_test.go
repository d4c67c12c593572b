package storage

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-rag-platform/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(&config.Config{
		FileStorageDir: t.TempDir(),
		MaxFileSize:    1 << 20,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func multipartUpload(t *testing.T, filename, content string) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write([]byte(content))
	writer.Close()

	req := httptest.NewRequest("POST", "/", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	file, header, err := req.FormFile("file")
	if err != nil {
		t.Fatalf("FormFile failed: %v", err)
	}
	return file, header
}

func TestStoreAndHash(t *testing.T) {
	m := newTestManager(t)
	file, header := multipartUpload(t, "notes.txt", "hello storage")
	defer file.Close()

	stored, err := m.Store(file, header)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if stored.Size != int64(len("hello storage")) {
		t.Errorf("wrong size: %d", stored.Size)
	}
	if stored.Hash == "" {
		t.Error("expected a content hash")
	}
	if !strings.HasSuffix(stored.SecureName, ".txt") {
		t.Errorf("secure name lost the extension: %s", stored.SecureName)
	}

	data, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != "hello storage" {
		t.Errorf("stored content mismatch: %q", data)
	}

	// Same content hashes the same, for duplicate detection.
	file2, header2 := multipartUpload(t, "other.txt", "hello storage")
	defer file2.Close()
	stored2, err := m.Store(file2, header2)
	if err != nil {
		t.Fatalf("second Store failed: %v", err)
	}
	if stored2.Hash != stored.Hash {
		t.Error("identical content should produce identical hashes")
	}
	if stored2.Path == stored.Path {
		t.Error("distinct uploads should not share a path")
	}
}

func TestStoreRejectsTraversalNames(t *testing.T) {
	m := newTestManager(t)
	file, header := multipartUpload(t, "ok.txt", "content")
	defer file.Close()
	header.Filename = "../../etc/passwd"

	if _, err := m.Store(file, header); err == nil {
		t.Fatal("expected path traversal name to be rejected")
	}
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	m := newTestManager(t)
	file, header := multipartUpload(t, "a.txt", "some bytes")
	defer file.Close()

	if _, err := m.Store(file, header); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	entries, err := os.ReadDir(m.tempDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir should be empty after a successful store, found %d entries", len(entries))
	}
}

func TestCleanup(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(m.uploadDir, "stray.txt")
	os.WriteFile(path, []byte("x"), 0600)

	m.Cleanup(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Cleanup should remove the file")
	}
	// Missing files are fine.
	m.Cleanup(path)
	m.Cleanup("")
}

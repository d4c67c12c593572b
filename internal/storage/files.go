package storage

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"

	"github.com/google/uuid"
)

// Manager handles secure on-disk storage for uploaded documents. Files
// are streamed through a temp path and renamed into place, so a crashed
// upload never leaves a partial file where the pipeline can read it.
type Manager struct {
	uploadDir string
	tempDir   string
	maxSize   int64
}

// StoredFile describes a successfully stored upload.
type StoredFile struct {
	Path       string
	SecureName string
	Hash       string
	Size       int64
}

func NewManager(cfg *config.Config) (*Manager, error) {
	baseDir := cfg.FileStorageDir
	if baseDir == "" {
		baseDir = "./storage"
	}
	uploadDir := filepath.Join(baseDir, "documents")
	tempDir := filepath.Join(baseDir, "temp")

	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, err
	}

	return &Manager{
		uploadDir: uploadDir,
		tempDir:   tempDir,
		maxSize:   cfg.MaxFileSize,
	}, nil
}

// ValidateFilename rejects empty, oversized and path-traversal names.
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename is required")
	}
	if len(filename) > 255 {
		return fmt.Errorf("filename too long (max 255 characters)")
	}
	dangerous := []string{"../", "..\\", "<", ">", ":", "\"", "|", "?", "*", "\x00"}
	for _, char := range dangerous {
		if strings.Contains(filename, char) {
			return fmt.Errorf("filename contains invalid or dangerous characters")
		}
	}
	return nil
}

// Store streams an upload to disk, hashing it on the way for duplicate
// detection.
func (m *Manager) Store(file multipart.File, header *multipart.FileHeader) (*StoredFile, error) {
	if err := ValidateFilename(header.Filename); err != nil {
		return nil, err
	}
	if header.Size == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if m.maxSize > 0 && header.Size > m.maxSize {
		return nil, fmt.Errorf("file size %d exceeds maximum allowed size %d", header.Size, m.maxSize)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file position: %w", err)
	}

	secureName := m.secureFilename(header.Filename)
	tempPath := filepath.Join(m.tempDir, uuid.NewString()+".tmp")
	tempFile, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	hasher := md5.New()
	written, err := io.Copy(io.MultiWriter(tempFile, hasher), file)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if written == 0 {
		os.Remove(tempPath)
		return nil, fmt.Errorf("file is empty")
	}

	finalPath := filepath.Join(m.uploadDir, secureName)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to move file to final location: %w", err)
	}

	return &StoredFile{
		Path:       finalPath,
		SecureName: secureName,
		Hash:       hex.EncodeToString(hasher.Sum(nil)),
		Size:       written,
	}, nil
}

// Cleanup removes a stored file, logging rather than failing on error.
func (m *Manager) Cleanup(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to clean up file", "path", filePath, "error", err)
	}
}

// secureFilename builds a collision-resistant name that keeps the original
// extension and a trimmed slice of the original base name.
func (m *Manager) secureFilename(originalName string) string {
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)
	randomPrefix := hex.EncodeToString(randomBytes)

	timestamp := time.Now().Format("20060102_150405")

	ext := strings.ToLower(filepath.Ext(originalName))
	baseName := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	safeName := strings.ReplaceAll(baseName, " ", "_")
	safeName = strings.ReplaceAll(safeName, "..", "")
	if len(safeName) > 50 {
		safeName = safeName[:50]
	}

	return fmt.Sprintf("%s_%s_%s%s", timestamp, randomPrefix, safeName, ext)
}

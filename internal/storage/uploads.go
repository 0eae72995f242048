package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// UploadStore keeps pasted/uploaded reference images on disk. Stored
// names are server-generated, so serving them back cannot escape the
// directory.
type UploadStore struct {
	directory string
	mu        sync.Mutex
}

func NewUploadStore(directory string) (*UploadStore, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{directory: directory}, nil
}

// SaveReference stores one reference image and returns its generated
// filename
func (s *UploadStore) SaveReference(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty upload")
	}

	name := uuid.New().String() + extensionFor(contentType)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(filepath.Join(s.directory, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return name, nil
}

// Open returns the stored file for serving. The name is reduced to its
// base component first.
func (s *UploadStore) Open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.directory, filepath.Base(name)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	return f, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}
	return ".bin"
}

// Package assets stores uploaded files on the local filesystem under a single
// upload directory and resolves stored filenames to their public URL paths.
package assets

import (
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"lapak/internal/apperrors"
)

// MaxUploadSize is the ceiling for a single uploaded file.
const MaxUploadSize = 5 << 20 // 5 MiB

// Store persists uploaded binaries under Dir and serves them at PublicPrefix.
type Store struct {
	dir          string
	publicPrefix string
}

// NewStore creates a Store rooted at dir, creating it if needed. publicPrefix
// is the URL path prefix the files are served under (e.g. "/uploads").
func NewStore(dir, publicPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &Store{dir: dir, publicPrefix: publicPrefix}, nil
}

// Save validates and writes an uploaded file, returning the generated
// filename. Only image content is accepted, judged by sniffing the leading
// bytes rather than trusting the client's Content-Type header. Rejections
// happen before anything touches disk.
func (s *Store) Save(fh *multipart.FileHeader, field string) (string, error) {
	if fh.Size > MaxUploadSize {
		return "", fmt.Errorf("file exceeds %d bytes: %w", MaxUploadSize, apperrors.ErrValidation)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	// Sniff the content type from the first 512 bytes.
	head := make([]byte, 512)
	n, err := src.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return "", fmt.Errorf("only image files are allowed: %w", apperrors.ErrValidation)
	}

	name := generateFilename(field, fh.Filename)
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create asset file: %w", err)
	}
	defer dst.Close()

	if _, err := dst.Write(head); err != nil {
		return "", fmt.Errorf("failed to write asset file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to write asset file: %w", err)
	}
	return name, nil
}

// Delete removes a stored file. A file already gone is not an error.
func (s *Store) Delete(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete asset %s: %w", name, err)
	}
	return nil
}

// Resolve maps a stored filename to its public URL path. An empty filename
// resolves to empty.
func (s *Store) Resolve(name string) string {
	if name == "" {
		return ""
	}
	return path.Join(s.publicPrefix, name)
}

// Dir returns the directory files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// generateFilename builds a collision-resistant name from the form field, the
// upload time, a random component, and the original extension.
func generateFilename(field, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%s-%d-%09d%s", field, time.Now().UnixMilli(), rand.Intn(1_000_000_000), ext)
}

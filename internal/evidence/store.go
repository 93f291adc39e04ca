// Package evidence stores check-in photos and hands back opaque references.
package evidence

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// MaxImageBytes bounds a decoded image.
const MaxImageBytes = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store writes images below a root directory, one subdirectory per day.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Dir is the root directory references are relative to.
func (s *Store) Dir() string {
	return s.root
}

// decodeDataURL splits a "data:image/<type>;base64,<payload>" string.
func decodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL: %w", repository.ErrInvalid)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload: %w", repository.ErrInvalid)
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64 encoded: %w", repository.ErrInvalid)
	}
	mime = strings.ToLower(mime)
	if _, known := extensions[mime]; !known {
		return "", nil, fmt.Errorf("unsupported image type %q: %w", mime, repository.ErrInvalid)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return "", nil, fmt.Errorf("image exceeds %d bytes: %w", MaxImageBytes, repository.ErrInvalid)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", repository.ErrInvalid)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("empty image: %w", repository.ErrInvalid)
	}
	return mime, data, nil
}

// SaveDataURL decodes an image data URL and stores it under day. The
// returned reference is a slash separated path relative to Dir.
func (s *Store) SaveDataURL(day models.Day, prefix, dataURL string) (string, error) {
	mime, data, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}

	name := uuid.NewString() + extensions[mime]
	if prefix = sanitize(prefix); prefix != "" {
		name = prefix + "_" + name
	}

	dir := filepath.Join(s.root, string(day))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create photo dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create photo: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close photo: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store photo: %w", err)
	}

	return path.Join(string(day), name), nil
}

// Resolve maps a reference back to a file path, rejecting references that
// escape the root.
func (s *Store) Resolve(ref string) (string, error) {
	clean := path.Clean("/" + ref)
	if clean == "/" || strings.Contains(ref, "\\") {
		return "", fmt.Errorf("invalid photo reference %q: %w", ref, repository.ErrInvalid)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("media too large")

// ErrInvalidKey is returned for keys that would escape the media root.
var ErrInvalidKey = errors.New("invalid media key")

// Store persists attachment bytes under opaque keys.
type Store interface {
	// Save writes r under a freshly generated key derived from filename and returns the key and size.
	Save(ctx context.Context, filename string, r io.Reader) (key string, size int64, err error)
	// Open returns the stored bytes for key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// AferoStore keeps media on an afero filesystem (OS directory in production, memory in tests).
type AferoStore struct {
	fs       afero.Fs
	maxBytes int64
}

var _ Store = (*AferoStore)(nil)

// NewAferoStore creates a store over fs. maxBytes <= 0 disables the size limit.
func NewAferoStore(fs afero.Fs, maxBytes int64) *AferoStore {
	return &AferoStore{fs: fs, maxBytes: maxBytes}
}

// NewDirStore roots a store at dir on the local filesystem.
func NewDirStore(dir string, maxBytes int64) (*AferoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return NewAferoStore(afero.NewBasePathFs(afero.NewOsFs(), dir), maxBytes), nil
}

// Save writes the content of the reader under messages/<uuid><ext>.
func (s *AferoStore) Save(ctx context.Context, filename string, r io.Reader) (string, int64, error) {
	key := path.Join("messages", uuid.NewString()+strings.ToLower(path.Ext(filename)))

	if err := s.fs.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		return "", 0, fmt.Errorf("create media dir: %w", err)
	}
	f, err := s.fs.Create(key)
	if err != nil {
		return "", 0, fmt.Errorf("create media file: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		// Read one byte past the limit to detect oversize uploads.
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	if copyErr == nil && s.maxBytes > 0 && n > s.maxBytes {
		copyErr = ErrTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = s.fs.Remove(key)
		return "", 0, fmt.Errorf("write media: %w", copyErr)
	}

	return key, n, nil
}

// Open opens a stored file for reading.
func (s *AferoStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return s.fs.OpenFile(clean, os.O_RDONLY, 0)
}

// Delete removes a stored file.
func (s *AferoStore) Delete(ctx context.Context, key string) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media: %w", err)
	}
	return nil
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return clean, nil
}

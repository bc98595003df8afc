package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Bucket is the name thumbnails are stored and served under.
const Bucket = "post_thumbnail"

var ErrInvalidKey = errors.New("invalid storage key")

// Local keeps objects on disk below Root/Bucket and resolves keys to URLs
// below BaseURL/storage/Bucket.
type Local struct {
	Root    string
	BaseURL string
}

func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(root, Bucket), 0o755); err != nil {
		return nil, fmt.Errorf("create bucket dir: %w", err)
	}
	return &Local{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory served as the bucket.
func (l *Local) Dir() string { return filepath.Join(l.Root, Bucket) }

// Upload stores r under a fresh private/<uuid><ext> key and returns the key.
func (l *Local) Upload(r io.Reader, filename string) (string, error) {
	key := "private/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	dst, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	return key, f.Close()
}

func (l *Local) Remove(key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// PublicURL resolves a key. Keys that are already absolute URLs are
// returned unchanged; an empty key resolves to "".
func (l *Local) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return l.BaseURL + "/storage/" + Bucket + "/" + strings.TrimLeft(path.Clean("/"+key), "/")
}

func (l *Local) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.Dir(), filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

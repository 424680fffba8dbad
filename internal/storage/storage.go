// Package storage keeps uploaded tender files on the local filesystem under
// virtual paths of the form "<analysis>/<object>".
package storage

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
)

// MaxObjectSize bounds a single upload.
const MaxObjectSize = 100 << 20

var (
	// ErrInvalidPath is returned for paths that escape the storage root.
	ErrInvalidPath = errors.New("invalid storage path")
	// ErrNotFound is returned when no object exists at a path.
	ErrNotFound = errors.New("object not found")
	// ErrTooLarge is returned when an upload exceeds MaxObjectSize.
	ErrTooLarge = errors.New("object too large")
)

// Downloader returns the bytes of a previously uploaded object.
type Downloader interface {
	Download(ctx context.Context, p string) ([]byte, error)
}

// Dir is a directory-backed object store.
type Dir struct {
	root string
}

// NewDir creates the root directory if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Dir{root: root}, nil
}

// Upload stores r under a fresh object name inside prefix and returns the
// virtual path and the number of bytes written. The original file name only
// contributes its extension.
func (d *Dir) Upload(ctx context.Context, prefix, fileName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	prefix = strings.Trim(path.Clean("/"+filepath.ToSlash(prefix)), "/")
	if prefix == "" || strings.Contains(prefix, "..") {
		return "", 0, ErrInvalidPath
	}
	ext := strings.ToLower(path.Ext(filepath.ToSlash(fileName)))
	p := prefix + "/" + uuid.NewString() + ext

	full, err := d.resolve(p)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, fmt.Errorf("create object directory: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return "", 0, fmt.Errorf("create object: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxObjectSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxObjectSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(full)
		return "", 0, fmt.Errorf("write object: %w", err)
	}
	return p, n, nil
}

// Download reads the object at p.
func (d *Dir) Download(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// RemovePrefix deletes every object under prefix.
func (d *Dir) RemovePrefix(prefix string) error {
	full, err := d.resolve(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(full)
}

// resolve maps a virtual path to a filesystem path inside the root.
func (d *Dir) resolve(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return filepath.Join(d.root, filepath.FromSlash(p)), nil
}

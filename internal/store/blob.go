package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"credence/internal/logging"
	"credence/internal/types"
)

// ErrInvalidLocator reports a locator that escapes the blob root.
var ErrInvalidLocator = errors.New("invalid storage locator")

// FSBlobStore serves uploaded files from a directory tree. Locators are
// slash-separated paths relative to the root.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore returns a blob store rooted at root, creating it if needed.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FSBlobStore{root: root}, nil
}

func (b *FSBlobStore) resolve(locator string) (string, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(locator)), "/")
	if clean == "" || !fs.ValidPath(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

// Download reads the blob at locator. The media type comes from the file
// extension, falling back to content sniffing.
func (b *FSBlobStore) Download(ctx context.Context, locator string) (types.Blob, error) {
	if err := ctx.Err(); err != nil {
		return types.Blob{}, err
	}
	path, err := b.resolve(locator)
	if err != nil {
		return types.Blob{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Blob{}, fmt.Errorf("blob %s: %w", locator, types.ErrNotFound)
	}
	if err != nil {
		return types.Blob{}, fmt.Errorf("read blob %s: %w", locator, err)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	logging.StoreDebug("Downloaded blob %s (%d bytes, %s)", locator, len(data), mediaType)
	return types.Blob{Data: data, MediaType: mediaType}, nil
}

// Put writes data at locator, creating parent directories.
func (b *FSBlobStore) Put(ctx context.Context, locator string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := b.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write blob %s: %w", locator, err)
	}
	return nil
}

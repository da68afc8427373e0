// Package documents keeps uploaded member documents on disk.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSize bounds a single document.
const MaxSize = 20 << 20

// Errors.
var (
	ErrEmptyName = errors.New("file name is empty after sanitizing")
	ErrTooLarge  = errors.New("document exceeds the size limit")
	ErrNotFound  = errors.New("document not found")
)

// Store saves and opens documents by name.
type Store interface {
	// Save writes content as the document of userID and returns the stored name.
	// POST: the name is "{userID}_{sanitized filename}" and lives directly in the store
	Save(ctx context.Context, userID, filename string, content io.Reader) (string, error)

	// Open returns the named document for reading.
	// POST: missing files yield an error wrapping ErrNotFound
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirStore is a Store over one directory.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the directory documents are kept in.
func (s *DirStore) Dir() string {
	return s.dir
}

// Save implements Store. The file is written under a temporary name and
// renamed into place, so a reader never sees a partial document.
func (s *DirStore) Save(ctx context.Context, userID, filename string, content io.Reader) (string, error) {
	clean := SecureFilename(filename)
	if clean == "" {
		return "", ErrEmptyName
	}
	name := SecureFilename(userID) + "_" + clean

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(content, MaxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing document: %w", err)
	}
	if n > MaxSize {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("storing document: %w", err)
	}
	return name, nil
}

// Open implements Store.
func (s *DirStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return f, err
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces name to an ASCII file name without directories.
// Accents are dropped, separators and spaces become underscores, every
// other character outside [A-Za-z0-9_.-] is removed, and leading or
// trailing dots and underscores are trimmed. The result may be empty.
func SecureFilename(name string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), name)
	if err != nil {
		stripped = name
	}
	stripped = strings.NewReplacer("/", " ", "\\", " ").Replace(stripped)
	stripped = strings.Join(strings.Fields(stripped), "_")
	stripped = unsafeChars.ReplaceAllString(stripped, "")
	return strings.Trim(stripped, "._")
}

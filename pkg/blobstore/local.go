package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"
)

// Local stores blobs as files under a root directory. An empty root resolves
// names against the working directory.
type Local struct {
	root string
}

// NewLocal creates a local store rooted at root
func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (s *Local) path(name string) string {
	if s.root == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.root, name)
}

// Open maps the file read-only
func (s *Local) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := mmap.Open(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	return &mappedFile{SectionReader: io.NewSectionReader(r, 0, int64(r.Len())), r: r}, nil
}

type mappedFile struct {
	*io.SectionReader
	r *mmap.ReaderAt
}

func (f *mappedFile) Close() error {
	return f.r.Close()
}

// Create writes to a temporary file next to name, renamed into place on Close
func (s *Local) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	final := s.path(name)
	f, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &localWriter{File: f, final: final}, nil
}

type localWriter struct {
	*os.File
	final  string
	closed bool
}

func (w *localWriter) Close() error {
	if w.closed {
		return os.ErrClosed
	}
	w.closed = true

	if err := w.File.Sync(); err != nil {
		w.discard()
		return err
	}
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}
	if err := os.Rename(w.File.Name(), w.final); err != nil {
		_ = os.Remove(w.File.Name())
		return err
	}
	return nil
}

// Abort removes the temporary file without publishing it
func (w *localWriter) Abort() error {
	if w.closed {
		return os.ErrClosed
	}
	w.closed = true
	w.discard()
	return nil
}

func (w *localWriter) discard() {
	_ = w.File.Close()
	_ = os.Remove(w.File.Name())
}

// Append opens name for appending, creating it if needed
func (s *Local) Append(name string) (io.WriteCloser, error) {
	return os.OpenFile(s.path(name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

// Package blobstore resolves dataset inputs and result outputs to local files
// or S3 objects.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

// ErrNotFound is returned when a blob does not exist
var ErrNotFound = errors.New("blob not found")

// Store opens blobs for reading and creates them for writing. A created blob
// only becomes visible once its writer is closed without error.
type Store interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// Resolve returns the store holding loc and the name of loc within it.
// s3://bucket/key resolves to an S3 store; anything else is a local path.
func Resolve(ctx context.Context, loc string, opts S3Options) (Store, string, error) {
	if err := validation.ValidateLocation(loc); err != nil {
		return nil, "", err
	}
	rest, ok := strings.CutPrefix(loc, "s3://")
	if !ok {
		return NewLocal(""), loc, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	opts.Bucket = bucket
	store, err := NewS3FromConfig(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	return store, key, nil
}

// ReadAll opens name in store and reads it fully
func ReadAll(ctx context.Context, store Store, name string) ([]byte, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteWith creates name in store, lets fn write it and commits it. The blob
// is discarded if fn fails.
func WriteWith(ctx context.Context, store Store, name string, fn func(io.Writer) error) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			_ = a.Abort()
		}
		return err
	}
	return w.Close()
}

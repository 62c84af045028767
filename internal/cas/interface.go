// Package cas provides content-addressable blob storage. Blobs are keyed by
// the digest of their uncompressed bytes and verified on every read.
package cas

import (
	"context"
	"errors"

	"github.com/kilupskalvis/xs/internal/integrity"
)

// ErrNotFound is returned when no blob exists for a digest.
var ErrNotFound = errors.New("blob not found")

// ErrIntegrity is returned when stored bytes no longer match their digest.
var ErrIntegrity = errors.New("blob integrity check failed")

// ErrIO wraps filesystem failures.
var ErrIO = errors.New("blob storage i/o error")

// BlobStore defines the contract for content-addressable storage.
type BlobStore interface {
	// Put stores data and returns its digest.
	// Idempotent: storing the same bytes twice writes them once.
	Put(ctx context.Context, data []byte) (integrity.Integrity, error)

	// Get returns the verified bytes for a digest.
	// Returns ErrNotFound if absent and ErrIntegrity if corrupted.
	Get(ctx context.Context, hash integrity.Integrity) ([]byte, error)

	// Has checks whether a blob exists without reading it.
	Has(ctx context.Context, hash integrity.Integrity) (bool, error)

	// Delete removes a blob. No error if it doesn't exist.
	Delete(ctx context.Context, hash integrity.Integrity) error

	// List returns the digests of all stored blobs.
	List(ctx context.Context) ([]integrity.Integrity, error)

	// Usage reports the number of blobs and their size on disk.
	Usage(ctx context.Context) (Usage, error)
}

// Usage summarizes what a BlobStore holds.
type Usage struct {
	Blobs int
	Bytes int64
}

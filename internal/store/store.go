// Package store composes the identifier generator, the content-addressable
// blob store, and the ordered index into an append-only frame store.
//
// A Store exclusively owns its index handle and blob root from Open until
// Close. One Store per root per process; the index's file lock rejects a
// second process.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kilupskalvis/xs/internal/cas"
	"github.com/kilupskalvis/xs/internal/idgen"
	"github.com/kilupskalvis/xs/internal/index"
	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/kilupskalvis/xs/internal/models"
	"github.com/oklog/ulid"
	"github.com/rs/zerolog"
)

// CASDir is the blob directory inside a store root.
const CASDir = "cas"

// Errors surfaced by Store operations. They alias the component sentinels so
// callers only need this package for errors.Is checks.
var (
	ErrIO        = cas.ErrIO
	ErrStorage   = index.ErrStorage
	ErrNotFound  = cas.ErrNotFound
	ErrIntegrity = cas.ErrIntegrity
	ErrDecode    = index.ErrDecode
	ErrParse     = integrity.ErrParse

	// ErrFrameNotFound is returned by Get for an unknown id.
	ErrFrameNotFound = index.ErrNotFound

	// ErrTooLarge is returned when content exceeds Options.MaxFrameSize.
	ErrTooLarge = errors.New("content exceeds maximum frame size")
)

// Options configures Open.
type Options struct {
	IndexBackend index.Backend
	Algorithm    integrity.Algorithm
	Compression  cas.Compression
	// MaxFrameSize rejects larger puts. Zero means unlimited.
	MaxFrameSize int64
	ScanPageSize int
	Logger       zerolog.Logger
	// Clock overrides time.Now for id generation.
	Clock func() time.Time
}

// Store is the append-only frame store.
type Store struct {
	root   string
	blobs  *cas.FSStore
	index  index.Index
	ids    *idgen.Generator
	opts   Options
	logger zerolog.Logger

	// writeMu serializes Put and GC. Readers never take it.
	writeMu sync.Mutex
}

// Open acquires the store rooted at root, creating it if needed.
func Open(ctx context.Context, root string, opts Options) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty store path", ErrIO)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create store root: %w", ErrIO, err)
	}
	logger := opts.Logger.With().Str("store", root).Logger()

	blobs, err := cas.NewFSStore(filepath.Join(root, CASDir), cas.Options{
		Algorithm:   opts.Algorithm,
		Compression: opts.Compression,
	})
	if err != nil {
		return nil, err
	}

	idx, err := index.Open(root, opts.IndexBackend, logger)
	if err != nil {
		return nil, err
	}

	var genOpts []idgen.Option
	if opts.Clock != nil {
		genOpts = append(genOpts, idgen.WithClock(opts.Clock))
	}
	ids := idgen.New(genOpts...)

	last, err := idx.Last(ctx)
	if err != nil {
		idx.Close()
		return nil, fmt.Errorf("read newest frame: %w", err)
	}
	if last != nil {
		ids.Seed(last.ID)
	}

	logger.Debug().
		Str("backend", string(idx.Backend())).
		Str("algorithm", string(blobs.Algorithm())).
		Str("compression", string(blobs.Compression())).
		Msg("store opened")

	return &Store{
		root:   root,
		blobs:  blobs,
		index:  idx,
		ids:    ids,
		opts:   opts,
		logger: logger,
	}, nil
}

// Close releases the index. The Store must not be used afterwards.
func (s *Store) Close() error {
	if err := s.index.Close(); err != nil {
		return fmt.Errorf("%w: close index: %w", ErrStorage, err)
	}
	s.logger.Debug().Msg("store closed")
	return nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// PutOption customizes a single Put.
type PutOption func(*models.Frame)

// WithTopic labels the frame.
func WithTopic(topic string) PutOption {
	return func(f *models.Frame) { f.Topic = topic }
}

// Put stores content and appends a frame referencing it. The frame is
// visible to List only once the index write has committed. When the index
// write fails the blob stays in the CAS unreferenced; GC reclaims it.
func (s *Store) Put(ctx context.Context, content []byte, opts ...PutOption) (*models.Frame, error) {
	if limit := s.opts.MaxFrameSize; limit > 0 && int64(len(content)) > limit {
		return nil, fmt.Errorf("%d bytes, limit %d: %w", len(content), limit, ErrTooLarge)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	id, err := s.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	hash, err := s.blobs.Put(ctx, content)
	if err != nil {
		return nil, err
	}

	frame := &models.Frame{ID: id, Hash: hash}
	for _, opt := range opts {
		opt(frame)
	}

	if err := s.index.Insert(ctx, frame); err != nil {
		s.logger.Warn().Err(err).Str("hash", hash.String()).Msg("index write failed; blob left unreferenced")
		return nil, err
	}

	s.logger.Debug().
		Str("id", id.String()).
		Str("hash", hash.String()).
		Int("bytes", len(content)).
		Msg("frame stored")
	return frame, nil
}

// ListOptions narrows List.
type ListOptions struct {
	// After resumes strictly after this id.
	After *ulid.ULID
	// Limit caps the number of frames. Zero means all.
	Limit int
	// Topic, when set, keeps only frames with this topic.
	Topic string
}

// List yields frames oldest first. It is read-only and can be restarted at
// any time; frames appended after it starts are not included.
func (s *Store) List(ctx context.Context, opts ListOptions) iter.Seq2[*models.Frame, error] {
	scanOpts := index.ScanOptions{After: opts.After, PageSize: s.opts.ScanPageSize}
	if opts.Topic == "" {
		scanOpts.Limit = opts.Limit
		return s.index.Scan(ctx, scanOpts)
	}

	return func(yield func(*models.Frame, error) bool) {
		n := 0
		for f, err := range s.index.Scan(ctx, scanOpts) {
			if err != nil {
				yield(nil, err)
				return
			}
			if f.Topic != opts.Topic {
				continue
			}
			if !yield(f, nil) {
				return
			}
			n++
			if opts.Limit > 0 && n >= opts.Limit {
				return
			}
		}
	}
}

// Get returns the frame with the given id.
func (s *Store) Get(ctx context.Context, id ulid.ULID) (*models.Frame, error) {
	return s.index.Get(ctx, id)
}

// Cat returns the content named by an integrity descriptor. The descriptor
// is parsed before any storage access.
func (s *Store) Cat(ctx context.Context, hash string) ([]byte, error) {
	parsed, err := integrity.Parse(hash)
	if err != nil {
		return nil, err
	}
	return s.CatHash(ctx, parsed)
}

// CatHash returns the verified content for an already parsed descriptor.
func (s *Store) CatHash(ctx context.Context, hash integrity.Integrity) ([]byte, error) {
	data, err := s.blobs.Get(ctx, hash)
	if errors.Is(err, ErrIntegrity) {
		s.logger.Error().Err(err).Str("hash", hash.String()).Msg("corrupt blob")
	}
	return data, err
}

// Package index persists frames in an ordered key-value store keyed by the
// raw bytes of their ULID, so key order is generation order.
package index

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/kilupskalvis/xs/internal/codec"
	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/kilupskalvis/xs/internal/models"
	"github.com/oklog/ulid"
)

// Sentinel errors for index operations.
var (
	ErrStorage  = errors.New("index storage error")
	ErrDecode   = errors.New("index record cannot be decoded")
	ErrNotFound = errors.New("frame not found")
	ErrConflict = errors.New("frame id already exists")
)

// DefaultPageSize is the number of frames read per transaction during a scan.
const DefaultPageSize = 256

// Index is the ordered, durable frame log.
type Index interface {
	// Insert durably writes one frame. Existing ids are never overwritten;
	// inserting one returns ErrConflict.
	Insert(ctx context.Context, f *models.Frame) error

	// Get returns the frame with the given id, or ErrNotFound.
	Get(ctx context.Context, id ulid.ULID) (*models.Frame, error)

	// Last returns the newest frame, or nil when the index is empty.
	Last(ctx context.Context) (*models.Frame, error)

	// Scan yields frames in ascending id order. The newest frame at the time
	// Scan starts bounds the sequence; frames inserted afterwards are not
	// yielded. A decode or storage error is yielded once and ends the scan.
	Scan(ctx context.Context, opts ScanOptions) iter.Seq2[*models.Frame, error]

	// Count returns the number of frames.
	Count(ctx context.Context) (int, error)

	// Backend names the storage engine.
	Backend() Backend

	// Close releases the underlying database.
	Close() error
}

// ScanOptions narrows a scan.
type ScanOptions struct {
	// After, when set, starts the scan strictly after this id.
	After *ulid.ULID
	// Limit caps the number of frames yielded. Zero means no limit.
	Limit int
	// PageSize is the number of frames read per transaction.
	PageSize int
}

// frameValue is the persisted form of a frame; the id lives in the key.
type frameValue struct {
	Hash  string `cbor:"hash"`
	Topic string `cbor:"topic,omitempty"`
}

func encodeFrame(f *models.Frame) ([]byte, error) {
	if f.Hash.IsZero() {
		return nil, fmt.Errorf("frame %s has no hash", f.ID)
	}
	return codec.Marshal(frameValue{Hash: f.Hash.String(), Topic: f.Topic})
}

func decodeFrame(key, value []byte) (*models.Frame, error) {
	if len(key) != len(ulid.ULID{}) {
		return nil, fmt.Errorf("key %x has length %d: %w", key, len(key), ErrDecode)
	}
	var id ulid.ULID
	copy(id[:], key)

	var v frameValue
	if err := codec.Unmarshal(value, &v); err != nil {
		return nil, fmt.Errorf("frame %s: %w: %w", id, ErrDecode, err)
	}
	hash, err := integrity.Parse(v.Hash)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w: %w", id, ErrDecode, err)
	}
	return &models.Frame{ID: id, Topic: v.Topic, Hash: hash}, nil
}

// pager reads one bounded page of frames. It returns at most limit frames
// with after < id <= until in ascending order. after == nil starts at the
// first frame. On a decode error it returns the frames decoded before it.
type pager interface {
	page(ctx context.Context, after, until []byte, limit int) ([]*models.Frame, error)
}

// scan drives a pager page by page. Each page is its own read transaction,
// so a long scan never pins the database against writers.
func scan(ctx context.Context, p pager, last func(context.Context) (*models.Frame, error), opts ScanOptions) iter.Seq2[*models.Frame, error] {
	return func(yield func(*models.Frame, error) bool) {
		newest, err := last(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		if newest == nil {
			return
		}
		until := newest.ID

		var after []byte
		if opts.After != nil {
			start := *opts.After
			after = start[:]
		}
		pageSize := opts.PageSize
		if pageSize <= 0 {
			pageSize = DefaultPageSize
		}

		emitted := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			n := pageSize
			if opts.Limit > 0 && opts.Limit-emitted < n {
				n = opts.Limit - emitted
			}

			frames, err := p.page(ctx, after, until[:], n)
			for _, f := range frames {
				if !yield(f, nil) {
					return
				}
				emitted++
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if len(frames) < n || (opts.Limit > 0 && emitted >= opts.Limit) {
				return
			}
			tail := frames[len(frames)-1].ID
			after = tail[:]
		}
	}
}

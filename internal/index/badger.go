package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/kilupskalvis/xs/internal/models"
	"github.com/oklog/ulid"
	"github.com/rs/zerolog"
)

// framePrefix namespaces frame keys inside the badger keyspace.
var framePrefix = []byte("frames/")

// BadgerIndex implements Index using an embedded BadgerDB directory.
type BadgerIndex struct {
	db *badger.DB
}

// OpenBadger opens or creates a BadgerDB index in dir. Writes are synced
// before Insert returns. Badger's directory lock keeps other processes out.
func OpenBadger(dir string, logger zerolog.Logger) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithLogger(badgerLogger{logger: logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %w", ErrStorage, err)
	}
	return &BadgerIndex{db: db}, nil
}

// Backend returns BackendBadger.
func (x *BadgerIndex) Backend() Backend {
	return BackendBadger
}

// Close tears down the database connection, flushing it to disk.
func (x *BadgerIndex) Close() error {
	if x.db == nil {
		return nil
	}
	return x.db.Close()
}

func frameKey(id []byte) []byte {
	key := make([]byte, 0, len(framePrefix)+len(id))
	key = append(key, framePrefix...)
	return append(key, id...)
}

// Insert stores a frame unless its id already exists.
func (x *BadgerIndex) Insert(_ context.Context, f *models.Frame) error {
	value, err := encodeFrame(f)
	if err != nil {
		return err
	}
	key := frameKey(f.ID[:])
	err = x.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%s: %w", f.ID, ErrConflict)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: insert frame %s: %w", ErrStorage, f.ID, err)
	}
	return err
}

// Get returns an entry by id.
func (x *BadgerIndex) Get(_ context.Context, id ulid.ULID) (*models.Frame, error) {
	var frame *models.Frame
	err := x.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(frameKey(id[:]))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("%w: get frame %s: %w", ErrStorage, id, err)
		}
		// Values are only valid inside the transaction, so decode in place.
		return item.Value(func(val []byte) error {
			frame, err = decodeFrame(id[:], val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Last seeks a reverse iterator to the end of the frame prefix.
func (x *BadgerIndex) Last(_ context.Context) (*models.Frame, error) {
	var frame *models.Frame
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = framePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(frameKey(bytes.Repeat([]byte{0xff}, len(ulid.ULID{}))))
		if !it.ValidForPrefix(framePrefix) {
			return nil
		}
		item := it.Item()
		key := item.KeyCopy(nil)
		return item.Value(func(val []byte) error {
			var err error
			frame, err = decodeFrame(key[len(framePrefix):], val)
			return err
		})
	})
	if err != nil {
		if !errors.Is(err, ErrDecode) {
			err = fmt.Errorf("%w: last frame: %w", ErrStorage, err)
		}
		return nil, err
	}
	return frame, nil
}

// Count walks the frame keys without fetching values.
func (x *BadgerIndex) Count(_ context.Context) (int, error) {
	var n int
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = framePrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(framePrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count frames: %w", ErrStorage, err)
	}
	return n, nil
}

// Scan pages through the frame prefix in key order.
func (x *BadgerIndex) Scan(ctx context.Context, opts ScanOptions) iter.Seq2[*models.Frame, error] {
	return scan(ctx, x, x.Last, opts)
}

func (x *BadgerIndex) page(_ context.Context, after, until []byte, limit int) ([]*models.Frame, error) {
	frames := make([]*models.Frame, 0, limit)
	err := x.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = limit
		opts.Prefix = framePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := framePrefix
		if after != nil {
			start = frameKey(after)
		}
		for it.Seek(start); it.ValidForPrefix(framePrefix) && len(frames) < limit; it.Next() {
			item := it.Item()
			id := item.KeyCopy(nil)[len(framePrefix):]
			if after != nil && bytes.Compare(id, after) <= 0 {
				continue
			}
			if bytes.Compare(id, until) > 0 {
				break
			}
			if err := item.Value(func(val []byte) error {
				frame, err := decodeFrame(id, val)
				if err != nil {
					return err
				}
				frames = append(frames, frame)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrDecode) {
		err = fmt.Errorf("%w: scan frames: %w", ErrStorage, err)
	}
	return frames, err
}

// badgerLogger routes badger's internal logging into zerolog. Badger is
// chatty at info level, so its info output is demoted to debug.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(strings.TrimSpace(format), args...)
}

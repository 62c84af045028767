package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/xs/internal/models"
	"github.com/oklog/ulid"
	bolt "go.etcd.io/bbolt"
)

var bucketFrames = []byte("frames")

// BoltIndex implements Index using a single bbolt database file.
type BoltIndex struct {
	db *bolt.DB
}

// OpenBolt opens or creates a bbolt index at the given path. bbolt holds an
// exclusive file lock, so a second process opening the same file times out.
func OpenBolt(dbPath string) (*BoltIndex, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create index directory: %w", ErrStorage, err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open index: %w", ErrStorage, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFrames); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketFrames, err)
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return &BoltIndex{db: db}, nil
}

// Backend returns BackendBolt.
func (x *BoltIndex) Backend() Backend {
	return BackendBolt
}

// Close closes the database.
func (x *BoltIndex) Close() error {
	if x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Insert stores a frame in its own transaction; bbolt fsyncs on commit.
func (x *BoltIndex) Insert(_ context.Context, f *models.Frame) error {
	value, err := encodeFrame(f)
	if err != nil {
		return err
	}
	err = x.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFrames)
		if b.Get(f.ID[:]) != nil {
			return fmt.Errorf("%s: %w", f.ID, ErrConflict)
		}
		return b.Put(f.ID[:], value)
	})
	if err != nil && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: insert frame %s: %w", ErrStorage, f.ID, err)
	}
	return err
}

// Get retrieves a frame by id.
func (x *BoltIndex) Get(_ context.Context, id ulid.ULID) (*models.Frame, error) {
	var frame *models.Frame
	err := x.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFrames).Get(id[:])
		if data == nil {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		var err error
		frame, err = decodeFrame(id[:], data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Last returns the frame with the highest id.
func (x *BoltIndex) Last(_ context.Context) (*models.Frame, error) {
	var frame *models.Frame
	err := x.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketFrames).Cursor().Last()
		if k == nil {
			return nil
		}
		var err error
		frame, err = decodeFrame(k, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Count returns the number of frames in the bucket.
func (x *BoltIndex) Count(_ context.Context) (int, error) {
	var n int
	err := x.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketFrames).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count frames: %w", ErrStorage, err)
	}
	return n, nil
}

// Scan pages through the frames bucket in key order.
func (x *BoltIndex) Scan(ctx context.Context, opts ScanOptions) iter.Seq2[*models.Frame, error] {
	return scan(ctx, x, x.Last, opts)
}

func (x *BoltIndex) page(_ context.Context, after, until []byte, limit int) ([]*models.Frame, error) {
	frames := make([]*models.Frame, 0, limit)
	err := x.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFrames).Cursor()

		var k, v []byte
		if after == nil {
			k, v = c.First()
		} else {
			k, v = c.Seek(after)
		}
		for ; k != nil && len(frames) < limit; k, v = c.Next() {
			if after != nil && bytes.Compare(k, after) <= 0 {
				continue
			}
			if bytes.Compare(k, until) > 0 {
				break
			}
			frame, err := decodeFrame(k, v)
			if err != nil {
				return err
			}
			frames = append(frames, frame)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrDecode) {
		err = fmt.Errorf("%w: scan frames: %w", ErrStorage, err)
	}
	return frames, err
}

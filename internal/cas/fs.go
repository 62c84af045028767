package cas

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/xs/internal/integrity"
)

// Options configures how an FSStore writes new blobs.
type Options struct {
	Algorithm   integrity.Algorithm
	Compression Compression
}

// FSStore implements BlobStore on the local filesystem. Blobs live under
// <root>/<algorithm>/<first two hex chars>/<remaining hex chars>, with a
// .zst or .lz4 suffix when stored compressed.
type FSStore struct {
	root        string
	algorithm   integrity.Algorithm
	compression Compression
}

// NewFSStore creates a filesystem-backed blob store rooted at the given directory.
func NewFSStore(root string, opts Options) (*FSStore, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = integrity.DefaultAlgorithm
	}
	if opts.Algorithm.Size() == 0 {
		return nil, fmt.Errorf("unsupported algorithm %q", opts.Algorithm)
	}
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: create blob root: %w", ErrIO, err)
	}
	return &FSStore{root: root, algorithm: opts.Algorithm, compression: opts.Compression}, nil
}

// Root returns the directory holding the blobs.
func (s *FSStore) Root() string {
	return s.root
}

// Algorithm returns the digest algorithm used for new blobs.
func (s *FSStore) Algorithm() integrity.Algorithm {
	return s.algorithm
}

// Compression returns the encoding used for new blobs.
func (s *FSStore) Compression() Compression {
	return s.compression
}

// Has checks whether a blob exists.
func (s *FSStore) Has(_ context.Context, hash integrity.Integrity) (bool, error) {
	_, _, err := s.locate(hash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put stores data under its digest. Idempotent; if the blob exists, this is
// a no-op that still returns the digest.
func (s *FSStore) Put(ctx context.Context, data []byte) (integrity.Integrity, error) {
	hash := integrity.Compute(s.algorithm, data)

	exists, err := s.Has(ctx, hash)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if exists {
		return hash, nil
	}

	encoded, err := encode(data, s.compression)
	compression := s.compression
	if errors.Is(err, errIncompressible) {
		encoded, compression = data, CompressionNone
	} else if err != nil {
		return integrity.Integrity{}, fmt.Errorf("%w: encode blob %s: %w", ErrIO, hash, err)
	}

	blobPath := s.blobPath(hash) + compression.suffix()
	if err := writeAtomic(blobPath, encoded); err != nil {
		return integrity.Integrity{}, fmt.Errorf("%w: write blob %s: %w", ErrIO, hash, err)
	}

	return hash, nil
}

// Get reads a blob and verifies it against hash.
func (s *FSStore) Get(_ context.Context, hash integrity.Integrity) ([]byte, error) {
	path, compression, err := s.locate(hash)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("%w: read blob %s: %w", ErrIO, hash, err)
	}

	data, err := decode(raw, compression)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", hash, ErrIntegrity, err)
	}
	if !hash.Check(data) {
		return nil, fmt.Errorf("%s: content digest does not match: %w", hash, ErrIntegrity)
	}
	return data, nil
}

// Delete removes a blob in every encoding it may be stored in.
func (s *FSStore) Delete(_ context.Context, hash integrity.Integrity) error {
	if hash.Algorithm.Size() == 0 {
		return nil
	}
	base := s.blobPath(hash)
	for _, c := range readOrder {
		if err := os.Remove(base + c.suffix()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: delete blob %s: %w", ErrIO, hash, err)
		}
	}
	return nil
}

// List returns all blob digests by scanning the directory tree.
func (s *FSStore) List(ctx context.Context) ([]integrity.Integrity, error) {
	var hashes []integrity.Integrity
	err := s.walk(ctx, func(hash integrity.Integrity, _ fs.DirEntry) error {
		hashes = append(hashes, hash)
		return nil
	})
	return hashes, err
}

// Usage counts blobs and sums their on-disk size.
func (s *FSStore) Usage(ctx context.Context) (Usage, error) {
	var usage Usage
	err := s.walk(ctx, func(_ integrity.Integrity, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		usage.Blobs++
		usage.Bytes += info.Size()
		return nil
	})
	return usage, err
}

// tempPrefix names in-flight writes. A file with this prefix that outlives
// its Put was left by a write that never reached the rename.
const tempPrefix = ".blob-"

// RemoveTemp deletes leftover temp files and returns how many there were.
// Callers must ensure no Put is in flight. With dryRun set nothing is
// removed.
func (s *FSStore) RemoveTemp(ctx context.Context, dryRun bool) (int, error) {
	n := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		if !dryRun {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		n++
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return n, err
		}
		return n, fmt.Errorf("%w: remove temp files: %w", ErrIO, err)
	}
	return n, nil
}

// walk visits every blob file, skipping temp files and names that do not
// decode to a digest of the directory's algorithm.
func (s *FSStore) walk(ctx context.Context, fn func(integrity.Integrity, fs.DirEntry) error) error {
	for _, alg := range []integrity.Algorithm{integrity.SHA256, integrity.SHA512, integrity.BLAKE3} {
		algRoot := filepath.Join(s.root, string(alg))
		err := filepath.WalkDir(algRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path == algRoot {
					return fs.SkipDir
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				return nil
			}
			hash, ok := s.hashFromPath(alg, algRoot, path)
			if !ok {
				return nil
			}
			return fn(hash, d)
		})
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: scan blobs: %w", ErrIO, err)
		}
	}
	return nil
}

// hashFromPath reconstructs a digest from root/<alg>/ab/cd...[.suffix].
func (s *FSStore) hashFromPath(alg integrity.Algorithm, algRoot, path string) (integrity.Integrity, bool) {
	rel, err := filepath.Rel(algRoot, path)
	if err != nil {
		return integrity.Integrity{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 2 {
		return integrity.Integrity{}, false
	}
	name := parts[1]
	for _, c := range readOrder[1:] {
		name = strings.TrimSuffix(name, c.suffix())
	}
	digest, err := hex.DecodeString(parts[0] + name)
	if err != nil || len(digest) != alg.Size() {
		return integrity.Integrity{}, false
	}
	return integrity.Integrity{Algorithm: alg, Digest: digest}, true
}

// locate finds the file holding a blob and the encoding it was written with.
func (s *FSStore) locate(hash integrity.Integrity) (string, Compression, error) {
	if hash.Algorithm.Size() == 0 || len(hash.Digest) != hash.Algorithm.Size() {
		return "", "", fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	base := s.blobPath(hash)
	for _, c := range readOrder {
		path := base + c.suffix()
		_, err := os.Stat(path)
		if err == nil {
			return path, c, nil
		}
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: stat blob %s: %w", ErrIO, hash, err)
		}
	}
	return "", "", fmt.Errorf("%s: %w", hash, ErrNotFound)
}

// blobPath returns the filesystem path for a blob, without encoding suffix.
func (s *FSStore) blobPath(hash integrity.Integrity) string {
	h := hash.Hex()
	return filepath.Join(s.root, string(hash.Algorithm), h[:2], h[2:])
}

// writeAtomic writes data to a temp file in the target directory, syncs it,
// and renames it into place so readers never observe a partial blob.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write blob data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename blob: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open blob dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync blob dir: %w", err)
	}
	return nil
}

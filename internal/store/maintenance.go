package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/xs/internal/cas"
	"github.com/kilupskalvis/xs/internal/index"
	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/kilupskalvis/xs/internal/models"
)

// GCResult contains the outcome of a garbage collection run.
type GCResult struct {
	BlobsScanned    int
	BlobsDeleted    int
	ReferencedBlobs int
	TempFiles       int
	DryRun          bool
}

// GC removes blobs not referenced by any frame, along with temp files left
// by puts that crashed before their rename. It holds the writer lock for
// the whole run, so no Put can add a blob between mark and sweep. With
// dryRun set it only counts what would be deleted.
func (s *Store) GC(ctx context.Context, dryRun bool) (*GCResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result := &GCResult{DryRun: dryRun}

	// Mark. A scan that fails part way must not lead to a sweep.
	referenced := make(map[string]bool)
	for f, err := range s.index.Scan(ctx, index.ScanOptions{PageSize: s.opts.ScanPageSize}) {
		if err != nil {
			return nil, fmt.Errorf("collect referenced hashes: %w", err)
		}
		referenced[f.Hash.String()] = true
	}
	result.ReferencedBlobs = len(referenced)

	allHashes, err := s.blobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blob hashes: %w", err)
	}
	result.BlobsScanned = len(allHashes)

	// Sweep.
	for _, hash := range allHashes {
		if referenced[hash.String()] {
			continue
		}
		if dryRun {
			result.BlobsDeleted++
			continue
		}
		if err := s.blobs.Delete(ctx, hash); err != nil {
			s.logger.Warn().Err(err).Str("hash", hash.String()).Msg("gc: failed to delete blob")
			continue
		}
		result.BlobsDeleted++
	}

	// No Put is in flight while writeMu is held, so every temp file is stale.
	result.TempFiles, err = s.blobs.RemoveTemp(ctx, dryRun)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("scanned", result.BlobsScanned).
		Int("referenced", result.ReferencedBlobs).
		Int("deleted", result.BlobsDeleted).
		Int("temp_files", result.TempFiles).
		Bool("dry_run", dryRun).
		Msg("gc complete")

	return result, nil
}

// Problem is one frame whose content cannot be served.
type Problem struct {
	Frame *models.Frame
	Err   error
}

// VerifyReport summarizes a consistency check.
type VerifyReport struct {
	FramesChecked int
	BlobsChecked  int
	Problems      []Problem
}

// OK reports whether every frame resolved to intact content.
func (r *VerifyReport) OK() bool {
	return len(r.Problems) == 0
}

// Verify checks that every frame's hash resolves in the CAS and that the
// blob still matches its digest. Each distinct blob is read once. Missing or
// corrupt blobs are collected as problems; an unreadable index aborts.
func (s *Store) Verify(ctx context.Context) (*VerifyReport, error) {
	report := &VerifyReport{}
	checked := make(map[string]error)

	for f, err := range s.index.Scan(ctx, index.ScanOptions{PageSize: s.opts.ScanPageSize}) {
		if err != nil {
			return report, err
		}
		report.FramesChecked++

		key := f.Hash.String()
		blobErr, seen := checked[key]
		if !seen {
			_, blobErr = s.blobs.Get(ctx, f.Hash)
			if blobErr != nil && !errors.Is(blobErr, cas.ErrNotFound) && !errors.Is(blobErr, cas.ErrIntegrity) {
				return report, blobErr
			}
			checked[key] = blobErr
			report.BlobsChecked++
		}
		if blobErr != nil {
			report.Problems = append(report.Problems, Problem{Frame: f, Err: blobErr})
		}
	}
	return report, nil
}

// Stats describes the contents and settings of a store.
type Stats struct {
	Root        string
	Backend     index.Backend
	Algorithm   integrity.Algorithm
	Compression cas.Compression
	Frames      int
	Blobs       int
	BlobBytes   int64
}

// Stats counts frames and blobs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	frames, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.blobs.Usage(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Root:        s.root,
		Backend:     s.index.Backend(),
		Algorithm:   s.blobs.Algorithm(),
		Compression: s.blobs.Compression(),
		Frames:      frames,
		Blobs:       usage.Blobs,
		BlobBytes:   usage.Bytes,
	}, nil
}

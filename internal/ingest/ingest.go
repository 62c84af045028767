// Package ingest turns an input stream into a sequence of puts according to
// an ingestion mode.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kilupskalvis/xs/internal/models"
)

// Mode decides how input is split into frames.
type Mode string

const (
	// ModeWhole stores the entire input as one frame.
	ModeWhole Mode = "whole"
	// ModeLines stores each newline-terminated line as its own frame.
	ModeLines Mode = "lines"
	// ModeBytes stores every byte as its own frame. Valid, but rarely what
	// anyone wants.
	ModeBytes Mode = "bytes"
)

// ParseMode parses a mode name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(strings.ToLower(name)); m {
	case ModeWhole, ModeLines, ModeBytes:
		return m, nil
	default:
		return "", fmt.Errorf("unknown ingestion mode %q (want whole, lines or bytes)", name)
	}
}

// PutFunc durably stores one record.
type PutFunc func(ctx context.Context, content []byte) (*models.Frame, error)

// EmitFunc receives each frame once its put has completed.
type EmitFunc func(frame *models.Frame) error

// Run reads r and calls put once per record. Records are processed strictly
// one at a time: the next record is not read until the previous put and emit
// have returned. Cancellation is observed between records; Run then returns
// the number stored so far together with ctx.Err().
func Run(ctx context.Context, r io.Reader, mode Mode, put PutFunc, emit EmitFunc) (int, error) {
	if emit == nil {
		emit = func(*models.Frame) error { return nil }
	}
	store := func(content []byte) error {
		frame, err := put(ctx, content)
		if err != nil {
			return err
		}
		return emit(frame)
	}

	switch mode {
	case ModeWhole:
		return runWhole(ctx, r, store)
	case ModeLines:
		return runLines(ctx, r, store)
	case ModeBytes:
		return runBytes(ctx, r, store)
	default:
		return 0, fmt.Errorf("unknown ingestion mode %q", mode)
	}
}

func runWhole(ctx context.Context, r io.Reader, store func([]byte) error) (int, error) {
	data, err := read(ctx, func() ([]byte, error) { return io.ReadAll(r) })
	if err != nil {
		return 0, err
	}
	if err := store(data); err != nil {
		return 0, err
	}
	return 1, nil
}

func runLines(ctx context.Context, r io.Reader, store func([]byte) error) (int, error) {
	br := bufio.NewReader(r)
	n := 0
	for {
		line, err := read(ctx, func() ([]byte, error) { return br.ReadBytes('\n') })
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		eof := err != nil
		if eof && len(line) == 0 {
			return n, nil
		}

		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if err := store(line); err != nil {
			return n, err
		}
		n++
		if eof {
			return n, nil
		}
	}
}

func runBytes(ctx context.Context, r io.Reader, store func([]byte) error) (int, error) {
	buf := make([]byte, 4096)
	n := 0
	for {
		chunk, err := read(ctx, func() ([]byte, error) {
			m, err := r.Read(buf)
			return buf[:m], err
		})
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		for i, b := range chunk {
			if i > 0 && ctx.Err() != nil {
				return n, ctx.Err()
			}
			if serr := store([]byte{b}); serr != nil {
				return n, serr
			}
			n++
		}
		if err != nil {
			return n, nil
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// read runs a blocking read so that cancellation is noticed while waiting
// for input. After cancellation the read goroutine is abandoned together
// with the reader.
func read(ctx context.Context, fn func() ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan readResult, 1)
	go func() {
		data, err := fn()
		ch <- readResult{data: data, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.data, res.err
	}
}

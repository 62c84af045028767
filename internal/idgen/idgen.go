// Package idgen generates strictly increasing, time-sortable ULIDs without
// any coordination between generators.
package idgen

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// Generator hands out ULIDs that sort strictly after every ULID it has
// produced or been seeded with. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	now     func() time.Time
	random  io.Reader
	entropy io.Reader
	last    ulid.ULID
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithEntropy replaces crypto/rand as the randomness source.
func WithEntropy(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// New returns a Generator backed by crypto/rand and the wall clock.
func New(opts ...Option) *Generator {
	g := &Generator{now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	g.entropy = ulid.Monotonic(g.random, 0)
	return g
}

// Seed records last as already issued, typically the newest id found in a
// store on open. Seeding with an older id than the current one is a no-op.
func (g *Generator) Seed(last ulid.ULID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last.Compare(g.last) > 0 {
		g.last = last
	}
}

// Next returns the next id.
func (g *Generator) Next() (ulid.ULID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	// A clock that moved backwards must not reorder ids.
	if lastMs := g.last.Time(); lastMs > ms {
		ms = lastMs
	}

	id, err := ulid.New(ms, g.entropy)
	switch {
	case errors.Is(err, ulid.ErrMonotonicOverflow):
		id, err = g.successor(g.last)
	case err != nil:
		return ulid.ULID{}, err
	case id.Compare(g.last) <= 0:
		// The monotonic reader only knows ids it produced itself; a seeded
		// id from the same millisecond can still be ahead of it.
		id, err = g.successor(g.last)
	}
	if err != nil {
		return ulid.ULID{}, err
	}

	g.last = id
	return id, nil
}

// successor returns the smallest id greater than prev in the same
// millisecond, or a fresh random id in the following millisecond when the
// entropy is exhausted.
func (g *Generator) successor(prev ulid.ULID) (ulid.ULID, error) {
	next := prev
	for i := len(next) - 1; i >= 6; i-- {
		next[i]++
		if next[i] != 0 {
			return next, nil
		}
	}
	if prev.Time() >= ulid.MaxTime() {
		return ulid.ULID{}, ulid.ErrBigTime
	}
	return ulid.New(prev.Time()+1, g.random)
}

// Package models defines the records persisted by the store.
package models

import (
	"time"

	"github.com/kilupskalvis/xs/internal/integrity"
	"github.com/oklog/ulid"
)

// Frame is one stored entry: a time-ordered id paired with the digest of its
// content. Frames are never modified after creation.
type Frame struct {
	ID    ulid.ULID           `json:"id"`
	Topic string              `json:"topic,omitempty"`
	Hash  integrity.Integrity `json:"hash"`
}

// Timestamp returns the millisecond time embedded in the frame id.
func (f *Frame) Timestamp() time.Time {
	return ulid.Time(f.ID.Time())
}

// ShortID returns the last 8 characters of the id, the part that varies
// between frames written in the same millisecond.
func (f *Frame) ShortID() string {
	s := f.ID.String()
	return s[len(s)-8:]
}

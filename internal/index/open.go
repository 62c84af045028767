package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Backend names an index storage engine.
type Backend string

const (
	BackendBolt   Backend = "bolt"
	BackendBadger Backend = "badger"
)

// On-disk names of each backend's artifact inside a store root.
const (
	BoltFile  = "index.db"
	BadgerDir = "index"
)

// ParseBackend validates a backend name. Empty means bolt.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(name)); b {
	case "", BackendBolt:
		return BackendBolt, nil
	case BackendBadger:
		return b, nil
	default:
		return "", fmt.Errorf("unknown index backend %q", name)
	}
}

// Detect reports which backend already holds an index under root.
func Detect(root string) (Backend, bool, error) {
	_, boltErr := os.Stat(filepath.Join(root, BoltFile))
	_, badgerErr := os.Stat(filepath.Join(root, BadgerDir))
	hasBolt, hasBadger := boltErr == nil, badgerErr == nil

	switch {
	case hasBolt && hasBadger:
		return "", false, fmt.Errorf("%w: %s holds both %s and %s", ErrStorage, root, BoltFile, BadgerDir)
	case hasBolt:
		return BackendBolt, true, nil
	case hasBadger:
		return BackendBadger, true, nil
	}
	for _, err := range []error{boltErr, badgerErr} {
		if !os.IsNotExist(err) {
			return "", false, fmt.Errorf("%w: stat index: %w", ErrStorage, err)
		}
	}
	return "", false, nil
}

// Open opens the index under root. An existing index decides the backend;
// otherwise a new index of the preferred backend is created.
func Open(root string, preferred Backend, logger zerolog.Logger) (Index, error) {
	backend, found, err := Detect(root)
	if err != nil {
		return nil, err
	}
	if !found {
		backend = preferred
	} else if preferred != "" && backend != preferred {
		logger.Warn().
			Str("configured", string(preferred)).
			Str("existing", string(backend)).
			Msg("store already has an index; using the existing backend")
	}

	switch backend {
	case BackendBadger:
		return OpenBadger(filepath.Join(root, BadgerDir), logger)
	case BackendBolt, "":
		return OpenBolt(filepath.Join(root, BoltFile))
	default:
		return nil, fmt.Errorf("unknown index backend %q", backend)
	}
}

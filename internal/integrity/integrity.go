// Package integrity implements algorithm-tagged content digests of the form
// "<algorithm>-<base64 digest>", the identity under which blobs are stored.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrParse is returned when a string is not a well-formed integrity descriptor.
var ErrParse = errors.New("malformed integrity descriptor")

// Algorithm names a supported digest function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	BLAKE3 Algorithm = "blake3"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = SHA256

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(name)); alg {
	case SHA256, SHA512, BLAKE3:
		return alg, nil
	default:
		return "", fmt.Errorf("unknown algorithm %q: %w", name, ErrParse)
	}
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	switch a {
	case SHA256, BLAKE3:
		return 32
	case SHA512:
		return 64
	default:
		return 0
	}
}

// NewHash returns a fresh hasher for the algorithm. It panics on an
// algorithm that did not come from ParseAlgorithm or the constants above.
func NewHash(a Algorithm) hash.Hash {
	switch a {
	case SHA256:
		return sha256.New()
	case SHA512:
		return sha512.New()
	case BLAKE3:
		return blake3.New()
	default:
		panic("integrity: unsupported algorithm " + string(a))
	}
}

// Integrity identifies a byte sequence by digest.
type Integrity struct {
	Algorithm Algorithm
	Digest    []byte
}

// Compute digests data with the given algorithm.
func Compute(a Algorithm, data []byte) Integrity {
	h := NewHash(a)
	h.Write(data)
	return Integrity{Algorithm: a, Digest: h.Sum(nil)}
}

// Parse reads a descriptor such as "sha256-LCa0a2j/xo/5m0U8HTBBNBNCLXBkg7+g+YpeiGJm564=".
func Parse(s string) (Integrity, error) {
	s = strings.TrimSpace(s)
	name, encoded, ok := strings.Cut(s, "-")
	if !ok || name == "" || encoded == "" {
		return Integrity{}, fmt.Errorf("%q: expected <algorithm>-<digest>: %w", s, ErrParse)
	}
	alg, err := ParseAlgorithm(name)
	if err != nil {
		return Integrity{}, err
	}
	digest, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Integrity{}, fmt.Errorf("%q: bad base64 digest: %w", s, ErrParse)
	}
	if len(digest) != alg.Size() {
		return Integrity{}, fmt.Errorf("%q: %s digest must be %d bytes, got %d: %w",
			s, alg, alg.Size(), len(digest), ErrParse)
	}
	return Integrity{Algorithm: alg, Digest: digest}, nil
}

// IsZero reports whether i carries no digest.
func (i Integrity) IsZero() bool {
	return i.Algorithm == "" && len(i.Digest) == 0
}

// String returns the canonical descriptor form.
func (i Integrity) String() string {
	return string(i.Algorithm) + "-" + base64.StdEncoding.EncodeToString(i.Digest)
}

// Hex returns the lowercase hex digest, used for filesystem paths.
func (i Integrity) Hex() string {
	return hex.EncodeToString(i.Digest)
}

// Equal reports whether two descriptors name the same content.
func (i Integrity) Equal(other Integrity) bool {
	return i.Algorithm == other.Algorithm && bytes.Equal(i.Digest, other.Digest)
}

// Check reports whether data hashes to i.
func (i Integrity) Check(data []byte) bool {
	if i.Algorithm.Size() == 0 {
		return false
	}
	return i.Equal(Compute(i.Algorithm, data))
}

// MarshalText implements encoding.TextMarshaler.
func (i Integrity) MarshalText() ([]byte, error) {
	if i.IsZero() {
		return nil, fmt.Errorf("marshal empty integrity")
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Integrity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

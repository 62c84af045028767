package integrity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Deterministic(t *testing.T) {
	for _, alg := range []Algorithm{SHA256, SHA512, BLAKE3} {
		t.Run(string(alg), func(t *testing.T) {
			a := Compute(alg, []byte("hello"))
			b := Compute(alg, []byte("hello"))
			c := Compute(alg, []byte("hellp"))

			assert.True(t, a.Equal(b))
			assert.Equal(t, a.String(), b.String())
			assert.False(t, a.Equal(c))
			assert.Len(t, a.Digest, alg.Size())
		})
	}
}

func TestCompute_SHA256MatchesStdlib(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	want := "sha256-" + base64.StdEncoding.EncodeToString(sum[:])

	assert.Equal(t, want, Compute(SHA256, []byte("hello")).String())
}

func TestParse_RoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{SHA256, SHA512, BLAKE3} {
		i := Compute(alg, []byte("payload"))
		parsed, err := Parse(i.String())
		require.NoError(t, err)
		assert.True(t, i.Equal(parsed), alg)
	}
}

func TestParse_TrimsWhitespace(t *testing.T) {
	i := Compute(SHA256, []byte("x"))
	parsed, err := Parse("  " + i.String() + "\n")
	require.NoError(t, err)
	assert.True(t, i.Equal(parsed))
}

func TestParse_Errors(t *testing.T) {
	valid := Compute(SHA256, []byte("x")).String()
	_, digest, _ := strings.Cut(valid, "-")

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "sha256"},
		{"missing digest", "sha256-"},
		{"missing algorithm", "-" + digest},
		{"unknown algorithm", "md5-" + digest},
		{"bad base64", "sha256-!!!notbase64"},
		{"wrong length", "sha512-" + digest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestCheck(t *testing.T) {
	i := Compute(BLAKE3, []byte("data"))
	assert.True(t, i.Check([]byte("data")))
	assert.False(t, i.Check([]byte("Data")))
	assert.False(t, Integrity{}.Check([]byte("data")))
}

func TestHex(t *testing.T) {
	i := Compute(SHA256, []byte("hello"))
	assert.Len(t, i.Hex(), 64)
	assert.Equal(t, strings.ToLower(i.Hex()), i.Hex())
}

func TestIntegrity_JSON(t *testing.T) {
	type wrapper struct {
		Hash Integrity `json:"hash"`
	}
	in := wrapper{Hash: Compute(SHA256, []byte("hello"))}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sha256-`)

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, in.Hash.Equal(out.Hash))

	err = json.Unmarshal([]byte(`{"hash":"nope"}`), &out)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("BLAKE3")
	require.NoError(t, err)
	assert.Equal(t, BLAKE3, alg)

	_, err = ParseAlgorithm("crc32")
	assert.ErrorIs(t, err, ErrParse)
}

package ingest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kilupskalvis/xs/internal/models"
	"github.com/kilupskalvis/xs/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures puts without touching disk.
type recorder struct {
	puts  []string
	emits int
}

func (r *recorder) put(_ context.Context, content []byte) (*models.Frame, error) {
	r.puts = append(r.puts, string(content))
	return &models.Frame{}, nil
}

func (r *recorder) emit(*models.Frame) error {
	r.emits++
	return nil
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"whole", "lines", "bytes", "LINES"} {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, Mode(strings.ToLower(name)), m)
	}

	_, err := ParseMode("chunks")
	assert.Error(t, err)
}

func TestRun_Whole(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"text", "hello\nworld\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			n, err := Run(context.Background(), strings.NewReader(tt.input), ModeWhole, rec.put, rec.emit)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.Equal(t, []string{tt.input}, rec.puts)
			assert.Equal(t, 1, rec.emits)
		})
	}
}

func TestRun_Lines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"terminated", "a\nb\n", []string{"a", "b"}},
		{"unterminated tail", "a\nb", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"blank line", "a\n\nb\n", []string{"a", "", "b"}},
		{"empty input", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			n, err := Run(context.Background(), strings.NewReader(tt.input), ModeLines, rec.put, rec.emit)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), n)
			assert.Equal(t, tt.want, rec.puts)
			assert.Equal(t, n, rec.emits)
		})
	}
}

func TestRun_Bytes(t *testing.T) {
	rec := &recorder{}
	n, err := Run(context.Background(), strings.NewReader("ab\n"), ModeBytes, rec.put, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"a", "b", "\n"}, rec.puts)
}

func TestRun_PutErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	put := func(context.Context, []byte) (*models.Frame, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return &models.Frame{}, nil
	}

	n, err := Run(context.Background(), strings.NewReader("a\nb\nc\n"), ModeLines, put, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, calls)
}

func TestRun_CancelBetweenLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var puts []string
	put := func(_ context.Context, content []byte) (*models.Frame, error) {
		puts = append(puts, string(content))
		return &models.Frame{}, nil
	}
	emit := func(*models.Frame) error {
		cancel()
		return nil
	}

	n, err := Run(ctx, strings.NewReader("a\nb\nc\n"), ModeLines, put, emit)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a"}, puts)
}

func TestRun_CancelWhileWaitingForInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()

	rec := &recorder{}
	emitted := make(chan struct{}, 1)
	emit := func(f *models.Frame) error {
		emitted <- struct{}{}
		return rec.emit(f)
	}

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, pr, ModeLines, rec.put, emit)
		done <- err
	}()

	_, err := pw.Write([]byte("first\n"))
	require.NoError(t, err)
	<-emitted

	// The writer stays open, so Run is blocked on input until cancelled.
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"first"}, rec.puts)
}

func TestRun_LinesIntoStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, t.TempDir(), store.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer st.Close()

	put := func(ctx context.Context, content []byte) (*models.Frame, error) {
		return st.Put(ctx, content)
	}
	n, err := Run(ctx, strings.NewReader("a\nb\n"), ModeLines, put, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	var frames []*models.Frame
	for f, err := range st.List(ctx, store.ListOptions{}) {
		require.NoError(t, err)
		frames = append(frames, f)
	}
	require.Len(t, frames, 2)

	first, err := st.Cat(ctx, frames[0].Hash.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), first)

	second, err := st.Cat(ctx, frames[1].Hash.String())
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), second)
}

package console

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLineSplitsAndEnds(t *testing.T) {
	r := NewLineReader(strings.NewReader("first\r\n\nlast"))
	ctx := context.Background()

	for _, want := range []string{"first", "", "last"} {
		got, err := r.ReadLine(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.ReadLine(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestCancelledReadPassesLineToNextPrompt(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewLineReader(pr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ReadLine(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// A second abandoned prompt must not start a competing read.
	short, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	_, err = r.ReadLine(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() { _, _ = pw.Write([]byte("one\ntwo\n")) }()
	got, err := r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "one", got)
	got, err = r.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "two", got)
}

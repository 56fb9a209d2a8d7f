package textfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSinkWritesDelimitedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "20240101", "turnover.txt")
	s, err := Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, []string{"a", "b"}, []string{"1", "2"}))
	require.NoError(t, s.Write(ctx, []string{"a", "b"}, []string{"multi\nline", "x\x01y"}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1\x012\nmulti line\x01xy\n", string(data))
}

func TestSinkAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.txt")
	for _, v := range []string{"first", "second"} {
		s, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, s.Write(context.Background(), []string{"v"}, []string{v}))
		require.NoError(t, s.Flush())
		require.NoError(t, s.Close())
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond\n", string(data))
}

func TestSinkCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Flush())
	if err := s.Write(context.Background(), nil, []string{"late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOpenRejectsFileAsDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	_, err := Open(filepath.Join(blocker, "out.txt"))
	require.Error(t, err)

	_, err = Open("  ")
	require.Error(t, err)
}

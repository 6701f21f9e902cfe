package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/collabocanvas/internal/shape"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "canvases"))
	require.NoError(t, err)
	return s
}

// TestSaveLoadRoundTrip verifies that a saved canvas loads back unchanged.
func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	shapes := []shape.Shape{
		shape.NewCircle(50, 50, 10, shape.Black, shape.Transparent),
		shape.NewFreehand([]shape.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}, 2, shape.Black),
		shape.NewText(4, 4, "note", shape.Black),
	}

	require.NoError(t, s.Save(ctx, "board", shapes))

	got, err := s.Load(ctx, "board.json")
	require.NoError(t, err)
	assert.Equal(t, shapes, got)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"board.json"}, names)
}

// TestSaveDocumentShape verifies the on-disk document layout.
func TestSaveDocumentShape(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(context.Background(), "a.json", nil))

	data, err := os.ReadFile(filepath.Join(s.Root(), "a.json"))
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `[]`, string(doc["shapes"]))
}

// TestSaveOverwrites verifies that a second save replaces the first and
// leaves no temp files behind.
func TestSaveOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "x", []shape.Shape{shape.NewSquare(0, 0, 5, shape.Black, shape.Transparent)}))
	require.NoError(t, s.Save(ctx, "x", []shape.Shape{}))

	got, err := s.Load(ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, got)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestCleanName verifies that names are confined to the store directory.
func TestCleanName(t *testing.T) {
	valid := map[string]string{
		"board":      "board.json",
		"board.json": "board.json",
		"Board.JSON": "Board.JSON",
		" spaced ":   "spaced.json",
	}
	for in, want := range valid {
		got, err := CleanName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", ".", "..", "../etc/passwd", "a/b.json", `a\b`, "/abs.json"} {
		_, err := CleanName(in)
		assert.ErrorIs(t, err, ErrInvalidName, in)
	}
}

// TestPersistenceErrors verifies the error types callers branch on.
func TestPersistenceErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "load", pe.Op)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Save(ctx, "../escape", nil)
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, ErrInvalidName)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Save(cancelled, "late", nil), context.Canceled)

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "bad.json"), []byte("{not json"), 0o644))
	_, err = s.Load(ctx, "bad")
	assert.True(t, errors.As(err, &pe))
}

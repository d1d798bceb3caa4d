package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoRedoWalk(t *testing.T) {
	h := New(0, 10)
	assert.False(t, h.CanUndo())
	assert.False(t, h.CanRedo())

	h.Record(1)
	h.Record(2)
	assert.True(t, h.CanUndo())
	assert.False(t, h.CanRedo())
	assert.Equal(t, 2, h.Current())

	v, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, h.CanRedo())

	v, ok = h.Undo()
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.False(t, h.CanUndo(), "initial snapshot")

	_, ok = h.Undo()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Current())

	v, ok = h.Redo()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = h.Redo()
	require.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = h.Redo()
	assert.False(t, ok)
}

func TestRecordTruncatesRedoBranch(t *testing.T) {
	h := New("a", 10)
	h.Record("b")
	h.Record("c")
	h.Undo()
	h.Undo()

	h.Record("x")
	assert.Equal(t, 2, h.Len())
	assert.False(t, h.CanRedo())
	assert.Equal(t, "x", h.Current())

	v, _ := h.Undo()
	assert.Equal(t, "a", v)
}

func TestCapEvictsOldestAndKeepsCursorAtTail(t *testing.T) {
	h := New(0, DefaultLimit)
	for i := 1; i <= 120; i++ {
		h.Record(i)
		require.Equal(t, i, h.Current())
		require.Equal(t, h.Len()-1, h.Cursor())
		require.False(t, h.CanRedo())
	}
	assert.Equal(t, DefaultLimit, h.Len())

	// walking back reaches the oldest retained snapshot, not the initial one
	undone := 0
	for h.CanUndo() {
		v, ok := h.Undo()
		require.True(t, ok)
		undone++
		require.Equal(t, 120-undone, v)
	}
	assert.Equal(t, DefaultLimit-1, undone)
	assert.Equal(t, 120-DefaultLimit+1, h.Current())

	for h.CanRedo() {
		h.Redo()
	}
	assert.Equal(t, 120, h.Current())
}

func TestRecordAfterUndoAtCap(t *testing.T) {
	h := New(0, 3)
	h.Record(1)
	h.Record(2)
	h.Record(3)
	assert.Equal(t, []int{1, 2, 3}, h.entries)

	h.Undo()
	h.Record(9)
	assert.Equal(t, []int{1, 2, 9}, h.entries)
	assert.Equal(t, 2, h.Cursor())
}

func TestLimitFallback(t *testing.T) {
	assert.Equal(t, DefaultLimit, New(0, 0).Limit())
	assert.Equal(t, DefaultLimit, New(0, 1).Limit())
	assert.Equal(t, 7, New(0, 7).Limit())
}

func TestReset(t *testing.T) {
	h := New(0, 5)
	h.Record(1)
	h.Reset(42)
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, 42, h.Current())
	assert.False(t, h.CanUndo())
}

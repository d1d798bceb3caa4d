// Package history keeps a bounded, linear undo/redo log of snapshots.
package history

// DefaultLimit is the number of snapshots kept when no limit is given.
const DefaultLimit = 50

// History is a cursor over an ordered sequence of snapshots. Recording after
// an undo discards the redo branch. When the sequence is full the oldest
// snapshot is evicted and the cursor stays on the newest one.
//
// History is not safe for concurrent use.
type History[T any] struct {
	entries []T
	cursor  int
	limit   int
}

// New returns a history holding only initial. A limit below 2 falls back to
// DefaultLimit.
func New[T any](initial T, limit int) *History[T] {
	if limit < 2 {
		limit = DefaultLimit
	}
	return &History[T]{entries: []T{initial}, limit: limit}
}

// Record appends next after the cursor and moves the cursor onto it.
func (h *History[T]) Record(next T) {
	h.entries = append(h.entries[:h.cursor+1], next)
	if over := len(h.entries) - h.limit; over > 0 {
		var zero T
		for i := 0; i < over; i++ {
			h.entries[i] = zero
		}
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
}

// Undo moves the cursor back one step. It reports false when there is
// nothing to undo.
func (h *History[T]) Undo() (T, bool) {
	if !h.CanUndo() {
		var zero T
		return zero, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo moves the cursor forward one step. It reports false at the newest
// snapshot.
func (h *History[T]) Redo() (T, bool) {
	if !h.CanRedo() {
		var zero T
		return zero, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

func (h *History[T]) CanUndo() bool { return h.cursor > 0 }
func (h *History[T]) CanRedo() bool { return h.cursor < len(h.entries)-1 }

// Current returns the snapshot under the cursor.
func (h *History[T]) Current() T { return h.entries[h.cursor] }

// Len returns the number of snapshots kept.
func (h *History[T]) Len() int { return len(h.entries) }

// Cursor returns the index of the current snapshot.
func (h *History[T]) Cursor() int { return h.cursor }

// Limit returns the maximum number of snapshots kept.
func (h *History[T]) Limit() int { return h.limit }

// Reset drops every snapshot and starts over from initial.
func (h *History[T]) Reset(initial T) {
	h.entries = []T{initial}
	h.cursor = 0
}

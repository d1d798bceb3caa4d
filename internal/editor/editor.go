// Package editor binds the current diagram snapshot to its undo history and
// tells observers about every change.
package editor

import (
	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/history"
)

// Op names the operation that produced a change.
type Op string

const (
	OpAddClass           Op = "add_class"
	OpAddInterface       Op = "add_interface"
	OpAddNote            Op = "add_note"
	OpAddRelationship    Op = "add_relationship"
	OpUpdateElement      Op = "update_element"
	OpUpdateRelationship Op = "update_relationship"
	OpDelete             Op = "delete"
	OpLoad               Op = "load"
	OpClear              Op = "clear"
	OpUndo               Op = "undo"
	OpRedo               Op = "redo"
	OpSelect             Op = "select"
	OpZoom               Op = "zoom"
	OpPan                Op = "pan"
)

// Change is delivered to observers after the current snapshot moved.
// Structural is false for selection, zoom and pan changes.
type Change struct {
	State      diagram.State
	Op         Op
	Structural bool
}

// Observer is called synchronously after each change.
type Observer func(Change)

type subscriber struct {
	id int
	fn Observer
}

// Editor owns one diagram. Structural operations are recorded in the history;
// selection, zoom and pan are not. Snapshots handed out must be treated as
// read-only.
//
// An Editor is not safe for concurrent use; sessions confine it to a single
// dispatcher goroutine.
type Editor struct {
	state     diagram.State
	hist      *history.History[diagram.State]
	observers []subscriber
	nextSub   int
}

// New returns an editor on the empty diagram keeping at most limit snapshots.
func New(limit int) *Editor {
	initial := diagram.Empty()
	return &Editor{state: initial, hist: history.New(initial, limit)}
}

// State returns the current snapshot.
func (e *Editor) State() diagram.State { return e.state }

// Subscribe registers fn and returns a function that removes it.
func (e *Editor) Subscribe(fn Observer) (unsubscribe func()) {
	e.nextSub++
	id := e.nextSub
	e.observers = append(e.observers, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range e.observers {
			if s.id == id {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

func (e *Editor) AddClass(c diagram.Class) {
	e.commit(OpAddClass, diagram.AddClass(e.state, c))
}

func (e *Editor) AddInterface(in diagram.Interface) {
	e.commit(OpAddInterface, diagram.AddInterface(e.state, in))
}

func (e *Editor) AddNote(n diagram.Note) {
	e.commit(OpAddNote, diagram.AddNote(e.state, n))
}

func (e *Editor) AddRelationship(r diagram.Relationship) {
	e.commit(OpAddRelationship, diagram.AddRelationship(e.state, r))
}

func (e *Editor) UpdateElement(id string, p diagram.ElementPatch) {
	e.commit(OpUpdateElement, diagram.UpdateElement(e.state, id, p))
}

func (e *Editor) UpdateRelationship(id string, p diagram.RelationshipPatch) {
	e.commit(OpUpdateRelationship, diagram.UpdateRelationship(e.state, id, p))
}

func (e *Editor) DeleteElement(id string) {
	e.commit(OpDelete, diagram.DeleteElement(e.state, id))
}

// DeleteSelected removes every selected element in one history step. It is
// a no-op when nothing is selected.
func (e *Editor) DeleteSelected() {
	if len(e.state.SelectedElements) == 0 {
		return
	}
	e.commit(OpDelete, diagram.DeleteElements(e.state, e.state.SelectedElements...))
}

// Load replaces the whole diagram. It is recorded, so a remote update is one
// undo step for the receiver.
func (e *Editor) Load(s diagram.State) {
	e.commit(OpLoad, diagram.Load(s))
}

func (e *Editor) Clear() {
	e.commit(OpClear, diagram.Clear())
}

func (e *Editor) SetSelectedElements(ids []string) {
	e.transient(OpSelect, diagram.SetSelectedElements(e.state, ids))
}

func (e *Editor) SelectAll() {
	e.transient(OpSelect, diagram.SelectAll(e.state))
}

func (e *Editor) SetZoom(z float64) {
	e.transient(OpZoom, diagram.SetZoom(e.state, z))
}

func (e *Editor) SetPan(p diagram.Point) {
	e.transient(OpPan, diagram.SetPan(e.state, p))
}

// Undo restores the previous snapshot. It reports false when there is
// nothing to undo.
func (e *Editor) Undo() bool {
	prev, ok := e.hist.Undo()
	if !ok {
		return false
	}
	e.replace(OpUndo, prev, true)
	return true
}

// Redo restores the next snapshot. It reports false at the newest one.
func (e *Editor) Redo() bool {
	next, ok := e.hist.Redo()
	if !ok {
		return false
	}
	e.replace(OpRedo, next, true)
	return true
}

func (e *Editor) CanUndo() bool { return e.hist.CanUndo() }
func (e *Editor) CanRedo() bool { return e.hist.CanRedo() }

// HistoryLen returns the number of snapshots currently kept.
func (e *Editor) HistoryLen() int { return e.hist.Len() }

func (e *Editor) commit(op Op, next diagram.State) {
	e.hist.Record(next)
	e.replace(op, next, true)
}

func (e *Editor) transient(op Op, next diagram.State) {
	e.replace(op, next, false)
}

func (e *Editor) replace(op Op, next diagram.State, structural bool) {
	e.state = next
	change := Change{State: next, Op: op, Structural: structural}
	// observers may unsubscribe while being notified
	subs := append([]subscriber(nil), e.observers...)
	for _, s := range subs {
		s.fn(change)
	}
}

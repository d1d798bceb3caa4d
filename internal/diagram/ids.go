package diagram

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns "<prefix>-<ulid>". IDs are strictly increasing within the
// process, so they are never reused in a session even when two are minted in
// the same millisecond.
func NewID(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()
	return prefix + "-" + strings.ToLower(id.String())
}

// Default element sizes used by the factories.
const (
	ClassWidth      = 200
	ClassHeight     = 150
	InterfaceWidth  = 200
	InterfaceHeight = 120
	NoteWidth       = 150
	NoteHeight      = 100
)

// NewClass returns a placeholder class at (x, y) with a fresh id.
func NewClass(x, y float64) Class {
	return Class{
		ID:          NewID("class"),
		Name:        "NewClass",
		X:           x,
		Y:           y,
		Width:       ClassWidth,
		Height:      ClassHeight,
		Attributes:  []string{"- attribute: String"},
		Methods:     []string{"+ method(): void"},
		Stereotypes: []string{},
		Visibility:  VisibilityPublic,
	}
}

// NewInterface returns a placeholder interface at (x, y) with a fresh id.
func NewInterface(x, y float64) Interface {
	return Interface{
		ID:      NewID("interface"),
		Name:    "INewInterface",
		X:       x,
		Y:       y,
		Width:   InterfaceWidth,
		Height:  InterfaceHeight,
		Methods: []string{"+ method(): void"},
	}
}

// NewNote returns a note at (x, y) with a fresh id.
func NewNote(x, y float64, text string) Note {
	return Note{
		ID:     NewID("note"),
		Text:   text,
		X:      x,
		Y:      y,
		Width:  NoteWidth,
		Height: NoteHeight,
	}
}

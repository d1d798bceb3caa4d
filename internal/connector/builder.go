// Package connector turns two element clicks into a relationship.
package connector

import (
	"strings"

	"github.com/umlstudio/engine/internal/diagram"
)

// Phase of the two-click gesture.
type Phase int

const (
	Idle Phase = iota
	Pending
)

func (p Phase) String() string {
	if p == Pending {
		return "pending"
	}
	return "idle"
}

const (
	joinWidth   = 200
	joinHeight  = 100
	joinOffsetY = 50

	JoinStereotype = "<<join table>>"
)

// Line is the transient guide drawn while a gesture is pending.
type Line struct {
	From diagram.Point
	To   diagram.Point
}

// Result is what a finished gesture adds to the diagram. JoinClass is set
// for many-to-many relationships and must be added before Relationship.
type Result struct {
	Relationship diagram.Relationship
	JoinClass    *diagram.Class
}

// Sink receives the entities of a finished gesture. *editor.Editor is one.
type Sink interface {
	AddClass(diagram.Class)
	AddRelationship(diagram.Relationship)
}

// Apply adds r to sink, the join class first.
func Apply(sink Sink, r Result) {
	if r.JoinClass != nil {
		sink.AddClass(*r.JoinClass)
	}
	sink.AddRelationship(r.Relationship)
}

// Option configures a Builder.
type Option func(*Builder)

// WithIDs replaces the id generator, diagram.NewID by default.
func WithIDs(fn func(prefix string) string) Option {
	return func(b *Builder) { b.newID = fn }
}

// Builder is the Idle/Pending state machine of the relationship tool. It
// only reacts while a relationship tool is active.
type Builder struct {
	tool  diagram.RelationType
	phase Phase
	start string
	guide Line
	newID func(prefix string) string
}

func New(opts ...Option) *Builder {
	b := &Builder{newID: diagram.NewID}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetTool activates a relationship tool. An empty or unknown type
// deactivates the builder. Any pending gesture is dropped.
func (b *Builder) SetTool(t diagram.RelationType) {
	if !t.Valid() {
		t = ""
	}
	b.tool = t
	b.reset()
}

func (b *Builder) Tool() diagram.RelationType { return b.tool }
func (b *Builder) Active() bool { return b.tool != "" }
func (b *Builder) Phase() Phase { return b.phase }

// Start returns the start endpoint of a pending gesture.
func (b *Builder) Start() string { return b.start }

// GuideLine returns the guide line while a gesture is pending.
func (b *Builder) GuideLine() (Line, bool) {
	return b.guide, b.phase == Pending
}

// Click feeds an element click. It returns a result when the click finished
// a gesture between two resolvable elements.
func (b *Builder) Click(s diagram.State, id string) (Result, bool) {
	if !b.Active() {
		return Result{}, false
	}

	switch b.phase {
	case Idle:
		el, ok := s.Find(id)
		if !ok {
			return Result{}, false
		}
		c := el.Bounds().Center()
		b.phase, b.start, b.guide = Pending, id, Line{From: c, To: c}
		return Result{}, false

	default:
		if id == b.start {
			return Result{}, false
		}
		from, okFrom := s.Find(b.start)
		to, okTo := s.Find(id)
		b.reset()
		if !okFrom || !okTo {
			return Result{}, false
		}
		return b.finish(from, to), true
	}
}

// Move tracks the pointer in screen coordinates. It only changes the guide
// line.
func (b *Builder) Move(px, py, zoom float64) {
	if b.phase != Pending {
		return
	}
	if zoom <= 0 {
		zoom = 1
	}
	b.guide.To = diagram.Point{X: px / zoom, Y: py / zoom}
}

// ClickCanvas cancels a pending gesture.
func (b *Builder) ClickCanvas() { b.reset() }

// Cancel abandons a pending gesture, keeping the tool.
func (b *Builder) Cancel() { b.reset() }

func (b *Builder) reset() {
	b.phase, b.start, b.guide = Idle, "", Line{}
}

func (b *Builder) finish(from, to diagram.Element) Result {
	rel := diagram.Relationship{
		ID:     b.newID("relation"),
		Type:   b.tool,
		From:   from.ElementID(),
		To:     to.ElementID(),
		Points: []diagram.Point{},
	}
	if b.tool != diagram.ManyToMany {
		return Result{Relationship: rel}
	}

	rel.FromMultiplicity, rel.ToMultiplicity = "*", "*"
	fromName, toName := from.DisplayName(), to.DisplayName()
	fb, tb := from.Bounds(), to.Bounds()
	join := diagram.Class{
		ID:     b.newID("table"),
		Name:   fromName + "_" + toName,
		X:      (fb.X + tb.X) / 2,
		Y:      (fb.Y+tb.Y)/2 - joinOffsetY,
		Width:  joinWidth,
		Height: joinHeight,
		Attributes: []string{
			"+ " + strings.ToLower(fromName) + "_id: int",
			"+ " + strings.ToLower(toName) + "_id: int",
		},
		Methods:     []string{},
		Stereotypes: []string{JoinStereotype},
		Visibility:  diagram.VisibilityPublic,
	}
	return Result{Relationship: rel, JoinClass: &join}
}

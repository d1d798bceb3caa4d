package diagram

// Kind tags the variant of an Element.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindNote      Kind = "note"
)

// Rect is an axis aligned box in diagram coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Element is a placeable diagram node. The set of implementations is closed:
// Class, Interface and Note.
type Element interface {
	ElementID() string
	Kind() Kind
	Bounds() Rect
	// DisplayName is the class or interface name, or the note text.
	DisplayName() string

	sealed()
}

var (
	_ Element = Class{}
	_ Element = Interface{}
	_ Element = Note{}
)

func (c Class) ElementID() string { return c.ID }
func (c Class) Kind() Kind { return KindClass }
func (c Class) Bounds() Rect { return Rect{c.X, c.Y, c.Width, c.Height} }
func (c Class) DisplayName() string { return c.Name }
func (Class) sealed() {}

func (in Interface) ElementID() string { return in.ID }
func (in Interface) Kind() Kind { return KindInterface }
func (in Interface) Bounds() Rect { return Rect{in.X, in.Y, in.Width, in.Height} }
func (in Interface) DisplayName() string { return in.Name }
func (Interface) sealed() {}

func (n Note) ElementID() string { return n.ID }
func (n Note) Kind() Kind { return KindNote }
func (n Note) Bounds() Rect { return Rect{n.X, n.Y, n.Width, n.Height} }
func (n Note) DisplayName() string { return n.Text }
func (Note) sealed() {}

// Find resolves id to an element, probing classes, then interfaces, then
// notes. The returned element does not share memory with s.
func (s State) Find(id string) (Element, bool) {
	for _, c := range s.Classes {
		if c.ID == id {
			return c.clone(), true
		}
	}
	for _, in := range s.Interfaces {
		if in.ID == id {
			return in.clone(), true
		}
	}
	for _, n := range s.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// FindRelationship resolves a relationship by id.
func (s State) FindRelationship(id string) (Relationship, bool) {
	for _, r := range s.Relationships {
		if r.ID == id {
			return r.clone(), true
		}
	}
	return Relationship{}, false
}

// Has reports whether id names an element or a relationship in s.
func (s State) Has(id string) bool {
	if _, ok := s.Find(id); ok {
		return true
	}
	_, ok := s.FindRelationship(id)
	return ok
}

// Elements returns every element in rendering order: classes, interfaces,
// then notes.
func (s State) Elements() []Element {
	out := make([]Element, 0, len(s.Classes)+len(s.Interfaces)+len(s.Notes))
	for _, c := range s.Classes {
		out = append(out, c.clone())
	}
	for _, in := range s.Interfaces {
		out = append(out, in.clone())
	}
	for _, n := range s.Notes {
		out = append(out, n)
	}
	return out
}

// NameOf returns the display name of a class or interface. Notes have no
// name and are not resolved.
func (s State) NameOf(id string) (string, bool) {
	el, ok := s.Find(id)
	if !ok || el.Kind() == KindNote {
		return "", false
	}
	return el.DisplayName(), true
}

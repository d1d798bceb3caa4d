// Package diagram holds the UML class-diagram document model and the pure
// functions that derive one snapshot from another.
//
// A State is a value. Every exported mutation returns a new State whose
// slices never alias the ones of its input, so a snapshot kept by the
// history or by a network sender stays unchanged forever.
package diagram

// Visibility of a class.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityPackage   Visibility = "package"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityProtected, VisibilityPackage:
		return true
	}
	return false
}

// RelationType is the kind of a relationship between two elements.
type RelationType string

const (
	Association RelationType = "association"
	Inheritance RelationType = "inheritance"
	Composition RelationType = "composition"
	Aggregation RelationType = "aggregation"
	Dependency  RelationType = "dependency"
	Realization RelationType = "realization"
	ManyToMany  RelationType = "manyToMany"
)

// RelationTypes lists every relationship kind in a stable order.
var RelationTypes = []RelationType{
	Association, Inheritance, Composition, Aggregation, Dependency, Realization, ManyToMany,
}

// Valid reports whether t is a known relationship kind.
func (t RelationType) Valid() bool {
	for _, known := range RelationTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	MinZoom = 0.1
	MaxZoom = 5.0
)

// Point is a position in diagram coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Class is a UML class box.
type Class struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	Width       float64    `json:"width"`
	Height      float64    `json:"height"`
	Attributes  []string   `json:"attributes"`
	Methods     []string   `json:"methods"`
	Stereotypes []string   `json:"stereotypes"`
	Visibility  Visibility `json:"visibility,omitempty"`
}

// Interface is a UML interface box. Its methods are implicitly public.
type Interface struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Methods []string `json:"methods"`
}

// Note is a free text annotation.
type Note struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Relationship connects two elements by id. Points are advisory waypoints;
// the drawn connection is recomputed from element geometry.
type Relationship struct {
	ID               string       `json:"id"`
	Type             RelationType `json:"type"`
	From             string       `json:"from"`
	To               string       `json:"to"`
	FromMultiplicity string       `json:"fromMultiplicity,omitempty"`
	ToMultiplicity   string       `json:"toMultiplicity,omitempty"`
	Label            string       `json:"label,omitempty"`
	Points           []Point      `json:"points"`
}

// Package is reserved for grouping classes and is currently always empty.
type Package struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Classes []string `json:"classes"`
}

// State is one diagram snapshot. Insertion order of each element sequence is
// its rendering z-order.
type State struct {
	Classes          []Class        `json:"classes"`
	Relationships    []Relationship `json:"relationships"`
	Interfaces       []Interface    `json:"interfaces"`
	Packages         []Package      `json:"packages"`
	Notes            []Note         `json:"notes"`
	SelectedElements []string       `json:"selectedElements"`
	Zoom             float64        `json:"zoom"`
	Pan              Point          `json:"pan"`
}

// Empty returns the canonical empty diagram.
func Empty() State {
	return State{
		Classes:          []Class{},
		Relationships:    []Relationship{},
		Interfaces:       []Interface{},
		Packages:         []Package{},
		Notes:            []Note{},
		SelectedElements: []string{},
		Zoom:             1,
	}
}

// IsEmpty reports whether the diagram has no structural content.
func (s State) IsEmpty() bool {
	return len(s.Classes) == 0 && len(s.Interfaces) == 0 && len(s.Notes) == 0 &&
		len(s.Relationships) == 0 && len(s.Packages) == 0
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Classes:          make([]Class, len(s.Classes)),
		Relationships:    make([]Relationship, len(s.Relationships)),
		Interfaces:       make([]Interface, len(s.Interfaces)),
		Packages:         make([]Package, len(s.Packages)),
		Notes:            make([]Note, len(s.Notes)),
		SelectedElements: cloneStrings(s.SelectedElements),
		Zoom:             s.Zoom,
		Pan:              s.Pan,
	}
	for i, c := range s.Classes {
		out.Classes[i] = c.clone()
	}
	for i, r := range s.Relationships {
		out.Relationships[i] = r.clone()
	}
	for i, in := range s.Interfaces {
		out.Interfaces[i] = in.clone()
	}
	for i, p := range s.Packages {
		p.Classes = cloneStrings(p.Classes)
		out.Packages[i] = p
	}
	copy(out.Notes, s.Notes)
	return out
}

func (c Class) clone() Class {
	c.Attributes = cloneStrings(c.Attributes)
	c.Methods = cloneStrings(c.Methods)
	c.Stereotypes = cloneStrings(c.Stereotypes)
	return c
}

func (in Interface) clone() Interface {
	in.Methods = cloneStrings(in.Methods)
	return in
}

func (r Relationship) clone() Relationship {
	if r.Points == nil {
		r.Points = []Point{}
		return r
	}
	pts := make([]Point, len(r.Points))
	copy(pts, r.Points)
	r.Points = pts
	return r
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func clampZoom(z float64) float64 {
	switch {
	case z != z: // NaN
		return 1
	case z < MinZoom:
		return MinZoom
	case z > MaxZoom:
		return MaxZoom
	}
	return z
}

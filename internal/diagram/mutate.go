package diagram

// ElementPatch carries the fields to merge into an element. Nil fields are
// left untouched; fields that do not exist on the matched variant are
// ignored. Sizes that are not positive are ignored too.
type ElementPatch struct {
	Name        *string
	Text        *string
	X           *float64
	Y           *float64
	Width       *float64
	Height      *float64
	Attributes  []string
	Methods     []string
	Stereotypes []string
	Visibility  *Visibility
}

// MoveTo is the patch produced by dragging an element.
func MoveTo(x, y float64) ElementPatch {
	return ElementPatch{X: &x, Y: &y}
}

// RelationshipPatch carries the fields to merge into a relationship.
type RelationshipPatch struct {
	Type             *RelationType
	From             *string
	To               *string
	FromMultiplicity *string
	ToMultiplicity   *string
	Label            *string
	Points           []Point
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T { return &v }

// AddClass appends c. Callers guarantee id uniqueness.
func AddClass(s State, c Class) State {
	out := s.Clone()
	out.Classes = append(out.Classes, c.clone())
	return out
}

// AddInterface appends in.
func AddInterface(s State, in Interface) State {
	out := s.Clone()
	out.Interfaces = append(out.Interfaces, in.clone())
	return out
}

// AddNote appends n.
func AddNote(s State, n Note) State {
	out := s.Clone()
	out.Notes = append(out.Notes, n)
	return out
}

// AddRelationship appends r. Endpoints are not checked here; the connection
// builder resolves them before constructing r.
func AddRelationship(s State, r Relationship) State {
	out := s.Clone()
	out.Relationships = append(out.Relationships, r.clone())
	return out
}

// UpdateElement merges p into the element with the given id, probing classes,
// then interfaces, then notes. The first match wins. An unknown id yields an
// unchanged copy of s.
func UpdateElement(s State, id string, p ElementPatch) State {
	out := s.Clone()
	for i := range out.Classes {
		if out.Classes[i].ID == id {
			p.applyClass(&out.Classes[i])
			return out
		}
	}
	for i := range out.Interfaces {
		if out.Interfaces[i].ID == id {
			p.applyInterface(&out.Interfaces[i])
			return out
		}
	}
	for i := range out.Notes {
		if out.Notes[i].ID == id {
			p.applyNote(&out.Notes[i])
			return out
		}
	}
	return out
}

// UpdateRelationship merges p into the relationship with the given id.
func UpdateRelationship(s State, id string, p RelationshipPatch) State {
	out := s.Clone()
	for i := range out.Relationships {
		if out.Relationships[i].ID == id {
			p.apply(&out.Relationships[i])
			break
		}
	}
	return out
}

// DeleteElement removes id from every collection, drops the relationships
// touching it and removes it from the selection, in one snapshot.
func DeleteElement(s State, id string) State {
	return DeleteElements(s, id)
}

// DeleteElements is DeleteElement for several ids at once.
func DeleteElements(s State, ids ...string) State {
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	has := func(id string) bool {
		_, ok := gone[id]
		return ok
	}

	out := Empty()
	out.Zoom, out.Pan = s.Zoom, s.Pan
	for _, c := range s.Classes {
		if !has(c.ID) {
			out.Classes = append(out.Classes, c.clone())
		}
	}
	for _, in := range s.Interfaces {
		if !has(in.ID) {
			out.Interfaces = append(out.Interfaces, in.clone())
		}
	}
	for _, n := range s.Notes {
		if !has(n.ID) {
			out.Notes = append(out.Notes, n)
		}
	}
	for _, r := range s.Relationships {
		if !has(r.ID) && !has(r.From) && !has(r.To) {
			out.Relationships = append(out.Relationships, r.clone())
		}
	}
	for _, p := range s.Packages {
		p.Classes = cloneStrings(p.Classes)
		out.Packages = append(out.Packages, p)
	}

	// A relationship removed by the cascade may have been selected as well.
	for _, sel := range s.SelectedElements {
		if !has(sel) && out.Has(sel) {
			out.SelectedElements = append(out.SelectedElements, sel)
		}
	}
	return out
}

// SetSelectedElements replaces the selection. Ids that resolve to nothing are
// dropped, as are duplicates.
func SetSelectedElements(s State, ids []string) State {
	out := s.Clone()
	out.SelectedElements = resolvable(s, ids)
	return out
}

// resolvable keeps the ids of s's elements, once each, in order.
func resolvable(s State, ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || !s.Has(id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SelectAll selects every class, interface and note.
func SelectAll(s State) State {
	ids := make([]string, 0, len(s.Classes)+len(s.Interfaces)+len(s.Notes))
	for _, el := range s.Elements() {
		ids = append(ids, el.ElementID())
	}
	return SetSelectedElements(s, ids)
}

// SetZoom replaces the zoom factor, clamped to [MinZoom, MaxZoom].
func SetZoom(s State, z float64) State {
	out := s.Clone()
	out.Zoom = clampZoom(z)
	return out
}

// SetPan replaces the pan offset.
func SetPan(s State, p Point) State {
	out := s.Clone()
	out.Pan = p
	return out
}

// Load returns next normalized as a snapshot: nil sequences become empty and
// the zoom is clamped, a missing zoom meaning 1.
func Load(next State) State {
	out := next.Clone()
	if out.Zoom == 0 {
		out.Zoom = 1
	}
	out.Zoom = clampZoom(out.Zoom)
	out.SelectedElements = resolvable(out, out.SelectedElements)
	return out
}

// Clear returns the empty diagram.
func Clear() State { return Empty() }

func (p ElementPatch) applyBox(x, y, w, h *float64) {
	if p.X != nil {
		*x = *p.X
	}
	if p.Y != nil {
		*y = *p.Y
	}
	if p.Width != nil && *p.Width > 0 {
		*w = *p.Width
	}
	if p.Height != nil && *p.Height > 0 {
		*h = *p.Height
	}
}

func (p ElementPatch) applyClass(c *Class) {
	p.applyBox(&c.X, &c.Y, &c.Width, &c.Height)
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Attributes != nil {
		c.Attributes = cloneStrings(p.Attributes)
	}
	if p.Methods != nil {
		c.Methods = cloneStrings(p.Methods)
	}
	if p.Stereotypes != nil {
		c.Stereotypes = cloneStrings(p.Stereotypes)
	}
	if p.Visibility != nil && p.Visibility.Valid() {
		c.Visibility = *p.Visibility
	}
}

func (p ElementPatch) applyInterface(in *Interface) {
	p.applyBox(&in.X, &in.Y, &in.Width, &in.Height)
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Methods != nil {
		in.Methods = cloneStrings(p.Methods)
	}
}

func (p ElementPatch) applyNote(n *Note) {
	p.applyBox(&n.X, &n.Y, &n.Width, &n.Height)
	if p.Text != nil {
		n.Text = *p.Text
	}
}

func (p RelationshipPatch) apply(r *Relationship) {
	if p.Type != nil && p.Type.Valid() {
		r.Type = *p.Type
	}
	if p.From != nil {
		r.From = *p.From
	}
	if p.To != nil {
		r.To = *p.To
	}
	if p.FromMultiplicity != nil {
		r.FromMultiplicity = *p.FromMultiplicity
	}
	if p.ToMultiplicity != nil {
		r.ToMultiplicity = *p.ToMultiplicity
	}
	if p.Label != nil {
		r.Label = *p.Label
	}
	if p.Points != nil {
		r.Points = append([]Point{}, p.Points...)
	}
}

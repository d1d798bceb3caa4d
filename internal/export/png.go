package export

import (
	"image"
	"image/color"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/umlstudio/engine/internal/diagram"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

// PNGOptions tunes raster export.
type PNGOptions struct {
	// Scale is the pixel ratio; 2 gives the same density as the editor's
	// high resolution export.
	Scale    float64
	Padding  float64
	FontSize float64
}

// DefaultPNGOptions renders at twice the diagram's size.
var DefaultPNGOptions = PNGOptions{Scale: 2, Padding: 20, FontSize: 12}

const (
	lineHeight = 16.0
	arrowSize  = 10.0
)

var (
	boxFill  = color.White
	noteFill = color.RGBA{R: 0xff, G: 0xf5, B: 0x9d, A: 0xff}
	ink      = color.Black
	mutedInk = color.RGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	loadFont = sync.OnceValues(func() (*truetype.Font, error) { return truetype.Parse(gomono.TTF) })
)

// WritePNG renders s and encodes it to w.
func WritePNG(w io.Writer, s diagram.State, opts PNGOptions) error {
	dc, err := render(s, opts)
	if err != nil {
		return err
	}
	if err := dc.EncodePNG(w); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode png failed")
	}
	return nil
}

// RenderPNG renders s to an image.
func RenderPNG(s diagram.State, opts PNGOptions) (image.Image, error) {
	dc, err := render(s, opts)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

func render(s diagram.State, opts PNGOptions) (*gg.Context, error) {
	if opts.Scale <= 0 {
		opts.Scale = DefaultPNGOptions.Scale
	}
	if opts.FontSize <= 0 {
		opts.FontSize = DefaultPNGOptions.FontSize
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}

	bounds, ok := extent(s)
	if !ok {
		return nil, appErr.New(appErr.CodeInvalid, "nothing to export")
	}

	width := int(math.Ceil((bounds.Width + 2*opts.Padding) * opts.Scale))
	height := int(math.Ceil((bounds.Height + 2*opts.Padding) * opts.Scale))
	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	f, err := loadFont()
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "failed to parse font")
	}
	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{
		Size:    opts.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	}))

	dc.Scale(opts.Scale, opts.Scale)
	dc.Translate(opts.Padding-bounds.X, opts.Padding-bounds.Y)

	// relationships first so boxes cover their ends
	for _, r := range s.Relationships {
		drawRelationship(dc, s, r)
	}
	for _, c := range s.Classes {
		drawClass(dc, c)
	}
	for _, in := range s.Interfaces {
		drawInterface(dc, in)
	}
	for _, n := range s.Notes {
		drawNote(dc, n)
	}
	return dc, nil
}

// extent is the union of all element boxes and relationship waypoints.
func extent(s diagram.State) (diagram.Rect, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	grow := func(x, y float64) {
		minX, minY = math.Min(minX, x), math.Min(minY, y)
		maxX, maxY = math.Max(maxX, x), math.Max(maxY, y)
	}
	for _, el := range s.Elements() {
		b := el.Bounds()
		grow(b.X, b.Y)
		grow(b.X+b.Width, b.Y+b.Height)
	}
	for _, r := range s.Relationships {
		for _, p := range r.Points {
			grow(p.X, p.Y)
		}
	}
	if math.IsInf(minX, 1) {
		return diagram.Rect{}, false
	}
	return diagram.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

func drawBox(dc *gg.Context, x, y, w, h float64, fill color.Color) {
	dc.DrawRectangle(x, y, w, h)
	dc.SetColor(fill)
	dc.FillPreserve()
	dc.SetColor(ink)
	dc.SetLineWidth(1)
	dc.Stroke()
}

func drawClass(dc *gg.Context, c diagram.Class) {
	drawBox(dc, c.X, c.Y, c.Width, c.Height, boxFill)

	y := c.Y + 4
	for _, st := range c.Stereotypes {
		dc.SetColor(mutedInk)
		dc.DrawStringAnchored(st, c.X+c.Width/2, y+lineHeight/2, 0.5, 0.5)
		y += lineHeight
	}
	dc.SetColor(ink)
	dc.DrawStringAnchored(c.Name, c.X+c.Width/2, y+lineHeight/2, 0.5, 0.5)
	y += lineHeight + 4

	y = drawCompartment(dc, c.X, y, c.Width, c.Attributes)
	drawCompartment(dc, c.X, y, c.Width, c.Methods)
}

func drawInterface(dc *gg.Context, in diagram.Interface) {
	drawBox(dc, in.X, in.Y, in.Width, in.Height, boxFill)

	y := in.Y + 4
	dc.SetColor(mutedInk)
	dc.DrawStringAnchored("<<interface>>", in.X+in.Width/2, y+lineHeight/2, 0.5, 0.5)
	y += lineHeight
	dc.SetColor(ink)
	dc.DrawStringAnchored(in.Name, in.X+in.Width/2, y+lineHeight/2, 0.5, 0.5)
	y += lineHeight + 4

	drawCompartment(dc, in.X, y, in.Width, in.Methods)
}

// drawCompartment draws a separator and one member per line. It returns the
// y where the next compartment starts.
func drawCompartment(dc *gg.Context, x, y, w float64, lines []string) float64 {
	dc.SetColor(ink)
	dc.DrawLine(x, y, x+w, y)
	dc.Stroke()
	y += 4
	for _, l := range lines {
		dc.DrawStringAnchored(l, x+6, y+lineHeight/2, 0, 0.5)
		y += lineHeight
	}
	return y + 4
}

func drawNote(dc *gg.Context, n diagram.Note) {
	drawBox(dc, n.X, n.Y, n.Width, n.Height, noteFill)
	dc.SetColor(ink)
	y := n.Y + 6
	for _, l := range strings.Split(n.Text, "\n") {
		dc.DrawStringAnchored(l, n.X+6, y+lineHeight/2, 0, 0.5)
		y += lineHeight
	}
}

func drawRelationship(dc *gg.Context, s diagram.State, r diagram.Relationship) {
	from, okFrom := s.Find(r.From)
	to, okTo := s.Find(r.To)
	if !okFrom || !okTo {
		return
	}
	path := []diagram.Point{from.Bounds().Center()}
	path = append(path, r.Points...)
	path = append(path, to.Bounds().Center())

	// clip the ends to the box borders so arrow heads stay visible
	path[0] = clip(from.Bounds(), path[1], path[0])
	last := len(path) - 1
	path[last] = clip(to.Bounds(), path[last-1], path[last])

	dc.Push()
	defer dc.Pop()
	dc.SetColor(ink)
	dc.SetLineWidth(1)
	if r.Type == diagram.Dependency || r.Type == diagram.Realization {
		dc.SetDash(6, 4)
	}
	for i := 0; i < last; i++ {
		dc.DrawLine(path[i].X, path[i].Y, path[i+1].X, path[i+1].Y)
	}
	dc.Stroke()
	dc.SetDash()

	tail, tip := path[last-1], path[last]
	switch r.Type {
	case diagram.Inheritance, diagram.Realization:
		drawHead(dc, tail, tip, false, false)
	case diagram.Composition:
		drawHead(dc, tail, tip, true, true)
	case diagram.Aggregation:
		drawHead(dc, tail, tip, true, false)
	case diagram.Association, diagram.Dependency:
		drawHead(dc, tail, tip, false, true)
	}

	if r.Label != "" {
		mid := diagram.Point{X: (path[0].X + tip.X) / 2, Y: (path[0].Y + tip.Y) / 2}
		dc.DrawStringAnchored(r.Label, mid.X, mid.Y-6, 0.5, 1)
	}
	if r.FromMultiplicity != "" {
		dc.DrawStringAnchored(r.FromMultiplicity, path[0].X+8, path[0].Y-8, 0, 1)
	}
	if r.ToMultiplicity != "" {
		dc.DrawStringAnchored(r.ToMultiplicity, tip.X+8, tip.Y-8, 0, 1)
	}
}

// drawHead draws a triangle, or a diamond, pointing from tail at tip.
func drawHead(dc *gg.Context, tail, tip diagram.Point, diamond, filled bool) {
	dx, dy := tip.X-tail.X, tip.Y-tail.Y
	length := math.Hypot(dx, dy)
	if length < 0.1 {
		return
	}
	dx, dy = dx/length, dy/length
	px, py := -dy, dx

	baseX, baseY := tip.X-arrowSize*dx, tip.Y-arrowSize*dy
	dc.MoveTo(tip.X, tip.Y)
	dc.LineTo(baseX+px*arrowSize/2, baseY+py*arrowSize/2)
	if diamond {
		dc.LineTo(tip.X-2*arrowSize*dx, tip.Y-2*arrowSize*dy)
	}
	dc.LineTo(baseX-px*arrowSize/2, baseY-py*arrowSize/2)
	dc.ClosePath()
	if filled {
		dc.SetColor(ink)
		dc.FillPreserve()
	} else {
		dc.SetColor(boxFill)
		dc.FillPreserve()
		dc.SetColor(ink)
	}
	dc.Stroke()
}

// clip moves p, the center of r, to where the segment from outside to p
// crosses r's border.
func clip(r diagram.Rect, outside, p diagram.Point) diagram.Point {
	dx, dy := outside.X-p.X, outside.Y-p.Y
	if dx == 0 && dy == 0 {
		return p
	}
	t := math.Inf(1)
	if dx != 0 {
		t = math.Min(t, (r.Width/2)/math.Abs(dx))
	}
	if dy != 0 {
		t = math.Min(t, (r.Height/2)/math.Abs(dy))
	}
	if t > 1 {
		return p
	}
	return diagram.Point{X: p.X + dx*t, Y: p.Y + dy*t}
}

package export

import (
	"strings"

	"github.com/umlstudio/engine/internal/diagram"
)

var mermaidArrows = map[diagram.RelationType]string{
	diagram.Inheritance: "--|>",
	diagram.Composition: "--*",
	diagram.Aggregation: "--o",
	diagram.Dependency:  "..>",
	diagram.Realization: "..|>",
}

// MermaidArrow returns the arrow for t. Association and anything unknown
// draw as a plain arrow.
func MermaidArrow(t diagram.RelationType) string {
	if a, ok := mermaidArrows[t]; ok {
		return a
	}
	return "-->"
}

// Mermaid renders s as a Mermaid class diagram. Relationships whose ends do
// not resolve to a class or interface are left out.
func Mermaid(s diagram.State) string {
	var b strings.Builder
	b.WriteString("classDiagram\n")

	for _, c := range s.Classes {
		b.WriteString("  class " + c.Name + " {\n")
		for _, a := range c.Attributes {
			b.WriteString("    " + a + "\n")
		}
		for _, m := range c.Methods {
			b.WriteString("    " + m + "\n")
		}
		b.WriteString("  }\n\n")
	}

	for _, in := range s.Interfaces {
		b.WriteString("  class " + in.Name + " {\n")
		b.WriteString("    <<interface>>\n")
		for _, m := range in.Methods {
			b.WriteString("    " + m + "\n")
		}
		b.WriteString("  }\n\n")
	}

	for _, r := range s.Relationships {
		from, okFrom := s.NameOf(r.From)
		to, okTo := s.NameOf(r.To)
		if !okFrom || !okTo {
			continue
		}
		b.WriteString("  " + from + " " + MermaidArrow(r.Type) + " " + to + "\n")
	}
	return b.String()
}

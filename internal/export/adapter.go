package export

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/pkg/logger"
)

var (
	attributePattern = regexp.MustCompile(`^\s*([+\-#~])\s+(\w+):\s*(\w+)`)
	methodPattern    = regexp.MustCompile(`^\s*([+\-#~])\s+(\w+)\s*\(([^)]*)\)\s*:\s*(\w+)`)
	parameterPattern = regexp.MustCompile(`(\w+):\s*(\w+)`)
)

var visibilitySymbols = map[string]diagram.Visibility{
	"+": diagram.VisibilityPublic,
	"-": diagram.VisibilityPrivate,
	"#": diagram.VisibilityProtected,
	"~": diagram.VisibilityPackage,
}

var javaTypes = map[string]string{
	"String":  "String",
	"string":  "String",
	"int":     "Integer",
	"Integer": "Integer",
	"long":    "Long",
	"Long":    "Long",
	"float":   "Float",
	"Float":   "Float",
	"double":  "Double",
	"Double":  "Double",
	"boolean": "Boolean",
	"Boolean": "Boolean",
	"bool":    "Boolean",
	"Date":    "Date",
	"date":    "Date",
	"void":    "void",
	"List":    "List",
	"Set":     "Set",
	"Map":     "Map",
}

// Attribute is a parsed attribute line.
type Attribute struct {
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	Visibility   diagram.Visibility `json:"visibility"`
	IsRequired   bool               `json:"isRequired"`
	DefaultValue *string            `json:"defaultValue,omitempty"`
}

// Parameter is one method parameter.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Method is a parsed method line.
type Method struct {
	Name       string             `json:"name"`
	ReturnType string             `json:"returnType"`
	Visibility diagram.Visibility `json:"visibility"`
	Parameters []Parameter        `json:"parameters"`
}

type BackendClass struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	X           float64            `json:"x"`
	Y           float64            `json:"y"`
	Width       float64            `json:"width"`
	Height      float64            `json:"height"`
	Attributes  []Attribute        `json:"attributes"`
	Methods     []Method           `json:"methods"`
	Stereotypes []string           `json:"stereotypes"`
	Visibility  diagram.Visibility `json:"visibility"`
}

type BackendInterface struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	X       float64  `json:"x"`
	Y       float64  `json:"y"`
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Methods []Method `json:"methods"`
}

type BackendRelationship struct {
	ID               string               `json:"id"`
	Type             diagram.RelationType `json:"type"`
	SourceClassID    string               `json:"sourceClassId"`
	TargetClassID    string               `json:"targetClassId"`
	FromMultiplicity string               `json:"fromMultiplicity,omitempty"`
	ToMultiplicity   string               `json:"toMultiplicity,omitempty"`
	Label            string               `json:"label,omitempty"`
	Points           []diagram.Point      `json:"points"`
}

// BackendDiagram is the structured form the code generator consumes.
type BackendDiagram struct {
	Classes       []BackendClass        `json:"classes"`
	Interfaces    []BackendInterface    `json:"interfaces"`
	Relationships []BackendRelationship `json:"relationships"`
	Notes         []diagram.Note        `json:"notes"`
	Packages      []diagram.Package     `json:"packages"`
}

// Adapt parses the free-text members of s. Lines that do not follow the
// member grammar get safe defaults and a warning; adapting never fails.
func Adapt(s diagram.State) BackendDiagram {
	s = s.Clone()
	out := BackendDiagram{
		Classes:       make([]BackendClass, 0, len(s.Classes)),
		Interfaces:    make([]BackendInterface, 0, len(s.Interfaces)),
		Relationships: make([]BackendRelationship, 0, len(s.Relationships)),
		Notes:         s.Notes,
		Packages:      s.Packages,
	}
	for _, c := range s.Classes {
		vis := c.Visibility
		if vis == "" {
			vis = diagram.VisibilityPublic
		}
		out.Classes = append(out.Classes, BackendClass{
			ID:          c.ID,
			Name:        c.Name,
			X:           c.X,
			Y:           c.Y,
			Width:       c.Width,
			Height:      c.Height,
			Attributes:  ParseAttributes(c.Attributes),
			Methods:     ParseMethods(c.Methods),
			Stereotypes: c.Stereotypes,
			Visibility:  vis,
		})
	}
	for _, in := range s.Interfaces {
		out.Interfaces = append(out.Interfaces, BackendInterface{
			ID:      in.ID,
			Name:    in.Name,
			X:       in.X,
			Y:       in.Y,
			Width:   in.Width,
			Height:  in.Height,
			Methods: ParseMethods(in.Methods),
		})
	}
	for _, r := range s.Relationships {
		out.Relationships = append(out.Relationships, BackendRelationship{
			ID:               r.ID,
			Type:             r.Type,
			SourceClassID:    r.From,
			TargetClassID:    r.To,
			FromMultiplicity: r.FromMultiplicity,
			ToMultiplicity:   r.ToMultiplicity,
			Label:            r.Label,
			Points:           r.Points,
		})
	}
	return out
}

// ParseAttributes parses lines like "- name: String".
func ParseAttributes(lines []string) []Attribute {
	out := make([]Attribute, 0, len(lines))
	for _, line := range lines {
		m := attributePattern.FindStringSubmatch(line)
		if m == nil {
			logger.Named("export").Warn("attribute does not match member grammar", zap.String("attribute", line))
			out = append(out, Attribute{Name: "unknown", Type: "String", Visibility: diagram.VisibilityPrivate})
			continue
		}
		out = append(out, Attribute{
			Name:       m[2],
			Type:       JavaType(m[3]),
			Visibility: parseVisibility(m[1]),
		})
	}
	return out
}

// ParseMethods parses lines like "+ getName(id: int): String".
func ParseMethods(lines []string) []Method {
	out := make([]Method, 0, len(lines))
	for _, line := range lines {
		m := methodPattern.FindStringSubmatch(line)
		if m == nil {
			logger.Named("export").Warn("method does not match member grammar", zap.String("method", line))
			out = append(out, Method{Name: "unknown", ReturnType: "void", Visibility: diagram.VisibilityPublic, Parameters: []Parameter{}})
			continue
		}
		out = append(out, Method{
			Name:       m[2],
			ReturnType: JavaType(m[4]),
			Visibility: parseVisibility(m[1]),
			Parameters: parseParameters(m[3]),
		})
	}
	return out
}

func parseParameters(list string) []Parameter {
	out := []Parameter{}
	if strings.TrimSpace(list) == "" {
		return out
	}
	for _, p := range strings.Split(list, ",") {
		m := parameterPattern.FindStringSubmatch(strings.TrimSpace(p))
		if m == nil {
			out = append(out, Parameter{Name: "param", Type: "Object"})
			continue
		}
		out = append(out, Parameter{Name: m[1], Type: JavaType(m[2])})
	}
	return out
}

func parseVisibility(symbol string) diagram.Visibility {
	if v, ok := visibilitySymbols[symbol]; ok {
		return v
	}
	return diagram.VisibilityPublic
}

// JavaType maps common type spellings to Java types. Unknown names pass
// through.
func JavaType(t string) string {
	if j, ok := javaTypes[t]; ok {
		return j
	}
	return t
}

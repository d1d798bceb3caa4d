// Package export converts diagrams to and from their external formats: the
// project file, Mermaid text, PNG images and the code generator's structured
// form.
package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/umlstudio/engine/internal/diagram"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

// ProjectVersion is written into every saved project file.
const ProjectVersion = "1.0"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Metadata describes a saved project.
type Metadata struct {
	Creator string `json:"creator"`
	Title   string `json:"title"`
}

// DefaultMetadata is used when a caller has nothing better.
var DefaultMetadata = Metadata{Creator: "UML Studio", Title: "UML Class Diagram"}

// Project is the on-disk project file.
type Project struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Diagram   *diagram.State `json:"diagram" validate:"required"`
	Metadata  Metadata       `json:"metadata"`
}

// NewProject wraps s for saving at time now.
func NewProject(s diagram.State, meta Metadata, now time.Time) Project {
	snap := s.Clone()
	return Project{
		Version:   ProjectVersion,
		Timestamp: now.UTC(),
		Diagram:   &snap,
		Metadata:  meta,
	}
}

// SaveProject writes s as an indented project file.
func SaveProject(w io.Writer, s diagram.State, meta Metadata) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewProject(s, meta, time.Now())); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "write project file failed")
	}
	return nil
}

// LoadProject reads a project file and returns its diagram, normalized as a
// load would. A file without a diagram is rejected.
func LoadProject(r io.Reader) (diagram.State, error) {
	p, err := ReadProject(r)
	if err != nil {
		return diagram.State{}, err
	}
	return diagram.Load(*p.Diagram), nil
}

// ReadProject decodes and validates a project file.
func ReadProject(r io.Reader) (Project, error) {
	var p Project
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Project{}, appErr.Wrap(err, appErr.CodeInvalid, "failed to parse project file")
	}
	if err := validate.Struct(p); err != nil {
		return Project{}, appErr.Wrap(err, appErr.CodeInvalid, "invalid project file format")
	}
	return p, nil
}

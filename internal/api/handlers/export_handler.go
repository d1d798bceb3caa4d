package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/umlstudio/engine/internal/api/types"
	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/export"
)

// ExportHandler converts diagrams posted in the request body.
type ExportHandler struct{}

func NewExportHandler() *ExportHandler { return &ExportHandler{} }

// Render serves POST /export/{format}.
func (h *ExportHandler) Render(w http.ResponseWriter, r *http.Request) {
	var req types.ExportRequest
	if !decode(w, r, &req) {
		return
	}
	state, ok := decodeDiagram(w, req.Diagram)
	if !ok {
		return
	}
	opts := export.DefaultPNGOptions
	if req.Scale > 0 {
		opts.Scale = req.Scale
	}
	writeExport(w, chi.URLParam(r, "format"), state, opts)
}

// Import reads a project file and answers with its diagram.
func (h *ExportHandler) Import(w http.ResponseWriter, r *http.Request) {
	state, err := export.LoadProject(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: state})
}

func exportOptions(r *http.Request) export.PNGOptions {
	opts := export.DefaultPNGOptions
	if s, err := strconv.ParseFloat(r.URL.Query().Get("scale"), 64); err == nil && s > 0 && s <= 8 {
		opts.Scale = s
	}
	return opts
}

func writeExport(w http.ResponseWriter, format string, state diagram.State, opts export.PNGOptions) {
	switch format {
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(export.Mermaid(state)))
	case "png":
		var buf bytes.Buffer
		if err := export.WritePNG(&buf, state, opts); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", `attachment; filename="uml-diagram.png"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	case "json", "project":
		w.Header().Set("Content-Disposition", `attachment; filename="uml-project.json"`)
		writeJSON(w, http.StatusOK, export.NewProject(state, export.DefaultMetadata, time.Now()))
	case "backend":
		writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: export.Adapt(state)})
	default:
		writeErrorStr(w, http.StatusBadRequest, "unknown export format "+strconv.Quote(format))
	}
}

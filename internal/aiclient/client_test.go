package aiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlstudio/engine/internal/diagram"
	appErr "github.com/umlstudio/engine/pkg/errors"
)

type recorded struct {
	path string
	auth string
	body map[string]json.RawMessage
}

// fakeAssistant answers each path with a fixed status and body.
func fakeAssistant(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*Client, <-chan recorded) {
	t.Helper()
	got := make(chan recorded, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- recorded{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body}
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken("tkn")), got
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestChat(t *testing.T) {
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/chat": reply(200, `{"response":"sure","suggestions":["add a Course"],"action":"generate"}`),
	})
	res, err := c.Chat(context.Background(), "design a school", nil)
	require.NoError(t, err)
	assert.Equal(t, "sure", res.Text())
	assert.Equal(t, ActionGenerate, res.Action)
	assert.Equal(t, []string{"add a Course"}, res.Suggestions)

	req := <-got
	assert.Equal(t, "Bearer tkn", req.auth)
	assert.JSONEq(t, `"design a school"`, string(req.body["query"]))
}

func TestGenerateDiagramNormalizes(t *testing.T) {
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/generate-diagram": reply(200, `{"diagramData":{"classes":[{"id":"c1","name":"Student"}]}}`),
	})
	s, err := c.GenerateDiagram(context.Background(), "students", "")
	require.NoError(t, err)
	require.Len(t, s.Classes, 1)
	assert.Equal(t, 1.0, s.Zoom)
	assert.NotNil(t, s.Relationships)
	assert.JSONEq(t, `"class"`, string((<-got).body["style"]))
}

func TestGenerateDiagramWithoutData(t *testing.T) {
	c, _ := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/generate-diagram": reply(200, `{"diagramData":null}`),
	})
	_, err := c.GenerateDiagram(context.Background(), "x", "class")
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestAnalyzeImageSendsBase64(t *testing.T) {
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/analyze-image": reply(200, `{"diagramData":{"classes":[]},"description":"a blank board"}`),
	})
	s, desc, err := c.AnalyzeImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "")
	require.NoError(t, err)
	assert.Empty(t, s.Classes)
	assert.Equal(t, "a blank board", desc)

	req := <-got
	var encoded string
	require.NoError(t, json.Unmarshal(req.body["imageBase64"], &encoded))
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw)
	assert.JSONEq(t, `"image/png"`, string(req.body["mimeType"]))
}

func TestEditDiagram(t *testing.T) {
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/edit-diagram": reply(200, `{"success":true,"modifiedDiagram":{"classes":[{"id":"c1","name":"Pupil"}]},"explanation":"renamed","changes":{"modified":["Student"]}}`),
	})
	cur := diagram.AddClass(diagram.Empty(), diagram.Class{ID: "c1", Name: "Student"})
	res, err := c.EditDiagram(context.Background(), cur, "rename Student to Pupil", nil)
	require.NoError(t, err)
	assert.Equal(t, "Pupil", res.Diagram.Classes[0].Name)
	assert.Equal(t, "renamed", res.Explanation)
	assert.Equal(t, []string{"Student"}, res.Changes.Modified)

	req := <-got
	var sent diagram.State
	require.NoError(t, json.Unmarshal(req.body["currentDiagram"], &sent))
	assert.Equal(t, "Student", sent.Classes[0].Name)
}

func TestEditDiagramRefused(t *testing.T) {
	c, _ := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/edit-diagram": reply(200, `{"success":false,"error":"no idea"}`),
	})
	_, err := c.EditDiagram(context.Background(), diagram.Empty(), "??", nil)
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	assert.Contains(t, err.Error(), "no idea")
}

func TestMermaidConversions(t *testing.T) {
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/mermaid": reply(200, `{"mermaidCode":"classDiagram\n","diagramData":{"classes":[]}}`),
	})
	code, err := c.ToMermaid(context.Background(), diagram.Empty())
	require.NoError(t, err)
	assert.Equal(t, "classDiagram\n", code)
	assert.JSONEq(t, `"toMermaid"`, string((<-got).body["action"]))

	_, err = c.FromMermaid(context.Background(), "classDiagram\n")
	require.NoError(t, err)
	assert.JSONEq(t, `"fromMermaid"`, string((<-got).body["action"]))
}

func TestGenerateSpringBootSendsAdaptedDiagram(t *testing.T) {
	zip := []byte("PK\x03\x04fake")
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/springboot-template-zip": func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/zip")
			_, _ = w.Write(zip)
		},
	})
	s := diagram.AddClass(diagram.Empty(), diagram.Class{ID: "c1", Name: "A", Attributes: []string{"- n: int"}})
	s = diagram.AddClass(s, diagram.Class{ID: "c2", Name: "B"})
	s = diagram.AddRelationship(s, diagram.Relationship{ID: "r1", Type: diagram.Association, From: "c1", To: "c2"})

	data, err := c.GenerateSpringBoot(context.Background(), s, DefaultProjectConfig)
	require.NoError(t, err)
	assert.Equal(t, zip, data)

	req := <-got
	var uml struct {
		Classes []struct {
			Attributes []struct{ Type string } `json:"attributes"`
		} `json:"classes"`
		Relationships []struct {
			SourceClassID string `json:"sourceClassId"`
		} `json:"relationships"`
	}
	require.NoError(t, json.Unmarshal(req.body["umlDiagram"], &uml))
	assert.Equal(t, "Integer", uml.Classes[0].Attributes[0].Type)
	assert.Equal(t, "c1", uml.Relationships[0].SourceClassID)
	assert.JSONEq(t, `{"groupId":"com.example","artifactId":"uml-project","version":"1.0.0","javaVersion":"17"}`, string(req.body["config"]))
}

func TestGenerateSpringBootFromImage(t *testing.T) {
	c, got := fakeAssistant(t, map[string]func(http.ResponseWriter){
		"/api/ai/image-to-springboot": func(w http.ResponseWriter) { _, _ = w.Write([]byte("zip")) },
	})
	data, err := c.GenerateSpringBootFromImage(context.Background(), []byte("img"), "image/jpeg", DefaultProjectConfig)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), data)
	req := <-got
	assert.Contains(t, req.body, "config")
	assert.JSONEq(t, `"image/jpeg"`, string(req.body["mimeType"]))
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		code   appErr.Code
	}{
		{http.StatusBadRequest, appErr.CodeInvalid},
		{http.StatusUnauthorized, appErr.CodeUnauthorized},
		{http.StatusNotFound, appErr.CodeNotFound},
		{http.StatusInternalServerError, appErr.CodeUnavailable},
		{http.StatusBadGateway, appErr.CodeUnavailable},
		{http.StatusGatewayTimeout, appErr.CodeDeadline},
		{http.StatusTeapot, appErr.CodeInternal},
	}
	for _, tt := range tests {
		c, _ := fakeAssistant(t, map[string]func(http.ResponseWriter){
			"/api/ai/chat": reply(tt.status, `{"error":"nope"}`),
		})
		_, err := c.Chat(context.Background(), "q", nil)
		require.Error(t, err)
		assert.Equal(t, tt.code, appErr.CodeOf(err), "status %d", tt.status)

		var ae *appErr.AppError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, tt.status, ae.Meta["status"])
		assert.Contains(t, ae.Meta["body"], "nope")
	}
}

func TestUnreachableAssistant(t *testing.T) {
	c := New("http://127.0.0.1:1", WithTimeout(time.Second))
	_, err := c.Chat(context.Background(), "q", nil)
	assert.True(t, appErr.IsCode(err, appErr.CodeUnavailable))
}

func TestTimeoutIsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Chat(ctx, "q", nil)
	assert.True(t, appErr.IsCode(err, appErr.CodeDeadline))
}

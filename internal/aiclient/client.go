// Package aiclient talks to the remote assistant that generates, edits and
// converts diagrams and produces code archives.
package aiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/export"
	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
)

const (
	maxErrorBody   = 512
	defaultTimeout = 60 * time.Second
)

// Client calls the assistant's /api/ai endpoints.
type Client struct {
	base  string
	http  *http.Client
	token string
	log   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithToken sends a bearer token with every request.
func WithToken(token string) Option { return func(cl *Client) { cl.token = token } }

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http = &http.Client{Timeout: d} }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
		log:  logger.Named("aiclient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatResponse is the assistant's answer to a free-form query. Action tells
// the caller to follow up with GenerateDiagram or EditDiagram.
type ChatResponse struct {
	Result        string   `json:"result,omitempty"`
	Response      string   `json:"response,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	Action        string   `json:"action,omitempty"`
	NeedsMoreInfo bool     `json:"needsMoreInfo,omitempty"`
}

const (
	ActionGenerate = "generate"
	ActionModify   = "modify"
)

// Text returns whichever answer field the assistant filled.
func (r ChatResponse) Text() string {
	if r.Result != "" {
		return r.Result
	}
	return r.Response
}

// Changes lists element names touched by an edit.
type Changes struct {
	Added    []string `json:"added,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// EditResult is a successful diagram edit.
type EditResult struct {
	Diagram     diagram.State
	Explanation string
	Changes     *Changes
}

// ProjectConfig names the generated Spring Boot project.
type ProjectConfig struct {
	GroupID     string `json:"groupId"`
	ArtifactID  string `json:"artifactId"`
	Version     string `json:"version"`
	JavaVersion string `json:"javaVersion"`
}

var DefaultProjectConfig = ProjectConfig{
	GroupID:     "com.example",
	ArtifactID:  "uml-project",
	Version:     "1.0.0",
	JavaVersion: "17",
}

// Chat sends a free-form query. hint is passed through as the request's
// context field and may be nil.
func (c *Client) Chat(ctx context.Context, query string, hint any) (*ChatResponse, error) {
	var out ChatResponse
	body := map[string]any{"query": query, "context": hint}
	if err := c.postJSON(ctx, "/api/ai/chat", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateDiagram turns a description into a diagram ready for loading.
func (c *Client) GenerateDiagram(ctx context.Context, prompt, style string) (diagram.State, error) {
	if style == "" {
		style = "class"
	}
	var out struct {
		DiagramData json.RawMessage `json:"diagramData"`
	}
	if err := c.postJSON(ctx, "/api/ai/generate-diagram", map[string]string{"prompt": prompt, "style": style}, &out); err != nil {
		return diagram.State{}, err
	}
	return decodeDiagram(out.DiagramData, "diagramData")
}

// AnalyzeImage reads a diagram from a picture. It also returns the
// assistant's description of the image.
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mimeType string) (diagram.State, string, error) {
	var out struct {
		DiagramData json.RawMessage `json:"diagramData"`
		Description string          `json:"description"`
	}
	if err := c.postJSON(ctx, "/api/ai/analyze-image", imageRequest(image, mimeType, nil), &out); err != nil {
		return diagram.State{}, "", err
	}
	s, err := decodeDiagram(out.DiagramData, "diagramData")
	return s, out.Description, err
}

// EditDiagram applies a natural language instruction to current.
func (c *Client) EditDiagram(ctx context.Context, current diagram.State, instruction string, hint any) (*EditResult, error) {
	var out struct {
		Success         bool            `json:"success"`
		ModifiedDiagram json.RawMessage `json:"modifiedDiagram"`
		Explanation     string          `json:"explanation"`
		Changes         *Changes        `json:"changes"`
		Error           string          `json:"error"`
	}
	body := map[string]any{"currentDiagram": current, "instruction": instruction, "context": hint}
	if err := c.postJSON(ctx, "/api/ai/edit-diagram", body, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "assistant could not edit the diagram"
		}
		return nil, appErr.New(appErr.CodeInvalid, msg)
	}
	s, err := decodeDiagram(out.ModifiedDiagram, "modifiedDiagram")
	if err != nil {
		return nil, err
	}
	return &EditResult{Diagram: s, Explanation: out.Explanation, Changes: out.Changes}, nil
}

// ToMermaid asks the assistant for Mermaid text. export.Mermaid is the
// offline equivalent.
func (c *Client) ToMermaid(ctx context.Context, s diagram.State) (string, error) {
	var out struct {
		MermaidCode string `json:"mermaidCode"`
	}
	body := map[string]any{"action": "toMermaid", "diagramData": s}
	if err := c.postJSON(ctx, "/api/ai/mermaid", body, &out); err != nil {
		return "", err
	}
	return out.MermaidCode, nil
}

func (c *Client) FromMermaid(ctx context.Context, code string) (diagram.State, error) {
	var out struct {
		DiagramData json.RawMessage `json:"diagramData"`
	}
	body := map[string]any{"action": "fromMermaid", "mermaidCode": code}
	if err := c.postJSON(ctx, "/api/ai/mermaid", body, &out); err != nil {
		return diagram.State{}, err
	}
	return decodeDiagram(out.DiagramData, "diagramData")
}

// GenerateSpringBoot returns a zip archive of a project generated from s.
func (c *Client) GenerateSpringBoot(ctx context.Context, s diagram.State, cfg ProjectConfig) ([]byte, error) {
	body := map[string]any{"umlDiagram": export.Adapt(s), "config": cfg}
	return c.postBlob(ctx, "/api/ai/springboot-template-zip", body)
}

// GenerateSpringBootFromImage skips the diagram and generates straight from
// a picture.
func (c *Client) GenerateSpringBootFromImage(ctx context.Context, image []byte, mimeType string, cfg ProjectConfig) ([]byte, error) {
	return c.postBlob(ctx, "/api/ai/image-to-springboot", imageRequest(image, mimeType, &cfg))
}

func imageRequest(image []byte, mimeType string, cfg *ProjectConfig) map[string]any {
	if mimeType == "" {
		mimeType = "image/png"
	}
	body := map[string]any{
		"imageBase64": base64.StdEncoding.EncodeToString(image),
		"mimeType":    mimeType,
	}
	if cfg != nil {
		body["config"] = cfg
	}
	return body
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.do(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "decode assistant response failed").WithMeta("path", path)
	}
	return nil
}

func (c *Client) postBlob(ctx context.Context, path string, in any) ([]byte, error) {
	resp, err := c.do(ctx, path, in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "read assistant archive failed").WithMeta("path", path)
	}
	return data, nil
}

// do posts in as JSON and returns a 2xx response. Anything else becomes an
// AppError carrying the status.
func (c *Client) do(ctx context.Context, path string, in any) (*http.Response, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "encode assistant request failed")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "build assistant request failed")
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("assistant request failed", zap.String("path", path), zap.String("request_id", reqID), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, appErr.Wrap(err, appErr.CodeDeadline, "assistant timed out").WithMeta("path", path)
		}
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "assistant unreachable").WithMeta("path", path)
	}
	c.log.Debug("assistant request", zap.String("path", path), zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := appErr.Newf(statusCode(resp.StatusCode), "assistant answered %d", resp.StatusCode).
		WithMeta("path", path).
		WithMeta("status", resp.StatusCode).
		WithMeta("body", string(snippet))
	return nil, e
}

func statusCode(status int) appErr.Code {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return appErr.CodeInvalid
	case status == http.StatusUnauthorized:
		return appErr.CodeUnauthorized
	case status == http.StatusForbidden:
		return appErr.CodeForbidden
	case status == http.StatusNotFound:
		return appErr.CodeNotFound
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return appErr.CodeDeadline
	case status >= 500:
		return appErr.CodeUnavailable
	default:
		return appErr.CodeInternal
	}
}

// decodeDiagram accepts any JSON object and normalizes it the way a load
// does.
func decodeDiagram(raw json.RawMessage, field string) (diagram.State, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return diagram.State{}, appErr.New(appErr.CodeInvalid, fmt.Sprintf("assistant response has no %s object", field))
	}
	var s diagram.State
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return diagram.State{}, appErr.Wrap(err, appErr.CodeInvalid, "assistant returned a malformed diagram")
	}
	return diagram.Load(s), nil
}

// Package apispec parses a practical subset of OpenAPI documents (YAML or
// JSON) into flat operations that the assistant turns into mappings.
//
// The subset covers what mock generation needs: paths, methods, summaries,
// response status codes and JSON response examples. Everything else in the
// document is ignored, not rejected.
package apispec

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotASpec is returned when the document carries no recognizable
// OpenAPI structure.
var ErrNotASpec = errors.New("apispec: document is not an API specification")

// Operation is one method+path pair extracted from a specification.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	Status      int
	ContentType string
	// ExampleBody is the serialized response example, when the spec
	// provides one.
	ExampleBody string
}

// document mirrors the subset of OpenAPI we read. yaml.v3 also decodes
// JSON documents, so one set of tags covers both serializations.
type document struct {
	OpenAPI string `yaml:"openapi"`
	Swagger string `yaml:"swagger"`
	Info    struct {
		Title string `yaml:"title"`
	} `yaml:"info"`
	Paths map[string]map[string]operation `yaml:"paths"`
}

type operation struct {
	Summary     string              `yaml:"summary"`
	OperationID string              `yaml:"operationId"`
	Responses   map[string]response `yaml:"responses"`
}

type response struct {
	Description string               `yaml:"description"`
	Content     map[string]mediaType `yaml:"content"`
	// Schema/examples in swagger 2.0 style.
	Examples map[string]interface{} `yaml:"examples"`
}

type mediaType struct {
	Example interface{} `yaml:"example"`
}

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true,
	"delete": true, "head": true, "options": true,
}

// Looks reports whether text resembles an OpenAPI document, cheaply.
// Used to decide between deterministic parsing and oracle generation.
func Looks(text string) bool {
	lowered := strings.ToLower(text)
	if !strings.Contains(lowered, "paths") {
		return false
	}
	return strings.Contains(lowered, "openapi") || strings.Contains(lowered, "swagger")
}

// Parse extracts the operations from an OpenAPI document. Paths are
// returned in deterministic order (sorted by path, then method).
func Parse(text string) ([]Operation, error) {
	var doc document
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("apispec: parse: %w", err)
	}
	if doc.OpenAPI == "" && doc.Swagger == "" {
		return nil, ErrNotASpec
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("apispec: %q has no paths", doc.Info.Title)
	}

	var ops []Operation
	for path, methods := range doc.Paths {
		for method, op := range methods {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			parsed := Operation{
				Method:  strings.ToUpper(method),
				Path:    normalizePath(path),
				Summary: op.Summary,
				Status:  200,
			}
			if parsed.Summary == "" {
				parsed.Summary = op.OperationID
			}
			applyResponse(&parsed, op.Responses)
			ops = append(ops, parsed)
		}
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("apispec: no operations found")
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops, nil
}

// applyResponse picks the lowest 2xx response (falling back to the lowest
// status overall) and lifts its example body.
func applyResponse(op *Operation, responses map[string]response) {
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	chosen := ""
	for _, code := range codes {
		if strings.HasPrefix(code, "2") {
			chosen = code
			break
		}
	}
	if chosen == "" && len(codes) > 0 {
		chosen = codes[0]
	}
	if chosen == "" {
		return
	}

	if status, err := parseStatus(chosen); err == nil {
		op.Status = status
	}
	resp := responses[chosen]
	for ct, media := range resp.Content {
		if media.Example == nil {
			continue
		}
		op.ContentType = ct
		op.ExampleBody = renderExample(media.Example)
		break
	}
	if op.ExampleBody == "" {
		for _, example := range resp.Examples {
			op.ContentType = "application/json"
			op.ExampleBody = renderExample(example)
			break
		}
	}
}

func parseStatus(code string) (int, error) {
	var status int
	if _, err := fmt.Sscanf(code, "%d", &status); err != nil {
		return 0, err
	}
	if status < 100 || status > 599 {
		return 0, fmt.Errorf("apispec: status %d out of range", status)
	}
	return status, nil
}

// renderExample serializes a decoded YAML example as JSON. Scalars pass
// through as their string form.
func renderExample(example interface{}) string {
	switch v := example.(type) {
	case string:
		return v
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(out)
	}
}

// normalizePath converts OpenAPI path templating ({id}) into the mock
// engine's regex form so the mapping matches any value in that segment.
func normalizePath(path string) string {
	if !strings.Contains(path, "{") {
		return path
	}
	var sb strings.Builder
	inVar := false
	for _, r := range path {
		switch {
		case r == '{':
			inVar = true
			sb.WriteString("[^/]+")
		case r == '}':
			inVar = false
		case !inVar:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

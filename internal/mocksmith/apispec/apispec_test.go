package apispec_test

import (
	"errors"
	"testing"

	"mocksmith/internal/mocksmith/apispec"
)

const petsSpec = `
openapi: "3.0.0"
info:
  title: Pets
paths:
  /pets:
    get:
      summary: List pets
      responses:
        "200":
          description: ok
          content:
            application/json:
              example:
                - name: rex
    post:
      operationId: createPet
      responses:
        "201":
          description: created
  /pets/{petId}:
    get:
      summary: Get one pet
      responses:
        "404":
          description: missing
`

func TestLooks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"openapi yaml", petsSpec, true},
		{"swagger json", `{"swagger": "2.0", "paths": {}}`, true},
		{"plain request", "mock GET /pets returning a list", false},
		{"mentions openapi only", "import my openapi file later", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apispec.Looks(tt.text); got != tt.want {
				t.Errorf("Looks(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestParse_Operations(t *testing.T) {
	ops, err := apispec.Parse(petsSpec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("got %d operations, want 3: %+v", len(ops), ops)
	}

	// Sorted by path, then method.
	if ops[0].Path != "/pets" || ops[0].Method != "GET" {
		t.Errorf("ops[0] = %+v", ops[0])
	}
	if ops[1].Path != "/pets" || ops[1].Method != "POST" {
		t.Errorf("ops[1] = %+v", ops[1])
	}
	if ops[2].Method != "GET" || ops[2].Path != "/pets/[^/]+" {
		t.Errorf("templated path not normalized: %+v", ops[2])
	}

	if ops[0].Status != 200 || ops[0].Summary != "List pets" {
		t.Errorf("ops[0] response: %+v", ops[0])
	}
	if ops[0].ContentType != "application/json" || ops[0].ExampleBody == "" {
		t.Errorf("example body not lifted: %+v", ops[0])
	}
	if ops[1].Status != 201 || ops[1].Summary != "createPet" {
		t.Errorf("operationId fallback or status selection wrong: %+v", ops[1])
	}
	if ops[2].Status != 404 {
		t.Errorf("lowest status fallback wrong: %+v", ops[2])
	}
}

func TestParse_PicksLowestSuccessStatus(t *testing.T) {
	spec := `
openapi: "3.0.0"
paths:
  /a:
    get:
      responses:
        "500":
          description: boom
        "204":
          description: empty
        "200":
          description: ok
`
	ops, err := apispec.Parse(spec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ops[0].Status != 200 {
		t.Errorf("status = %d, want 200", ops[0].Status)
	}
}

func TestParse_AcceptsJSONDocuments(t *testing.T) {
	spec := `{"openapi": "3.0.0", "paths": {"/things": {"delete": {"responses": {"204": {"description": "gone"}}}}}}`
	ops, err := apispec.Parse(spec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 1 || ops[0].Method != "DELETE" || ops[0].Status != 204 {
		t.Errorf("unexpected operations: %+v", ops)
	}
}

func TestParse_Rejections(t *testing.T) {
	if _, err := apispec.Parse("just: yaml\nwithout: meaning"); !errors.Is(err, apispec.ErrNotASpec) {
		t.Errorf("non-spec yaml: got %v, want ErrNotASpec", err)
	}
	if _, err := apispec.Parse(`openapi: "3.0.0"`); err == nil {
		t.Error("spec without paths should fail")
	}
	if _, err := apispec.Parse("{{not yaml"); err == nil {
		t.Error("malformed document should fail")
	}
}

func TestParse_IgnoresNonMethodKeys(t *testing.T) {
	spec := `
openapi: "3.0.0"
paths:
  /a:
    x-internal:
      summary: not an operation
      responses:
        "200":
          description: ok
    get:
      responses:
        "200":
          description: ok
`
	ops, err := apispec.Parse(spec)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ops) != 1 {
		t.Errorf("path-level keys leaked into operations: %+v", ops)
	}
}

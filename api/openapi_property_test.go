package api

import (
	"os"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gopkg.in/yaml.v3"
)

// OpenAPISpec is the parsed panel API document.
type OpenAPISpec struct {
	OpenAPI    string                 `yaml:"openapi"`
	Info       map[string]interface{} `yaml:"info"`
	Paths      map[string]PathItem    `yaml:"paths"`
	Components Components             `yaml:"components"`
}

// PathItem holds the operations and shared parameters of one path.
type PathItem struct {
	Get        *Operation  `yaml:"get"`
	Post       *Operation  `yaml:"post"`
	Patch      *Operation  `yaml:"patch"`
	Delete     *Operation  `yaml:"delete"`
	Parameters []Parameter `yaml:"parameters"`
}

// Operation is one documented endpoint method.
type Operation struct {
	Summary     string                `yaml:"summary"`
	Description string                `yaml:"description"`
	OperationID string                `yaml:"operationId"`
	Parameters  []Parameter           `yaml:"parameters"`
	RequestBody *RequestBody          `yaml:"requestBody"`
	Responses   map[string]Response   `yaml:"responses"`
	Security    []map[string][]string `yaml:"security"`
}

// Parameter is an OpenAPI parameter or a reference to one.
type Parameter struct {
	Name     string                 `yaml:"name"`
	In       string                 `yaml:"in"`
	Required bool                   `yaml:"required"`
	Schema   map[string]interface{} `yaml:"schema"`
	Ref      string                 `yaml:"$ref"`
}

// RequestBody is an operation's request body documentation.
type RequestBody struct {
	Required bool                 `yaml:"required"`
	Content  map[string]MediaType `yaml:"content"`
}

// MediaType carries the schema for one content type.
type MediaType struct {
	Schema map[string]interface{} `yaml:"schema"`
}

// Response is one documented response or a reference to one.
type Response struct {
	Description string               `yaml:"description"`
	Content     map[string]MediaType `yaml:"content"`
	Ref         string               `yaml:"$ref"`
}

// Components holds the reusable pieces of the document.
type Components struct {
	Schemas         map[string]interface{} `yaml:"schemas"`
	SecuritySchemes map[string]interface{} `yaml:"securitySchemes"`
	Parameters      map[string]interface{} `yaml:"parameters"`
	Responses       map[string]interface{} `yaml:"responses"`
}

func loadOpenAPISpec(t *testing.T) *OpenAPISpec {
	t.Helper()

	data, err := os.ReadFile("openapi.yaml")
	if err != nil {
		t.Fatalf("failed to read OpenAPI spec: %v", err)
	}

	var spec OpenAPISpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		t.Fatalf("failed to parse OpenAPI spec: %v", err)
	}

	return &spec
}

type operationInfo struct {
	path      string
	method    string
	operation *Operation
}

func collectOperations(spec *OpenAPISpec) []operationInfo {
	var ops []operationInfo
	for path, item := range spec.Paths {
		for method, op := range map[string]*Operation{
			"GET":    item.Get,
			"POST":   item.Post,
			"PATCH":  item.Patch,
			"DELETE": item.Delete,
		} {
			if op != nil {
				ops = append(ops, operationInfo{path: path, method: method, operation: op})
			}
		}
	}
	return ops
}

// hasRequestSchema checks that an operation with a request body also
// documents the body's schema. No request body is fine.
func hasRequestSchema(op *Operation) bool {
	if op.RequestBody == nil {
		return true
	}
	if op.RequestBody.Content == nil {
		return false
	}
	for _, mediaType := range op.RequestBody.Content {
		if mediaType.Schema != nil {
			return true
		}
	}
	return false
}

func hasErrorResponses(op *Operation) bool {
	for code := range op.Responses {
		if strings.HasPrefix(code, "4") || strings.HasPrefix(code, "5") {
			return true
		}
	}
	return false
}

func genOperationIndex(count int) gopter.Gen {
	if count <= 0 {
		return gen.Const(0)
	}
	return gen.IntRange(0, count-1)
}

// TestOpenAPISchemaCompleteness checks that every documented endpoint
// carries a full contract: a success schema, a request schema when a
// body is expected, and error responses wherever auth is in play.
func TestOpenAPISchemaCompleteness(t *testing.T) {
	spec := loadOpenAPISpec(t)
	operations := collectOperations(spec)
	if len(operations) == 0 {
		t.Fatal("no operations found in OpenAPI spec")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every operation documents a success response", prop.ForAll(
		func(idx int) bool {
			op := operations[idx]
			for code := range op.operation.Responses {
				if strings.HasPrefix(code, "2") {
					return true
				}
			}
			return false
		},
		genOperationIndex(len(operations)),
	))

	properties.Property("every operation with a request body documents its schema", prop.ForAll(
		func(idx int) bool {
			return hasRequestSchema(operations[idx].operation)
		},
		genOperationIndex(len(operations)),
	))

	properties.Property("every operation carries an operationId and summary", prop.ForAll(
		func(idx int) bool {
			op := operations[idx].operation
			return op.OperationID != "" && op.Summary != ""
		},
		genOperationIndex(len(operations)),
	))

	properties.Property("every authenticated operation documents error responses", prop.ForAll(
		func(idx int) bool {
			op := operations[idx]
			if len(op.operation.Security) == 0 {
				// healthz and login are the open endpoints.
				return true
			}
			return hasErrorResponses(op.operation)
		},
		genOperationIndex(len(operations)),
	))

	properties.TestingRun(t)
}

func TestOpenAPISpecStructure(t *testing.T) {
	spec := loadOpenAPISpec(t)

	if !strings.HasPrefix(spec.OpenAPI, "3.") {
		t.Errorf("expected OpenAPI 3.x, got %q", spec.OpenAPI)
	}
	if spec.Info["title"] == nil {
		t.Error("API title is missing")
	}
	if spec.Info["version"] == nil {
		t.Error("API version is missing")
	}
	if len(spec.Paths) == 0 {
		t.Error("no paths defined")
	}
	if len(spec.Components.Schemas) == 0 {
		t.Error("no schemas defined in components")
	}
	if _, ok := spec.Components.Schemas["Error"]; !ok {
		t.Error("Error schema is not defined")
	}
	for _, scheme := range []string{"bearerAuth", "nodeAuth"} {
		if _, ok := spec.Components.SecuritySchemes[scheme]; !ok {
			t.Errorf("security scheme %s is not defined", scheme)
		}
	}
}

// TestOpenAPIErrorSchema pins the error envelope every handler writes.
func TestOpenAPIErrorSchema(t *testing.T) {
	spec := loadOpenAPISpec(t)

	schemaMap, ok := spec.Components.Schemas["Error"].(map[string]interface{})
	if !ok {
		t.Fatal("Error schema is not a map")
	}

	required, ok := schemaMap["required"].([]interface{})
	if !ok {
		t.Fatal("Error schema does not declare required fields")
	}
	requiredFields := make(map[string]bool)
	for _, field := range required {
		if fieldStr, ok := field.(string); ok {
			requiredFields[fieldStr] = true
		}
	}
	for _, field := range []string{"code", "message"} {
		if !requiredFields[field] {
			t.Errorf("Error schema missing required field: %s", field)
		}
	}

	properties, ok := schemaMap["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("Error schema does not have properties")
	}
	for _, name := range []string{"code", "message", "details", "request_id"} {
		if _, ok := properties[name]; !ok {
			t.Errorf("Error schema missing property: %s", name)
		}
	}
}

// TestOpenAPIEndpointCoverage keeps the document in step with the
// routes the server actually mounts.
func TestOpenAPIEndpointCoverage(t *testing.T) {
	spec := loadOpenAPISpec(t)

	requiredEndpoints := []string{
		"/healthz",
		"/api/auth/login",
		"/api/me",
		"/api/nodes",
		"/api/nodes/{nodeID}",
		"/api/nodes/{nodeID}/rotate-credential",
		"/api/nodes/{nodeID}/allocations",
		"/api/allocations/{allocationID}",
		"/api/servers",
		"/api/servers/{serverID}",
		"/api/servers/{serverID}/power",
		"/api/servers/{serverID}/suspend",
		"/api/servers/{serverID}/unsuspend",
		"/api/servers/{serverID}/console",
		"/api/servers/{serverID}/stats",
		"/api/blueprints",
		"/api/blueprints/{blueprintID}",
		"/api/users",
		"/api/users/{userID}",
		"/api/activity",
		"/api/remote/heartbeat",
		"/api/remote/servers/{remoteID}/status",
	}

	for _, endpoint := range requiredEndpoints {
		if _, ok := spec.Paths[endpoint]; !ok {
			t.Errorf("required endpoint not documented: %s", endpoint)
		}
	}
}

// TestOpenAPIDaemonSurfaceAuth checks that the two surfaces never mix
// schemes: /api/remote authenticates nodes, everything else operators.
func TestOpenAPIDaemonSurfaceAuth(t *testing.T) {
	spec := loadOpenAPISpec(t)

	for _, op := range collectOperations(spec) {
		if len(op.operation.Security) == 0 {
			continue
		}
		want := "bearerAuth"
		if strings.HasPrefix(op.path, "/api/remote/") {
			want = "nodeAuth"
		}
		for _, requirement := range op.operation.Security {
			if _, ok := requirement[want]; !ok {
				t.Errorf("%s %s should use %s security", op.method, op.path, want)
			}
		}
	}
}

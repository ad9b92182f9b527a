// Package openapi provides reflective OpenAPI 3.0 specification generation
// for the planning API.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications by reflecting on the request
// and response models of registered endpoints.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	errorModel  any
	endpoints   []Endpoint
	names       map[reflect.Type]string // component names of the spec being generated
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Endpoint describes one operation for spec generation.
type Endpoint struct {
	Method      string // HTTP method (e.g., http.MethodPost)
	Path        string // Route path (e.g., "/api/v1/plans")
	OperationID string
	Summary     string
	Tag         string
	Request     any   // Request body model; nil for operations without a body
	Response    any   // Success response model
	Status      int   // Success status; defaults to 200
	Errors      []int // Statuses answered with the error model
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// WithErrorModel sets the model used for error responses.
func WithErrorModel(model any) Option {
	return func(g *Generator) {
		g.errorModel = model
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:       "Release Plan API",
		version:     "1.0.0",
		description: "Deployment sequencing and risk classification API",
		endpoints:   make([]Endpoint, 0),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds an endpoint to the generator for spec generation.
func (g *Generator) Register(ep Endpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.endpoints = append(g.endpoints, ep)
	g.cachedSpec = nil // Invalidate cache
}

// Generate produces the complete OpenAPI 3.0 specification.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}

	g.names = make(map[reflect.Type]string)
	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	for _, ep := range g.endpoints {
		g.addEndpointToSpec(spec, ep)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) addEndpointToSpec(spec *openapi3.T, ep Endpoint) {
	status := ep.Status
	if status == 0 {
		status = http.StatusOK
	}

	responses := []openapi3.NewResponsesOption{
		openapi3.WithStatus(status, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(status)).
				WithJSONSchemaRef(g.schemaFor(spec, ep.Response)),
		}),
	}
	for _, code := range ep.Errors {
		responses = append(responses, openapi3.WithStatus(code, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(code)).
				WithJSONSchemaRef(g.schemaFor(spec, g.errorModel)),
		}))
	}

	op := &openapi3.Operation{
		OperationID: ep.OperationID,
		Summary:     ep.Summary,
		Responses:   openapi3.NewResponses(responses...),
	}
	if ep.Tag != "" {
		op.Tags = []string{ep.Tag}
	}
	if ep.Request != nil {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(g.schemaFor(spec, ep.Request)),
		}
	}

	item := spec.Paths.Value(ep.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(ep.Path, item)
	}
	item.SetOperation(strings.ToUpper(ep.Method), op)
}

// =============================================================================
// Schema Generation
// =============================================================================

var timeType = reflect.TypeOf(time.Time{})

// schemaFor returns the schema of a model. Named structs are registered as
// components and referenced.
func (g *Generator) schemaFor(spec *openapi3.T, model any) *openapi3.SchemaRef {
	if model == nil {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
	return g.goTypeToSchema(spec, reflect.TypeOf(model))
}

// extractSchema extracts an OpenAPI object schema from a Go struct type.
func (g *Generator) extractSchema(spec *openapi3.T, t reflect.Type) *openapi3.Schema {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		optional := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					optional = true
				}
			}
		}

		schema.Properties[name] = g.goTypeToSchema(spec, field.Type)
		if !optional && field.Type.Kind() != reflect.Ptr {
			schema.Required = append(schema.Required, name)
		}
	}

	return schema
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(spec *openapi3.T, t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(spec, t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(spec, t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(spec, t.Elem())
		if schema.Ref == "" && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == timeType {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		if t.Name() == "" {
			return &openapi3.SchemaRef{Value: g.extractSchema(spec, t)}
		}
		return g.componentRef(spec, t)

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}

// componentRef registers a named struct under components/schemas and returns
// a reference to it. The value is carried on the ref so the document
// validates without a loader pass.
func (g *Generator) componentRef(spec *openapi3.T, t reflect.Type) *openapi3.SchemaRef {
	if name, ok := g.names[t]; ok {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, spec.Components.Schemas[name].Value)
	}

	// Types from different packages may share a name.
	name := t.Name()
	for i := 2; spec.Components.Schemas[name] != nil; i++ {
		name = t.Name() + strconv.Itoa(i)
	}

	// Register before recursing so self-referencing types terminate.
	schema := &openapi3.Schema{}
	g.names[t] = name
	spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}
	*schema = *g.extractSchema(spec, t)

	return openapi3.NewSchemaRef("#/components/schemas/"+name, schema)
}

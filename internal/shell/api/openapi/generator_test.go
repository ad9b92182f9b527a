package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Models
// =============================================================================

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type order struct {
	ID       string            `json:"id"`
	Items    []item            `json:"items"`
	Labels   map[string]string `json:"labels,omitempty"`
	Note     *string           `json:"note"`
	Created  time.Time         `json:"createdAt"`
	Score    float64           `json:"score"`
	Internal string            `json:"-"`
	hidden   string
}

type orderResponse struct {
	OrderID string `json:"orderId"`
	Order   order  `json:"order"`
}

type node struct {
	Value    string `json:"value"`
	Children []node `json:"children,omitempty"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func testGenerator() *Generator {
	g := NewGenerator(
		WithTitle("Test API"),
		WithVersion("2.0.0"),
		WithDescription("test"),
		WithServer("http://localhost:8080"),
		WithErrorModel(apiError{}),
	)
	g.Register(Endpoint{
		Method:      http.MethodPost,
		Path:        "/api/v1/orders",
		OperationID: "createOrder",
		Summary:     "Create an order",
		Tag:         "Orders",
		Request:     order{},
		Response:    orderResponse{},
		Errors:      []int{http.StatusBadRequest},
	})
	g.Register(Endpoint{
		Method:      http.MethodGet,
		Path:        "/health",
		OperationID: "health",
		Response:    item{},
	})
	return g
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestGenerate_Info(t *testing.T) {
	spec := testGenerator().Generate()

	assert.Equal(t, "3.0.3", spec.OpenAPI)
	assert.Equal(t, "Test API", spec.Info.Title)
	assert.Equal(t, "2.0.0", spec.Info.Version)
	require.Len(t, spec.Servers, 1)
	assert.Equal(t, "http://localhost:8080", spec.Servers[0].URL)
}

func TestGenerate_Defaults(t *testing.T) {
	spec := NewGenerator().Generate()

	assert.Equal(t, "Release Plan API", spec.Info.Title)
	assert.Equal(t, 0, spec.Paths.Len())
}

func TestGenerate_Operations(t *testing.T) {
	spec := testGenerator().Generate()

	orders := spec.Paths.Value("/api/v1/orders")
	require.NotNil(t, orders)
	require.NotNil(t, orders.Post)
	assert.Equal(t, "createOrder", orders.Post.OperationID)
	assert.Equal(t, []string{"Orders"}, orders.Post.Tags)
	require.NotNil(t, orders.Post.RequestBody)
	assert.True(t, orders.Post.RequestBody.Value.Required)

	ok := orders.Post.Responses.Status(http.StatusOK)
	require.NotNil(t, ok)
	assert.Equal(t, "#/components/schemas/orderResponse",
		ok.Value.Content.Get("application/json").Schema.Ref)

	bad := orders.Post.Responses.Status(http.StatusBadRequest)
	require.NotNil(t, bad)
	assert.Equal(t, "#/components/schemas/apiError",
		bad.Value.Content.Get("application/json").Schema.Ref)

	health := spec.Paths.Value("/health")
	require.NotNil(t, health)
	assert.NotNil(t, health.Get)
	assert.Nil(t, health.Get.RequestBody)
}

func TestGenerate_Schemas(t *testing.T) {
	spec := testGenerator().Generate()

	schema := spec.Components.Schemas["order"]
	require.NotNil(t, schema)
	props := schema.Value.Properties

	assert.True(t, props["id"].Value.Type.Is("string"))
	assert.True(t, props["items"].Value.Type.Is("array"))
	assert.Equal(t, "#/components/schemas/item", props["items"].Value.Items.Ref)
	assert.True(t, props["labels"].Value.Type.Is("object"))
	assert.True(t, props["note"].Value.Nullable)
	assert.Equal(t, "date-time", props["createdAt"].Value.Format)
	assert.Equal(t, "double", props["score"].Value.Format)
	assert.NotContains(t, props, "Internal")
	assert.NotContains(t, props, "hidden")

	assert.Contains(t, schema.Value.Required, "id")
	assert.NotContains(t, schema.Value.Required, "labels")
	assert.NotContains(t, schema.Value.Required, "note")
}

func TestGenerate_SelfReferencingType(t *testing.T) {
	g := NewGenerator()
	g.Register(Endpoint{Method: http.MethodGet, Path: "/tree", OperationID: "tree", Response: node{}})

	spec := g.Generate()

	schema := spec.Components.Schemas["node"]
	require.NotNil(t, schema)
	assert.Equal(t, "#/components/schemas/node", schema.Value.Properties["children"].Value.Items.Ref)
}

func TestGenerate_Validates(t *testing.T) {
	spec := testGenerator().Generate()
	assert.NoError(t, spec.Validate(context.Background()))
}

func TestGenerate_Cached(t *testing.T) {
	g := testGenerator()
	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.Register(Endpoint{Method: http.MethodGet, Path: "/ready", OperationID: "ready", Response: item{}})
	second := g.Generate()
	assert.NotSame(t, first, second)
	assert.NotNil(t, second.Paths.Value("/ready"))
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestHandler_ServesJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w := httptest.NewRecorder()

	testGenerator().Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/v1/orders")
}

package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type testHandler struct{}

func (testHandler) ListPatients(c echo.Context) error  { return nil }
func (testHandler) CreatePatient(c echo.Context) error { return nil }
func (testHandler) GetPatient(c echo.Context) error    { return nil }
func (testHandler) DeletePatient(c echo.Context) error { return nil }
func (testHandler) Reschedule(c echo.Context) error    { return nil }

func newTestEcho() *echo.Echo {
	e := echo.New()
	h := testHandler{}
	api := e.Group("/api/v1")
	g := api.Group("", func(next echo.HandlerFunc) echo.HandlerFunc { return next })
	g.GET("/patients", h.ListPatients)
	g.POST("/patients", h.CreatePatient)
	g.GET("/patients/:id", h.GetPatient)
	g.DELETE("/patients/:id", h.DeletePatient)
	g.PATCH("/reservations/:id/reschedule", h.Reschedule)
	e.GET("/health", func(c echo.Context) error { return nil })
	return e
}

func paths(t *testing.T, spec map[string]interface{}) map[string]interface{} {
	t.Helper()
	p, ok := spec["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("expected paths object")
	}
	return p
}

func TestGenerateSpec_Structure(t *testing.T) {
	spec := NewGenerator(newTestEcho(), "1.2.3").GenerateSpec()

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}
	info, ok := spec["info"].(map[string]interface{})
	if !ok {
		t.Fatal("expected info object")
	}
	if info["version"] != "1.2.3" {
		t.Errorf("expected version '1.2.3', got %v", info["version"])
	}
	components := spec["components"].(map[string]interface{})
	schemas := components["schemas"].(map[string]interface{})
	for _, name := range []string{"Patient", "MedicalService", "Reservation", "Error"} {
		if _, ok := schemas[name]; !ok {
			t.Errorf("expected schema %s", name)
		}
	}
}

func TestGenerateSpec_Paths(t *testing.T) {
	g := NewGenerator(newTestEcho(), "1.0.0")
	got := strings.Join(g.Paths(), ",")
	want := "/api/v1/patients,/api/v1/patients/{id},/api/v1/reservations/{id}/reschedule,/health"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestGenerateSpec_Operations(t *testing.T) {
	p := paths(t, NewGenerator(newTestEcho(), "1.0.0").GenerateSpec())

	coll := p["/api/v1/patients"].(map[string]interface{})
	list := coll["get"].(map[string]interface{})
	if list["operationId"] != "ListPatients" {
		t.Errorf("expected ListPatients, got %v", list["operationId"])
	}
	if list["summary"] != "List patients" {
		t.Errorf("expected 'List patients', got %v", list["summary"])
	}
	if tags := list["tags"].([]string); tags[0] != "patients" {
		t.Errorf("expected patients tag, got %v", tags)
	}

	create := coll["post"].(map[string]interface{})
	if _, ok := create["requestBody"]; !ok {
		t.Error("expected request body on create")
	}
	if _, ok := create["responses"].(map[string]interface{})["201"]; !ok {
		t.Error("expected 201 response on create")
	}

	item := p["/api/v1/patients/{id}"].(map[string]interface{})
	get := item["get"].(map[string]interface{})
	params := get["parameters"].([]map[string]interface{})
	if len(params) != 1 || params[0]["name"] != "id" || params[0]["in"] != "path" {
		t.Errorf("expected id path parameter, got %v", params)
	}
	if _, ok := get["responses"].(map[string]interface{})["404"]; !ok {
		t.Error("expected 404 response on read")
	}
	del := item["delete"].(map[string]interface{})
	if _, ok := del["responses"].(map[string]interface{})["204"]; !ok {
		t.Error("expected 204 response on delete")
	}

	health := p["/health"].(map[string]interface{})["get"].(map[string]interface{})
	if health["operationId"] != "getHealth" {
		t.Errorf("expected getHealth for anonymous handler, got %v", health["operationId"])
	}
}

func TestToOpenAPIPath(t *testing.T) {
	if got := toOpenAPIPath("/api/v1/reservations/:id/reschedule"); got != "/api/v1/reservations/{id}/reschedule" {
		t.Errorf("unexpected path %s", got)
	}
	if got := tagFor("/api/v1/calendar/month"); got != "calendar" {
		t.Errorf("expected calendar tag, got %s", got)
	}
	if got := humanize("SendMessage"); got != "Send message" {
		t.Errorf("expected 'Send message', got %s", got)
	}
}

func TestGenerator_Endpoints(t *testing.T) {
	e := newTestEcho()
	NewGenerator(e, "1.0.0").RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := doc["paths"].(map[string]interface{})["/openapi.json"]; !ok {
		t.Error("expected the document to list its own route")
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Error("expected Swagger UI page")
	}
}

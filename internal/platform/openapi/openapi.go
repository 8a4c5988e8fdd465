// Package openapi describes the registered HTTP routes as an OpenAPI 3.0
// document.
package openapi

import (
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
)

// RouteLister is satisfied by *echo.Echo.
type RouteLister interface {
	Routes() []*echo.Route
}

// Generator builds the document from the live route table, so routes added
// after construction are included.
type Generator struct {
	routes  RouteLister
	version string
}

func NewGenerator(routes RouteLister, version string) *Generator {
	return &Generator{routes: routes, version: version}
}

// entitySchemas maps a route tag to the schema its create and update
// operations accept and return.
var entitySchemas = map[string]string{
	"patients":     "Patient",
	"services":     "MedicalService",
	"reservations": "Reservation",
}

// GenerateSpec produces the OpenAPI document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]map[string]interface{})
	for _, r := range g.routes.Routes() {
		if !documented(r) {
			continue
		}
		path := toOpenAPIPath(r.Path)
		if paths[path] == nil {
			paths[path] = make(map[string]interface{})
		}
		paths[path][strings.ToLower(r.Method)] = operation(r)
	}

	out := make(map[string]interface{}, len(paths))
	for p, ops := range paths {
		out[p] = ops
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Clinic Dashboard API",
			"version":     g.version,
			"description": "Patients, services, reservations, calendar views and reports",
		},
		"paths": out,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
			"securitySchemes": map[string]interface{}{
				"sessionCookie": map[string]interface{}{"type": "apiKey", "in": "cookie", "name": "clinic_session"},
			},
		},
		"security": []map[string][]string{{"sessionCookie": {}}},
	}
}

// documented skips catch-all and not-found routes registered by groups.
func documented(r *echo.Route) bool {
	if r.Method == echo.RouteNotFound || strings.HasSuffix(r.Path, "*") {
		return false
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// toOpenAPIPath rewrites ":id" segments as "{id}".
func toOpenAPIPath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			segs[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

func pathParams(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if strings.HasPrefix(s, ":") {
			out = append(out, s[1:])
		}
	}
	return out
}

// tagFor returns the first path segment after the API prefix.
func tagFor(p string) string {
	p = strings.TrimPrefix(p, "/api/v1")
	for _, s := range strings.Split(p, "/") {
		if s != "" && !strings.HasPrefix(s, ":") {
			return s
		}
	}
	return "root"
}

// operationID derives an identifier from the handler name echo records,
// e.g. "pkg.(*Handler).ListPatients-fm" becomes "ListPatients".
func operationID(r *echo.Route) string {
	name := strings.TrimSuffix(r.Name, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name != "" && !strings.HasPrefix(name, "func") {
		return name
	}
	// Anonymous handlers: method plus capitalised path segments.
	var b strings.Builder
	b.WriteString(strings.ToLower(r.Method))
	for _, seg := range strings.Split(r.Path, "/") {
		seg = strings.TrimPrefix(seg, ":")
		if seg == "" {
			continue
		}
		rs := []rune(seg)
		b.WriteRune(unicode.ToUpper(rs[0]))
		b.WriteString(string(rs[1:]))
	}
	return b.String()
}

// humanize splits a CamelCase identifier into a sentence.
func humanize(id string) string {
	var b strings.Builder
	for i, r := range id {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func operation(r *echo.Route) map[string]interface{} {
	id := operationID(r)
	tag := tagFor(r.Path)
	op := map[string]interface{}{
		"operationId": id,
		"summary":     humanize(id),
		"tags":        []string{tag},
	}

	var params []map[string]interface{}
	for _, name := range pathParams(r.Path) {
		params = append(params, map[string]interface{}{
			"name": name, "in": "path", "required": true,
			"schema": map[string]string{"type": "string"},
		})
	}
	if len(params) > 0 {
		op["parameters"] = params
	}

	responses := map[string]interface{}{
		"400": errorResponse("Invalid request"),
		"401": errorResponse("Not authenticated"),
	}
	schema, isEntity := entitySchemas[tag]
	isCollection := len(params) == 0
	switch {
	case r.Method == http.MethodDelete:
		responses["204"] = map[string]interface{}{"description": "Deleted"}
	case r.Method == http.MethodPost && isEntity && isCollection:
		op["requestBody"] = jsonBody(schema)
		responses["201"] = jsonResponse("Created", schema)
	case (r.Method == http.MethodPut || r.Method == http.MethodPatch) && isEntity:
		op["requestBody"] = jsonBody(schema)
		responses["200"] = jsonResponse("Updated", schema)
	case r.Method == http.MethodGet && isEntity && !isCollection:
		responses["200"] = jsonResponse("Success", schema)
	default:
		responses["200"] = map[string]interface{}{"description": "Success"}
	}
	if !isCollection {
		responses["404"] = errorResponse("Not found")
	}
	op["responses"] = responses
	return op
}

func ref(schema string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + schema}
}

func jsonBody(schema string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

func jsonResponse(description, schema string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": ref(schema)},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return jsonResponse(description, "Error")
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	o := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func str(extra ...string) map[string]interface{} {
	s := map[string]interface{}{"type": "string"}
	for i := 0; i+1 < len(extra); i += 2 {
		s[extra[i]] = extra[i+1]
	}
	return s
}

func componentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"Patient": object([]string{"name", "phone", "email", "age"}, map[string]interface{}{
			"id":           str("format", "uuid"),
			"name":         map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 100},
			"phone":        map[string]interface{}{"type": "string", "minLength": 6, "maxLength": 20},
			"email":        str("format", "email"),
			"age":          map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 120},
			"observations": map[string]interface{}{"type": "string", "maxLength": 500},
			"created_at":   str("format", "date-time"),
		}),
		"MedicalService": object([]string{"name", "price", "color"}, map[string]interface{}{
			"id":          str("format", "uuid"),
			"name":        map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 100},
			"price":       map[string]interface{}{"type": "number", "exclusiveMinimum": true, "minimum": 0},
			"description": map[string]interface{}{"type": "string", "maxLength": 500},
			"color":       map[string]interface{}{"type": "string", "maxLength": 50},
			"created_at":  str("format", "date-time"),
		}),
		"Reservation": object([]string{"patient_id", "service_id", "date", "time"}, map[string]interface{}{
			"id":         str("format", "uuid"),
			"patient_id": str("format", "uuid"),
			"service_id": str("format", "uuid"),
			"date":       str("format", "date"),
			"time":       str("pattern", "^([01][0-9]|2[0-3]):[0-5][0-9]$"),
			"status":     map[string]interface{}{"type": "string", "enum": []string{"PENDING", "CONFIRMED", "COMPLETED", "CANCELLED"}},
			"origin":     map[string]interface{}{"type": "string", "enum": []string{"SYSTEM", "WHATSAPP"}},
			"notes":      map[string]interface{}{"type": "string", "maxLength": 500},
			"created_at": str("format", "date-time"),
		}),
		"Error": object(nil, map[string]interface{}{
			"message": str(),
			"error":   str(),
			"field":   str(),
			"id":      str(),
		}),
	}
}

// Paths returns the documented paths in sorted order.
func (g *Generator) Paths() []string {
	paths, _ := g.GenerateSpec()["paths"].(map[string]interface{})
	out := make([]string, 0, len(paths))
	for p := range paths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Clinic Dashboard API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({ url: "/openapi.json", dom_id: '#swagger-ui', deepLinking: true })
  </script>
</body>
</html>`

// RegisterRoutes serves the document and a Swagger UI page.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	e.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

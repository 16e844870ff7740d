package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestGenerator() *Generator {
	return NewGenerator("1.0.0", []string{"ImagingStudy", "MedicationStatement"})
}

func TestGenerateSpec_Structure(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}

	info, ok := spec["info"].(map[string]interface{})
	if !ok {
		t.Fatal("expected info object")
	}
	if info["title"] != "National Referral Index Registration Service" {
		t.Errorf("unexpected title %v", info["title"])
	}
	if info["version"] != "1.0.0" {
		t.Errorf("expected version '1.0.0', got %v", info["version"])
	}
}

func TestGenerateSpec_Paths(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()

	paths, ok := spec["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("expected paths object")
	}

	expectedPaths := []string{
		"/",
		"/version.json",
		"/health",
		"/registration",
		"/synchronize",
		"/cache/clear",
		"/scheduler/start",
		"/scheduler/stop",
		"/scheduler/runners-history",
		"/authorize",
	}
	for _, p := range expectedPaths {
		if _, exists := paths[p]; !exists {
			t.Errorf("missing expected path: %s", p)
		}
	}
	if len(paths) != len(expectedPaths) {
		t.Errorf("expected %d paths, got %d", len(expectedPaths), len(paths))
	}
}

func TestGenerateSpec_DataDomainEnum(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()
	paths := spec["paths"].(map[string]interface{})

	syncPath := paths["/synchronize"].(map[string]interface{})
	post := syncPath["post"].(map[string]interface{})
	params := post["parameters"].([]map[string]interface{})
	if len(params) != 1 {
		t.Fatalf("expected 1 parameter, got %d", len(params))
	}
	if params[0]["name"] != "data_domain" {
		t.Errorf("expected data_domain parameter, got %v", params[0]["name"])
	}
	schema := params[0]["schema"].(map[string]interface{})
	enum, ok := schema["enum"].([]string)
	if !ok || len(enum) != 2 || enum[0] != "ImagingStudy" || enum[1] != "MedicationStatement" {
		t.Errorf("expected configured domains as enum, got %v", schema["enum"])
	}
}

func TestGenerateSpec_NoDomainsOmitsEnum(t *testing.T) {
	spec := NewGenerator("1.0.0", nil).GenerateSpec()
	paths := spec["paths"].(map[string]interface{})

	syncPath := paths["/synchronize"].(map[string]interface{})
	post := syncPath["post"].(map[string]interface{})
	params := post["parameters"].([]map[string]interface{})
	schema := params[0]["schema"].(map[string]interface{})
	if _, exists := schema["enum"]; exists {
		t.Errorf("expected no enum without configured domains, got %v", schema["enum"])
	}
}

func TestGenerateSpec_JSONSerialization(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()

	data, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("failed to marshal spec: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal spec: %v", err)
	}
	if result["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3' after round-trip, got %v", result["openapi"])
	}
}

func TestGenerator_RegisterRoutes(t *testing.T) {
	e := echo.New()
	newTestGenerator().RegisterRoutes(e)

	routePaths := make(map[string]bool)
	for _, r := range e.Routes() {
		routePaths[r.Method+":"+r.Path] = true
	}

	if !routePaths["GET:/openapi.json"] {
		t.Error("missing route GET /openapi.json")
	}
	if !routePaths["GET:/docs"] {
		t.Error("missing route GET /docs")
	}
}

func TestGenerator_OpenAPIEndpoint(t *testing.T) {
	e := echo.New()
	newTestGenerator().RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var spec map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}
}

func TestGenerator_DocsEndpoint(t *testing.T) {
	e := echo.New()
	newTestGenerator().RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Error("expected swagger ui page")
	}
}

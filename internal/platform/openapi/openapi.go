// Package openapi serves the OpenAPI 3.0 document for the service
// endpoints plus a Swagger UI page, both gated behind server.swagger_enabled.
package openapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document.
type Generator struct {
	version string
	domains []string
}

// NewGenerator creates a generator. domains carries the configured data
// domain names; they become the enum of every data_domain query parameter.
func NewGenerator(version string, domains []string) *Generator {
	return &Generator{version: version, domains: domains}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Service banner with build version",
				"operationId": "index",
				"tags":        []string{"status"},
				"responses": map[string]interface{}{
					"200": textResponse("Banner"),
				},
			},
		},
		"/version.json": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Raw build version file",
				"operationId": "versionJSON",
				"tags":        []string{"status"},
				"responses": map[string]interface{}{
					"200": jsonResponse("Version information", ref("VersionInfo")),
					"404": map[string]interface{}{"description": "No version file present"},
				},
			},
		},
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Aggregated health of the southbound dependencies",
				"operationId": "health",
				"tags":        []string{"status"},
				"responses": map[string]interface{}{
					"200": jsonResponse("Health report", ref("HealthReport")),
				},
			},
		},
		"/registration": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Register the patients of a FHIR bundle at the referral index",
				"operationId": "register",
				"tags":        []string{"registration"},
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": ref("Bundle"),
						},
					},
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Transaction-response bundle, one entry per resource", ref("Bundle")),
					"400": jsonResponse("Missing or invalid resource", ref("OperationOutcome")),
					"500": jsonResponse("Registration failed", ref("OperationOutcome")),
				},
			},
		},
		"/synchronize": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Synchronize configured data domains with the referral index",
				"operationId": "synchronize",
				"tags":        []string{"synchronization"},
				"parameters":  []map[string]interface{}{g.dataDomainParam()},
				"responses": map[string]interface{}{
					"200": jsonResponse("Update schemes keyed by domain", updateSchemesSchema()),
					"400": jsonResponse("Unknown data domain", messageSchema()),
					"500": jsonResponse("Synchronization failed", ref("OperationOutcome")),
				},
			},
		},
		"/cache/clear": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Reset the high-water mark of one or all data domains",
				"operationId": "clearCache",
				"tags":        []string{"synchronization"},
				"parameters":  []map[string]interface{}{g.dataDomainParam()},
				"responses": map[string]interface{}{
					"200": jsonResponse("Domain state after the reset", domainsSnapshotSchema()),
					"400": jsonResponse("Unknown data domain", messageSchema()),
				},
			},
		},
		"/scheduler/start": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Start the background synchronization worker",
				"operationId": "startScheduler",
				"tags":        []string{"scheduler"},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Scheduler running"},
				},
			},
		},
		"/scheduler/stop": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Stop the background synchronization worker",
				"operationId": "stopScheduler",
				"tags":        []string{"scheduler"},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Scheduler stopped"},
				},
			},
		},
		"/scheduler/runners-history": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Completed scheduler iterations",
				"operationId": "runnersHistory",
				"tags":        []string{"scheduler"},
				"responses": map[string]interface{}{
					"200": jsonResponse("Iteration records in execution order", map[string]interface{}{
						"type":  "array",
						"items": ref("RunnerRecord"),
					}),
				},
			},
		},
		"/authorize": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Decide whether an organization may access a referral",
				"operationId": "authorize",
				"tags":        []string{"authorization"},
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": ref("PermissionRequest"),
						},
					},
				},
				"responses": map[string]interface{}{
					"200": jsonResponse("Consent verdict", map[string]interface{}{"type": "boolean"}),
					"422": jsonResponse("Malformed request body", messageSchema()),
					"500": jsonResponse("Permission check failed", messageSchema()),
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "National Referral Index Registration Service",
			"version":     g.version,
			"description": "Synchronizes a local clinical FHIR repository with the national referral index.",
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
		},
	}
}

// dataDomainParam is the optional data_domain query parameter; absence
// means every configured domain.
func (g *Generator) dataDomainParam() map[string]interface{} {
	schema := map[string]interface{}{"type": "string"}
	if len(g.domains) > 0 {
		schema["enum"] = g.domains
	}
	return map[string]interface{}{
		"name":        "data_domain",
		"in":          "query",
		"required":    false,
		"schema":      schema,
		"description": "Restrict the operation to one configured data domain",
	}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func jsonResponse(description string, schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": schema,
			},
		},
	}
}

func textResponse(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"text/plain": map[string]interface{}{
				"schema": map[string]interface{}{"type": "string"},
			},
		},
	}
}

func messageSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		},
	}
}

func updateSchemesSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"additionalProperties": map[string]interface{}{
			"type":  "array",
			"items": ref("UpdateScheme"),
		},
	}
}

func domainsSnapshotSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": ref("DomainEntry"),
	}
}

func componentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"Bundle": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resourceType": map[string]interface{}{"type": "string"},
				"id":           map[string]interface{}{"type": "string"},
				"type":         map[string]interface{}{"type": "string"},
				"total":        map[string]interface{}{"type": "integer"},
				"entry": map[string]interface{}{
					"type":  "array",
					"items": ref("BundleEntry"),
				},
			},
		},
		"BundleEntry": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fullUrl":  map[string]interface{}{"type": "string"},
				"resource": map[string]interface{}{"type": "object"},
				"response": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"status":  map[string]interface{}{"type": "string"},
						"outcome": ref("OperationOutcome"),
					},
				},
			},
		},
		"OperationOutcome": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resourceType": map[string]interface{}{"type": "string"},
				"issue": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"severity": map[string]interface{}{"type": "string"},
							"code":     map[string]interface{}{"type": "string"},
							"details": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"text": map[string]interface{}{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"UpdateScheme": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"updated_data": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"bsn":      map[string]interface{}{"type": "string"},
							"referral": ref("ReferralEntity"),
						},
					},
				},
				"domain_entry": ref("DomainEntry"),
			},
		},
		"DomainEntry": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"last_resource_update": map[string]interface{}{
					"type":     "string",
					"format":   "date-time",
					"nullable": true,
				},
			},
		},
		"ReferralEntity": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":                map[string]interface{}{"type": "string"},
				"ura_number":        map[string]interface{}{"type": "string"},
				"data_domain":       map[string]interface{}{"type": "string"},
				"organization_type": map[string]interface{}{"type": "string"},
				"pseudonym":         map[string]interface{}{"type": "string"},
			},
		},
		"RunnerRecord": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"runner_id":   map[string]interface{}{"type": "integer"},
				"executed_at": map[string]interface{}{"type": "string", "format": "date-time"},
			},
		},
		"PermissionRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"encrypted_lmr_id", "client_ura_number"},
			"properties": map[string]interface{}{
				"encrypted_lmr_id":  map[string]interface{}{"type": "string"},
				"client_ura_number": map[string]interface{}{"type": "string"},
			},
		},
		"HealthReport": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{"type": "string"},
				"components": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"pseudonym_service": map[string]interface{}{"type": "string"},
						"referral_service":  map[string]interface{}{"type": "string"},
						"metadata_api":      map[string]interface{}{"type": "string"},
					},
				},
			},
		},
		"VersionInfo": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"version": map[string]interface{}{"type": "string"},
				"git_ref": map[string]interface{}{"type": "string"},
			},
		},
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>NVI Registration Service - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	e.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

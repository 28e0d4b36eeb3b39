package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>flowdeck Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document for the auth and diagram endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "flowdeck", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Exchange authorization code / login",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"mode":{"type":"string"},"username":{"type":"string"},"password":{"type":"string"},"code":{"type":"string"},"redirect_uri":{"type":"string"}}}}}},
        "responses": { "200": { "description": "tokens returned" } }
      }
    },
    "/auth/refresh": {
      "post": { "summary": "Refresh access token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "new access token" }, "401": { "description": "invalid refresh" } } }
    },
    "/auth/logout": {
      "post": { "summary": "Logout and invalidate refresh token", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"refresh_token":{"type":"string"}}}}}}, "responses": { "200": { "description": "logged out" } } }
    },
    "/api/diagrams": {
      "post": { "summary": "Create a diagram", "responses": { "201": { "description": "created, ETag header carries the fingerprint" }, "400": { "description": "validation failed, all violated fields listed" } } },
      "get": { "summary": "List own diagrams (payload-free summaries, cursor paginated)", "responses": { "200": { "description": "page of summaries" } } }
    },
    "/api/diagrams/{id}": {
      "get": { "summary": "Fetch a diagram; supports If-None-Match", "responses": { "200": { "description": "diagram" }, "304": { "description": "fingerprint still current" }, "404": { "description": "missing or not readable" } } },
      "put": { "summary": "Version-checked save", "responses": { "200": { "description": "saved, version incremented" }, "409": { "description": "stale expectedVersion, body carries current state" } } },
      "delete": { "summary": "Soft-delete a diagram", "responses": { "204": { "description": "hidden" } } }
    },
    "/api/diagrams/{id}/restore": {
      "post": { "summary": "Owner-only restore of a soft-deleted diagram", "responses": { "200": { "description": "restored" } } }
    },
    "/api/diagrams/{id}/revisions": {
      "get": { "summary": "List revision history (payload-free)", "responses": { "200": { "description": "revisions 1..version" } } }
    },
    "/api/diagrams/{id}/revisions/{rev}": {
      "get": { "summary": "Fetch one revision snapshot", "responses": { "200": { "description": "revision with payload" }, "404": { "description": "unknown revision" } } }
    },
    "/api/diagrams/{id}/collaborators/{principalId}": {
      "put": { "summary": "Grant editor or viewer access", "responses": { "204": { "description": "granted" } } },
      "delete": { "summary": "Revoke a grant", "responses": { "204": { "description": "revoked" } } }
    },
    "/api/diagrams/{id}/export": {
      "post": { "summary": "Export the current XML to object storage", "responses": { "201": { "description": "presigned download URL" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`

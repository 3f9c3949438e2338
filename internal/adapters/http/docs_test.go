package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var openAPIPath = filepath.Join("..", "..", "..", "api", "openapi.yaml")

func TestLoadAPIDocument(t *testing.T) {
	doc, err := loadAPIDocument(openAPIPath)
	require.NoError(t, err)

	var parsed struct {
		OpenAPI string         `json:"openapi"`
		Paths   map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(doc.json, &parsed))
	assert.NotEmpty(t, parsed.OpenAPI)
	assert.Contains(t, parsed.Paths, "/v1/zones")
	assert.Contains(t, parsed.Paths, "/v1/resolve/current")

	_, err = loadAPIDocument("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestSetupDocs(t *testing.T) {
	app := fiber.New()
	SetupDocs(app, openAPIPath)

	resp, err := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get("Content-Type"))

	resp, err = app.Test(httptest.NewRequest("GET", "/docs", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "/docs/openapi.json")
}

func TestSetupDocs_MissingDocument(t *testing.T) {
	app := fiber.New()
	SetupDocs(app, "missing.yaml")

	for _, path := range []string{"/docs/openapi.yaml", "/docs/openapi.json"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode, path)
	}
}

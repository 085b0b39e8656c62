package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/pokedex-api/config"
	"github.com/stevemurr/pokedex-api/store"
)

func testRouter(t *testing.T, origins ...string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.AssetsDir = t.TempDir()
	if len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.AssetsDir, "pokemons"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.AssetsDir, "pokemons", "1.png"), []byte("png"), 0o644))
	return newRouter(cfg, store.NewMemoryStore(cfg.AssetBaseURL), nil)
}

func TestAssetsAreServed(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/pokemons/1.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/pokemons/2.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSWildcard(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/pokemons", nil)
	req.Header.Set("Origin", "http://front.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	r := testRouter(t, "http://front.example")

	req := httptest.NewRequest(http.MethodOptions, "/api/update", nil)
	req.Header.Set("Origin", "http://front.example")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://front.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/pokemons", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ritgame/apiserver/config"
	"github.com/ritgame/apiserver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	return config.Config{
		APIKey: "k",
		Store:  config.StoreConfig{Backend: config.StoreBackendSQLite},
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "rit.db")},
		MQ:     config.MQConfig{Channel: "user-events"},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.APIKey = ""

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.ErrorContains(t, err, "RIT_API_KEY")
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "mysql"

	_, err := New(context.Background(), cfg, logging.Discard())
	assert.Error(t, err)
}

func TestServerRoutes(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/users", strings.NewReader(`{"externalId":"steam-1"}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "k")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/users/steam-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/users/steam-1/picture")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

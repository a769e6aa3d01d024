package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tapedeck/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelper provides utilities for testing the tapedeck server
type TestHelper struct {
	Server  *httptest.Server
	App     *Server
	DataDir string
}

// NewTestHelper starts a server over a temporary data directory
func NewTestHelper(t *testing.T, mutate ...func(*config.Config)) *TestHelper {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.GinMode = gin.TestMode
	cfg.Server.CORSOrigins = nil
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Watch = false
	for _, fn := range mutate {
		fn(cfg)
	}

	app, err := New(cfg, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.Start(ctx))

	helper := &TestHelper{
		Server:  httptest.NewServer(app.Handler()),
		App:     app,
		DataDir: cfg.Storage.DataDir,
	}
	t.Cleanup(func() { helper.Cleanup(t) })
	t.Cleanup(cancel)
	return helper
}

// Cleanup stops the HTTP server and background work
func (h *TestHelper) Cleanup(t *testing.T) {
	h.Server.Close()
	assert.NoError(t, h.App.Close())
}

// MakeRequest makes an HTTP request with an optional JSON body
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// DoJSON makes a request and unmarshals the JSON response into target
func (h *TestHelper) DoJSON(t *testing.T, method, path string, body, target interface{}) *http.Response {
	t.Helper()

	resp := h.MakeRequest(t, method, path, body)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if target != nil {
		require.NoError(t, json.Unmarshal(data, target), string(data))
	}
	return resp
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	return h.DoJSON(t, http.MethodGet, path, nil, target)
}

// PostJSON makes a POST request with a JSON body and unmarshals the response
func (h *TestHelper) PostJSON(t *testing.T, path string, body, target interface{}) *http.Response {
	return h.DoJSON(t, http.MethodPost, path, body, target)
}

// CreateProject creates a project and requires success
func (h *TestHelper) CreateProject(t *testing.T, name, description string) {
	t.Helper()
	resp := h.PostJSON(t, "/api/projects", map[string]string{"name": name, "description": description}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// Upload posts content as the multipart "file" field
func (h *TestHelper) Upload(t *testing.T, project, filename string, content []byte, target interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(h.Server.URL+"/api/projects/"+project+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
	}
	return resp
}

// ConnectWebSocket connects to a WebSocket endpoint
func (h *TestHelper) ConnectWebSocket(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + path

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// WaitForSubscribers waits until n websocket clients are registered
func (h *TestHelper) WaitForSubscribers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.App.hub.ClientCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

// WaitForWatch waits until the storage watcher follows a folder under the data directory
func (h *TestHelper) WaitForWatch(t *testing.T, relativePath string) {
	t.Helper()
	require.NotNil(t, h.App.watcher, "storage watcher not running")
	dir := filepath.Join(h.App.Projects().DataDir(), relativePath)
	require.Eventually(t, func() bool {
		return h.App.watcher.Watching(dir)
	}, 2*time.Second, 10*time.Millisecond)
}

// AssertFileExists checks that a file exists under the data directory
func (h *TestHelper) AssertFileExists(t *testing.T, relativePath string) {
	_, err := os.Stat(filepath.Join(h.DataDir, relativePath))
	assert.NoError(t, err, "File should exist: %s", relativePath)
}

// AssertFileNotExists checks that a path is absent under the data directory
func (h *TestHelper) AssertFileNotExists(t *testing.T, relativePath string) {
	_, err := os.Stat(filepath.Join(h.DataDir, relativePath))
	assert.True(t, os.IsNotExist(err), "File should not exist: %s", relativePath)
}

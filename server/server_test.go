package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tapedeck/config"
	"tapedeck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthEndpoint tests the basic health check endpoint
func TestHealthEndpoint(t *testing.T) {
	helper := NewTestHelper(t)

	var response map[string]interface{}
	resp := helper.GetJSON(t, "/health", &response)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "tapedeck", response["service"])

	resp = helper.GetJSON(t, "/api/status", &response)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, helper.App.Projects().DataDir(), response["data_dir"])
}

// TestProjectWorkflow walks the whole project lifecycle through the API
func TestProjectWorkflow(t *testing.T) {
	helper := NewTestHelper(t)

	var created map[string]string
	resp := helper.PostJSON(t, "/api/projects", map[string]string{"name": "demo", "description": "garage takes"}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Project created", created["message"])
	helper.AssertFileExists(t, "demo/audio")
	helper.AssertFileExists(t, "demo/notes.json")

	var list []types.ProjectSummary
	resp = helper.GetJSON(t, "/api/projects", &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []types.ProjectSummary{{Name: "demo", Description: "garage takes"}}, list)

	var uploaded map[string]interface{}
	resp = helper.Upload(t, "demo", "take 1.wav", []byte("RIFFdata"), &uploaded)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Uploaded", uploaded["message"])
	assert.Equal(t, "take 1.wav", uploaded["filename"])

	var noted struct {
		Message string     `json:"message"`
		Note    types.Note `json:"note"`
	}
	resp = helper.PostJSON(t, "/api/projects/demo/notes", map[string]string{"text": "louder drums", "author": "kim"}, &noted)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Note added", noted.Message)
	assert.Equal(t, "kim", noted.Note.Author)

	var detail types.ProjectDetail
	resp = helper.GetJSON(t, "/api/projects/demo", &detail)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "demo", detail.Name)
	assert.Equal(t, "garage takes", detail.Description)
	assert.Equal(t, []string{"take 1.wav"}, detail.Audio)
	require.Len(t, detail.Notes, 1)
	assert.Equal(t, "louder drums", detail.Notes[0].Text)
	assert.WithinDuration(t, time.Now(), detail.Notes[0].Timestamp, time.Minute)

	resp = helper.DoJSON(t, http.MethodPatch, "/api/projects/demo", map[string]string{"description": "final mix"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	helper.GetJSON(t, "/api/projects/demo", &detail)
	assert.Equal(t, "final mix", detail.Description)
	assert.Len(t, detail.Notes, 1)

	var tracks struct {
		Tracks []types.TrackInfo `json:"tracks"`
		Count  int               `json:"count"`
	}
	resp = helper.GetJSON(t, "/api/projects/demo/tracks", &tracks)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, tracks.Count)
	assert.Equal(t, "audio/wav", tracks.Tracks[0].ContentType)

	resp = helper.DoJSON(t, http.MethodDelete, "/api/projects/demo", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	helper.AssertFileNotExists(t, "demo")

	resp = helper.GetJSON(t, "/api/projects/demo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestCreateProjectErrors tests the 400 responses of project creation
func TestCreateProjectErrors(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")

	tests := []struct {
		name          string
		body          interface{}
		expectedError string
	}{
		{"missing name", map[string]string{"description": "x"}, "Project name required"},
		{"blank name", map[string]string{"name": "  "}, "Project name required"},
		{"already exists", map[string]string{"name": "demo"}, "Project already exists"},
		{"path traversal", map[string]string{"name": "../escape"}, "Invalid project name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var response map[string]string
			resp := helper.PostJSON(t, "/api/projects", tt.body, &response)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.expectedError, response["error"])
		})
	}

	helper.AssertFileNotExists(t, "../escape")
}

// TestNotFoundResponses tests the 404 responses across endpoints
func TestNotFoundResponses(t *testing.T) {
	helper := NewTestHelper(t)

	var response map[string]string
	resp := helper.GetJSON(t, "/api/projects/ghost", &response)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", response["error"])

	resp = helper.DoJSON(t, http.MethodDelete, "/api/projects/ghost", nil, &response)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = helper.PostJSON(t, "/api/projects/ghost/notes", map[string]string{"text": "hi"}, &response)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Project not found", response["error"])

	resp = helper.Upload(t, "ghost", "a.wav", []byte("x"), &response)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = helper.GetJSON(t, "/api/projects/ghost/tracks", &response)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = helper.MakeRequest(t, http.MethodGet, "/api/invalid", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestAddNoteValidation tests that missing note text is rejected before the project lookup
func TestAddNoteValidation(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")

	var response map[string]string
	resp := helper.PostJSON(t, "/api/projects/demo/notes", map[string]string{"text": ""}, &response)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Note text required", response["error"])

	resp = helper.PostJSON(t, "/api/projects/ghost/notes", map[string]string{}, &response)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestUploadErrors tests upload validation
func TestUploadErrors(t *testing.T) {
	helper := NewTestHelper(t, func(cfg *config.Config) {
		cfg.Server.MaxUploadMB = 1
	})
	helper.CreateProject(t, "demo", "")

	resp, err := http.Post(helper.Server.URL+"/api/projects/demo/upload", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "big.wav")
	require.NoError(t, err)
	_, err = part.Write(make([]byte, 2<<20))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/demo/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	helper.App.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	helper.AssertFileNotExists(t, "demo/audio/big.wav")

	var response map[string]string
	resp = helper.Upload(t, "demo", "..", []byte("x"), &response)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid filename", response["error"])
}

// TestUploadOverwrites tests that uploads keyed by the same filename replace each other
func TestUploadOverwrites(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")

	helper.Upload(t, "demo", "mix.mp3", []byte("one"), nil)
	helper.Upload(t, "demo", "mix.mp3", []byte("two"), nil)

	data, err := os.ReadFile(filepath.Join(helper.DataDir, "demo", "audio", "mix.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	var detail types.ProjectDetail
	helper.GetJSON(t, "/api/projects/demo", &detail)
	assert.Equal(t, []string{"mix.mp3"}, detail.Audio)
}

// TestStreamTrack tests serving uploaded audio, including range requests
func TestStreamTrack(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")
	content := []byte("0123456789abcdef")
	helper.Upload(t, "demo", "loop.flac", content, nil)

	resp := helper.MakeRequest(t, http.MethodGet, "/project-data/demo/audio/loop.flac", nil)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, content, body)
	assert.Equal(t, "audio/flac", resp.Header.Get("Content-Type"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))

	tests := []struct {
		rangeHeader  string
		status       int
		body         string
		contentRange string
	}{
		{"bytes=0-3", http.StatusPartialContent, "0123", "bytes 0-3/16"},
		{"bytes=10-", http.StatusPartialContent, "abcdef", "bytes 10-15/16"},
		{"bytes=-4", http.StatusPartialContent, "cdef", "bytes 12-15/16"},
		{"bytes=14-100", http.StatusPartialContent, "ef", "bytes 14-15/16"},
		{"bytes=20-30", http.StatusRequestedRangeNotSatisfiable, "", "bytes */16"},
		{"items=0-1", http.StatusRequestedRangeNotSatisfiable, "", "bytes */16"},
	}
	for _, tt := range tests {
		t.Run(tt.rangeHeader, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, helper.Server.URL+"/project-data/demo/audio/loop.flac", nil)
			require.NoError(t, err)
			req.Header.Set("Range", tt.rangeHeader)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.body, string(body))
			assert.Equal(t, tt.contentRange, resp.Header.Get("Content-Range"))
		})
	}

	resp = helper.MakeRequest(t, http.MethodGet, "/project-data/demo/audio/loop.flac?download=1", nil)
	resp.Body.Close()
	assert.Equal(t, `attachment; filename=loop.flac`, resp.Header.Get("Content-Disposition"))

	resp = helper.MakeRequest(t, http.MethodGet, "/project-data/demo/audio/missing.flac", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = helper.MakeRequest(t, http.MethodGet, "/project-data/demo/audio/..%2Fnotes.json", nil)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

// TestDeleteTrack tests removing a single audio file
func TestDeleteTrack(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")
	helper.Upload(t, "demo", "a.wav", []byte("x"), nil)

	resp := helper.DoJSON(t, http.MethodDelete, "/api/projects/demo/audio/a.wav", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	helper.AssertFileNotExists(t, "demo/audio/a.wav")

	resp = helper.DoJSON(t, http.MethodDelete, "/api/projects/demo/audio/a.wav", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestWebSocketEvents tests that API mutations are broadcast to subscribers
func TestWebSocketEvents(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")

	all := helper.ConnectWebSocket(t, "/api/ws/projects")
	demo := helper.ConnectWebSocket(t, "/api/ws/projects/demo")
	helper.WaitForSubscribers(t, 2)

	helper.Upload(t, "demo", "a.wav", []byte("x"), nil)
	helper.PostJSON(t, "/api/projects/demo/notes", map[string]string{"text": "nice"}, nil)
	helper.CreateProject(t, "other", "")

	read := func(conn interface {
		SetReadDeadline(time.Time) error
		ReadJSON(interface{}) error
	}) types.ProjectEvent {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event types.ProjectEvent
		require.NoError(t, conn.ReadJSON(&event))
		return event
	}

	event := read(demo)
	assert.Equal(t, types.EventTrackUploaded, event.Type)
	assert.Equal(t, "a.wav", event.Filename)
	event = read(demo)
	assert.Equal(t, types.EventNoteAdded, event.Type)
	require.NotNil(t, event.Note)
	assert.Equal(t, "nice", event.Note.Text)

	var seen []types.EventType
	for i := 0; i < 3; i++ {
		seen = append(seen, read(all).Type)
	}
	assert.Equal(t, []types.EventType{types.EventTrackUploaded, types.EventNoteAdded, types.EventProjectCreated}, seen)

	resp := helper.MakeRequest(t, http.MethodGet, "/api/ws/projects/ghost", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestStorageWatcherBroadcasts tests that files dropped into a project are announced
func TestStorageWatcherBroadcasts(t *testing.T) {
	helper := NewTestHelper(t, func(cfg *config.Config) {
		cfg.Storage.Watch = true
		cfg.Storage.WatchDebounce = 20
	})
	helper.CreateProject(t, "demo", "")

	conn := helper.ConnectWebSocket(t, "/api/ws/projects/demo")
	helper.WaitForSubscribers(t, 1)
	helper.WaitForWatch(t, "demo/audio")

	require.NoError(t, os.WriteFile(filepath.Join(helper.DataDir, "demo", "audio", "dropped.wav"), []byte("x"), 0644))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event types.ProjectEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, types.EventStorageChanged, event.Type)
	assert.Equal(t, "demo", event.Project)
}

// TestWatcherIgnoresAPIWrites tests that API changes are announced once,
// without a storage.changed echo from the watcher
func TestWatcherIgnoresAPIWrites(t *testing.T) {
	helper := NewTestHelper(t, func(cfg *config.Config) {
		cfg.Storage.Watch = true
		cfg.Storage.WatchDebounce = 20
	})
	helper.CreateProject(t, "demo", "")

	conn := helper.ConnectWebSocket(t, "/api/ws/projects/demo")
	helper.WaitForSubscribers(t, 1)
	helper.WaitForWatch(t, "demo/audio")

	resp := helper.PostJSON(t, "/api/projects/demo/notes", map[string]string{"text": "tighter"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = helper.Upload(t, "demo", "take.wav", []byte("RIFF"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []types.EventType
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event types.ProjectEvent
		require.NoError(t, conn.ReadJSON(&event))
		got = append(got, event.Type)
	}
	assert.Equal(t, []types.EventType{types.EventNoteAdded, types.EventTrackUploaded}, got)

	// several debounce windows pass without anything else arriving
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var extra types.ProjectEvent
	assert.Error(t, conn.ReadJSON(&extra), "unexpected event %+v", extra)
}

// TestMetricsEndpoint tests the Prometheus exposition
func TestMetricsEndpoint(t *testing.T) {
	helper := NewTestHelper(t)
	helper.CreateProject(t, "demo", "")
	helper.Upload(t, "demo", "a.wav", []byte("12345"), nil)

	resp := helper.MakeRequest(t, http.MethodGet, "/metrics", nil)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body), "tapedeck_uploads_total 1")
	assert.Contains(t, string(body), "tapedeck_upload_bytes_total 5")
	assert.Contains(t, string(body), `route="/api/projects/:name/upload"`)
}

// TestWebClient tests that the embedded browser client is served
func TestWebClient(t *testing.T) {
	helper := NewTestHelper(t)

	for path, contentType := range map[string]string{
		"/":          "text/html",
		"/app.js":    "javascript",
		"/style.css": "text/css",
	} {
		resp := helper.MakeRequest(t, http.MethodGet, path, nil)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, resp.Header.Get("Content-Type"), contentType, path)
		assert.NotEmpty(t, body, path)
	}
}

// TestRunShutsDownOnCancel tests the listen/shutdown lifecycle
func TestRunShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := config.Default()
	cfg.Server.GinMode = "test"
	cfg.Server.Port = port
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.Watch = false

	app, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

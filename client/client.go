// Package client talks to a tapedeck server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tapedeck/types"
)

// APIError is a non-2xx response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// UploadResult is the server's answer to an upload
type UploadResult struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// Client is a tapedeck API client
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL. A nil httpClient uses
// http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
}

func projectPath(name string, rest ...string) string {
	parts := append([]string{"/api/projects", url.PathEscape(name)}, rest...)
	return strings.Join(parts, "/")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx JSON body into target when non-nil
func (c *Client) do(req *http.Request, target interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

func (c *Client) call(ctx context.Context, method, path string, body, target interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

// List returns every project
func (c *Client) List(ctx context.Context) ([]types.ProjectSummary, error) {
	var projects []types.ProjectSummary
	if err := c.call(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Create creates a project
func (c *Client) Create(ctx context.Context, name, description string) error {
	return c.call(ctx, http.MethodPost, "/api/projects", types.CreateProjectRequest{
		Name:        name,
		Description: description,
	}, nil)
}

// Get returns a project's description, audio files and notes
func (c *Client) Get(ctx context.Context, name string) (*types.ProjectDetail, error) {
	var detail types.ProjectDetail
	if err := c.call(ctx, http.MethodGet, projectPath(name), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateDescription replaces a project's description
func (c *Client) UpdateDescription(ctx context.Context, name, description string) error {
	return c.call(ctx, http.MethodPatch, projectPath(name), types.UpdateProjectRequest{
		Description: &description,
	}, nil)
}

// Delete removes a project and all of its files
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.call(ctx, http.MethodDelete, projectPath(name), nil, nil)
}

// Tracks returns inspected metadata for a project's audio files
func (c *Client) Tracks(ctx context.Context, name string) ([]types.TrackInfo, error) {
	var resp struct {
		Tracks []types.TrackInfo `json:"tracks"`
	}
	if err := c.call(ctx, http.MethodGet, projectPath(name, "tracks"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks, nil
}

// AddNote appends a note to a project
func (c *Client) AddNote(ctx context.Context, name, text, author string) (*types.Note, error) {
	var resp struct {
		Note types.Note `json:"note"`
	}
	err := c.call(ctx, http.MethodPost, projectPath(name, "notes"), types.AddNoteRequest{
		Text:   text,
		Author: author,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Note, nil
}

// Upload streams the file at path into the project. Bytes read from the file
// are mirrored to progress when it is non-nil.
func (c *Client) Upload(ctx context.Context, name, path string, progress io.Writer) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var src io.Reader = file
	if progress != nil {
		src = io.TeeReader(file, progress)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+projectPath(name, "upload"), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

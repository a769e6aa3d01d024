package types

import "time"

// ProjectSummary is the list view of a project
type ProjectSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProjectDetail is the full view of a project
type ProjectDetail struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Audio       []string `json:"audio"`
	Notes       []Note   `json:"notes"`
}

// Note is a single timestamped project note
type Note struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata is the on-disk shape of a project's notes.json sidecar
type Metadata struct {
	Description string     `json:"description"`
	Notes       []Note     `json:"notes"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

// CreateProjectRequest is the body of POST /api/projects
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateProjectRequest is the body of PATCH /api/projects/:name
type UpdateProjectRequest struct {
	Description *string `json:"description"`
}

// AddNoteRequest is the body of POST /api/projects/:name/notes
type AddNoteRequest struct {
	Text   string `json:"text"`
	Author string `json:"author,omitempty"`
}

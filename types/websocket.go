package types

import "time"

// EventType identifies what changed in a project
type EventType string

const (
	EventProjectCreated EventType = "project.created"
	EventProjectUpdated EventType = "project.updated"
	EventProjectDeleted EventType = "project.deleted"
	EventTrackUploaded  EventType = "track.uploaded"
	EventTrackDeleted   EventType = "track.deleted"
	EventNoteAdded      EventType = "note.added"
	EventStorageChanged EventType = "storage.changed"
)

// ProjectEvent represents a WebSocket project change message
type ProjectEvent struct {
	Type      EventType `json:"type"`
	Project   string    `json:"project"`
	Filename  string    `json:"filename,omitempty"` // set for track events
	Note      *Note     `json:"note,omitempty"`     // set for note.added
	Timestamp time.Time `json:"timestamp"`
}

package services

import "errors"

var (
	// ErrNameRequired is returned when a project name is empty
	ErrNameRequired = errors.New("project name required")
	// ErrInvalidName is returned for names that cannot be a single directory
	ErrInvalidName = errors.New("invalid project name")
	// ErrProjectExists is returned when creating a project that already exists
	ErrProjectExists = errors.New("project already exists")
	// ErrProjectNotFound is returned when a project directory or sidecar is missing
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidFilename is returned for upload names that do not reduce to a plain file name
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrTrackNotFound is returned when an audio file is missing
	ErrTrackNotFound = errors.New("track not found")
	// ErrNoteTextRequired is returned when a note has no text
	ErrNoteTextRequired = errors.New("note text required")
)

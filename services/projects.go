package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tapedeck/types"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	audioDirName = "audio"
	metadataName = "notes.json"
	lockName     = ".notes.lock"
)

// ProjectService interface defines the project storage operations
type ProjectService interface {
	List(ctx context.Context) ([]types.ProjectSummary, error)
	Create(ctx context.Context, name, description string) error
	Get(ctx context.Context, name string) (*types.ProjectDetail, error)
	UpdateDescription(ctx context.Context, name, description string) error
	Delete(ctx context.Context, name string) error
	SaveTrack(ctx context.Context, name, filename string, r io.Reader) (string, int64, error)
	DeleteTrack(ctx context.Context, name, filename string) error
	ListTracks(ctx context.Context, name string) ([]types.TrackInfo, error)
	AddNote(ctx context.Context, name, text, author string) (*types.Note, error)
	TrackPath(name, filename string) (string, error)
	DataDir() string
	Writes() *WriteLog
}

// projectService stores each project as a directory holding an audio/ folder
// and a notes.json sidecar
type projectService struct {
	dataDir   string
	inspector TrackInspector
	logger    *zap.Logger
	now       func() time.Time
	writes    *WriteLog

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProjectService creates the data directory if needed and returns a
// service rooted there
func NewProjectService(dataDir string, inspector TrackInspector, logger *zap.Logger) (ProjectService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if inspector == nil {
		inspector = NewTrackInspector(logger)
	}

	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return &projectService{
		dataDir:   abs,
		inspector: inspector,
		logger:    logger,
		now:       time.Now,
		writes:    NewWriteLog(DefaultWriteTTL),
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (ps *projectService) DataDir() string {
	return ps.dataDir
}

// Writes returns the log of paths this service changed recently
func (ps *projectService) Writes() *WriteLog {
	return ps.writes
}

// touching marks paths as written while a change runs; call the returned
// func when it is done so the marks outlive the change
func (ps *projectService) touching(paths ...string) func() {
	ps.writes.Mark(paths...)
	return func() { ps.writes.Mark(paths...) }
}

// ValidateName reports whether name can be used as a single project directory
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidName
	}
	return nil
}

// cleanFilename reduces an uploaded file name to its final path element
func cleanFilename(filename string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "" || base == "." || base == "/" || strings.HasPrefix(base, ".") ||
		strings.ContainsRune(base, 0) {
		return "", ErrInvalidFilename
	}
	return base, nil
}

func (ps *projectService) projectDir(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(ps.dataDir, name), nil
}

// existingProjectDir returns the project directory or ErrProjectNotFound
func (ps *projectService) existingProjectDir(name string) (string, error) {
	dir, err := ps.projectDir(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", ErrProjectNotFound
	}
	return dir, nil
}

// List returns every project directory with the description from its sidecar
func (ps *projectService) List(ctx context.Context) ([]types.ProjectSummary, error) {
	entries, err := os.ReadDir(ps.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	projects := make([]types.ProjectSummary, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		summary := types.ProjectSummary{Name: entry.Name()}
		meta, err := readMetadata(filepath.Join(ps.dataDir, entry.Name()))
		if err != nil {
			// A missing or unreadable sidecar still lists the project
			if !errors.Is(err, fs.ErrNotExist) {
				ps.logger.Warn("ignoring unreadable metadata", zap.String("project", entry.Name()), zap.Error(err))
			}
		} else {
			summary.Description = meta.Description
		}
		projects = append(projects, summary)
	}

	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// Create makes the project directory, its audio folder and an empty sidecar
func (ps *projectService) Create(ctx context.Context, name, description string) error {
	name = strings.TrimSpace(name)
	dir, err := ps.projectDir(name)
	if err != nil {
		return err
	}

	lock := ps.projectLock(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(dir); err == nil {
		return ErrProjectExists
	}
	defer ps.touching(dir, filepath.Join(dir, audioDirName), filepath.Join(dir, metadataName))()

	if err := os.MkdirAll(filepath.Join(dir, audioDirName), 0755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}

	created := ps.now().UTC()
	meta := &types.Metadata{
		Description: description,
		Notes:       []types.Note{},
		CreatedAt:   &created,
	}
	if err := writeMetadata(dir, meta); err != nil {
		_ = os.RemoveAll(dir)
		return err
	}

	ps.logger.Info("project created", zap.String("project", name))
	return nil
}

// Get returns the project's description, audio file names and notes
func (ps *projectService) Get(ctx context.Context, name string) (*types.ProjectDetail, error) {
	dir, err := ps.existingProjectDir(name)
	if err != nil {
		return nil, err
	}

	audio, err := listAudio(filepath.Join(dir, audioDirName))
	if err != nil {
		return nil, err
	}

	detail := &types.ProjectDetail{
		Name:  name,
		Audio: audio,
		Notes: []types.Note{},
	}

	meta, err := readMetadata(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		detail.Description = meta.Description
		if meta.Notes != nil {
			detail.Notes = meta.Notes
		}
	}

	return detail, nil
}

// UpdateDescription replaces the project description, keeping its notes
func (ps *projectService) UpdateDescription(ctx context.Context, name, description string) error {
	dir, err := ps.existingProjectDir(name)
	if err != nil {
		return err
	}

	return ps.withMetadata(ctx, name, dir, func(meta *types.Metadata) error {
		meta.Description = description
		return nil
	})
}

// Delete removes the project directory recursively
func (ps *projectService) Delete(ctx context.Context, name string) error {
	dir, err := ps.existingProjectDir(name)
	if err != nil {
		return err
	}

	lock := ps.projectLock(name)
	lock.Lock()
	defer lock.Unlock()

	ps.writes.MarkTree(dir)
	defer ps.writes.MarkTree(dir)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove project: %w", err)
	}

	ps.logger.Info("project deleted", zap.String("project", name))
	return nil
}

// SaveTrack stores r as audio/<filename>, replacing any file of the same name
func (ps *projectService) SaveTrack(ctx context.Context, name, filename string, r io.Reader) (string, int64, error) {
	dir, err := ps.existingProjectDir(name)
	if err != nil {
		return "", 0, err
	}
	clean, err := cleanFilename(filename)
	if err != nil {
		return "", 0, err
	}

	audioDir := filepath.Join(dir, audioDirName)
	defer ps.touching(audioDir, filepath.Join(audioDir, clean))()
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		return "", 0, fmt.Errorf("create audio directory: %w", err)
	}

	tmp, err := os.CreateTemp(audioDir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write %s: %w", clean, err)
	}

	if err := os.Rename(tmpName, filepath.Join(audioDir, clean)); err != nil {
		return "", 0, fmt.Errorf("store %s: %w", clean, err)
	}

	ps.logger.Info("track stored",
		zap.String("project", name),
		zap.String("filename", clean),
		zap.Int64("bytes", written))
	return clean, written, nil
}

// DeleteTrack removes a single audio file
func (ps *projectService) DeleteTrack(ctx context.Context, name, filename string) error {
	path, err := ps.TrackPath(name, filename)
	if err != nil {
		return err
	}
	defer ps.touching(path)()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrTrackNotFound
		}
		return fmt.Errorf("remove track: %w", err)
	}
	return nil
}

// ListTracks inspects every audio file in the project
func (ps *projectService) ListTracks(ctx context.Context, name string) ([]types.TrackInfo, error) {
	dir, err := ps.existingProjectDir(name)
	if err != nil {
		return nil, err
	}

	audioDir := filepath.Join(dir, audioDirName)
	names, err := listAudio(audioDir)
	if err != nil {
		return nil, err
	}

	tracks := make([]types.TrackInfo, 0, len(names))
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tracks = append(tracks, ps.inspector.Inspect(filepath.Join(audioDir, n)))
	}
	return tracks, nil
}

// AddNote appends a timestamped note to the project sidecar
func (ps *projectService) AddNote(ctx context.Context, name, text, author string) (*types.Note, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoteTextRequired
	}
	dir, err := ps.projectDir(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, metadataName)); err != nil {
		return nil, ErrProjectNotFound
	}

	note := types.Note{
		ID:        uuid.New().String(),
		Text:      text,
		Author:    strings.TrimSpace(author),
		Timestamp: ps.now().UTC(),
	}

	err = ps.withMetadata(ctx, name, dir, func(meta *types.Metadata) error {
		meta.Notes = append(meta.Notes, note)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// TrackPath resolves an audio file path and ensures it stays inside the project
func (ps *projectService) TrackPath(name, filename string) (string, error) {
	dir, err := ps.existingProjectDir(name)
	if err != nil {
		return "", err
	}
	if filename != filepath.Base(filename) {
		return "", ErrInvalidFilename
	}
	clean, err := cleanFilename(filename)
	if err != nil {
		return "", err
	}

	audioDir := filepath.Join(dir, audioDirName)
	full := filepath.Join(audioDir, clean)
	rel, err := filepath.Rel(audioDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidFilename
	}
	return full, nil
}

// projectLock returns the in-process mutex guarding a project's sidecar
func (ps *projectService) projectLock(name string) *sync.Mutex {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	lock, ok := ps.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		ps.locks[name] = lock
	}
	return lock
}

// withMetadata runs a read-modify-write of the sidecar under both the
// in-process mutex and a file lock shared with other processes
func (ps *projectService) withMetadata(ctx context.Context, name, dir string, fn func(*types.Metadata) error) error {
	lock := ps.projectLock(name)
	lock.Lock()
	defer lock.Unlock()

	fileLock := flock.New(filepath.Join(dir, lockName))
	ok, err := fileLock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock metadata: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock metadata: %w", ctx.Err())
	}
	defer ps.touching(filepath.Join(dir, metadataName))()
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			ps.logger.Warn("failed to release metadata lock", zap.String("project", name), zap.Error(err))
		}
	}()

	meta, err := readMetadata(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrProjectNotFound
		}
		return err
	}
	if meta.Notes == nil {
		meta.Notes = []types.Note{}
	}

	if err := fn(meta); err != nil {
		return err
	}
	return writeMetadata(dir, meta)
}

func readMetadata(dir string) (*types.Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataName))
	if err != nil {
		return nil, err
	}

	var meta types.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metadataName, err)
	}
	return &meta, nil
}

// writeMetadata replaces the sidecar atomically
func writeMetadata(dir string, meta *types.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".notes-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmpName, filepath.Join(dir, metadataName))
}

// listAudio returns the visible file names in an audio directory, sorted
func listAudio(audioDir string) ([]string, error) {
	entries, err := os.ReadDir(audioDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read audio directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// contextReader stops a copy once the request context is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tapedeck/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []types.ProjectEvent
}

func (r *recordingPublisher) Publish(event types.ProjectEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) projects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Project)
	}
	return out
}

func TestStorageWatcherReportsExternalChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, dir := newTestService(t)
	require.NoError(t, svc.Create(context.Background(), "demo", ""))

	pub := &recordingPublisher{}
	w, err := NewStorageWatcher(dir, 100*time.Millisecond, pub, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// several writes inside one window coalesce into one event
	for _, name := range []string{"a.wav", "b.wav", "c.wav"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "demo", "audio", name), []byte("x"), 0644))
	}

	require.Eventually(t, func() bool {
		return len(pub.projects()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, []string{"demo"}, pub.projects())

	pub.mu.Lock()
	assert.Equal(t, types.EventStorageChanged, pub.events[0].Type)
	pub.mu.Unlock()
}

func TestStorageWatcherFollowsNewProjects(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	pub := &recordingPublisher{}
	w, err := NewStorageWatcher(dir, 20*time.Millisecond, pub, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "fresh"), 0755))
	require.Eventually(t, func() bool {
		return len(pub.projects()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// the new project folder is watched, so files inside it are reported too
	require.NoError(t, os.Mkdir(filepath.Join(dir, "fresh", "audio"), 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh", "audio", "a.wav"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		return len(pub.projects()) >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStorageWatcherIgnoresHiddenFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	pub := &recordingPublisher{}
	w, err := NewStorageWatcher(dir, 20*time.Millisecond, pub, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp"), []byte("x"), 0644))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, w.Stop())
	assert.Empty(t, pub.projects())
}

func TestStorageWatcherRequiresPublisher(t *testing.T) {
	_, err := NewStorageWatcher(t.TempDir(), 0, nil, nil, nil)
	assert.Error(t, err)
}

func TestStorageWatcherSkipsLoggedWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	svc, dir := newTestService(t)
	require.NoError(t, svc.Create(context.Background(), "demo", ""))
	require.NoError(t, svc.Create(context.Background(), "other", ""))

	pub := &recordingPublisher{}
	w, err := NewStorageWatcher(dir, 20*time.Millisecond, pub, svc.Writes(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	_, err = svc.AddNote(ctx, "demo", "from the api", "")
	require.NoError(t, err)
	_, _, err = svc.SaveTrack(ctx, "demo", "take.wav", strings.NewReader("RIFF"))
	require.NoError(t, err)

	// a hand-made change next to logged ones is still reported
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other", "audio", "dropped.wav"), []byte("x"), 0644))

	require.Eventually(t, func() bool {
		return len(pub.projects()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"other"}, pub.projects())
}

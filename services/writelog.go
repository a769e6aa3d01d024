package services

import (
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultWriteTTL is how long a path written through the API stays marked
const DefaultWriteTTL = time.Second

type writeMark struct {
	until time.Time
	tree  bool
}

// WriteLog remembers paths the project service changed recently so the
// storage watcher can tell API writes apart from changes made by hand.
// A nil WriteLog marks nothing and covers nothing.
type WriteLog struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	marks map[string]writeMark
}

// NewWriteLog creates a log whose marks expire after ttl
func NewWriteLog(ttl time.Duration) *WriteLog {
	if ttl <= 0 {
		ttl = DefaultWriteTTL
	}
	return &WriteLog{
		ttl:   ttl,
		now:   time.Now,
		marks: make(map[string]writeMark),
	}
}

// Mark records exact paths
func (l *WriteLog) Mark(paths ...string) {
	l.mark(false, paths)
}

// MarkTree records a directory and everything below it
func (l *WriteLog) MarkTree(dir string) {
	l.mark(true, []string{dir})
}

func (l *WriteLog) mark(tree bool, paths []string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for p, m := range l.marks {
		if now.After(m.until) {
			delete(l.marks, p)
		}
	}
	for _, p := range paths {
		p = filepath.Clean(p)
		m := writeMark{until: now.Add(l.ttl), tree: tree}
		if prev, ok := l.marks[p]; ok && prev.tree {
			m.tree = true
		}
		l.marks[p] = m
	}
}

// Covers reports whether path, or a tree containing it, was marked within the TTL
func (l *WriteLog) Covers(path string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	path = filepath.Clean(path)
	for p, m := range l.marks {
		if now.After(m.until) {
			continue
		}
		if p == path {
			return true
		}
		if m.tree && strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

package tempfiles

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Manager tracks ephemeral files and guarantees best-effort removal.
// Every creation site pairs with a Release; removal failures are logged
// and never propagated so they cannot mask the primary error.
type Manager struct {
	dir     string
	mu      sync.Mutex
	tracked map[string]struct{}
}

// NewManager creates a manager rooted at dir, creating dir if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory %s: %w", dir, err)
	}
	return &Manager{
		dir:     dir,
		tracked: make(map[string]struct{}),
	}, nil
}

// Dir returns the directory new temp files are placed in.
func (m *Manager) Dir() string {
	return m.dir
}

// NewPath reserves a unique path under the temp directory with the given
// extension (without dot) and registers it for cleanup. The file itself is
// created by the caller.
func (m *Manager) NewPath(ext string) string {
	name := uuid.New().String()
	if ext != "" {
		name += "." + ext
	}
	path := filepath.Join(m.dir, name)
	m.Track(path)
	return path
}

// Track registers a path for cleanup. Tracking the same path twice is a no-op.
func (m *Manager) Track(path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	m.tracked[path] = struct{}{}
	m.mu.Unlock()
}

// Release removes the file if present and unregisters it. Releasing a path
// that was never tracked, or was already released, is not an error.
func (m *Manager) Release(path string) {
	if path == "" {
		return
	}
	m.mu.Lock()
	delete(m.tracked, path)
	m.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", path, err)
	}
}

// Tracked reports whether path is currently registered.
func (m *Manager) Tracked(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[path]
	return ok
}

// Scope groups the temp files of one unit of work so a single deferred
// Close releases them all on every exit path.
type Scope struct {
	m     *Manager
	mu    sync.Mutex
	paths []string
}

// NewScope opens a cleanup scope backed by the manager.
func (m *Manager) NewScope() *Scope {
	return &Scope{m: m}
}

// NewPath reserves a fresh temp path owned by this scope.
func (s *Scope) NewPath(ext string) string {
	path := s.m.NewPath(ext)
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	return path
}

// Track transfers ownership of an existing path into this scope.
func (s *Scope) Track(path string) {
	if path == "" {
		return
	}
	s.m.Track(path)
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// Close releases every path owned by the scope, newest first. Idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for i := len(paths) - 1; i >= 0; i-- {
		s.m.Release(paths[i])
	}
}

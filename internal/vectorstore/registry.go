package vectorstore

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry caches one SessionIndex per session_id so repeated probe/query
// calls within a turn don't reopen the file. Thread-safe, following the
// teacher's embeddings/vectorstore registry pattern.
type Registry struct {
	mu      sync.Mutex
	root    string // shared/session_vectors
	indices map[string]*SessionIndex
}

// NewRegistry creates a registry rooted at the shared session_vectors dir.
func NewRegistry(root string) *Registry {
	return &Registry{root: root, indices: make(map[string]*SessionIndex)}
}

// Get returns the (possibly newly opened) index for sessionID.
func (r *Registry) Get(sessionID string) (*SessionIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.indices[sessionID]; ok {
		return idx, nil
	}
	path := filepath.Join(r.root, sessionID+".json")
	idx, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index for session %s: %w", sessionID, err)
	}
	r.indices[sessionID] = idx
	log.Debug().Str("session_id", sessionID).Str("path", path).Msg("session vector index opened")
	return idx, nil
}

// Evict drops a session's index from the in-memory cache (e.g. on session
// deletion); the on-disk file is left untouched.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indices, sessionID)
}

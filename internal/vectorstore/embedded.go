// Package vectorstore implements the small embedded vector library
// described in spec §9: "{open(path), add(id, vec, meta), query(vec,
// top_k)}" — a flat brute-force cosine store, one per session, acceptable
// at current scale. Adapted from the teacher's
// internal/vectorstore/embedded.go, narrowed from a multi-kitchen store to
// one index per session file.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/synapsefold/cognition-core/pkg/contracts"
)

// SessionIndex is a flat in-memory cosine vector index for one session,
// persisted to a single JSON file under session_vectors/<session_id>.json
// (spec §6.4). Implements contracts.VectorIndex.
type SessionIndex struct {
	mu   sync.RWMutex
	path string
	docs map[string]entry
}

type entry struct {
	Vector []float64         `json:"vector"`
	Meta   map[string]string `json:"meta"`
}

type onDiskFormat struct {
	Docs map[string]entry `json:"docs"`
}

// Open loads (or creates) the session's vector index file.
func Open(path string) (*SessionIndex, error) {
	idx := &SessionIndex{path: path, docs: make(map[string]entry)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("open session index %s: %w", path, err)
	}
	var disk onDiskFormat
	if err := json.Unmarshal(raw, &disk); err != nil {
		return nil, fmt.Errorf("parse session index %s: %w", path, err)
	}
	if disk.Docs != nil {
		idx.docs = disk.Docs
	}
	return idx, nil
}

// Add inserts or overwrites a vector under id and persists to disk.
func (idx *SessionIndex) Add(_ context.Context, id string, vec []float64, meta map[string]string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs[id] = entry{Vector: vec, Meta: meta}
	return idx.flushLocked()
}

// Query returns the topK nearest vectors by cosine similarity.
func (idx *SessionIndex) Query(_ context.Context, vec []float64, topK int) ([]contracts.VectorHit, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		id    string
		score float64
		meta  map[string]string
	}
	candidates := make([]scored, 0, len(idx.docs))
	for id, e := range idx.docs {
		if len(e.Vector) != len(vec) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: cosineSimilarity(vec, e.Vector), meta: e.Meta})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]contracts.VectorHit, topK)
	for i := 0; i < topK; i++ {
		out[i] = contracts.VectorHit{ID: candidates[i].id, Score: candidates[i].score, Meta: candidates[i].meta}
	}
	return out, nil
}

// Count returns the number of vectors currently indexed.
func (idx *SessionIndex) Count(_ context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs), nil
}

func (idx *SessionIndex) flushLocked() error {
	if idx.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(idx.path), 0o755); err != nil {
		return fmt.Errorf("mkdir session index dir: %w", err)
	}
	raw, err := json.Marshal(onDiskFormat{Docs: idx.docs})
	if err != nil {
		return fmt.Errorf("marshal session index: %w", err)
	}
	tmp := idx.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write session index: %w", err)
	}
	if err := os.Rename(tmp, idx.path); err != nil {
		return fmt.Errorf("rename session index: %w", err)
	}
	return nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

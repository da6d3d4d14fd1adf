package service

import (
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Hit is a nearest-neighbor match from the vector index
type Hit struct {
	ID    uuid.UUID
	Score float64
	// Rank is the 0-based position in the vector-similarity ordering,
	// kept so rerank ties can fall back to it
	Rank int
}

// indexSnapshot is the gob-persisted form of the index
type indexSnapshot struct {
	IDs       []uuid.UUID
	Vectors   [][]float64
	Dimension int
}

// IndexManager maintains the in-memory similarity index and its on-disk
// snapshot. The index is a derived cache: it can always be rebuilt from the
// knowledge_chunks table. Reads run concurrently; mutations are serialized
// by a single-writer lock, and a full rebuild replaces the snapshot file
// atomically so an in-flight query never observes a half-written index.
type IndexManager struct {
	path string

	// writer is a one-slot semaphore: inserts block on it (bounded by the
	// job context), rebuilds try it and reject with IndexBusyError
	writer chan struct{}

	mu        sync.RWMutex
	ids       []uuid.UUID
	vectors   [][]float64
	dimension int
}

// NewIndexManager creates an index persisted at path and loads any
// existing snapshot. A missing snapshot is not an error; the index simply
// starts empty.
func NewIndexManager(path string, dimension int) (*IndexManager, error) {
	m := &IndexManager{
		path:      path,
		writer:    make(chan struct{}, 1),
		dimension: dimension,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of indexed vectors
func (m *IndexManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimension returns the fixed vector dimensionality
func (m *IndexManager) Dimension() int { return m.dimension }

// Insert adds vectors to the index and persists a fresh snapshot. It blocks
// until the mutation lock is free or ctx is done.
func (m *IndexManager) Insert(ctx context.Context, ids []uuid.UUID, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	select {
	case m.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.writer }()

	for i, v := range vectors {
		if len(v) != m.dimension {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), m.dimension)
		}
	}

	m.mu.Lock()
	m.ids = append(m.ids, ids...)
	m.vectors = append(m.vectors, vectors...)
	m.mu.Unlock()

	return m.save()
}

// Rebuild replaces the entire index. A rebuild while another mutation is in
// flight is rejected with IndexBusyError; the caller can retry.
func (m *IndexManager) Rebuild(ctx context.Context, ids []uuid.UUID, vectors [][]float64) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	select {
	case m.writer <- struct{}{}:
	default:
		return &IndexBusyError{Operation: "rebuild"}
	}
	defer func() { <-m.writer }()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	for i, v := range vectors {
		if len(v) != m.dimension {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), m.dimension)
		}
	}

	// write the new snapshot before swapping memory, so queries keep being
	// served from the previous consistent state until the swap
	if err := writeSnapshot(m.path, indexSnapshot{IDs: ids, Vectors: vectors, Dimension: m.dimension}); err != nil {
		return err
	}

	m.mu.Lock()
	m.ids = ids
	m.vectors = vectors
	m.mu.Unlock()

	log.Printf("vector index rebuilt with %d entries", len(ids))
	return nil
}

// RemoveByID drops entries for the given chunk ids (used when a law source
// is deleted or re-indexed) and persists the result.
func (m *IndexManager) RemoveByID(ctx context.Context, remove map[uuid.UUID]bool) error {
	select {
	case m.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.writer }()

	m.mu.Lock()
	ids := m.ids[:0]
	vectors := m.vectors[:0]
	for i, id := range m.ids {
		if remove[id] {
			continue
		}
		ids = append(ids, id)
		vectors = append(vectors, m.vectors[i])
	}
	m.ids = ids
	m.vectors = vectors
	m.mu.Unlock()

	return m.save()
}

// Search returns the k nearest neighbors by dot product (vectors are
// L2-normalized, so this is cosine similarity). An empty index returns an
// empty result, not an error.
func (m *IndexManager) Search(vector []float64, k int) []Hit {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.ids) == 0 || len(vector) != m.dimension || k <= 0 {
		return nil
	}

	hits := make([]Hit, len(m.ids))
	for i := range m.vectors {
		hits[i] = Hit{ID: m.ids[i], Score: dot(m.vectors[i], vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	hits = hits[:k]
	for i := range hits {
		hits[i].Rank = i
	}
	return hits
}

func (m *IndexManager) save() error {
	m.mu.RLock()
	snap := indexSnapshot{IDs: m.ids, Vectors: m.vectors, Dimension: m.dimension}
	m.mu.RUnlock()
	return writeSnapshot(m.path, snap)
}

// writeSnapshot writes to a temp file in the same directory and renames it
// over the target, so readers never see a partially-written index file
func writeSnapshot(path string, snap indexSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index temp file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode index snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close index temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to swap index snapshot: %w", err)
	}
	return nil
}

func (m *IndexManager) load() error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open index snapshot: %w", err)
	}
	defer f.Close()

	var snap indexSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index snapshot: %w", err)
	}
	if snap.Dimension != m.dimension {
		log.Printf("index snapshot dimension %d does not match configured %d, starting empty", snap.Dimension, m.dimension)
		return nil
	}
	m.ids = snap.IDs
	m.vectors = snap.Vectors
	return nil
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

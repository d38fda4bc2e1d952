package store

import (
	"sort"
	"sync"
)

// Batch buffers file batches produced by concurrent workers until they are
// committed together with CommitBatch.
type Batch struct {
	mu    sync.Mutex
	files []*FileBatch
}

// NewBatch returns an empty Batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Add buffers fb. Safe for concurrent use.
func (b *Batch) Add(fb *FileBatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files = append(b.files, fb)
}

// Len returns the number of buffered files.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}

// Files returns the buffered batches ordered by path, so that commits do not
// depend on worker scheduling.
func (b *Batch) Files() []*FileBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*FileBatch, len(b.files))
	copy(out, b.files)
	sort.Slice(out, func(i, j int) bool { return out[i].File.Path < out[j].File.Path })
	return out
}

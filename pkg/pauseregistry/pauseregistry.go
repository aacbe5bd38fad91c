// Package pauseregistry tracks which indexes currently have writes paused.
package pauseregistry

import "sync"

// PausedIndexes is a concurrent set of paused index names. It is written
// rarely and read on every request, which is exactly sync.Map's sweet spot.
type PausedIndexes struct {
	inner sync.Map
}

// New returns an empty registry.
func New() *PausedIndexes {
	return &PausedIndexes{}
}

// Pause marks indexName as paused. Idempotent.
func (p *PausedIndexes) Pause(indexName string) {
	p.inner.Store(indexName, struct{}{})
}

// Resume clears the paused flag for indexName. Idempotent.
func (p *PausedIndexes) Resume(indexName string) {
	p.inner.Delete(indexName)
}

// IsPaused reports whether indexName is currently paused.
func (p *PausedIndexes) IsPaused(indexName string) bool {
	_, ok := p.inner.Load(indexName)
	return ok
}

// Count returns the number of currently paused indexes, for the
// flapjack_paused_indexes gauge.
func (p *PausedIndexes) Count() int {
	n := 0
	p.inner.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

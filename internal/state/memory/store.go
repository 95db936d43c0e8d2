// Package memory keeps watch records in-process for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

// Store is an in-memory StateStore. Load and Save copy the mapping.
type Store struct {
	mu    sync.RWMutex
	state monitor.State
	saves int
}

// New creates a store seeded with initial (which may be nil).
func New(initial monitor.State) *Store {
	if initial == nil {
		initial = monitor.State{}
	}
	return &Store{state: initial.Clone()}
}

// Load returns a copy of the stored mapping.
func (s *Store) Load(ctx context.Context) (monitor.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Save replaces the stored mapping.
func (s *Store) Save(ctx context.Context, st monitor.State) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

package testkit

import (
	"context"
	"sort"
	"sync"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/domain/run"
	"ceasim/ports"
)

// InMemoryCheckpointStore is a checkpoint store for tests and single-process
// runs without a database.
type InMemoryCheckpointStore struct {
	mu        sync.Mutex
	manifests map[core.RunID]*run.Manifest
	draws     map[core.RunID]map[int]model.SimulationDraw
}

// NewInMemoryCheckpointStore creates an empty store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{
		manifests: make(map[core.RunID]*run.Manifest),
		draws:     make(map[core.RunID]map[int]model.SimulationDraw),
	}
}

var _ ports.CheckpointStore = (*InMemoryCheckpointStore)(nil)

// SaveManifest records the run manifest.
func (s *InMemoryCheckpointStore) SaveManifest(_ context.Context, manifest *run.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.manifests[manifest.RunID]; !exists {
		copied := *manifest
		s.manifests[manifest.RunID] = &copied
	}
	return nil
}

// LoadManifest returns the stored manifest or core.ErrCheckpointNotFound.
func (s *InMemoryCheckpointStore) LoadManifest(_ context.Context, runID core.RunID) (*run.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.manifests[runID]
	if !ok {
		return nil, core.ErrCheckpointNotFound
	}
	copied := *m
	return &copied, nil
}

// AppendDraws persists a batch, rejecting iterations already stored.
func (s *InMemoryCheckpointStore) AppendDraws(_ context.Context, runID core.RunID, draws []model.SimulationDraw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.draws[runID]
	if !ok {
		stored = make(map[int]model.SimulationDraw)
		s.draws[runID] = stored
	}
	for _, d := range draws {
		if _, exists := stored[d.Iteration]; exists {
			return core.NewResumeConflictError(runID.String(), d.Iteration)
		}
		stored[d.Iteration] = d
	}
	return nil
}

// LoadDraws returns all stored draws in iteration order.
func (s *InMemoryCheckpointStore) LoadDraws(_ context.Context, runID core.RunID) ([]model.SimulationDraw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.draws[runID]
	keys := make([]int, 0, len(stored))
	for i := range stored {
		keys = append(keys, i)
	}
	sort.Ints(keys)
	out := make([]model.SimulationDraw, 0, len(stored))
	for _, i := range keys {
		out = append(out, stored[i])
	}
	return out, nil
}

// DrawCount reports how many draws are stored for a run.
func (s *InMemoryCheckpointStore) DrawCount(runID core.RunID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.draws[runID])
}

// Package gallery is the persistence collaborator invoked by the surrounding
// application after a pipeline run completes. It sits outside the pipeline
// proper; the in-memory store covers single-process deployments.
package gallery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"comic-server/internal/model"
)

// Artifact is one saved generation result.
type Artifact struct {
	ID        string       `json:"id"`
	Scene     string       `json:"scene"`
	Script    model.Script `json:"script"`
	ImageRef  string       `json:"imageRef"`
	Favorite  bool         `json:"favorite"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Store is the collaborator contract consumed by the HTTP layer.
type Store interface {
	Save(ctx context.Context, artifact Artifact) (string, error)
	List(ctx context.Context) ([]Artifact, error)
	Delete(ctx context.Context, id string) error
	ToggleFavorite(ctx context.Context, id string) (bool, error)
}

// MemoryStore keeps artifacts in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

// NewMemoryStore creates an empty in-memory gallery.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]Artifact)}
}

// Save stores the artifact and returns its assigned id.
func (s *MemoryStore) Save(_ context.Context, artifact Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}
	s.artifacts[artifact.ID] = artifact
	return artifact.ID, nil
}

// List returns all artifacts, newest first.
func (s *MemoryStore) List(_ context.Context) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes an artifact by id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[id]; !ok {
		return model.ErrNotFound
	}
	delete(s.artifacts, id)
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *MemoryStore) ToggleFavorite(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return false, model.ErrNotFound
	}
	a.Favorite = !a.Favorite
	s.artifacts[id] = a
	return a.Favorite, nil
}

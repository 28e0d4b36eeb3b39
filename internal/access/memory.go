package access

import (
	"context"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
)

// MemoryGrantStore keeps grants in a map, for tests and the dev binary.
type MemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[string]diagram.Grant // key: diagramID + "/" + principalID
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{grants: make(map[string]diagram.Grant)}
}

func grantKey(diagramID, principalID string) string { return diagramID + "/" + principalID }

func (s *MemoryGrantStore) GetGrant(ctx context.Context, diagramID, principalID string) (*diagram.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantKey(diagramID, principalID)]
	if !ok {
		return nil, nil
	}
	cp := g
	return &cp, nil
}

func (s *MemoryGrantStore) PutGrant(ctx context.Context, g *diagram.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	s.grants[grantKey(g.DiagramID, g.PrincipalID)] = *g
	return nil
}

func (s *MemoryGrantStore) RemoveGrant(ctx context.Context, diagramID, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantKey(diagramID, principalID))
	return nil
}

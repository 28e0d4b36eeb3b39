package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/google/uuid"
)

// MemoryRepo is the in-memory repository used for unit tests and the
// standalone dev binary. One mutex covers every critical section, so the
// check-then-set in ApplyUpdate is atomic by construction.
type MemoryRepo struct {
	mu        sync.RWMutex
	diagrams  map[string]*diagram.Diagram
	revisions map[string][]diagram.Revision
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		diagrams:  make(map[string]*diagram.Diagram),
		revisions: make(map[string][]diagram.Revision),
	}
}

func (m *MemoryRepo) Create(ctx context.Context, d *diagram.Diagram) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.Version = 1
	d.CreatedAt = now
	d.UpdatedAt = now
	if d.Visibility == "" {
		d.Visibility = diagram.VisibilityPrivate
	}
	cp := *d
	m.diagrams[d.ID] = &cp
	m.revisions[d.ID] = []diagram.Revision{{
		DiagramID: d.ID,
		Revision:  1,
		Payload:   d.Payload,
		Title:     d.Title,
		AuthorID:  d.OwnerID,
		CreatedAt: now,
	}}
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string, includeDeleted bool) (*diagram.Diagram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.diagrams[id]
	if !ok || (d.Deleted() && !includeDeleted) {
		return nil, diagram.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) List(ctx context.Context, f diagram.ListFilter) (diagram.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.diagrams))
	for id := range m.diagrams {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := diagram.Page{Items: []diagram.Summary{}}
	for _, id := range ids {
		if f.Cursor != "" && id <= f.Cursor {
			continue
		}
		d := m.diagrams[id]
		if d.Deleted() && !f.IncludeDeleted {
			continue
		}
		if f.OwnerID != "" && d.OwnerID != f.OwnerID {
			continue
		}
		if f.ProjectID != "" && d.ProjectID != f.ProjectID {
			continue
		}
		page.Items = append(page.Items, d.Summary())
		if len(page.Items) == limit {
			page.NextCursor = d.ID
			break
		}
	}
	return page, nil
}

func (m *MemoryRepo) ApplyUpdate(ctx context.Context, id string, in diagram.UpdateInput) (*diagram.Diagram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagrams[id]
	if !ok || d.Deleted() {
		return nil, diagram.ErrNotFound
	}
	if d.Version != in.ExpectedVersion {
		return nil, &diagram.ConflictError{
			CurrentVersion: d.Version,
			CurrentPayload: d.Payload,
			CurrentTitle:   d.Title,
		}
	}
	if in.Title != nil {
		d.Title = *in.Title
	}
	if in.Payload != nil {
		d.Payload = *in.Payload
	}
	if in.Visibility != nil {
		d.Visibility = *in.Visibility
	}
	d.Version = in.ExpectedVersion + 1
	d.UpdatedAt = time.Now().UTC()
	m.revisions[id] = append(m.revisions[id], diagram.Revision{
		DiagramID:     id,
		Revision:      d.Version,
		Payload:       d.Payload,
		Title:         d.Title,
		AuthorID:      in.AuthorID,
		ChangeMessage: in.ChangeMessage,
		CreatedAt:     d.UpdatedAt,
	})
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagrams[id]
	if !ok || d.Deleted() {
		return diagram.ErrNotFound
	}
	now := time.Now().UTC()
	d.DeletedAt = &now
	d.UpdatedAt = now
	return nil
}

func (m *MemoryRepo) Restore(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diagrams[id]
	if !ok || !d.Deleted() {
		return diagram.ErrNotFound
	}
	d.DeletedAt = nil
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) ListRevisions(ctx context.Context, diagramID string) ([]diagram.Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs, ok := m.revisions[diagramID]
	if !ok {
		return nil, diagram.ErrNotFound
	}
	out := make([]diagram.Revision, len(revs))
	for i, r := range revs {
		r.Payload = ""
		out[i] = r
	}
	return out, nil
}

func (m *MemoryRepo) GetRevision(ctx context.Context, diagramID string, rev int64) (*diagram.Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	revs, ok := m.revisions[diagramID]
	if !ok {
		return nil, diagram.ErrNotFound
	}
	for _, r := range revs {
		if r.Revision == rev {
			cp := r
			return &cp, nil
		}
	}
	return nil, diagram.ErrRevisionNotFound
}

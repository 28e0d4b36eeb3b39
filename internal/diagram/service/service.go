package service

import (
	"context"
	"fmt"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/access"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram/repository"
	"github.com/flowdeck/flowdeck/backend/go-services/pkg/metrics"
)

const (
	defaultMaxPayloadBytes = 2 << 20 // 2 MiB of BPMN XML
	maxListLimit           = 200
)

// Options tune service behavior; zero values pick the defaults.
type Options struct {
	// MaxPayloadBytes caps the accepted diagram payload size.
	MaxPayloadBytes int
	// OwnerRecovery enables soft-delete recovery (include-deleted reads and
	// restore) for owners. Disabled, deleted diagrams are hidden for good.
	OwnerRecovery bool
}

// Service is the single admission point for diagram writes. Every save
// goes through the repository's conditional update; no caller may perform
// its own version check.
type Service struct {
	repo          repository.Repository
	gate          *access.Gate
	grants        access.GrantStore
	maxPayload    int
	ownerRecovery bool
}

func NewService(repo repository.Repository, gate *access.Gate, grants access.GrantStore, opts Options) *Service {
	maxPayload := opts.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = defaultMaxPayloadBytes
	}
	return &Service{
		repo:          repo,
		gate:          gate,
		grants:        grants,
		maxPayload:    maxPayload,
		ownerRecovery: opts.OwnerRecovery,
	}
}

// OwnerRecovery reports whether deleted diagrams are owner-recoverable.
func (s *Service) OwnerRecovery() bool { return s.ownerRecovery }

func (s *Service) Create(ctx context.Context, in diagram.CreateInput) (*diagram.Diagram, error) {
	verr := &diagram.ValidationError{}
	if in.Title == "" {
		verr.Add("title", "must not be empty")
	}
	if len(in.Payload) > s.maxPayload {
		verr.Add("payload", fmt.Sprintf("exceeds maximum size of %d bytes", s.maxPayload))
	}
	if in.Visibility != "" && in.Visibility != diagram.VisibilityPrivate && in.Visibility != diagram.VisibilityPublic {
		verr.Add("visibility", "must be private or public")
	}
	if !verr.Empty() {
		return nil, verr
	}

	d := &diagram.Diagram{
		OwnerID:    in.OwnerID,
		ProjectID:  in.ProjectID,
		Title:      in.Title,
		Payload:    in.Payload,
		Visibility: in.Visibility,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns the diagram when the principal can read it. Missing diagrams
// and unreadable private diagrams are indistinguishable to the caller.
func (s *Service) Get(ctx context.Context, principalID, id string, includeDeleted bool) (*diagram.Diagram, error) {
	includeDeleted = includeDeleted && s.ownerRecovery
	d, err := s.repo.Get(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	role, err := s.gate.Resolve(ctx, principalID, d)
	if err != nil {
		return nil, err
	}
	if !role.CanRead() {
		return nil, diagram.ErrNotFound
	}
	// the recovery view of a deleted diagram is owner-only
	if d.Deleted() && role != diagram.RoleOwner {
		return nil, diagram.ErrNotFound
	}
	return d, nil
}

// List returns the caller's own diagrams. Listing is always owner-scoped:
// requesting another owner's listing is refused rather than filtered.
func (s *Service) List(ctx context.Context, principalID string, f diagram.ListFilter) (diagram.Page, error) {
	if f.OwnerID == "" {
		f.OwnerID = principalID
	}
	if f.OwnerID != principalID {
		return diagram.Page{}, diagram.ErrForbidden
	}
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = 50
	}
	f.IncludeDeleted = f.IncludeDeleted && s.ownerRecovery
	return s.repo.List(ctx, f)
}

// Update applies a version-checked save. The repository's conditional
// update is the sole race arbiter; this method only validates and gates.
func (s *Service) Update(ctx context.Context, principalID, id string, in diagram.UpdateInput) (*diagram.Diagram, error) {
	verr := &diagram.ValidationError{}
	if in.ExpectedVersion < 1 {
		verr.Add("expectedVersion", "must be a positive integer")
	}
	if in.Title != nil && *in.Title == "" {
		verr.Add("title", "must not be empty")
	}
	if in.Payload != nil && len(*in.Payload) > s.maxPayload {
		verr.Add("payload", fmt.Sprintf("exceeds maximum size of %d bytes", s.maxPayload))
	}
	if in.Visibility != nil && *in.Visibility != diagram.VisibilityPrivate && *in.Visibility != diagram.VisibilityPublic {
		verr.Add("visibility", "must be private or public")
	}
	if !verr.Empty() {
		return nil, verr
	}

	d, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	role, err := s.gate.Resolve(ctx, principalID, d)
	if err != nil {
		return nil, err
	}
	if role == diagram.RoleNone {
		return nil, diagram.ErrNotFound
	}
	if !role.CanWrite() {
		return nil, diagram.ErrForbidden
	}

	in.AuthorID = principalID
	updated, err := s.repo.ApplyUpdate(ctx, id, in)
	if err != nil {
		if _, ok := err.(*diagram.ConflictError); ok {
			metrics.SaveConflicts.Inc()
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) SoftDelete(ctx context.Context, principalID, id string) error {
	d, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return err
	}
	role, err := s.gate.Resolve(ctx, principalID, d)
	if err != nil {
		return err
	}
	if role == diagram.RoleNone {
		return diagram.ErrNotFound
	}
	if !role.CanDelete() {
		return diagram.ErrForbidden
	}
	return s.repo.SoftDelete(ctx, id)
}

// Restore brings back a soft-deleted diagram. Owner-only, and only when
// owner recovery is enabled.
func (s *Service) Restore(ctx context.Context, principalID, id string) error {
	if !s.ownerRecovery {
		return diagram.ErrNotFound
	}
	d, err := s.repo.Get(ctx, id, true)
	if err != nil {
		return err
	}
	role, err := s.gate.Resolve(ctx, principalID, d)
	if err != nil {
		return err
	}
	if role != diagram.RoleOwner {
		return diagram.ErrNotFound
	}
	if !d.Deleted() {
		return diagram.ErrNotFound
	}
	return s.repo.Restore(ctx, id)
}

func (s *Service) ListRevisions(ctx context.Context, principalID, id string) ([]diagram.Revision, error) {
	if _, err := s.Get(ctx, principalID, id, false); err != nil {
		return nil, err
	}
	return s.repo.ListRevisions(ctx, id)
}

func (s *Service) GetRevision(ctx context.Context, principalID, id string, rev int64) (*diagram.Revision, error) {
	if _, err := s.Get(ctx, principalID, id, false); err != nil {
		return nil, err
	}
	return s.repo.GetRevision(ctx, id, rev)
}

// Share stores or replaces a collaborator grant. Owner-only.
func (s *Service) Share(ctx context.Context, principalID, id, granteeID string, role diagram.Role) error {
	if role != diagram.RoleEditor && role != diagram.RoleViewer {
		return (&diagram.ValidationError{}).Add("role", "must be editor or viewer")
	}
	d, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return err
	}
	callerRole, err := s.gate.Resolve(ctx, principalID, d)
	if err != nil {
		return err
	}
	if callerRole == diagram.RoleNone {
		return diagram.ErrNotFound
	}
	if callerRole != diagram.RoleOwner {
		return diagram.ErrForbidden
	}
	return s.grants.PutGrant(ctx, &diagram.Grant{DiagramID: id, PrincipalID: granteeID, Role: role})
}

// Unshare removes a collaborator grant. Owner-only.
func (s *Service) Unshare(ctx context.Context, principalID, id, granteeID string) error {
	d, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return err
	}
	callerRole, err := s.gate.Resolve(ctx, principalID, d)
	if err != nil {
		return err
	}
	if callerRole == diagram.RoleNone {
		return diagram.ErrNotFound
	}
	if callerRole != diagram.RoleOwner {
		return diagram.ErrForbidden
	}
	return s.grants.RemoveGrant(ctx, id, granteeID)
}

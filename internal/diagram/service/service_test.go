package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/access"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram/repository"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func newTestService(t *testing.T, opts Options) (*Service, access.GrantStore) {
	t.Helper()
	grants := access.NewMemoryGrantStore()
	svc := NewService(repository.NewMemoryRepo(), access.NewGate(grants), grants, opts)
	return svc, grants
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{MaxPayloadBytes: 32})
	ctx := context.Background()

	_, err := svc.Create(ctx, diagram.CreateInput{
		OwnerID:    "alice",
		Title:      "",
		Payload:    strings.Repeat("x", 64),
		Visibility: "shared",
	})
	var verr *diagram.ValidationError
	require.True(t, errors.As(err, &verr))
	// every violated field is reported, not just the first
	require.Len(t, verr.Violations, 3)
	fields := map[string]bool{}
	for _, v := range verr.Violations {
		fields[v.Field] = true
	}
	require.True(t, fields["title"])
	require.True(t, fields["payload"])
	require.True(t, fields["visibility"])

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "ok", Payload: "short"})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)
}

func TestConflictRetryScenario(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "Order Flow", Payload: "X"})
	require.NoError(t, err)

	// both clients read version 1; bob is also an editor
	require.NoError(t, svc.Share(ctx, "alice", d.ID, "bob", diagram.RoleEditor))

	// bob saves first
	up, err := svc.Update(ctx, "bob", d.ID, diagram.UpdateInput{ExpectedVersion: 1, Payload: strp("Y")})
	require.NoError(t, err)
	require.Equal(t, int64(2), up.Version)

	// alice's save against the stale version conflicts, with reconcile state
	_, err = svc.Update(ctx, "alice", d.ID, diagram.UpdateInput{ExpectedVersion: 1, Payload: strp("Z")})
	var conflict *diagram.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, int64(2), conflict.CurrentVersion)
	require.Equal(t, "Y", conflict.CurrentPayload)

	// retry with the current version succeeds
	up2, err := svc.Update(ctx, "alice", d.ID, diagram.UpdateInput{ExpectedVersion: 2, Payload: strp("Z")})
	require.NoError(t, err)
	require.Equal(t, int64(3), up2.Version)

	// retrying the already-won expected version correctly conflicts again
	_, err = svc.Update(ctx, "alice", d.ID, diagram.UpdateInput{ExpectedVersion: 2, Payload: strp("Z")})
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, int64(3), conflict.CurrentVersion)
}

func TestAccessIsolation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "secret", Payload: "X"})
	require.NoError(t, err)

	// a stranger reading a private diagram gets the same error as for a
	// diagram that does not exist at all
	_, errExisting := svc.Get(ctx, "mallory", d.ID, false)
	_, errMissing := svc.Get(ctx, "mallory", "no-such-id", false)
	require.ErrorIs(t, errExisting, diagram.ErrNotFound)
	require.ErrorIs(t, errMissing, diagram.ErrNotFound)
	require.Equal(t, errMissing.Error(), errExisting.Error())

	// writes by strangers on private diagrams are hidden too
	_, err = svc.Update(ctx, "mallory", d.ID, diagram.UpdateInput{ExpectedVersion: 1, Payload: strp("Y")})
	require.ErrorIs(t, err, diagram.ErrNotFound)

	// a viewer is identified and visible, so a write is a plain forbidden
	require.NoError(t, svc.Share(ctx, "alice", d.ID, "victor", diagram.RoleViewer))
	_, err = svc.Update(ctx, "victor", d.ID, diagram.UpdateInput{ExpectedVersion: 1, Payload: strp("Y")})
	require.ErrorIs(t, err, diagram.ErrForbidden)

	// editors cannot delete
	require.NoError(t, svc.Share(ctx, "alice", d.ID, "bob", diagram.RoleEditor))
	require.ErrorIs(t, svc.SoftDelete(ctx, "bob", d.ID), diagram.ErrForbidden)

	// public diagrams are readable by anyone, writable by no stranger
	pub, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "pub", Payload: "P", Visibility: diagram.VisibilityPublic})
	require.NoError(t, err)
	got, err := svc.Get(ctx, "mallory", pub.ID, false)
	require.NoError(t, err)
	require.Equal(t, "P", got.Payload)
	_, err = svc.Update(ctx, "mallory", pub.ID, diagram.UpdateInput{ExpectedVersion: 1, Payload: strp("Q")})
	require.ErrorIs(t, err, diagram.ErrForbidden)
}

func TestSoftDeleteVisibilityAndRecovery(t *testing.T) {
	svc, _ := newTestService(t, Options{OwnerRecovery: true})
	ctx := context.Background()

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "t", Payload: "X"})
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, "alice", d.ID))

	_, err = svc.Get(ctx, "alice", d.ID, false)
	require.ErrorIs(t, err, diagram.ErrNotFound)

	// owner recovery view
	got, err := svc.Get(ctx, "alice", d.ID, true)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)

	// non-owners never see the deleted diagram, recovery mode or not
	_, err = svc.Get(ctx, "bob", d.ID, true)
	require.ErrorIs(t, err, diagram.ErrNotFound)

	// absent from default listings
	page, err := svc.List(ctx, "alice", diagram.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, page.Items)

	require.NoError(t, svc.Restore(ctx, "alice", d.ID))
	live, err := svc.Get(ctx, "alice", d.ID, false)
	require.NoError(t, err)
	require.Nil(t, live.DeletedAt)

	// history survived the whole round trip
	revs, err := svc.ListRevisions(ctx, "alice", d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 1)
}

func TestRecoveryDisabled(t *testing.T) {
	svc, _ := newTestService(t, Options{OwnerRecovery: false})
	ctx := context.Background()

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "t", Payload: "X"})
	require.NoError(t, err)
	require.NoError(t, svc.SoftDelete(ctx, "alice", d.ID))

	// include-deleted mode is ignored and restore refuses
	_, err = svc.Get(ctx, "alice", d.ID, true)
	require.ErrorIs(t, err, diagram.ErrNotFound)
	require.ErrorIs(t, svc.Restore(ctx, "alice", d.ID), diagram.ErrNotFound)
}

func TestListIsOwnerScoped(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "a", Payload: "x"})
	require.NoError(t, err)

	// empty owner filter defaults to the caller
	page, err := svc.List(ctx, "alice", diagram.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.Items[0].ID)

	// listing someone else's diagrams is refused outright
	_, err = svc.List(ctx, "bob", diagram.ListFilter{OwnerID: "alice"})
	require.ErrorIs(t, err, diagram.ErrForbidden)
}

func TestRevisionAccessFollowsReadCapability(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "t", Payload: "v1"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, "alice", d.ID, diagram.UpdateInput{ExpectedVersion: 1, Payload: strp("v2"), ChangeMessage: "second draft"})
	require.NoError(t, err)

	revs, err := svc.ListRevisions(ctx, "alice", d.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	require.Equal(t, "second draft", revs[1].ChangeMessage)

	rev, err := svc.GetRevision(ctx, "alice", d.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "v1", rev.Payload)

	_, err = svc.ListRevisions(ctx, "mallory", d.ID)
	require.ErrorIs(t, err, diagram.ErrNotFound)
	_, err = svc.GetRevision(ctx, "mallory", d.ID, 1)
	require.ErrorIs(t, err, diagram.ErrNotFound)
}

func TestShareValidation(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	ctx := context.Background()

	d, err := svc.Create(ctx, diagram.CreateInput{OwnerID: "alice", Title: "t", Payload: "x"})
	require.NoError(t, err)

	var verr *diagram.ValidationError
	err = svc.Share(ctx, "alice", d.ID, "bob", diagram.RoleOwner)
	require.True(t, errors.As(err, &verr))

	require.NoError(t, svc.Share(ctx, "alice", d.ID, "bob", diagram.RoleEditor))
	// only the owner manages grants
	require.ErrorIs(t, svc.Share(ctx, "bob", d.ID, "carol", diagram.RoleViewer), diagram.ErrForbidden)
	require.ErrorIs(t, svc.Unshare(ctx, "mallory", d.ID, "bob"), diagram.ErrNotFound)
	require.NoError(t, svc.Unshare(ctx, "alice", d.ID, "bob"))

	// bob lost his grant and with it any view of the private diagram
	_, err = svc.Get(ctx, "bob", d.ID, false)
	require.ErrorIs(t, err, diagram.ErrNotFound)
}

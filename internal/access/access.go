// Package access resolves the capability a principal holds over a diagram.
// Precedence: ownership, then an explicit collaborator grant, then public
// visibility (viewer), else none.
package access

import (
	"context"

	"github.com/flowdeck/flowdeck/backend/go-services/internal/diagram"
)

// GrantStore looks up explicit collaborator grants. A nil result with nil
// error means no grant exists.
type GrantStore interface {
	GetGrant(ctx context.Context, diagramID, principalID string) (*diagram.Grant, error)
	PutGrant(ctx context.Context, g *diagram.Grant) error
	RemoveGrant(ctx context.Context, diagramID, principalID string) error
}

// Gate answers capability questions for the service layer.
type Gate struct {
	grants GrantStore
}

func NewGate(grants GrantStore) *Gate { return &Gate{grants: grants} }

// Resolve returns the principal's role on the diagram. An empty principal
// (unauthenticated callers hitting a public diagram) can only reach viewer.
func (g *Gate) Resolve(ctx context.Context, principalID string, d *diagram.Diagram) (diagram.Role, error) {
	if principalID != "" && principalID == d.OwnerID {
		return diagram.RoleOwner, nil
	}
	if principalID != "" && g.grants != nil {
		grant, err := g.grants.GetGrant(ctx, d.ID, principalID)
		if err != nil {
			return diagram.RoleNone, err
		}
		if grant != nil {
			return grant.Role, nil
		}
	}
	if d.Visibility == diagram.VisibilityPublic {
		return diagram.RoleViewer, nil
	}
	return diagram.RoleNone, nil
}

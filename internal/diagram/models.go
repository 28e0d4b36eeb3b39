package diagram

import "time"

// Visibility controls who may read a diagram without an explicit grant.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Role is the resolved capability a principal holds over a diagram.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleNone   Role = "none"
)

// CanRead reports whether the role allows reading the diagram.
func (r Role) CanRead() bool { return r == RoleOwner || r == RoleEditor || r == RoleViewer }

// CanWrite reports whether the role allows saving new versions.
func (r Role) CanWrite() bool { return r == RoleOwner || r == RoleEditor }

// CanDelete reports whether the role allows soft-deleting the diagram.
func (r Role) CanDelete() bool { return r == RoleOwner }

// Diagram is the persistent model for a BPMN diagram. Payload is the raw
// BPMN XML produced by the editor; the service never interprets it.
// Version starts at 1 and increases by exactly 1 on every accepted save.
type Diagram struct {
	ID         string     `json:"id" bson:"id"`
	OwnerID    string     `json:"ownerId" bson:"ownerId"`
	ProjectID  string     `json:"projectId,omitempty" bson:"projectId,omitempty"`
	Title      string     `json:"title" bson:"title"`
	Payload    string     `json:"payload,omitempty" bson:"payload"`
	Version    int64      `json:"version" bson:"version"`
	Visibility Visibility `json:"visibility" bson:"visibility"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt" bson:"updatedAt"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty"`
}

// Deleted reports whether the diagram has been soft-deleted.
func (d *Diagram) Deleted() bool { return d.DeletedAt != nil }

// Summary is the listing projection: everything except the payload.
type Summary struct {
	ID         string     `json:"id" bson:"id"`
	OwnerID    string     `json:"ownerId" bson:"ownerId"`
	ProjectID  string     `json:"projectId,omitempty" bson:"projectId,omitempty"`
	Title      string     `json:"title" bson:"title"`
	Version    int64      `json:"version" bson:"version"`
	Visibility Visibility `json:"visibility" bson:"visibility"`
	UpdatedAt  time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// Summary returns the payload-free projection of the diagram.
func (d *Diagram) Summary() Summary {
	return Summary{
		ID:         d.ID,
		OwnerID:    d.OwnerID,
		ProjectID:  d.ProjectID,
		Title:      d.Title,
		Version:    d.Version,
		Visibility: d.Visibility,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Revision is one entry in a diagram's append-only history. The set of
// revision numbers for a diagram is exactly 1..currentVersion with no gaps.
type Revision struct {
	DiagramID     string    `json:"diagramId" bson:"diagramId"`
	Revision      int64     `json:"revision" bson:"revision"`
	Payload       string    `json:"payload,omitempty" bson:"payload"`
	Title         string    `json:"title" bson:"title"`
	AuthorID      string    `json:"authorId" bson:"authorId"`
	ChangeMessage string    `json:"changeMessage,omitempty" bson:"changeMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// Grant is an explicit collaborator record giving a principal a role on a
// diagram. Ownership and public visibility are resolved without grants.
type Grant struct {
	DiagramID   string    `json:"diagramId" bson:"diagramId"`
	PrincipalID string    `json:"principalId" bson:"principalId"`
	Role        Role      `json:"role" bson:"role"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// CreateInput carries the validated fields for a new diagram.
type CreateInput struct {
	OwnerID       string
	Title         string
	Payload       string
	ProjectID     string
	Visibility    Visibility
	ChangeMessage string
}

// UpdateInput carries the validated fields for a version-checked save.
// Nil Title/Payload mean "leave unchanged".
type UpdateInput struct {
	AuthorID        string
	ExpectedVersion int64
	Title           *string
	Payload         *string
	Visibility      *Visibility
	ChangeMessage   string
}

// ListFilter selects diagrams for listing. Zero values mean "no filter".
type ListFilter struct {
	OwnerID        string
	ProjectID      string
	Cursor         string
	Limit          int
	IncludeDeleted bool
}

// Page is one page of summaries plus the cursor for the next page.
// NextCursor is empty on the last page.
type Page struct {
	Items      []Summary `json:"items"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

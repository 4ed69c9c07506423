package permission

import (
	"context"

	"markdown-annotator/internal/domain"
)

// ShareLookup returns the role token stored for a (document, user) pair.
// found is false when no share exists.
type ShareLookup interface {
	ShareRole(ctx context.Context, docID, userID uint64) (role string, found bool, err error)
}

// Resolver computes a caller's role on a document from ownership and shares.
// A nil user is an anonymous caller.
type Resolver struct {
	shares ShareLookup
}

func NewResolver(shares ShareLookup) *Resolver {
	return &Resolver{shares: shares}
}

func (r *Resolver) RoleOf(ctx context.Context, doc *domain.Document, user *domain.User) (Role, error) {
	if user == nil {
		return RoleNone, nil
	}
	if user.ID == doc.OwnerID {
		return RoleOwner, nil
	}

	token, found, err := r.shares.ShareRole(ctx, doc.ID, user.ID)
	if err != nil {
		return RoleNone, err
	}
	if !found {
		return RoleNone, nil
	}
	// Stored roles are normalized on grant; anything else reads as viewer.
	return Normalize(token), nil
}

// Capabilities holds the yes/no checks derived from one role resolution.
type Capabilities struct {
	Role        Role `json:"role"`
	CanView     bool `json:"can_view"`
	CanAnnotate bool `json:"can_annotate"`
	CanEdit     bool `json:"can_edit"`
	// IsOwner is true only for Document.OwnerID, not for an "owner" share.
	IsOwner bool `json:"is_owner"`
}

// CapabilitiesFor derives the capability set of role on doc.
func CapabilitiesFor(doc *domain.Document, role Role) Capabilities {
	return Capabilities{
		Role:        role,
		CanView:     doc.IsPublic || role.AtLeast(RoleViewer),
		CanAnnotate: role.AtLeast(RoleAnnotator),
		CanEdit:     role.AtLeast(RoleEditor),
	}
}

func (r *Resolver) Capabilities(ctx context.Context, doc *domain.Document, user *domain.User) (Capabilities, error) {
	role, err := r.RoleOf(ctx, doc, user)
	if err != nil {
		return Capabilities{}, err
	}
	caps := CapabilitiesFor(doc, role)
	caps.IsOwner = IsOwner(doc, user)
	return caps, nil
}

func (r *Resolver) CanView(ctx context.Context, doc *domain.Document, user *domain.User) (bool, error) {
	if doc.IsPublic {
		return true, nil
	}
	role, err := r.RoleOf(ctx, doc, user)
	return role.AtLeast(RoleViewer), err
}

func (r *Resolver) CanAnnotate(ctx context.Context, doc *domain.Document, user *domain.User) (bool, error) {
	role, err := r.RoleOf(ctx, doc, user)
	return role.AtLeast(RoleAnnotator), err
}

func (r *Resolver) CanEdit(ctx context.Context, doc *domain.Document, user *domain.User) (bool, error) {
	role, err := r.RoleOf(ctx, doc, user)
	return role.AtLeast(RoleEditor), err
}

// IsOwner is the check for deletion and sharing. It never consults shares.
func IsOwner(doc *domain.Document, user *domain.User) bool {
	return user != nil && user.ID == doc.OwnerID
}

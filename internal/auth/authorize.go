package auth

import (
	"context"

	"github.com/dukerupert/showtrack/internal/model"
)

// RoleProvider resolves the role of a user id.
type RoleProvider interface {
	RoleOf(ctx context.Context, userID int64) (model.Role, error)
}

// Capability is what an actor may do with a record owned by someone else
// (or themselves).
type Capability struct {
	View   bool
	Manage bool
}

// None is the zero capability.
var None = Capability{}

// Authorize is the single authorization check used by the ledger and the
// preference store. Owners can view and manage their records. Admins can
// view any user's records but only manage their own.
func Authorize(actor Identity, ownerID int64) Capability {
	if actor.UserID == 0 {
		return None
	}
	if actor.UserID == ownerID {
		return Capability{View: true, Manage: true}
	}
	if actor.IsAdmin() {
		return Capability{View: true}
	}
	return None
}

// Resolve builds an Identity for userID using the role provider.
func Resolve(ctx context.Context, roles RoleProvider, userID int64) (Identity, error) {
	role, err := roles.RoleOf(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID, Role: role}, nil
}

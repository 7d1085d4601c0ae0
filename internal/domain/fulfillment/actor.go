package fulfillment

import (
	"context"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Roles  []string
}

func (a Actor) IsAdmin() bool { return auth.IsAdmin(a.Roles) }

// Owns reports whether the actor is owner or may act on the owner's behalf.
func (a Actor) Owns(owner uuid.UUID) bool {
	return a.UserID == owner || a.IsAdmin()
}

// ActorFromContext reads the identity placed in ctx by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return Actor{}, apperr.Forbidden("authenticated user required")
	}
	return Actor{UserID: id, Roles: auth.RolesFromContext(ctx)}, nil
}

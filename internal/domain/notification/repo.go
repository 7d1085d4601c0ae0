package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository methods taking a userID only touch that user's notifications;
// another user's id is reported as not found.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*Notification, int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

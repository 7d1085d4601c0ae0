package donation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Donation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Donation, error)
	// Transition moves a SCHEDULED donation to status. It returns an
	// InvalidState error when the donation is no longer SCHEDULED.
	Transition(ctx context.Context, id uuid.UUID, status Status) error
	ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error)
	CompletedDonorIDs(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error)
}

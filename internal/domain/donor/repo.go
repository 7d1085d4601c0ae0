package donor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
)

// CandidateQuery pre-filters donors for a matching pass. DonatedBefore is
// the deferral cutoff; donors whose most recent donation is after it are
// excluded. Donors with a completed donation against ExcludeRequestID are
// excluded as well.
type CandidateQuery struct {
	BloodGroup       bloodgroup.Group
	City             string
	DonatedBefore    time.Time
	ExcludeRequestID uuid.UUID
	Limit            int
}

type Repository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	FindCandidates(ctx context.Context, q CandidateQuery) ([]*Profile, error)
	StampLastDonation(ctx context.Context, userID uuid.UUID, at time.Time) error
}

package request

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
)

// ListFilter narrows List. Empty fields do not filter. City and Search
// match case-insensitively on substrings.
type ListFilter struct {
	OwnerID         *uuid.UUID
	BloodGroup      bloodgroup.Group
	City            string
	Urgency         Urgency
	Statuses        []Status
	ExcludeStatuses []Status
	RequiredFrom    *time.Time
	Search          string
	SortBy          string
	SortAsc         bool
}

// Count is one bucket of a grouped statistic.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Repository interface {
	Create(ctx context.Context, r *BloodRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*BloodRequest, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*BloodRequest, error)
	// UpdateDetails writes the caller-editable fields. It never touches
	// status or fulfilled units.
	UpdateDetails(ctx context.Context, r *BloodRequest) error
	SetLifecycle(ctx context.Context, id uuid.UUID, status Status, fulfilledUnits float64) error
	SumCompletedUnits(ctx context.Context, id uuid.UUID) (float64, error)

	List(ctx context.Context, f ListFilter, limit, offset int) ([]*BloodRequest, int, error)
	ListUrgent(ctx context.Context, now time.Time, limit int) ([]*BloodRequest, error)
	// ListOverdue returns open requests whose required date is before now.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	CountByStatus(ctx context.Context) (map[Status]int, error)
	CountUrgentOpen(ctx context.Context) (int, error)
	TopCities(ctx context.Context, limit int) ([]Count, error)
	CountByBloodGroupOpen(ctx context.Context) ([]Count, error)
	CountByUrgencyOpen(ctx context.Context) ([]Count, error)
}

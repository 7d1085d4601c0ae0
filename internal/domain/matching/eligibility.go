// Package matching selects, scores and notifies donors for a blood request.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/request"
)

// CompletedDonors lists the donors with a COMPLETED donation against a
// request.
type CompletedDonors interface {
	CompletedDonorIDs(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error)
}

type EligibilityFilter struct {
	donors       donor.Repository
	completed    CompletedDonors
	now          func() time.Time
	queryTimeout time.Duration
	limit        int
}

func NewEligibilityFilter(donors donor.Repository, completed CompletedDonors, queryTimeout time.Duration, limit int) *EligibilityFilter {
	return &EligibilityFilter{
		donors:       donors,
		completed:    completed,
		now:          time.Now,
		queryTimeout: queryTimeout,
		limit:        limit,
	}
}

func (f *EligibilityFilter) WithClock(now func() time.Time) *EligibilityFilter {
	f.now = now
	return f
}

// Eligible checks a single donor against a request, except for donations
// already completed against it, which FindEligible checks.
func Eligible(p *donor.Profile, req *request.BloodRequest, now time.Time) bool {
	return p.IsActiveDonor() &&
		p.IsAvailable &&
		p.BloodGroup == req.BloodGroup &&
		p.City == req.City &&
		donor.DeferralSatisfied(p.MostRecentDonation(), now)
}

// FindEligible returns the donors eligible for req in store order. An empty
// result is not an error.
func (f *EligibilityFilter) FindEligible(ctx context.Context, req *request.BloodRequest) ([]*donor.Profile, error) {
	if f.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.queryTimeout)
		defer cancel()
	}
	now := f.now()

	profiles, err := f.donors.FindCandidates(ctx, donor.CandidateQuery{
		BloodGroup:       req.BloodGroup,
		City:             req.City,
		DonatedBefore:    now.Add(-donor.DeferralPeriod),
		ExcludeRequestID: req.ID,
		Limit:            f.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("find donor candidates: %w", err)
	}
	ids, err := f.completed.CompletedDonorIDs(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list completed donors: %w", err)
	}
	done := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}

	out := make([]*donor.Profile, 0, len(profiles))
	for _, p := range profiles {
		if done[p.UserID] || !Eligible(p, req, now) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

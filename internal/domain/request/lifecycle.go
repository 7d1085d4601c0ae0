package request

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/metrics"
)

// Compute derives the next status of a request from the units completed
// against it. Terminal states are returned unchanged. A request past its
// required date that is not fulfilled is expired.
func Compute(stored Status, fulfilled float64, unitsRequired int, requiredDate, now time.Time) Status {
	if stored.Terminal() {
		return stored
	}

	next := stored
	switch {
	case fulfilled >= float64(unitsRequired):
		next = StatusFulfilled
	case fulfilled > 0:
		next = StatusPartiallyFulfilled
	case stored == StatusPending:
		next = StatusActive
	}

	if now.After(requiredDate) && next != StatusFulfilled {
		next = StatusExpired
	}
	return next
}

// Overdue reports whether an open request has passed its required date
// and is due to become EXPIRED.
func (r *BloodRequest) Overdue(now time.Time) bool {
	return r.Open() && Compute(r.Status, r.FulfilledUnits, r.UnitsRequired, r.RequiredDate, now) == StatusExpired
}

// Lifecycle is the only writer of a request's status and fulfilled units.
type Lifecycle struct {
	repo    Repository
	tx      db.Transactor
	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewLifecycle(repo Repository, tx db.Transactor, m *metrics.Metrics, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{repo: repo, tx: tx, now: time.Now, metrics: m, logger: logger}
}

// WithClock replaces the time source.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Recompute locks the request row, re-sums completed donation units and
// persists the derived status. Nothing is written when neither the status
// nor the unit total changed. Called inside a transaction it joins it.
func (l *Lifecycle) Recompute(ctx context.Context, requestID uuid.UUID) (Transition, error) {
	var t Transition
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		req, err := l.repo.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		fulfilled, err := l.repo.SumCompletedUnits(ctx, requestID)
		if err != nil {
			return err
		}

		next := Compute(req.Status, fulfilled, req.UnitsRequired, req.RequiredDate, l.now())
		t = Transition{RequestID: requestID, From: req.Status, To: next, FulfilledUnits: fulfilled}
		if next == req.Status && fulfilled == req.FulfilledUnits {
			return nil
		}
		if err := l.repo.SetLifecycle(ctx, requestID, next, fulfilled); err != nil {
			return err
		}
		t.Written = true
		return nil
	})
	if err != nil {
		return Transition{}, err
	}

	if t.Changed() {
		l.metrics.IncTransition(string(t.From), string(t.To))
		l.logger.Info().
			Str("request_id", requestID.String()).
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Float64("fulfilled_units", t.FulfilledUnits).
			Msg("blood request status changed")
	}
	return t, nil
}

// Cancel moves an open request to CANCELLED. authorize runs against the
// locked row and may veto the cancellation.
func (l *Lifecycle) Cancel(ctx context.Context, requestID uuid.UUID, authorize func(*BloodRequest) error) (*BloodRequest, error) {
	var out *BloodRequest
	var from Status
	err := l.tx.RunInTx(ctx, func(ctx context.Context) error {
		req, err := l.repo.GetForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if authorize != nil {
			if err := authorize(req); err != nil {
				return err
			}
		}
		if req.Status.Terminal() {
			return apperr.InvalidState("cannot cancel a " + string(req.Status) + " request")
		}
		if err := l.repo.SetLifecycle(ctx, requestID, StatusCancelled, req.FulfilledUnits); err != nil {
			return err
		}
		from = req.Status
		req.Status = StatusCancelled
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.metrics.IncTransition(string(from), string(StatusCancelled))
	l.logger.Info().Str("request_id", requestID.String()).Str("from", string(from)).Msg("blood request cancelled")
	return out, nil
}

// Package fulfillment coordinates blood requests, donations and donor
// matching. It is the only entry point callers use.
package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bloodlink/bloodlink/internal/domain/donation"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/matching"
	"github.com/bloodlink/bloodlink/internal/domain/notification"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/metrics"
)

const (
	statsCacheKey     = "stats:requests"
	topCitiesLimit    = 10
	defaultUrgentSize = 5
	maxUrgentSize     = 50
)

// Enqueuer accepts match tasks without blocking. It reports false when
// the task was dropped.
type Enqueuer interface {
	Enqueue(requestID uuid.UUID) bool
}

type Repositories struct {
	Requests      request.Repository
	Donations     donation.Repository
	Donors        donor.Repository
	Notifications notification.Repository
}

type Service struct {
	requests      request.Repository
	donations     donation.Repository
	donors        donor.Repository
	notifications notification.Repository

	tx        db.Transactor
	lifecycle *request.Lifecycle
	filter    *matching.EligibilityFilter
	ranker    *matching.Ranker
	notifier  *matching.Notifier
	queue     Enqueuer

	cache    *cache.Cache
	statsTTL time.Duration

	now     func() time.Time
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(repos Repositories, tx db.Transactor, lifecycle *request.Lifecycle,
	filter *matching.EligibilityFilter, ranker *matching.Ranker, notifier *matching.Notifier,
	m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		requests:      repos.Requests,
		donations:     repos.Donations,
		donors:        repos.Donors,
		notifications: repos.Notifications,
		tx:            tx,
		lifecycle:     lifecycle,
		filter:        filter,
		ranker:        ranker,
		notifier:      notifier,
		now:           time.Now,
		metrics:       m,
		logger:        logger,
	}
}

// WithStatsCache caches GetRequestStatistics for ttl. A nil cache disables it.
func (s *Service) WithStatsCache(c *cache.Cache, ttl time.Duration) *Service {
	s.cache = c
	s.statsTTL = ttl
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SetMatchQueue wires the queue that runs matching passes for new requests.
func (s *Service) SetMatchQueue(q Enqueuer) { s.queue = q }

func (s *Service) invalidateStats(ctx context.Context) {
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("invalidate request statistics")
	}
}

// -- Requests --

// CreateRequest stores a PENDING request and queues a matching pass for
// it. Nothing after the insert can fail the call.
func (s *Service) CreateRequest(ctx context.Context, actor Actor, in request.CreateInput) (*request.BloodRequest, error) {
	req, err := request.New(actor.UserID, in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("request_id", req.ID.String()).
		Str("blood_group", string(req.BloodGroup)).
		Str("urgency", string(req.UrgencyLevel)).
		Msg("blood request created")

	s.invalidateStats(ctx)
	if s.queue != nil && !s.queue.Enqueue(req.ID) {
		s.logger.Warn().Str("request_id", req.ID.String()).Msg("match queue full, matching pass dropped")
	}
	return req, nil
}

// UpdateRequest edits an open request owned by the actor. Status and
// fulfilled units cannot be set; a changed unit count or date triggers a
// lifecycle recomputation in the same transaction.
func (s *Service) UpdateRequest(ctx context.Context, actor Actor, id uuid.UUID, in request.UpdateInput) (*request.BloodRequest, error) {
	now := s.now()
	var overdue bool
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Owns(req.UserID) {
			return apperr.Forbidden("you are not authorized to update this request")
		}
		if req.Overdue(now) {
			overdue = true
			return apperr.InvalidState("cannot update an EXPIRED request")
		}
		if !req.Open() {
			return apperr.InvalidState("cannot update a " + string(req.Status) + " request")
		}
		units, date := req.UnitsRequired, req.RequiredDate
		if err := req.Apply(in, now); err != nil {
			return err
		}
		if err := s.requests.UpdateDetails(ctx, req); err != nil {
			return err
		}
		if req.UnitsRequired != units || !req.RequiredDate.Equal(date) {
			if _, err := s.lifecycle.Recompute(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if overdue {
		s.expire(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return s.requests.GetByID(ctx, id)
}

// expire persists EXPIRED for a request a refused write found overdue.
// The write's own transaction has rolled back by then; on failure the
// sweeper catches the request later.
func (s *Service) expire(ctx context.Context, id uuid.UUID) {
	t, err := s.lifecycle.Recompute(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", id.String()).Msg("expire overdue request")
		return
	}
	if t.Changed() {
		s.invalidateStats(ctx)
	}
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*request.BloodRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListRequests lists requests matching f. Without a status filter terminal
// requests are hidden, and unless EXPIRED is asked for only requests still
// due today or later are returned.
func (s *Service) ListRequests(ctx context.Context, f request.ListFilter, limit, offset int) ([]*request.BloodRequest, int, error) {
	f.OwnerID = nil
	if len(f.Statuses) == 0 {
		f.ExcludeStatuses = request.TerminalStatuses
	}
	if !containsStatus(f.Statuses, request.StatusExpired) {
		now := s.now()
		f.RequiredFrom = &now
	}
	return s.requests.List(ctx, f, limit, offset)
}

// ListMyRequests lists the actor's own requests, hiding cancelled ones
// unless a status is asked for.
func (s *Service) ListMyRequests(ctx context.Context, actor Actor, f request.ListFilter, limit, offset int) ([]*request.BloodRequest, int, error) {
	f.OwnerID = &actor.UserID
	f.RequiredFrom = nil
	if len(f.Statuses) == 0 {
		f.ExcludeStatuses = []request.Status{request.StatusCancelled}
	}
	return s.requests.List(ctx, f, limit, offset)
}

func containsStatus(ss []request.Status, want request.Status) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// ListUrgentRequests returns open HIGH and CRITICAL requests, most urgent
// and soonest first.
func (s *Service) ListUrgentRequests(ctx context.Context, limit int) ([]*request.BloodRequest, error) {
	if limit <= 0 {
		limit = defaultUrgentSize
	}
	if limit > maxUrgentSize {
		limit = maxUrgentSize
	}
	return s.requests.ListUrgent(ctx, s.now(), limit)
}

// CancelRequest cancels an open request. Only its owner or an admin may.
func (s *Service) CancelRequest(ctx context.Context, actor Actor, id uuid.UUID) (*request.BloodRequest, error) {
	req, err := s.lifecycle.Cancel(ctx, id, func(r *request.BloodRequest) error {
		if !actor.Owns(r.UserID) {
			return apperr.Forbidden("you are not authorized to cancel this request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return req, nil
}

// -- Matching --

// FindMatchingDonors ranks the donors eligible for a request. It does not
// notify anyone.
func (s *Service) FindMatchingDonors(ctx context.Context, requestID uuid.UUID) ([]matching.Candidate, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	donors, err := s.filter.FindEligible(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.ranker.Rank(req, donors), nil
}

// RunMatchPass activates a pending request, finds and ranks its donors and
// notifies the best of them. Terminal requests are skipped.
func (s *Service) RunMatchPass(ctx context.Context, requestID uuid.UUID) error {
	start := time.Now()

	t, err := s.lifecycle.Recompute(ctx, requestID)
	if err != nil {
		return fmt.Errorf("recompute before matching: %w", err)
	}
	if t.Changed() {
		s.invalidateStats(ctx)
	}
	if t.To.Terminal() {
		s.logger.Debug().Str("request_id", requestID.String()).Str("status", string(t.To)).
			Msg("skipping matching pass for closed request")
		return nil
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	donors, err := s.filter.FindEligible(ctx, req)
	if err != nil {
		return err
	}
	candidates := s.ranker.Rank(req, donors)
	sent := s.notifier.Notify(ctx, req, candidates)

	s.metrics.ObserveMatchPass(time.Since(start), len(candidates))
	s.logger.Info().
		Str("request_id", requestID.String()).
		Int("candidates", len(candidates)).
		Int("notified", sent).
		Msg("matching pass complete")
	return nil
}

// -- Statistics --

// GetRequestStatistics aggregates request counts. The result is served
// from cache when one is configured; cache failures fall back to the
// database.
func (s *Service) GetRequestStatistics(ctx context.Context) (*request.Statistics, error) {
	var cached request.Statistics
	hit, err := s.cache.GetJSON(ctx, statsCacheKey, &cached)
	switch {
	case err != nil:
		s.metrics.IncStatsCache("error")
		s.logger.Warn().Err(err).Msg("read cached request statistics")
	case hit:
		s.metrics.IncStatsCache("hit")
		return &cached, nil
	case s.cache != nil:
		s.metrics.IncStatsCache("miss")
	}

	var (
		byStatus  map[request.Status]int
		urgent    int
		cities    []request.Count
		groups    []request.Count
		urgencies []request.Count
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { byStatus, err = s.requests.CountByStatus(gctx); return })
	g.Go(func() (err error) { urgent, err = s.requests.CountUrgentOpen(gctx); return })
	g.Go(func() (err error) { cities, err = s.requests.TopCities(gctx, topCitiesLimit); return })
	g.Go(func() (err error) { groups, err = s.requests.CountByBloodGroupOpen(gctx); return })
	g.Go(func() (err error) { urgencies, err = s.requests.CountByUrgencyOpen(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("request statistics: %w", err)
	}

	counts, total := request.NewStatusCounts(byStatus)
	stats := &request.Statistics{
		TotalRequests:          total,
		ByStatus:               counts,
		UrgentRequests:         urgent,
		RequestsByCity:         cities,
		RequestsByBloodGroup:   groups,
		RequestsByUrgencyLevel: urgencies,
		Summary:                counts.Summary(),
	}
	if err := s.cache.SetJSON(ctx, statsCacheKey, stats, s.statsTTL); err != nil {
		s.logger.Warn().Err(err).Msg("cache request statistics")
	}
	return stats, nil
}

// -- Donations --

// CompletionResult is the outcome of completing a donation. Request is nil
// for donations not linked to a request.
type CompletionResult struct {
	Donation *donation.Donation  `json:"donation"`
	Request  *request.Transition `json:"request,omitempty"`
}

// CreateDonation records a donation by the actor after checking the
// donor's eligibility and the linked request. A donation created as
// COMPLETED is counted against its request in the same transaction.
func (s *Service) CreateDonation(ctx context.Context, actor Actor, in donation.CreateInput) (*CompletionResult, error) {
	now := s.now()
	d, err := donation.New(actor.UserID, in, now)
	if err != nil {
		return nil, err
	}

	var (
		result  CompletionResult
		overdue bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		profile, err := s.donors.GetProfile(ctx, actor.UserID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Validation("please complete your donor profile first")
		}
		if err != nil {
			return err
		}
		if err := checkDonor(profile, now); err != nil {
			return err
		}

		if d.RequestID != nil {
			req, err := s.requests.GetForUpdate(ctx, *d.RequestID)
			if err != nil {
				return err
			}
			if req.Overdue(now) {
				overdue = true
				return apperr.InvalidState("this blood request is EXPIRED")
			}
			if !req.Open() {
				return apperr.InvalidState("this blood request is " + string(req.Status))
			}
		}

		if err := s.donations.Create(ctx, d); err != nil {
			return err
		}
		result.Donation = d
		if d.Status == donation.StatusCompleted {
			t, err := s.applyCompletion(ctx, d)
			if err != nil {
				return err
			}
			result.Request = t
		}
		return nil
	})
	if overdue {
		s.expire(ctx, *d.RequestID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("donation_id", d.ID.String()).
		Str("status", string(d.Status)).
		Msg("donation recorded")
	if d.Status == donation.StatusCompleted {
		s.invalidateStats(ctx)
	}
	return &result, nil
}

func checkDonor(p *donor.Profile, now time.Time) error {
	switch p.AccountStatus {
	case donor.StatusSuspended:
		return apperr.Forbidden("your account is suspended")
	case donor.StatusDeleted:
		return apperr.Forbidden("your account has been deleted")
	}
	if age := p.Age(now); age < donor.MinDonorAge || age > donor.MaxDonorAge {
		return apperr.Validation(fmt.Sprintf("donors must be between %d and %d years old", donor.MinDonorAge, donor.MaxDonorAge))
	}
	if last := p.MostRecentDonation(); !donor.DeferralSatisfied(last, now) {
		return apperr.Validation(fmt.Sprintf("you can only donate every 56 days; next eligible date is %s",
			donor.NextEligibleDate(*last).Format("2006-01-02")))
	}
	return nil
}

// RecordDonationCompletion marks a scheduled donation COMPLETED, stamps
// the donor's last donation and recomputes the linked request, all in one
// transaction.
func (s *Service) RecordDonationCompletion(ctx context.Context, actor Actor, donationID uuid.UUID) (*CompletionResult, error) {
	var result CompletionResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.donations.GetForUpdate(ctx, donationID)
		if err != nil {
			return err
		}
		if !actor.Owns(d.DonorID) {
			return apperr.Forbidden("you are not authorized to update this donation")
		}
		if d.Status != donation.StatusScheduled {
			return apperr.InvalidState("cannot complete a " + string(d.Status) + " donation")
		}
		if err := s.donations.Transition(ctx, d.ID, donation.StatusCompleted); err != nil {
			return err
		}
		d.Status = donation.StatusCompleted

		t, err := s.applyCompletion(ctx, d)
		if err != nil {
			return err
		}
		result = CompletionResult{Donation: d, Request: t}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := s.logger.Info().Str("donation_id", donationID.String())
	if result.Request != nil {
		ev = ev.Str("request_id", result.Request.RequestID.String()).Str("request_status", string(result.Request.To))
	}
	ev.Msg("donation completed")
	s.invalidateStats(ctx)
	return &result, nil
}

// applyCompletion runs inside the caller's transaction.
func (s *Service) applyCompletion(ctx context.Context, d *donation.Donation) (*request.Transition, error) {
	if err := s.donors.StampLastDonation(ctx, d.DonorID, d.DonationDate); err != nil {
		return nil, err
	}
	if d.RequestID == nil {
		return nil, nil
	}
	t, err := s.lifecycle.Recompute(ctx, *d.RequestID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelDonation cancels a scheduled donation of the actor.
func (s *Service) CancelDonation(ctx context.Context, actor Actor, donationID uuid.UUID) (*donation.Donation, error) {
	var out *donation.Donation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.donations.GetForUpdate(ctx, donationID)
		if err != nil {
			return err
		}
		if !actor.Owns(d.DonorID) {
			return apperr.Forbidden("you are not authorized to cancel this donation")
		}
		if d.Status != donation.StatusScheduled {
			return apperr.InvalidState("cannot cancel a " + string(d.Status) + " donation")
		}
		if err := s.donations.Transition(ctx, d.ID, donation.StatusCancelled); err != nil {
			return err
		}
		d.Status = donation.StatusCancelled
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("donation_id", donationID.String()).Msg("donation cancelled")
	return out, nil
}

func (s *Service) GetDonation(ctx context.Context, actor Actor, id uuid.UUID) (*donation.Donation, error) {
	d, err := s.donations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(d.DonorID) {
		return nil, apperr.NotFound("donation not found")
	}
	return d, nil
}

func (s *Service) ListMyDonations(ctx context.Context, actor Actor, limit, offset int) ([]*donation.Donation, int, error) {
	return s.donations.ListByDonor(ctx, actor.UserID, limit, offset)
}

// -- Notifications --

func (s *Service) ListNotifications(ctx context.Context, actor Actor, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error) {
	return s.notifications.ListByUser(ctx, actor.UserID, unreadOnly, limit, offset)
}

func (s *Service) MarkNotificationRead(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.notifications.MarkRead(ctx, actor.UserID, id)
}

func (s *Service) DeleteNotification(ctx context.Context, actor Actor, id uuid.UUID) error {
	return s.notifications.Delete(ctx, actor.UserID, id)
}

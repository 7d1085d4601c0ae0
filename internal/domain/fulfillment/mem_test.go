package fulfillment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/domain/donation"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/matching"
	"github.com/bloodlink/bloodlink/internal/domain/notification"
	"github.com/bloodlink/bloodlink/internal/domain/request"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	tmpl "github.com/bloodlink/bloodlink/internal/platform/notification"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// memDB backs every mock repository so donation writes are visible to the
// request lifecycle.
type memDB struct {
	mu            sync.Mutex
	requests      map[uuid.UUID]*request.BloodRequest
	donations     map[uuid.UUID]*donation.Donation
	profiles      map[uuid.UUID]*donor.Profile
	notifications []*notification.Notification
	lifecycleSets int
	lastFilter    request.ListFilter
}

func newMemDB() *memDB {
	return &memDB{
		requests:  make(map[uuid.UUID]*request.BloodRequest),
		donations: make(map[uuid.UUID]*donation.Donation),
		profiles:  make(map[uuid.UUID]*donor.Profile),
	}
}

func (m *memDB) request(id uuid.UUID) *request.BloodRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.requests[id]
	return &c
}

func (m *memDB) notified() []*notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*notification.Notification(nil), m.notifications...)
}

// -- request.Repository --

type memRequests struct{ db *memDB }

func (r memRequests) Create(_ context.Context, req *request.BloodRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt, req.UpdatedAt = now, now
	c := *req
	r.db.requests[req.ID] = &c
	return nil
}

func (r memRequests) GetByID(_ context.Context, id uuid.UUID) (*request.BloodRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.requests[id]
	if !ok {
		return nil, apperr.NotFound("blood request not found")
	}
	c := *req
	return &c, nil
}

func (r memRequests) GetForUpdate(ctx context.Context, id uuid.UUID) (*request.BloodRequest, error) {
	return r.GetByID(ctx, id)
}

func (r memRequests) UpdateDetails(_ context.Context, req *request.BloodRequest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.requests[req.ID]
	if !ok {
		return apperr.NotFound("blood request not found")
	}
	c := *req
	c.Status, c.FulfilledUnits = stored.Status, stored.FulfilledUnits
	c.VersionID = stored.VersionID + 1
	r.db.requests[req.ID] = &c
	return nil
}

func (r memRequests) SetLifecycle(_ context.Context, id uuid.UUID, s request.Status, fulfilled float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.requests[id]
	if !ok {
		return apperr.NotFound("blood request not found")
	}
	req.Status, req.FulfilledUnits = s, fulfilled
	r.db.lifecycleSets++
	return nil
}

func (r memRequests) SumCompletedUnits(_ context.Context, id uuid.UUID) (float64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var sum float64
	for _, d := range r.db.donations {
		if d.RequestID != nil && *d.RequestID == id && d.Status == donation.StatusCompleted {
			sum += d.UnitsDonated
		}
	}
	return sum, nil
}

func (r memRequests) List(_ context.Context, f request.ListFilter, limit, offset int) ([]*request.BloodRequest, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.lastFilter = f
	var out []*request.BloodRequest
	for _, req := range r.db.requests {
		if f.OwnerID != nil && req.UserID != *f.OwnerID {
			continue
		}
		out = append(out, req)
	}
	return out, len(out), nil
}

func (r memRequests) ListUrgent(_ context.Context, at time.Time, limit int) ([]*request.BloodRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*request.BloodRequest
	for _, req := range r.db.requests {
		if req.UrgencyLevel.Urgent() && req.Open() && !req.RequiredDate.Before(at) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UrgencyLevel.Rank() != out[j].UrgencyLevel.Rank() {
			return out[i].UrgencyLevel.Rank() > out[j].UrgencyLevel.Rank()
		}
		return out[i].RequiredDate.Before(out[j].RequiredDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memRequests) ListOverdue(_ context.Context, at time.Time, limit int) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []uuid.UUID
	for id, req := range r.db.requests {
		if req.Open() && req.RequiredDate.Before(at) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r memRequests) CountByStatus(context.Context) (map[request.Status]int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[request.Status]int)
	for _, req := range r.db.requests {
		out[req.Status]++
	}
	return out, nil
}

func (r memRequests) CountUrgentOpen(context.Context) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, req := range r.db.requests {
		if req.UrgencyLevel.Urgent() && req.Status != request.StatusFulfilled && req.Status != request.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (r memRequests) TopCities(context.Context, int) ([]request.Count, error) {
	return []request.Count{{Key: "Dhaka", Count: 2}}, nil
}

func (r memRequests) CountByBloodGroupOpen(context.Context) ([]request.Count, error) {
	return []request.Count{{Key: "O_POSITIVE", Count: 1}}, nil
}

func (r memRequests) CountByUrgencyOpen(context.Context) ([]request.Count, error) {
	return []request.Count{{Key: "HIGH", Count: 1}}, nil
}

// -- donation.Repository --

type memDonations struct{ db *memDB }

func (r memDonations) Create(_ context.Context, d *donation.Donation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	c := *d
	r.db.donations[d.ID] = &c
	return nil
}

func (r memDonations) GetByID(_ context.Context, id uuid.UUID) (*donation.Donation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.donations[id]
	if !ok {
		return nil, apperr.NotFound("donation not found")
	}
	c := *d
	return &c, nil
}

func (r memDonations) GetForUpdate(ctx context.Context, id uuid.UUID) (*donation.Donation, error) {
	return r.GetByID(ctx, id)
}

func (r memDonations) Transition(_ context.Context, id uuid.UUID, s donation.Status) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.donations[id]
	if !ok || d.Status != donation.StatusScheduled {
		return apperr.InvalidState("donation is no longer scheduled")
	}
	d.Status = s
	return nil
}

func (r memDonations) ListByDonor(_ context.Context, donorID uuid.UUID, limit, offset int) ([]*donation.Donation, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*donation.Donation
	for _, d := range r.db.donations {
		if d.DonorID == donorID {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

func (r memDonations) CompletedDonorIDs(_ context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var ids []uuid.UUID
	for _, d := range r.db.donations {
		if d.RequestID != nil && *d.RequestID == requestID && d.Status == donation.StatusCompleted {
			ids = append(ids, d.DonorID)
		}
	}
	return ids, nil
}

// -- donor.Repository --

type memDonors struct{ db *memDB }

func (r memDonors) withHistory(p *donor.Profile) *donor.Profile {
	c := *p
	for _, d := range r.db.donations {
		if d.DonorID == p.UserID && d.Status == donation.StatusCompleted {
			if c.LastCompletedDonation == nil || d.DonationDate.After(*c.LastCompletedDonation) {
				at := d.DonationDate
				c.LastCompletedDonation = &at
			}
		}
	}
	return &c
}

func (r memDonors) GetProfile(_ context.Context, id uuid.UUID) (*donor.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.profiles[id]
	if !ok {
		return nil, apperr.NotFound("donor profile not found")
	}
	return r.withHistory(p), nil
}

func (r memDonors) FindCandidates(_ context.Context, q donor.CandidateQuery) ([]*donor.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*donor.Profile
	for _, p := range r.db.profiles {
		if p.BloodGroup == q.BloodGroup && p.City == q.City {
			out = append(out, r.withHistory(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstName < out[j].FirstName })
	return out, nil
}

func (r memDonors) StampLastDonation(_ context.Context, id uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.profiles[id]
	if !ok {
		return apperr.NotFound("donor profile not found")
	}
	p.LastDonation = &at
	return nil
}

// -- notification.Repository --

type memNotifications struct{ db *memDB }

func (r memNotifications) Create(_ context.Context, n *notification.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = now
	r.db.notifications = append(r.db.notifications, n)
	return nil
}

func (r memNotifications) ListByUser(_ context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*notification.Notification, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []*notification.Notification
	for _, n := range r.db.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (r memNotifications) find(userID, id uuid.UUID) (int, bool) {
	for i, n := range r.db.notifications {
		if n.ID == id && n.UserID == userID {
			return i, true
		}
	}
	return 0, false
}

func (r memNotifications) MarkRead(_ context.Context, userID, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	i, ok := r.find(userID, id)
	if !ok {
		return apperr.NotFound("notification not found")
	}
	r.db.notifications[i].IsRead = true
	return nil
}

func (r memNotifications) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	i, ok := r.find(userID, id)
	if !ok {
		return apperr.NotFound("notification not found")
	}
	r.db.notifications = append(r.db.notifications[:i], r.db.notifications[i+1:]...)
	return nil
}

// serialTx runs one transaction at a time, as the request row lock does.
// Nested calls join the outer transaction.
type serialTx struct{ mu sync.Mutex }

type inTxKey struct{}

func (t *serialTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, inTxKey{}, true))
}

type recordingQueue struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	full bool
}

func (q *recordingQueue) Enqueue(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

type fixture struct {
	db    *memDB
	svc   *Service
	queue *recordingQueue
	lc    *request.Lifecycle
	reqs  memRequests
}

func newFixture() *fixture {
	mdb := newMemDB()
	repos := Repositories{
		Requests:      memRequests{mdb},
		Donations:     memDonations{mdb},
		Donors:        memDonors{mdb},
		Notifications: memNotifications{mdb},
	}
	tx := &serialTx{}
	log := zerolog.Nop()
	lc := request.NewLifecycle(repos.Requests, tx, nil, log).WithClock(clock)
	filter := matching.NewEligibilityFilter(repos.Donors, repos.Donations, time.Second, 500).WithClock(clock)
	ranker := matching.NewRanker().WithClock(clock)
	notifier := matching.NewNotifier(repos.Notifications, tmpl.NewTemplateEngine(), nil, nil, log)

	svc := NewService(repos, tx, lc, filter, ranker, notifier, nil, log).WithClock(clock)
	q := &recordingQueue{}
	svc.SetMatchQueue(q)
	return &fixture{db: mdb, svc: svc, queue: q, lc: lc, reqs: memRequests{mdb}}
}

func (f *fixture) addRequest(owner uuid.UUID, status request.Status, units int) *request.BloodRequest {
	req := &request.BloodRequest{
		ID:              uuid.New(),
		UserID:          owner,
		Title:           "Blood needed for surgery",
		BloodGroup:      bloodgroup.OPositive,
		UnitsRequired:   units,
		UrgencyLevel:    request.UrgencyHigh,
		HospitalName:    "Dhaka Medical",
		HospitalAddress: "Secretariat Road, Dhaka 1000",
		City:            "Dhaka",
		ContactPerson:   "Rahim Uddin",
		ContactPhone:    "01712345678",
		RequiredDate:    now.Add(72 * time.Hour),
		Status:          status,
	}
	f.db.requests[req.ID] = req
	return req
}

func (f *fixture) addDonor(name string, mutate func(*donor.Profile)) *donor.Profile {
	p := &donor.Profile{
		UserID:        uuid.New(),
		Role:          donor.RoleDonor,
		AccountStatus: donor.StatusActive,
		FirstName:     name,
		BloodGroup:    bloodgroup.OPositive,
		City:          "Dhaka",
		IsAvailable:   true,
		DateOfBirth:   now.AddDate(-25, 0, 0),
	}
	if mutate != nil {
		mutate(p)
	}
	f.db.profiles[p.UserID] = p
	return p
}

func (f *fixture) addDonation(donorID uuid.UUID, requestID *uuid.UUID, units float64, status donation.Status) *donation.Donation {
	d := &donation.Donation{
		ID:           uuid.New(),
		DonorID:      donorID,
		RequestID:    requestID,
		DonationDate: now.Add(-time.Hour),
		UnitsDonated: units,
		Status:       status,
	}
	f.db.donations[d.ID] = d
	return d
}

// memStats is a map-backed cache store for checking statistics invalidation.
type memStats struct {
	mu   sync.Mutex
	data map[string]string
}

func newStatsCache() (*cache.Cache, *memStats) {
	m := &memStats{data: map[string]string{}}
	return cache.NewStore(m, "test:"), m
}

func (m *memStats) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memStats) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (m *memStats) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memStats) cached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data["test:"+statsCacheKey]
	return ok
}

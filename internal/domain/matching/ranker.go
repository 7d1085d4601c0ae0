package matching

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/request"
)

const (
	MaxCandidates = 20
	MaxNotified   = 5
)

const (
	baseScore        = 100
	sameCityBonus    = 20
	firstTimerBonus  = 5
	recentPenalty    = 10
	youngDonorBonus  = 10
	recentWindowDays = 90
	youngMinAge      = 18
	youngMaxAge      = 30
)

// Candidate is a scored donor for one matching pass.
type Candidate struct {
	DonorID uuid.UUID      `json:"donor_id"`
	Score   int            `json:"score"`
	Donor   *donor.Profile `json:"donor"`
}

// Score rates a donor for req. Recency only considers completed donations.
func Score(p *donor.Profile, req *request.BloodRequest, now time.Time) int {
	score := baseScore
	if p.City == req.City {
		score += sameCityBonus
	}
	if last := p.LastCompletedDonation; last == nil {
		score += firstTimerBonus
	} else if days := int(now.Sub(*last) / (24 * time.Hour)); days < recentWindowDays {
		score -= recentPenalty
	}
	if !p.DateOfBirth.IsZero() {
		if age := p.Age(now); age >= youngMinAge && age <= youngMaxAge {
			score += youngDonorBonus
		}
	}
	return score
}

type Ranker struct {
	now func() time.Time
}

func NewRanker() *Ranker { return &Ranker{now: time.Now} }

func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	r.now = now
	return r
}

// Rank scores donors and returns at most MaxCandidates, highest first.
// Equal scores keep their input order.
func (r *Ranker) Rank(req *request.BloodRequest, donors []*donor.Profile) []Candidate {
	now := r.now()
	out := make([]Candidate, len(donors))
	for i, p := range donors {
		out[i] = Candidate{DonorID: p.UserID, Score: Score(p, req, now), Donor: p}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > MaxCandidates {
		out = out[:MaxCandidates]
	}
	return out
}

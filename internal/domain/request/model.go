package request

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
)

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusActive             Status = "ACTIVE"
	StatusPartiallyFulfilled Status = "PARTIALLY_FULFILLED"
	StatusFulfilled          Status = "FULFILLED"
	StatusCancelled          Status = "CANCELLED"
	StatusExpired            Status = "EXPIRED"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusActive: true, StatusPartiallyFulfilled: true,
	StatusFulfilled: true, StatusCancelled: true, StatusExpired: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Terminal states are never left.
func (s Status) Terminal() bool {
	return s == StatusFulfilled || s == StatusCancelled || s == StatusExpired
}

// TerminalStatuses in a fixed order, for queries.
var TerminalStatuses = []Status{StatusFulfilled, StatusCancelled, StatusExpired}

type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow: 1, UrgencyMedium: 2, UrgencyHigh: 3, UrgencyCritical: 4,
}

func (u Urgency) Valid() bool { return urgencyRank[u] > 0 }

// Rank orders urgencies: LOW < MEDIUM < HIGH < CRITICAL. Unknown values rank 0.
func (u Urgency) Rank() int { return urgencyRank[u] }

func (u Urgency) Urgent() bool { return u.Rank() >= UrgencyHigh.Rank() }

// UrgentLevels lists the urgencies counted as urgent, lowest first.
func UrgentLevels() []string {
	var out []string
	for _, u := range []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical} {
		if u.Urgent() {
			out = append(out, string(u))
		}
	}
	return out
}

// BloodRequest maps to the blood_requests table. Status and FulfilledUnits
// are owned by Lifecycle.
type BloodRequest struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	UserID          uuid.UUID        `db:"user_id" json:"user_id"`
	Title           string           `db:"title" json:"title"`
	Description     *string          `db:"description" json:"description,omitempty"`
	BloodGroup      bloodgroup.Group `db:"blood_group" json:"blood_group"`
	UnitsRequired   int              `db:"units_required" json:"units_required"`
	FulfilledUnits  float64          `db:"fulfilled_units" json:"fulfilled_units"`
	UrgencyLevel    Urgency          `db:"urgency_level" json:"urgency_level"`
	HospitalName    string           `db:"hospital_name" json:"hospital_name"`
	HospitalAddress string           `db:"hospital_address" json:"hospital_address"`
	City            string           `db:"city" json:"city"`
	ContactPerson   string           `db:"contact_person" json:"contact_person"`
	ContactPhone    string           `db:"contact_phone" json:"contact_phone"`
	RequiredDate    time.Time        `db:"required_date" json:"required_date"`
	Status          Status           `db:"status" json:"status"`
	VersionID       int              `db:"version_id" json:"version_id"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// Open reports whether donations may still be pledged against the request.
func (r *BloodRequest) Open() bool { return !r.Status.Terminal() }

// Transition is the outcome of one lifecycle recomputation.
type Transition struct {
	RequestID      uuid.UUID `json:"request_id"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	FulfilledUnits float64   `json:"fulfilled_units"`
	Written        bool      `json:"written"`
}

func (t Transition) Changed() bool { return t.From != t.To }

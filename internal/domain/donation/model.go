package donation

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusCompleted || s == StatusCancelled
}

// Terminal donations are never changed again.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

const (
	DefaultUnits  = 1.0
	MaxUnits      = 10.0
	MaxNotesChars = 500
)

// Donation maps to the donations table. RequestID is nil for donations
// not pledged against a specific request.
type Donation struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	DonorID         uuid.UUID  `db:"donor_id" json:"donor_id"`
	RequestID       *uuid.UUID `db:"request_id" json:"request_id,omitempty"`
	DonationDate    time.Time  `db:"donation_date" json:"donation_date"`
	UnitsDonated    float64    `db:"units_donated" json:"units_donated"`
	Status          Status     `db:"status" json:"status"`
	HemoglobinLevel *float64   `db:"hemoglobin_level" json:"hemoglobin_level,omitempty"`
	BloodPressure   *string    `db:"blood_pressure" json:"blood_pressure,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

package donation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

// CreateInput is the caller-supplied part of a new donation. The donor is
// always the acting user.
type CreateInput struct {
	RequestID       *uuid.UUID `json:"request_id,omitempty"`
	DonationDate    time.Time  `json:"donation_date"`
	UnitsDonated    *float64   `json:"units_donated,omitempty"`
	Status          string     `json:"status,omitempty"`
	HemoglobinLevel *float64   `json:"hemoglobin_level,omitempty"`
	BloodPressure   *string    `json:"blood_pressure,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
}

// New validates the record-level rules of in. Donor eligibility and the
// linked request are checked by the caller.
func New(donorID uuid.UUID, in CreateInput, now time.Time) (*Donation, error) {
	d := &Donation{
		DonorID:         donorID,
		RequestID:       in.RequestID,
		DonationDate:    in.DonationDate,
		UnitsDonated:    DefaultUnits,
		Status:          StatusScheduled,
		HemoglobinLevel: in.HemoglobinLevel,
		BloodPressure:   in.BloodPressure,
		Notes:           in.Notes,
	}
	if in.UnitsDonated != nil {
		d.UnitsDonated = *in.UnitsDonated
	}
	if in.Status != "" {
		d.Status = Status(strings.ToUpper(in.Status))
	}

	if d.DonationDate.IsZero() {
		return nil, apperr.Validation("donation_date is required")
	}
	y, m, day := now.Date()
	endOfToday := time.Date(y, m, day+1, 0, 0, 0, 0, now.Location())
	if !d.DonationDate.Before(endOfToday) {
		return nil, apperr.Validation("donation_date cannot be in the future")
	}
	if d.UnitsDonated <= 0 || d.UnitsDonated > MaxUnits {
		return nil, apperr.Validation(fmt.Sprintf("units_donated must be greater than 0 and at most %g", MaxUnits))
	}
	if d.Status != StatusScheduled && d.Status != StatusCompleted {
		return nil, apperr.Validation("a new donation must be SCHEDULED or COMPLETED")
	}
	if d.HemoglobinLevel != nil && *d.HemoglobinLevel <= 0 {
		return nil, apperr.Validation("hemoglobin_level must be positive")
	}
	if d.Notes != nil && utf8.RuneCountInString(*d.Notes) > MaxNotesChars {
		return nil, apperr.Validation(fmt.Sprintf("notes must be at most %d characters", MaxNotesChars))
	}
	return d, nil
}

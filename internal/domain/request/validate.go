package request

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
	"github.com/bloodlink/bloodlink/internal/platform/apperr"
)

const (
	MinUnitsRequired = 1
	MaxUnitsRequired = 20
)

var phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)

// CreateInput is the caller-supplied part of a new request.
type CreateInput struct {
	Title           string    `json:"title"`
	Description     *string   `json:"description,omitempty"`
	BloodGroup      string    `json:"blood_group"`
	UnitsRequired   *int      `json:"units_required,omitempty"`
	UrgencyLevel    string    `json:"urgency_level,omitempty"`
	HospitalName    string    `json:"hospital_name"`
	HospitalAddress string    `json:"hospital_address"`
	City            string    `json:"city"`
	ContactPerson   string    `json:"contact_person"`
	ContactPhone    string    `json:"contact_phone"`
	RequiredDate    time.Time `json:"required_date"`
}

// UpdateInput carries the editable fields; nil leaves a field unchanged.
type UpdateInput struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	UnitsRequired   *int       `json:"units_required,omitempty"`
	UrgencyLevel    *string    `json:"urgency_level,omitempty"`
	HospitalName    *string    `json:"hospital_name,omitempty"`
	HospitalAddress *string    `json:"hospital_address,omitempty"`
	City            *string    `json:"city,omitempty"`
	ContactPerson   *string    `json:"contact_person,omitempty"`
	ContactPhone    *string    `json:"contact_phone,omitempty"`
	RequiredDate    *time.Time `json:"required_date,omitempty"`
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// New validates in and builds a PENDING request owned by owner.
func New(owner uuid.UUID, in CreateInput, now time.Time) (*BloodRequest, error) {
	group, err := bloodgroup.Parse(in.BloodGroup)
	if err != nil {
		return nil, err
	}

	urgency := UrgencyMedium
	if in.UrgencyLevel != "" {
		urgency = Urgency(strings.ToUpper(in.UrgencyLevel))
	}
	units := MinUnitsRequired
	if in.UnitsRequired != nil {
		units = *in.UnitsRequired
	}

	r := &BloodRequest{
		UserID:          owner,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		BloodGroup:      group,
		UnitsRequired:   units,
		UrgencyLevel:    urgency,
		HospitalName:    strings.TrimSpace(in.HospitalName),
		HospitalAddress: strings.TrimSpace(in.HospitalAddress),
		City:            strings.TrimSpace(in.City),
		ContactPerson:   strings.TrimSpace(in.ContactPerson),
		ContactPhone:    strings.TrimSpace(in.ContactPhone),
		RequiredDate:    in.RequiredDate,
		Status:          StatusPending,
	}
	if err := r.validate(now); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply merges in onto r and re-validates.
func (r *BloodRequest) Apply(in UpdateInput, now time.Time) error {
	if in.Title != nil {
		r.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		r.Description = in.Description
	}
	if in.UnitsRequired != nil {
		r.UnitsRequired = *in.UnitsRequired
	}
	if in.UrgencyLevel != nil {
		r.UrgencyLevel = Urgency(strings.ToUpper(*in.UrgencyLevel))
	}
	if in.HospitalName != nil {
		r.HospitalName = strings.TrimSpace(*in.HospitalName)
	}
	if in.HospitalAddress != nil {
		r.HospitalAddress = strings.TrimSpace(*in.HospitalAddress)
	}
	if in.City != nil {
		r.City = strings.TrimSpace(*in.City)
	}
	if in.ContactPerson != nil {
		r.ContactPerson = strings.TrimSpace(*in.ContactPerson)
	}
	if in.ContactPhone != nil {
		r.ContactPhone = strings.TrimSpace(*in.ContactPhone)
	}
	if in.RequiredDate != nil {
		r.RequiredDate = *in.RequiredDate
	} else {
		// an unchanged past date is not re-checked
		now = time.Time{}
	}
	return r.validate(now)
}

func checkLen(field, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min || n > max {
		return apperr.Validation(fmt.Sprintf("%s must be between %d and %d characters", field, min, max))
	}
	return nil
}

// validate checks every field. A zero now skips the required-date check.
func (r *BloodRequest) validate(now time.Time) error {
	if err := checkLen("title", r.Title, 10, 200); err != nil {
		return err
	}
	if r.Description != nil {
		if err := checkLen("description", *r.Description, 20, 1000); err != nil {
			return err
		}
	}
	if !r.BloodGroup.Valid() {
		return apperr.Validation(fmt.Sprintf("unrecognized blood group %q", r.BloodGroup))
	}
	if r.UnitsRequired < MinUnitsRequired || r.UnitsRequired > MaxUnitsRequired {
		return apperr.Validation(fmt.Sprintf("units_required must be between %d and %d", MinUnitsRequired, MaxUnitsRequired))
	}
	if !r.UrgencyLevel.Valid() {
		return apperr.Validation(fmt.Sprintf("unrecognized urgency level %q", r.UrgencyLevel))
	}
	if err := checkLen("hospital_name", r.HospitalName, 3, 100); err != nil {
		return err
	}
	if err := checkLen("hospital_address", r.HospitalAddress, 10, 500); err != nil {
		return err
	}
	if err := checkLen("city", r.City, 2, 50); err != nil {
		return err
	}
	if err := checkLen("contact_person", r.ContactPerson, 3, 50); err != nil {
		return err
	}
	if !phonePattern.MatchString(r.ContactPhone) {
		return apperr.Validation("contact_phone must be 10 to 15 digits")
	}
	if r.RequiredDate.IsZero() {
		return apperr.Validation("required_date is required")
	}
	if !now.IsZero() && r.RequiredDate.Before(StartOfDay(now)) {
		return apperr.Validation("required_date must be today or in the future")
	}
	return nil
}

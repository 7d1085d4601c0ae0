package donor

import (
	"time"

	"github.com/google/uuid"

	"github.com/bloodlink/bloodlink/internal/domain/bloodgroup"
)

type Role string

const (
	RoleDonor      Role = "DONOR"
	RoleRecipient  Role = "RECIPIENT"
	RoleHospital   Role = "HOSPITAL"
	RoleDoctor     Role = "DOCTOR"
	RolePatient    Role = "PATIENT"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

type AccountStatus string

const (
	StatusActive    AccountStatus = "ACTIVE"
	StatusInactive  AccountStatus = "INACTIVE"
	StatusSuspended AccountStatus = "SUSPENDED"
	StatusDeleted   AccountStatus = "DELETED"
)

// DeferralPeriod is the minimum gap between two whole-blood donations.
const DeferralPeriod = 56 * 24 * time.Hour

const (
	MinDonorAge = 18
	MaxDonorAge = 65
)

// Profile is a user joined with their donor profile. LastCompletedDonation
// is aggregated from the donations table and never written directly.
type Profile struct {
	UserID                uuid.UUID        `db:"user_id" json:"user_id"`
	Role                  Role             `db:"role" json:"role"`
	AccountStatus         AccountStatus    `db:"account_status" json:"account_status"`
	FirstName             string           `db:"first_name" json:"first_name"`
	LastName              string           `db:"last_name" json:"last_name"`
	BloodGroup            bloodgroup.Group `db:"blood_group" json:"blood_group"`
	City                  string           `db:"city" json:"city"`
	DateOfBirth           time.Time        `db:"date_of_birth" json:"date_of_birth"`
	Gender                *string          `db:"gender" json:"gender,omitempty"`
	IsAvailable           bool             `db:"is_available" json:"is_available"`
	LastDonation          *time.Time       `db:"last_donation" json:"last_donation,omitempty"`
	LastCompletedDonation *time.Time       `db:"last_completed_donation" json:"-"`
}

// IsActiveDonor reports whether the account may be offered as a donor.
func (p *Profile) IsActiveDonor() bool {
	return p.Role == RoleDonor && p.AccountStatus == StatusActive
}

// MostRecentDonation is the later of the profile stamp and the newest
// completed donation, or nil when the donor has never given.
func (p *Profile) MostRecentDonation() *time.Time {
	switch {
	case p.LastDonation == nil:
		return p.LastCompletedDonation
	case p.LastCompletedDonation == nil:
		return p.LastDonation
	case p.LastCompletedDonation.After(*p.LastDonation):
		return p.LastCompletedDonation
	default:
		return p.LastDonation
	}
}

// Age in whole years at now.
func (p *Profile) Age(now time.Time) int {
	return Age(p.DateOfBirth, now)
}

func Age(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// DeferralSatisfied is true when last is nil or at least DeferralPeriod
// before now.
func DeferralSatisfied(last *time.Time, now time.Time) bool {
	return last == nil || !last.After(now.Add(-DeferralPeriod))
}

// NextEligibleDate is the first instant a donor who last gave at last may
// give again.
func NextEligibleDate(last time.Time) time.Time {
	return last.Add(DeferralPeriod)
}

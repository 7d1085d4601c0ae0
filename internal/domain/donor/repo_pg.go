package donor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const profileCols = `u.id, u.role, u.account_status, p.first_name, p.last_name,
	p.blood_group, p.city, p.date_of_birth, p.gender, p.is_available, p.last_donation,
	(SELECT MAX(d.donation_date) FROM donations d
	  WHERE d.donor_id = u.id AND d.status = 'COMPLETED') AS last_completed_donation`

const profileFrom = ` FROM users u JOIN profiles p ON p.user_id = u.id`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.UserID, &p.Role, &p.AccountStatus, &p.FirstName, &p.LastName,
		&p.BloodGroup, &p.City, &p.DateOfBirth, &p.Gender, &p.IsAvailable, &p.LastDonation,
		&p.LastCompletedDonation)
	return &p, err
}

func (r *repoPG) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	p, err := scanProfile(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+profileCols+profileFrom+` WHERE u.id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("donor profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get donor profile: %w", err)
	}
	return p, nil
}

// FindCandidates orders by the ranker's recency and age terms so the
// limit keeps the donors most likely to score highest.
func (r *repoPG) FindCandidates(ctx context.Context, q CandidateQuery) ([]*Profile, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+profileCols+profileFrom+`
		WHERE u.role = 'DONOR' AND u.account_status = 'ACTIVE'
		  AND p.is_available
		  AND p.blood_group = $1
		  AND p.city = $2
		  AND (p.last_donation IS NULL OR p.last_donation <= $3)
		  AND NOT EXISTS (
		      SELECT 1 FROM donations d
		      WHERE d.donor_id = u.id AND d.status = 'COMPLETED' AND d.donation_date > $3)
		  AND NOT EXISTS (
		      SELECT 1 FROM donations d
		      WHERE d.donor_id = u.id AND d.request_id = $4 AND d.status = 'COMPLETED')
		ORDER BY p.last_donation ASC NULLS FIRST, p.date_of_birth DESC, u.id
		LIMIT $5`,
		q.BloodGroup, q.City, q.DonatedBefore, q.ExcludeRequestID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query donor candidates: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor candidate: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) StampLastDonation(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE profiles SET last_donation = $2, updated_at = NOW() WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("stamp last donation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("donor profile not found")
	}
	return nil
}

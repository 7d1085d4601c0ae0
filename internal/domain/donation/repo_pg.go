package donation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const donationCols = `id, donor_id, request_id, donation_date, units_donated::float8, status,
	hemoglobin_level::float8, blood_pressure, notes, created_at, updated_at`

func scanDonation(row pgx.Row) (*Donation, error) {
	var d Donation
	err := row.Scan(&d.ID, &d.DonorID, &d.RequestID, &d.DonationDate, &d.UnitsDonated, &d.Status,
		&d.HemoglobinLevel, &d.BloodPressure, &d.Notes, &d.CreatedAt, &d.UpdatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Donation) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO donations (id, donor_id, request_id, donation_date, units_donated, status,
			hemoglobin_level, blood_pressure, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		d.ID, d.DonorID, d.RequestID, d.DonationDate, d.UnitsDonated, d.Status,
		d.HemoglobinLevel, d.BloodPressure, d.Notes,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(err, apperr.KindConflict, "donation already exists")
	}
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, sql string, id uuid.UUID) (*Donation, error) {
	d, err := scanDonation(db.Conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("donation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return d, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return r.get(ctx, `SELECT `+donationCols+` FROM donations WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Donation, error) {
	return r.get(ctx, `SELECT `+donationCols+` FROM donations WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE donations SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'SCHEDULED'`, id, status)
	if err != nil {
		return fmt.Errorf("transition donation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.InvalidState("donation is no longer scheduled")
	}
	return nil
}

func (r *repoPG) ListByDonor(ctx context.Context, donorID uuid.UUID, limit, offset int) ([]*Donation, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM donations WHERE donor_id = $1`, donorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count donations: %w", err)
	}
	rows, err := conn.Query(ctx, `SELECT `+donationCols+` FROM donations
		WHERE donor_id = $1 ORDER BY donation_date DESC, id LIMIT $2 OFFSET $3`, donorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}
	defer rows.Close()

	var out []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan donation: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *repoPG) CompletedDonorIDs(ctx context.Context, requestID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT donor_id FROM donations
		WHERE request_id = $1 AND status = 'COMPLETED'`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list completed donors: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan donor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

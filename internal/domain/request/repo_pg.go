package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const requestCols = `id, user_id, title, description, blood_group, units_required, fulfilled_units::float8,
	urgency_level, hospital_name, hospital_address, city, contact_person, contact_phone,
	required_date, status, version_id, created_at, updated_at`

const urgencyRankSQL = `CASE urgency_level WHEN 'CRITICAL' THEN 4 WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END`

var sortColumns = map[string]string{
	"createdAt":    "created_at",
	"requiredDate": "required_date",
	"urgencyLevel": urgencyRankSQL,
}

func scanRequest(row pgx.Row) (*BloodRequest, error) {
	var r BloodRequest
	err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.BloodGroup, &r.UnitsRequired,
		&r.FulfilledUnits, &r.UrgencyLevel, &r.HospitalName, &r.HospitalAddress, &r.City,
		&r.ContactPerson, &r.ContactPhone, &r.RequiredDate, &r.Status, &r.VersionID,
		&r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func collect(rows pgx.Rows) ([]*BloodRequest, error) {
	defer rows.Close()
	var out []*BloodRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blood request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, req *BloodRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO blood_requests (id, user_id, title, description, blood_group, units_required,
			urgency_level, hospital_name, hospital_address, city, contact_person, contact_phone,
			required_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING fulfilled_units::float8, version_id, created_at, updated_at`,
		req.ID, req.UserID, req.Title, req.Description, req.BloodGroup, req.UnitsRequired,
		req.UrgencyLevel, req.HospitalName, req.HospitalAddress, req.City, req.ContactPerson,
		req.ContactPhone, req.RequiredDate, req.Status,
	).Scan(&req.FulfilledUnits, &req.VersionID, &req.CreatedAt, &req.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return apperr.Wrap(err, apperr.KindConflict, "blood request already exists")
	}
	if err != nil {
		return fmt.Errorf("insert blood request: %w", err)
	}
	return nil
}

func (r *repoPG) get(ctx context.Context, sql string, id uuid.UUID) (*BloodRequest, error) {
	req, err := scanRequest(db.Conn(ctx, r.pool).QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("blood request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get blood request: %w", err)
	}
	return req, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*BloodRequest, error) {
	return r.get(ctx, `SELECT `+requestCols+` FROM blood_requests WHERE id = $1`, id)
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*BloodRequest, error) {
	return r.get(ctx, `SELECT `+requestCols+` FROM blood_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *repoPG) UpdateDetails(ctx context.Context, req *BloodRequest) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE blood_requests SET title = $2, description = $3, units_required = $4,
			urgency_level = $5, hospital_name = $6, hospital_address = $7, city = $8,
			contact_person = $9, contact_phone = $10, required_date = $11,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version_id, updated_at`,
		req.ID, req.Title, req.Description, req.UnitsRequired, req.UrgencyLevel,
		req.HospitalName, req.HospitalAddress, req.City, req.ContactPerson, req.ContactPhone,
		req.RequiredDate,
	).Scan(&req.VersionID, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("blood request not found")
	}
	if err != nil {
		return fmt.Errorf("update blood request: %w", err)
	}
	return nil
}

func (r *repoPG) SetLifecycle(ctx context.Context, id uuid.UUID, status Status, fulfilledUnits float64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE blood_requests SET status = $2, fulfilled_units = $3,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1`, id, status, fulfilledUnits)
	if err != nil {
		return fmt.Errorf("set blood request lifecycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("blood request not found")
	}
	return nil
}

func (r *repoPG) SumCompletedUnits(ctx context.Context, id uuid.UUID) (float64, error) {
	var sum float64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(units_donated), 0)::float8 FROM donations
		WHERE request_id = $1 AND status = 'COMPLETED'`, id).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum completed units: %w", err)
	}
	return sum, nil
}

func statusStrings(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*BloodRequest, int, error) {
	q := db.NewQuery("blood_requests", requestCols)
	if f.OwnerID != nil {
		q.Where("user_id = " + q.Arg(*f.OwnerID))
	}
	if f.BloodGroup != "" {
		q.Where("blood_group = " + q.Arg(f.BloodGroup))
	}
	if f.City != "" {
		q.Where("city ILIKE " + q.Arg("%"+f.City+"%"))
	}
	if f.Urgency != "" {
		q.Where("urgency_level = " + q.Arg(f.Urgency))
	}
	if len(f.Statuses) > 0 {
		q.Where("status = ANY(" + q.Arg(statusStrings(f.Statuses)) + ")")
	}
	if len(f.ExcludeStatuses) > 0 {
		q.Where("NOT (status = ANY(" + q.Arg(statusStrings(f.ExcludeStatuses)) + "))")
	}
	if f.RequiredFrom != nil {
		q.Where("required_date >= " + q.Arg(*f.RequiredFrom))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := q.Arg("%" + s + "%")
		q.Where(fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s OR hospital_name ILIKE %[1]s OR city ILIKE %[1]s OR contact_person ILIKE %[1]s)", p))
	}
	q.Sort(f.SortBy, f.SortAsc, sortColumns, "created_at DESC", "id")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blood requests: %w", err)
	}
	rows, err := conn.Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blood requests: %w", err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *repoPG) ListUrgent(ctx context.Context, now time.Time, limit int) ([]*BloodRequest, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+requestCols+` FROM blood_requests
		WHERE urgency_level = ANY($3)
		  AND status IN ('PENDING','ACTIVE','PARTIALLY_FULFILLED')
		  AND required_date >= $1
		ORDER BY `+urgencyRankSQL+` DESC, required_date ASC, id
		LIMIT $2`, now, limit, UrgentLevels())
	if err != nil {
		return nil, fmt.Errorf("list urgent blood requests: %w", err)
	}
	return collect(rows)
}

func (r *repoPG) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id FROM blood_requests
		WHERE status IN ('PENDING','ACTIVE','PARTIALLY_FULFILLED') AND required_date < $1
		ORDER BY required_date, id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue blood requests: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan overdue id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *repoPG) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT status, COUNT(*) FROM blood_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()
	out := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[s] = n
	}
	return out, rows.Err()
}

func (r *repoPG) CountUrgentOpen(ctx context.Context) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM blood_requests
		WHERE urgency_level = ANY($1) AND status NOT IN ('FULFILLED','CANCELLED')`, UrgentLevels()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count urgent requests: %w", err)
	}
	return n, nil
}

func (r *repoPG) counts(ctx context.Context, what, sql string, args ...any) ([]Count, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", what, err)
	}
	defer rows.Close()
	out := []Count{}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", what, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) TopCities(ctx context.Context, limit int) ([]Count, error) {
	return r.counts(ctx, "city", `
		SELECT city, COUNT(*) AS n FROM blood_requests
		WHERE status <> 'CANCELLED'
		GROUP BY city ORDER BY n DESC, city LIMIT $1`, limit)
}

func (r *repoPG) CountByBloodGroupOpen(ctx context.Context) ([]Count, error) {
	return r.counts(ctx, "blood group", `
		SELECT blood_group, COUNT(*) FROM blood_requests
		WHERE status NOT IN ('FULFILLED','CANCELLED')
		GROUP BY blood_group ORDER BY blood_group`)
}

func (r *repoPG) CountByUrgencyOpen(ctx context.Context) ([]Count, error) {
	return r.counts(ctx, "urgency", `
		SELECT urgency_level, COUNT(*) FROM blood_requests
		WHERE status NOT IN ('FULFILLED','CANCELLED')
		GROUP BY urgency_level ORDER BY `+urgencyRankSQL+` DESC`)
}

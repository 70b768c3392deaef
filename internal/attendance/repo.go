package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `
	id, employee_id, to_char(day, 'YYYY-MM-DD'), status,
	check_in_at, check_in_lat, check_in_lng, check_in_address, check_in_captured_at,
	photo_url,
	check_out_at, check_out_lat, check_out_lng, check_out_address,
	hours_worked,
	last_lat, last_lng, last_address, last_captured_at,
	created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec          Record
		checkInCap   sql.NullTime
		outAt        sql.NullTime
		outLat       sql.NullFloat64
		outLng       sql.NullFloat64
		outAddr      sql.NullString
		hours        sql.NullFloat64
		lastLat      sql.NullFloat64
		lastLng      sql.NullFloat64
		lastAddr     sql.NullString
		lastCaptured sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.EmployeeID, &rec.Day, &rec.Status,
		&rec.CheckInAt, &rec.CheckInLoc.Latitude, &rec.CheckInLoc.Longitude, &rec.CheckInLoc.Address, &checkInCap,
		&rec.PhotoURL,
		&outAt, &outLat, &outLng, &outAddr,
		&hours,
		&lastLat, &lastLng, &lastAddr, &lastCaptured,
		&rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if checkInCap.Valid {
		rec.CheckInLoc.CapturedAt = checkInCap.Time
	}
	if outAt.Valid {
		t := outAt.Time
		rec.CheckOutAt = &t
	}
	if outLat.Valid && outLng.Valid {
		rec.CheckOutLoc = &Location{
			Latitude:  outLat.Float64,
			Longitude: outLng.Float64,
			Address:   outAddr.String,
		}
		if outAt.Valid {
			rec.CheckOutLoc.CapturedAt = outAt.Time
		}
	}
	if hours.Valid {
		h := hours.Float64
		rec.HoursWorked = &h
	}
	if lastLat.Valid && lastLng.Valid {
		rec.LastLoc = &Location{
			Latitude:  lastLat.Float64,
			Longitude: lastLng.Float64,
			Address:   lastAddr.String,
		}
		if lastCaptured.Valid {
			rec.LastLoc.CapturedAt = lastCaptured.Time
		}
	}
	return rec, nil
}

// UpsertEmployee ensures an employee row exists.
func (r *Repository) UpsertEmployee(ctx context.Context, employeeID string, name *string) error {
	if employeeID == "" {
		return errors.New("employee id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (id, employee_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, employees.name)
	`, uuid.NewString(), employeeID, name)
	return err
}

// GetEmployee returns a single employee, nil when unknown.
func (r *Repository) GetEmployee(ctx context.Context, employeeID string) (*Employee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, employee_id, name, role, blocked, created_at
		FROM employees WHERE employee_id = $1
	`, employeeID)
	var e Employee
	if err := row.Scan(&e.ID, &e.EmployeeID, &e.Name, &e.Role, &e.Blocked, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// SetBlocked toggles the blocked flag consumed by the lifecycle checks.
func (r *Repository) SetBlocked(ctx context.Context, employeeID string, blocked bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE employees SET blocked = $2 WHERE employee_id = $1`, employeeID, blocked)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownEmployee
	}
	return nil
}

// InsertRecord writes a new checked-in record. The unique index on
// (employee_id, day) makes a same-day duplicate fail with a conflict, which
// the caller maps to ErrAlreadyCheckedIn.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (
			id, employee_id, day, status,
			check_in_at, check_in_lat, check_in_lng, check_in_address, check_in_captured_at,
			photo_url, last_lat, last_lng, last_address, last_captured_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $6, $7, $8, $9)
		RETURNING created_at
	`, rec.ID, rec.EmployeeID, rec.Day, rec.Status,
		rec.CheckInAt, rec.CheckInLoc.Latitude, rec.CheckInLoc.Longitude, rec.CheckInLoc.Address, rec.CheckInLoc.CapturedAt,
		rec.PhotoURL)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrAlreadyCheckedIn
		}
		return Record{}, err
	}
	rec.LastLoc = &rec.CheckInLoc
	return rec, nil
}

// GetByDay returns the record for one employee and calendar day, nil if none.
func (r *Repository) GetByDay(ctx context.Context, employeeID, day string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE employee_id = $1 AND day = $2`,
		employeeID, day)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CompleteCheckout performs the terminal transition. The status guard in the
// WHERE clause keeps a concurrent double-checkout from applying twice; zero
// rows means the record was not in checked-in state.
func (r *Repository) CompleteCheckout(ctx context.Context, id string, at time.Time, loc Location, hours float64) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET status = $2, check_out_at = $3,
			check_out_lat = $4, check_out_lng = $5, check_out_address = $6,
			hours_worked = $7,
			last_lat = $4, last_lng = $5, last_address = $6, last_captured_at = $8
		WHERE id = $1 AND status = $9
		RETURNING `+recordColumns,
		id, StatusCheckedOut, at,
		loc.Latitude, loc.Longitude, loc.Address,
		hours, loc.CapturedAt, StatusCheckedIn)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// UpdateLastLocation applies a sample to the active record. Samples captured
// before the stored latest are rejected by the guard, so delivery is
// last-write-wins on capture time, not arrival order. Returns the record id
// and whether a row was updated.
func (r *Repository) UpdateLastLocation(ctx context.Context, employeeID, day string, loc Location) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_records
		SET last_lat = $3, last_lng = $4, last_address = $5, last_captured_at = $6
		WHERE employee_id = $1 AND day = $2 AND status = $7
			AND (last_captured_at IS NULL OR last_captured_at <= $6)
		RETURNING id
	`, employeeID, day, loc.Latitude, loc.Longitude, loc.Address, loc.CapturedAt, StatusCheckedIn)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

// InsertLocationSample appends to the telemetry trail.
func (r *Repository) InsertLocationSample(ctx context.Context, recordID, employeeID string, loc Location) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO location_history (id, record_id, employee_id, lat, lng, address, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), recordID, employeeID, loc.Latitude, loc.Longitude, loc.Address, loc.CapturedAt)
	return err
}

// ListByDay returns all records for one calendar day.
func (r *Repository) ListByDay(ctx context.Context, day string) ([]Record, error) {
	return r.list(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE day = $1 ORDER BY check_in_at`,
		day)
}

// ListBetween returns records for a closed date range, oldest first.
func (r *Repository) ListBetween(ctx context.Context, start, end string) ([]Record, error) {
	return r.list(ctx,
		`SELECT `+recordColumns+` FROM attendance_records WHERE day BETWEEN $1 AND $2 ORDER BY day, check_in_at`,
		start, end)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// LocationHistory returns an employee's recorded samples, newest first.
func (r *Repository) LocationHistory(ctx context.Context, employeeID string, limit int) ([]Location, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT lat, lng, address, captured_at
		FROM location_history
		WHERE employee_id = $1
		ORDER BY captured_at DESC
		LIMIT $2
	`, employeeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Location
	for rows.Next() {
		var loc Location
		if err := rows.Scan(&loc.Latitude, &loc.Longitude, &loc.Address, &loc.CapturedAt); err != nil {
			return nil, err
		}
		res = append(res, loc)
	}
	return res, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

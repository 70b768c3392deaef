package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"attendtrack/internal/imagestore"
	"attendtrack/internal/metrics"
)

// Store is the persistence surface the service needs. Implemented by
// *Repository; tests substitute an in-memory fake.
type Store interface {
	GetEmployee(ctx context.Context, employeeID string) (*Employee, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	GetByDay(ctx context.Context, employeeID, day string) (*Record, error)
	CompleteCheckout(ctx context.Context, id string, at time.Time, loc Location, hours float64) (*Record, error)
	UpdateLastLocation(ctx context.Context, employeeID, day string, loc Location) (string, bool, error)
	InsertLocationSample(ctx context.Context, recordID, employeeID string, loc Location) error
	ListByDay(ctx context.Context, day string) ([]Record, error)
	ListBetween(ctx context.Context, start, end string) ([]Record, error)
	LocationHistory(ctx context.Context, employeeID string, limit int) ([]Location, error)
}

// Service enforces the daily check-in/check-out contract.
type Service struct {
	store         Store
	images        imagestore.Store
	minShiftHours float64

	now func() time.Time
}

// NewService creates a service backed by a store and an image backend.
func NewService(store Store, images imagestore.Store, minShiftHours float64) *Service {
	if minShiftHours <= 0 {
		minShiftHours = 9
	}
	return &Service{
		store:         store,
		images:        images,
		minShiftHours: minShiftHours,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// day keys records by the UTC calendar date.
func (s *Service) day(t time.Time) string {
	return t.Format("2006-01-02")
}

// CheckIn creates today's record. Both pieces of evidence are mandatory: a
// decodable photo and a location with in-range coordinates.
func (s *Service) CheckIn(ctx context.Context, employeeID string, photo []byte, filename string, loc Location) (Record, error) {
	emp, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return Record{}, fmt.Errorf("load employee: %w", err)
	}
	if emp == nil {
		return Record{}, ErrUnknownEmployee
	}
	if emp.Blocked {
		return Record{}, ErrBlocked
	}
	if len(photo) == 0 {
		return Record{}, ErrMissingImage
	}
	if err := validateLocation(loc); err != nil {
		return Record{}, err
	}

	now := s.now()
	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = now
	}

	photoURL, err := s.images.Store(ctx, photo, filename)
	if err != nil {
		return Record{}, fmt.Errorf("store photo: %w", err)
	}

	rec, err := s.store.InsertRecord(ctx, Record{
		EmployeeID: employeeID,
		Day:        s.day(now),
		Status:     StatusCheckedIn,
		CheckInAt:  now,
		CheckInLoc: loc,
		PhotoURL:   photoURL,
	})
	if err != nil {
		return Record{}, err
	}
	if err := s.store.InsertLocationSample(ctx, rec.ID, employeeID, loc); err != nil {
		return Record{}, fmt.Errorf("record check-in sample: %w", err)
	}
	metrics.CheckIns.Inc()
	return rec, nil
}

// CheckOut performs the terminal transition for today. Below the minimum
// shift the first call returns *EarlyCheckoutError without mutating anything;
// the caller repeats with confirm set to proceed.
func (s *Service) CheckOut(ctx context.Context, employeeID string, loc Location, confirm bool) (Record, error) {
	if err := validateLocation(loc); err != nil {
		return Record{}, err
	}

	now := s.now()
	rec, err := s.store.GetByDay(ctx, employeeID, s.day(now))
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, ErrNotCheckedIn
	}
	if rec.Status == StatusCheckedOut {
		return Record{}, ErrAlreadyCheckedOut
	}

	hours := now.Sub(rec.CheckInAt).Hours()
	if hours < s.minShiftHours && !confirm {
		metrics.EarlyCheckoutPrompts.Inc()
		return Record{}, &EarlyCheckoutError{HoursWorked: hours, MinHours: s.minShiftHours}
	}

	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = now
	}
	updated, err := s.store.CompleteCheckout(ctx, rec.ID, now, loc, hours)
	if err != nil {
		return Record{}, err
	}
	if updated == nil {
		// lost the race: the record left checked-in state under us
		return Record{}, ErrAlreadyCheckedOut
	}
	if err := s.store.InsertLocationSample(ctx, rec.ID, employeeID, loc); err != nil {
		return Record{}, fmt.Errorf("record check-out sample: %w", err)
	}
	metrics.CheckOuts.Inc()
	return *updated, nil
}

// Today returns the current day's record, nil when the employee has not
// checked in. Idempotent: the UI rehydrates its state from this call alone.
func (s *Service) Today(ctx context.Context, employeeID string) (*Record, error) {
	return s.store.GetByDay(ctx, employeeID, s.day(s.now()))
}

// UpdateLocation applies a periodic sample to the active record. Samples
// older than the stored latest are rejected (ErrStaleSample) so out-of-order
// delivery cannot roll the position back.
func (s *Service) UpdateLocation(ctx context.Context, employeeID string, loc Location) error {
	if err := validateLocation(loc); err != nil {
		return err
	}
	now := s.now()
	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = now
	}

	day := s.day(now)
	recordID, updated, err := s.store.UpdateLastLocation(ctx, employeeID, day, loc)
	if err != nil {
		return err
	}
	if !updated {
		rec, err := s.store.GetByDay(ctx, employeeID, day)
		if err != nil {
			return err
		}
		switch {
		case rec == nil:
			return ErrNotCheckedIn
		case rec.Status == StatusCheckedOut:
			return ErrAlreadyCheckedOut
		default:
			metrics.StaleLocationSamples.Inc()
			return ErrStaleSample
		}
	}

	if err := s.store.InsertLocationSample(ctx, recordID, employeeID, loc); err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	metrics.LocationUpdates.Inc()
	return nil
}

// ByDate returns every record for one calendar day (YYYY-MM-DD).
func (s *Service) ByDate(ctx context.Context, day string) ([]Record, error) {
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", day, err)
	}
	return s.store.ListByDay(ctx, day)
}

// Between returns records for a closed date range for reporting exports.
func (s *Service) Between(ctx context.Context, start, end string) ([]Record, error) {
	for _, d := range []string{start, end} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", d, err)
		}
	}
	return s.store.ListBetween(ctx, start, end)
}

// History returns an employee's recorded location samples.
func (s *Service) History(ctx context.Context, employeeID string, limit int) ([]Location, error) {
	return s.store.LocationHistory(ctx, employeeID, limit)
}

func validateLocation(loc Location) error {
	if loc == (Location{}) {
		return ErrMissingLocation
	}
	if math.IsNaN(loc.Latitude) || math.IsNaN(loc.Longitude) {
		return ErrInvalidLocation
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return ErrInvalidLocation
	}
	return nil
}

package attendance

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// fakeStore is an in-memory Store keyed the same way as the database:
// one record per (employee, day), enforced at insert.
type fakeStore struct {
	employees map[string]*Employee
	records   map[string]*Record
	samples   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		employees: make(map[string]*Employee),
		records:   make(map[string]*Record),
	}
}

func key(employeeID, day string) string { return employeeID + "|" + day }

func (f *fakeStore) GetEmployee(_ context.Context, employeeID string) (*Employee, error) {
	return f.employees[employeeID], nil
}

func (f *fakeStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	k := key(rec.EmployeeID, rec.Day)
	if _, exists := f.records[k]; exists {
		return Record{}, ErrAlreadyCheckedIn
	}
	rec.ID = fmt.Sprintf("rec-%d", len(f.records)+1)
	rec.CreatedAt = rec.CheckInAt
	loc := rec.CheckInLoc
	rec.LastLoc = &loc
	stored := rec
	f.records[k] = &stored
	return rec, nil
}

func (f *fakeStore) GetByDay(_ context.Context, employeeID, day string) (*Record, error) {
	rec, ok := f.records[key(employeeID, day)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) CompleteCheckout(_ context.Context, id string, at time.Time, loc Location, hours float64) (*Record, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			if rec.Status != StatusCheckedIn {
				return nil, nil
			}
			rec.Status = StatusCheckedOut
			rec.CheckOutAt = &at
			rec.CheckOutLoc = &loc
			rec.HoursWorked = &hours
			rec.LastLoc = &loc
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateLastLocation(_ context.Context, employeeID, day string, loc Location) (string, bool, error) {
	rec, ok := f.records[key(employeeID, day)]
	if !ok || rec.Status != StatusCheckedIn {
		return "", false, nil
	}
	if rec.LastLoc != nil && loc.CapturedAt.Before(rec.LastLoc.CapturedAt) {
		return "", false, nil
	}
	rec.LastLoc = &loc
	return rec.ID, true, nil
}

func (f *fakeStore) InsertLocationSample(_ context.Context, _, _ string, _ Location) error {
	f.samples++
	return nil
}

func (f *fakeStore) ListByDay(_ context.Context, day string) ([]Record, error) {
	var res []Record
	for _, rec := range f.records {
		if rec.Day == day {
			res = append(res, *rec)
		}
	}
	return res, nil
}

func (f *fakeStore) ListBetween(_ context.Context, start, end string) ([]Record, error) {
	var res []Record
	for _, rec := range f.records {
		if rec.Day >= start && rec.Day <= end {
			res = append(res, *rec)
		}
	}
	return res, nil
}

func (f *fakeStore) LocationHistory(_ context.Context, _ string, _ int) ([]Location, error) {
	return nil, nil
}

type fakeImages struct {
	stored int
	fail   error
}

func (f *fakeImages) Store(_ context.Context, _ []byte, _ string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.stored++
	return fmt.Sprintf("/uploads/%d.jpg", f.stored), nil
}

var (
	testPhoto = []byte("jpeg-bytes")
	testLoc   = Location{Latitude: 12.97, Longitude: 77.59, Address: "Bengaluru"}
)

func newTestService(t *testing.T, at time.Time) (*Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	fs.employees["emp-1"] = &Employee{EmployeeID: "emp-1", Role: "employee"}
	fs.employees["emp-blocked"] = &Employee{EmployeeID: "emp-blocked", Blocked: true}
	svc := NewService(fs, &fakeImages{}, 9)
	svc.now = func() time.Time { return at }
	return svc, fs
}

func TestCheckInValidation(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, base)
	ctx := context.Background()

	tests := []struct {
		name       string
		employeeID string
		photo      []byte
		loc        Location
		want       error
	}{
		{"unknown employee", "nobody", testPhoto, testLoc, ErrUnknownEmployee},
		{"blocked employee", "emp-blocked", testPhoto, testLoc, ErrBlocked},
		{"missing photo", "emp-1", nil, testLoc, ErrMissingImage},
		{"missing location", "emp-1", testPhoto, Location{}, ErrMissingLocation},
		{"latitude out of range", "emp-1", testPhoto, Location{Latitude: 95, Longitude: 10}, ErrInvalidLocation},
		{"longitude out of range", "emp-1", testPhoto, Location{Latitude: 10, Longitude: 200}, ErrInvalidLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CheckIn(ctx, tt.employeeID, tt.photo, "photo.jpg", tt.loc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("CheckIn error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckInSuccessAndDuplicate(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, fs := newTestService(t, base)
	ctx := context.Background()

	rec, err := svc.CheckIn(ctx, "emp-1", testPhoto, "photo.jpg", testLoc)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if rec.Status != StatusCheckedIn {
		t.Errorf("status = %q, want %q", rec.Status, StatusCheckedIn)
	}
	if rec.PhotoURL == "" {
		t.Error("photo URL not set")
	}
	if rec.Day != "2025-03-10" {
		t.Errorf("day = %q, want 2025-03-10", rec.Day)
	}
	if !rec.CheckInAt.Equal(base) {
		t.Errorf("check-in at = %v, want %v", rec.CheckInAt, base)
	}
	if fs.samples != 1 {
		t.Errorf("samples recorded = %d, want 1", fs.samples)
	}

	if _, err := svc.CheckIn(ctx, "emp-1", testPhoto, "photo.jpg", testLoc); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("second CheckIn error = %v, want %v", err, ErrAlreadyCheckedIn)
	}
}

func TestCheckOutRequiresCheckIn(t *testing.T) {
	base := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, base)

	_, err := svc.CheckOut(context.Background(), "emp-1", testLoc, false)
	if !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("CheckOut error = %v, want %v", err, ErrNotCheckedIn)
	}
}

func TestCheckOutComputesExactHours(t *testing.T) {
	checkIn := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, checkIn)
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-1", testPhoto, "photo.jpg", testLoc); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	svc.now = func() time.Time { return time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC) }
	rec, err := svc.CheckOut(ctx, "emp-1", testLoc, false)
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if rec.Status != StatusCheckedOut {
		t.Errorf("status = %q, want %q", rec.Status, StatusCheckedOut)
	}
	if rec.HoursWorked == nil || *rec.HoursWorked != 9.5 {
		t.Fatalf("hoursWorked = %v, want exactly 9.5", rec.HoursWorked)
	}
}

func TestEarlyCheckoutConfirmation(t *testing.T) {
	checkIn := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, fs := newTestService(t, checkIn)
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, "emp-1", testPhoto, "photo.jpg", testLoc); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	svc.now = func() time.Time { return checkIn.Add(4 * time.Hour) }

	_, err := svc.CheckOut(ctx, "emp-1", testLoc, false)
	var early *EarlyCheckoutError
	if !errors.As(err, &early) {
		t.Fatalf("CheckOut error = %v, want EarlyCheckoutError", err)
	}
	if early.HoursWorked != 4 {
		t.Errorf("early hours = %v, want 4", early.HoursWorked)
	}

	// the unconfirmed attempt must not have mutated the record
	rec, _ := fs.GetByDay(ctx, "emp-1", "2025-03-10")
	if rec.Status != StatusCheckedIn {
		t.Fatalf("record mutated by unconfirmed checkout: status = %q", rec.Status)
	}

	out, err := svc.CheckOut(ctx, "emp-1", testLoc, true)
	if err != nil {
		t.Fatalf("confirmed CheckOut: %v", err)
	}
	if out.Status != StatusCheckedOut || out.HoursWorked == nil || *out.HoursWorked != 4 {
		t.Fatalf("confirmed checkout record = %+v", out)
	}

	if _, err := svc.CheckOut(ctx, "emp-1", testLoc, true); !errors.Is(err, ErrAlreadyCheckedOut) {
		t.Fatalf("repeat CheckOut error = %v, want %v", err, ErrAlreadyCheckedOut)
	}
}

func TestTodayIsIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, base)
	ctx := context.Background()

	if rec, err := svc.Today(ctx, "emp-1"); err != nil || rec != nil {
		t.Fatalf("Today before check-in = (%v, %v), want (nil, nil)", rec, err)
	}

	if _, err := svc.CheckIn(ctx, "emp-1", testPhoto, "photo.jpg", testLoc); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	first, err := svc.Today(ctx, "emp-1")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	second, err := svc.Today(ctx, "emp-1")
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Today not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestUpdateLocationLifecycle(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	svc, fs := newTestService(t, base)
	ctx := context.Background()

	sample := testLoc
	sample.CapturedAt = base.Add(time.Minute)

	if err := svc.UpdateLocation(ctx, "emp-1", sample); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("UpdateLocation before check-in = %v, want %v", err, ErrNotCheckedIn)
	}

	if _, err := svc.CheckIn(ctx, "emp-1", testPhoto, "photo.jpg", testLoc); err != nil {
		t.Fatalf("CheckIn: %v", err)
	}

	if err := svc.UpdateLocation(ctx, "emp-1", sample); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	rec, _ := fs.GetByDay(ctx, "emp-1", "2025-03-10")
	if rec.LastLoc == nil || !rec.LastLoc.CapturedAt.Equal(sample.CapturedAt) {
		t.Fatalf("last location not applied: %+v", rec.LastLoc)
	}

	stale := testLoc
	stale.CapturedAt = base.Add(-time.Hour)
	if err := svc.UpdateLocation(ctx, "emp-1", stale); !errors.Is(err, ErrStaleSample) {
		t.Fatalf("stale UpdateLocation = %v, want %v", err, ErrStaleSample)
	}

	svc.now = func() time.Time { return base.Add(10 * time.Hour) }
	if _, err := svc.CheckOut(ctx, "emp-1", testLoc, false); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	after := testLoc
	after.CapturedAt = base.Add(11 * time.Hour)
	if err := svc.UpdateLocation(ctx, "emp-1", after); !errors.Is(err, ErrAlreadyCheckedOut) {
		t.Fatalf("UpdateLocation after checkout = %v, want %v", err, ErrAlreadyCheckedOut)
	}
}

package attendance

import "time"

// Record statuses. A checked-out record is terminal for the day.
const (
	StatusCheckedIn  = "checked-in"
	StatusCheckedOut = "checked-out"
)

// Location is a single device-reported position sample.
type Location struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address"`
	CapturedAt time.Time `json:"captured_at"`
}

// Record is one employee's attendance for one calendar day.
type Record struct {
	ID          string     `json:"id"`
	EmployeeID  string     `json:"employee_id"`
	Day         string     `json:"day"` // YYYY-MM-DD
	Status      string     `json:"status"`
	CheckInAt   time.Time  `json:"check_in_at"`
	CheckInLoc  Location   `json:"check_in_location"`
	PhotoURL    string     `json:"photo_url"`
	CheckOutAt  *time.Time `json:"check_out_at,omitempty"`
	CheckOutLoc *Location  `json:"check_out_location,omitempty"`
	// HoursWorked is elapsed wall-clock hours between check-in and check-out,
	// stored at full precision. Rounding is a display concern.
	HoursWorked *float64  `json:"hours_worked,omitempty"`
	LastLoc     *Location `json:"last_location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Employee is the identity the auth layer resolves tokens to.
type Employee struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Name       *string   `json:"name,omitempty"`
	Role       string    `json:"role"`
	Blocked    bool      `json:"blocked"`
	CreatedAt  time.Time `json:"created_at"`
}

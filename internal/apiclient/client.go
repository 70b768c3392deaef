// Package apiclient is the HTTP client the tracking agent uses to talk to
// the attendance API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"attendtrack/internal/attendance"
	"attendtrack/internal/tracker"
)

// ErrTimeout distinguishes a timed-out request from other failures so the
// caller can present retry guidance instead of a generic error.
var ErrTimeout = errors.New("request timed out")

// Client calls the attendance API with a bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client. The timeout is generous because check-ins carry a
// photo and may travel over slow mobile links.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register enrolls the employee and stores the issued access token on the
// client for subsequent calls.
func (c *Client) Register(ctx context.Context, employeeID, name string) error {
	body, _ := json.Marshal(map[string]string{"employee_id": employeeID, "name": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/auth/register", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out tokenResponse
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return err
	}
	c.Token = out.AccessToken
	return nil
}

// CheckIn submits photo and location evidence and returns the created record.
func (c *Client) CheckIn(ctx context.Context, photo []byte, filename string, loc attendance.Location) (attendance.Record, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return attendance.Record{}, err
	}
	if _, err := part.Write(photo); err != nil {
		return attendance.Record{}, err
	}
	locJSON, _ := json.Marshal(loc)
	_ = w.WriteField("location", string(locJSON))
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/attendance/mark", &buf)
	if err != nil {
		return attendance.Record{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out struct {
		Record attendance.Record `json:"record"`
	}
	if err := c.do(req, http.StatusCreated, &out); err != nil {
		return attendance.Record{}, err
	}
	return out.Record, nil
}

// CheckOut requests the terminal transition. When the shift is below the
// minimum the server answers with confirmation_required and no mutation;
// repeat with confirm set to proceed.
func (c *Client) CheckOut(ctx context.Context, loc attendance.Location, confirm bool) (attendance.Record, bool, error) {
	body, _ := json.Marshal(map[string]any{"location": loc, "confirm": confirm})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/attendance/checkout", bytes.NewReader(body))
	if err != nil {
		return attendance.Record{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Record               attendance.Record `json:"record"`
		ConfirmationRequired bool              `json:"confirmation_required"`
		HoursWorked          float64           `json:"hours_worked"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return attendance.Record{}, false, err
	}
	return out.Record, out.ConfirmationRequired, nil
}

// Today fetches the caller's record for the current day, if any.
func (c *Client) Today(ctx context.Context) (*attendance.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/attendance/today", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Records []attendance.Record `json:"records"`
	}
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, nil
	}
	return &out.Records[0], nil
}

// UpdateLocation pushes one sample; it satisfies tracker.Sink.
func (c *Client) UpdateLocation(ctx context.Context, s tracker.Sample) error {
	body, _ := json.Marshal(attendance.Location{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Address:    s.Address,
		CapturedAt: s.CapturedAt,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/v1/attendance/location", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, http.StatusNoContent, nil)
}

// do sends the request, enforces the expected status, and decodes JSON into
// out when non-nil. Timeouts surface as ErrTimeout.
func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrTimeout)
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%s %s: unexpected status %s: %s", req.Method, req.URL.Path, resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

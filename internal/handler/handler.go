package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/imagestore"
	"attendtrack/internal/queue"
	"attendtrack/internal/store"
	"attendtrack/internal/ws"
)

// TokenConfig carries what Register needs to issue JWTs.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler wires the attendance service to the HTTP surface.
type Handler struct {
	svc    *attendance.Service
	repo   *attendance.Repository
	q      queue.Queue
	hub    *ws.Hub
	redis  *store.Redis
	tokens TokenConfig
}

// New creates a handler.
func New(svc *attendance.Service, repo *attendance.Repository, q queue.Queue, hub *ws.Hub, redis *store.Redis, tokens TokenConfig) *Handler {
	return &Handler{svc: svc, repo: repo, q: q, hub: hub, redis: redis, tokens: tokens}
}

// Register upserts an employee and issues a token pair.
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		EmployeeID string `json:"employee_id" binding:"required"`
		Name       string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var name *string
	if req.Name != "" {
		name = &req.Name
	}
	if err := h.repo.UpsertEmployee(c.Request.Context(), req.EmployeeID, name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	emp, err := h.repo.GetEmployee(c.Request.Context(), req.EmployeeID)
	if err != nil || emp == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "employee lookup failed"})
		return
	}

	tokens, err := auth.Issue(emp.EmployeeID, emp.Role, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.AccessTTL, h.tokens.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// Mark handles check-in: multipart form with an image file and a
// JSON-encoded location field.
func (h *Handler) Mark(c *gin.Context) {
	claims := auth.FromContext(c)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(io.LimitReader(file, imagestore.MaxImageBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}
	if len(photo) > imagestore.MaxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": imagestore.ErrTooLarge.Error()})
		return
	}

	locField := c.PostForm("location")
	if locField == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location field required"})
		return
	}
	var loc attendance.Location
	if err := json.Unmarshal([]byte(locField), &loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location must be valid JSON"})
		return
	}

	rec, err := h.svc.CheckIn(c.Request.Context(), claims.Subject, photo, header.Filename, loc)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(c, queue.Event{Kind: queue.KindCheckIn, EmployeeID: rec.EmployeeID, Day: rec.Day, At: rec.CheckInAt})
	h.hub.Broadcast(ws.Update{
		EmployeeID: rec.EmployeeID,
		Latitude:   rec.CheckInLoc.Latitude,
		Longitude:  rec.CheckInLoc.Longitude,
		Address:    rec.CheckInLoc.Address,
		CapturedAt: rec.CheckInLoc.CapturedAt,
	})
	c.JSON(http.StatusCreated, gin.H{"record": rec})
}

// Checkout handles the terminal transition, including the early-checkout
// confirmation exchange.
func (h *Handler) Checkout(c *gin.Context) {
	claims := auth.FromContext(c)

	var req struct {
		Location attendance.Location `json:"location"`
		Confirm  bool                `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.svc.CheckOut(c.Request.Context(), claims.Subject, req.Location, req.Confirm)
	if err != nil {
		var early *attendance.EarlyCheckoutError
		if errors.As(err, &early) {
			c.JSON(http.StatusOK, gin.H{
				"confirmation_required": true,
				"hours_worked":          early.HoursWorked,
				"min_hours":             early.MinHours,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	h.publish(c, queue.Event{Kind: queue.KindCheckOut, EmployeeID: rec.EmployeeID, Day: rec.Day, Hours: *rec.HoursWorked, At: *rec.CheckOutAt})
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// Today returns an array with zero or one records for the caller's day.
func (h *Handler) Today(c *gin.Context) {
	claims := auth.FromContext(c)
	rec, err := h.svc.Today(c.Request.Context(), claims.Subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	records := []attendance.Record{}
	if rec != nil {
		records = append(records, *rec)
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// UpdateLocation applies a periodic sample from the tracking agent.
func (h *Handler) UpdateLocation(c *gin.Context) {
	claims := auth.FromContext(c)

	var loc attendance.Location
	if err := c.ShouldBindJSON(&loc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if loc.CapturedAt.IsZero() {
		loc.CapturedAt = time.Now().UTC()
	}
	if err := h.svc.UpdateLocation(c.Request.Context(), claims.Subject, loc); err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(c, queue.Event{Kind: queue.KindLocation, EmployeeID: claims.Subject, Day: loc.CapturedAt.Format("2006-01-02"), At: loc.CapturedAt})
	h.hub.Broadcast(ws.Update{
		EmployeeID: claims.Subject,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Address:    loc.Address,
		CapturedAt: loc.CapturedAt,
	})
	c.Status(http.StatusNoContent)
}

// ByDate lists all records for one calendar day (admin).
func (h *Handler) ByDate(c *gin.Context) {
	records, err := h.svc.ByDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// Export streams a CSV report for a date range (admin).
func (h *Handler) Export(c *gin.Context) {
	start := c.Query("start")
	end := c.Query("end")
	if end == "" {
		end = start
	}
	records, err := h.svc.Between(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="attendance-`+start+`-`+end+`.csv"`)
	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"employee_id", "day", "status", "check_in_at", "check_out_at", "hours_worked", "check_in_address"})
	for _, rec := range records {
		out, hours := "", ""
		if rec.CheckOutAt != nil {
			out = rec.CheckOutAt.Format(time.RFC3339)
		}
		if rec.HoursWorked != nil {
			hours = strconv.FormatFloat(*rec.HoursWorked, 'f', -1, 64)
		}
		_ = w.Write([]string{rec.EmployeeID, rec.Day, rec.Status, rec.CheckInAt.Format(time.RFC3339), out, hours, rec.CheckInLoc.Address})
	}
	w.Flush()
}

// History returns an employee's location trail (admin).
func (h *Handler) History(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	samples, err := h.svc.History(c.Request.Context(), c.Param("employeeID"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples})
}

// Summary returns the worker-maintained daily counters (admin).
func (h *Handler) Summary(c *gin.Context) {
	day := c.Query("day")
	if day == "" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	summary, err := h.redis.Summary(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summary unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"day": day, "summary": summary})
}

// SetBlocked toggles an employee's blocked flag (admin).
func (h *Handler) SetBlocked(c *gin.Context) {
	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.SetBlocked(c.Request.Context(), c.Param("employeeID"), req.Blocked); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Live upgrades to a websocket feed of location updates (admin).
func (h *Handler) Live(c *gin.Context) {
	if err := h.hub.Subscribe(c.Writer, c.Request); err != nil {
		log.Printf("ws subscribe failed: %v", err)
	}
}

// publish enqueues an event; failures are logged but never fail the user
// transaction.
func (h *Handler) publish(c *gin.Context, evt queue.Event) {
	if err := h.q.Publish(c.Request.Context(), evt); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

// respondError maps lifecycle errors to status codes. None of the 4xx family
// is retried automatically.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrMissingImage),
		errors.Is(err, attendance.ErrMissingLocation),
		errors.Is(err, attendance.ErrInvalidLocation),
		errors.Is(err, imagestore.ErrNotAnImage),
		errors.Is(err, imagestore.ErrTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrUnknownEmployee):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrAlreadyCheckedIn),
		errors.Is(err, attendance.ErrNotCheckedIn),
		errors.Is(err, attendance.ErrAlreadyCheckedOut),
		errors.Is(err, attendance.ErrStaleSample):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

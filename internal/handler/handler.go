package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"qrattend/internal/apperr"
	"qrattend/internal/attendance"
	"qrattend/internal/model"
)

// Service is the domain surface the handlers depend on.
type Service interface {
	Register(ctx context.Context, name string) (model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	GetMember(ctx context.Context, id string) (model.Member, error)
	RecordAttendance(ctx context.Context, qrCode, date string) (attendance.Outcome, error)
	AttendanceForDate(ctx context.Context, date string) ([]model.AttendanceEntry, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisProbe reports redis health. A nil probe means redis is not configured.
type RedisProbe interface {
	Healthy(ctx context.Context) bool
}

type Handler struct {
	svc          Service
	store        Pinger
	redis        RedisProbe
	exposeErrors bool
}

// New creates handlers. exposeErrors includes internal error detail in
// responses and must be off in production.
func New(svc Service, store Pinger, redis RedisProbe, exposeErrors bool) *Handler {
	return &Handler{svc: svc, store: store, redis: redis, exposeErrors: exposeErrors}
}

// ---------- Health ----------

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "qrattend",
		"status":  "ok",
		"endpoints": []string{
			"POST /api/members",
			"GET /api/members",
			"GET /api/members/:id",
			"POST /api/attendance",
			"GET /api/attendance/:date",
		},
	})
}

func (h *Handler) Healthz(c *gin.Context) {
	storeHealthy := h.store.Ping(c.Request.Context()) == nil
	body := gin.H{"status": "ok", "store": storeHealthy}
	if h.redis != nil {
		body["redis"] = h.redis.Healthy(c.Request.Context())
	}
	status := http.StatusOK
	if !storeHealthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// ---------- Members ----------

type registerRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RegisterMember(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid JSON body"))
		return
	}
	m, err := h.svc.Register(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	c.JSON(http.StatusOK, members)
}

func (h *Handler) GetMember(c *gin.Context) {
	m, err := h.svc.GetMember(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// ---------- Attendance ----------

type attendanceRequest struct {
	QRCode string `json:"qrCode"`
	Date   string `json:"date"`
}

type attendanceResponse struct {
	Message      string `json:"message"`
	MemberName   string `json:"memberName"`
	Date         string `json:"date"`
	AttendanceID string `json:"attendanceId"`
}

// RecordAttendance answers 201 for a new record and 200 when the member was
// already recorded for the day.
func (h *Handler) RecordAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid JSON body"))
		return
	}
	out, err := h.svc.RecordAttendance(c.Request.Context(), req.QRCode, req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}
	status, msg := http.StatusCreated, "Attendance recorded"
	if out.AlreadyRecorded {
		status, msg = http.StatusOK, "Attendance already recorded"
	}
	c.JSON(status, attendanceResponse{
		Message:      msg,
		MemberName:   out.MemberName,
		Date:         out.Record.Date,
		AttendanceID: out.Record.ID,
	})
}

func (h *Handler) AttendanceForDate(c *gin.Context) {
	entries, err := h.svc.AttendanceForDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := apperr.Response(err, h.exposeErrors)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, body)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.MemberRegistered()
	m.AttendanceRecorded(false)
	m.AttendanceRecorded(true)
	m.AttendanceRecorded(true)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, 5*time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body, "members_registered_total 1")
	assert.Contains(t, body, `attendance_scans_total{outcome="recorded"} 1`)
	assert.Contains(t, body, `attendance_scans_total{outcome="already_recorded"} 2`)
	assert.Contains(t, body, `route="unmatched"`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MemberRegistered()
		m.AttendanceRecorded(true)
		m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	})
}

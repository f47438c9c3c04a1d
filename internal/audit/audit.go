// Package audit consumes attendance events and writes one log line per
// recording, either inside the API process or in cmd/worker.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"qrattend/internal/attendance"
	"qrattend/internal/queue"
)

// Logger is the subset of *log.Logger used by Run.
type Logger interface {
	Printf(format string, v ...any)
}

// Run drains q until ctx is cancelled and returns the number of events logged.
func Run(ctx context.Context, q queue.Queue, logger Logger) (int, error) {
	if logger == nil {
		logger = log.Default()
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for msg := range messages {
		if msg.Type != queue.TypeAttendanceRecorded {
			continue
		}
		var evt attendance.RecordedEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			logger.Printf("audit: skip malformed event: %v", err)
			continue
		}
		logger.Printf("audit: attendance %s recorded for member %s (%s) on %s at %s",
			evt.AttendanceID, evt.MemberID, evt.MemberName, evt.Date, evt.Timestamp)
		n++
	}
	return n, nil
}

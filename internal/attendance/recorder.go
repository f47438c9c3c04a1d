package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"qrattend/internal/apperr"
	"qrattend/internal/model"
	"qrattend/internal/queue"
	"qrattend/internal/store"
)

// Outcome is the result of a scan. AlreadyRecorded is set when the member had
// a record for the day before this call.
type Outcome struct {
	Record          model.AttendanceRecord
	MemberName      string
	AlreadyRecorded bool
}

// RecordedEvent is published once per newly stored attendance record.
type RecordedEvent struct {
	AttendanceID string `json:"attendanceId"`
	MemberID     string `json:"memberId"`
	MemberName   string `json:"memberName"`
	Date         string `json:"date"`
	Timestamp    string `json:"timestamp"`
}

// RecordAttendance stores at most one record per member per day. date may be
// empty, in which case the current UTC day is used.
func (s *Service) RecordAttendance(ctx context.Context, qrCode, date string) (Outcome, error) {
	if strings.TrimSpace(qrCode) == "" {
		return Outcome{}, apperr.Validation("qrCode is required")
	}
	if date == "" {
		date = Today(s.now())
	} else if err := CheckDate(date); err != nil {
		return Outcome{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	member, err := s.store.FindMemberByQRCode(ctx, qrCode)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{}, apperr.NotFound("member not found")
	}
	if err != nil {
		return Outcome{}, storeFailure("find member", err)
	}

	existing, err := s.store.FindAttendance(ctx, member.ID, date)
	switch {
	case err == nil:
		return s.already(member, existing), nil
	case !errors.Is(err, store.ErrNotFound):
		return Outcome{}, storeFailure("find attendance", err)
	}

	rec, err := s.store.InsertAttendance(ctx, model.AttendanceRecord{
		MemberID:   member.ID,
		MemberName: member.Name,
		Date:       date,
		Timestamp:  s.now().UTC(),
		Status:     model.StatusPresent,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// a concurrent scan won the insert; report its record
		winner, ferr := s.store.FindAttendance(ctx, member.ID, date)
		if ferr != nil {
			return Outcome{}, storeFailure("find attendance after conflict", ferr)
		}
		return s.already(member, winner), nil
	}
	if err != nil {
		return Outcome{}, storeFailure("insert attendance", err)
	}

	s.metrics.AttendanceRecorded(false)
	s.publish(ctx, rec)
	return Outcome{Record: rec, MemberName: member.Name}, nil
}

func (s *Service) already(member model.Member, rec model.AttendanceRecord) Outcome {
	s.metrics.AttendanceRecorded(true)
	return Outcome{Record: rec, MemberName: member.Name, AlreadyRecorded: true}
}

// publish never fails the request; the record is already durable.
func (s *Service) publish(ctx context.Context, rec model.AttendanceRecord) {
	if s.publisher == nil {
		return
	}
	body, err := json.Marshal(RecordedEvent{
		AttendanceID: rec.ID,
		MemberID:     rec.MemberID,
		MemberName:   rec.MemberName,
		Date:         rec.Date,
		Timestamp:    rec.Timestamp.Format(timestampLayout),
	})
	if err != nil {
		log.Printf("encode attendance event %s: %v", rec.ID, err)
		return
	}
	if err := s.publisher.Publish(ctx, queue.Message{Type: queue.TypeAttendanceRecorded, Body: body}); err != nil {
		log.Printf("queue publish failed for %s: %v", rec.ID, err)
	}
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

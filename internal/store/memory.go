package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"qrattend/internal/model"
)

// Memory is a mutex-guarded store for dev/testing. It applies the same
// uniqueness rules as the database backends.
type Memory struct {
	opts Options

	mu         sync.RWMutex
	members    map[string]model.Member // by id
	byQRCode   map[string]string
	byName     map[string]string
	attendance []model.AttendanceRecord
	byDay      map[dayKey]int // index into attendance
}

type dayKey struct {
	memberID string
	date     string
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:     opts,
		members:  make(map[string]model.Member),
		byQRCode: make(map[string]string),
		byName:   make(map[string]string),
		byDay:    make(map[dayKey]int),
	}
}

func (s *Memory) Migrate(context.Context) error { return nil }

func (s *Memory) InsertMember(_ context.Context, m model.Member) (model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byQRCode[m.QRCode]; ok {
		return model.Member{}, ErrDuplicate
	}
	if _, ok := s.byName[m.Name]; ok && s.opts.UniqueMemberNames {
		return model.Member{}, ErrDuplicate
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.members[m.ID] = m
	s.byQRCode[m.QRCode] = m.ID
	s.byName[m.Name] = m.ID
	return m, nil
}

func (s *Memory) FindMemberByQRCode(_ context.Context, qrCode string) (model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byQRCode[qrCode]
	if !ok {
		return model.Member{}, ErrNotFound
	}
	return s.members[id], nil
}

func (s *Memory) FindMemberByID(_ context.Context, id string) (model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return model.Member{}, ErrNotFound
	}
	return m, nil
}

func (s *Memory) ListMembers(context.Context) ([]model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Memory) FindAttendance(_ context.Context, memberID, date string) (model.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byDay[dayKey{memberID, date}]
	if !ok {
		return model.AttendanceRecord{}, ErrNotFound
	}
	return s.attendance[i], nil
}

func (s *Memory) InsertAttendance(_ context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey{rec.MemberID, rec.Date}
	if _, ok := s.byDay[key]; ok {
		return model.AttendanceRecord{}, ErrDuplicate
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	s.attendance = append(s.attendance, rec)
	s.byDay[key] = len(s.attendance) - 1
	return rec, nil
}

func (s *Memory) ListAttendanceForDate(_ context.Context, date string) ([]model.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AttendanceRecord
	for _, rec := range s.attendance {
		if rec.Date == date {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close() error { return nil }

package store

import (
	"context"
	"errors"

	"qrattend/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate")
	// ErrUnavailable wraps connectivity failures and timeouts.
	ErrUnavailable = errors.New("store unavailable")
)

// Store persists members and attendance records.
//
// Every backend enforces uniqueness of member qrCode and of the
// (memberId, date) attendance pair, and optionally of member name.
type Store interface {
	Migrate(ctx context.Context) error

	InsertMember(ctx context.Context, m model.Member) (model.Member, error)
	FindMemberByQRCode(ctx context.Context, qrCode string) (model.Member, error)
	FindMemberByID(ctx context.Context, id string) (model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)

	FindAttendance(ctx context.Context, memberID, date string) (model.AttendanceRecord, error)
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error)
	ListAttendanceForDate(ctx context.Context, date string) ([]model.AttendanceRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Options tune schema constraints shared by all backends.
type Options struct {
	UniqueMemberNames bool
}

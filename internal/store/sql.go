package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"qrattend/internal/model"
)

type dialect struct {
	name        string
	schema      []string
	numbered    bool // $1-style placeholders
	isDuplicate func(error) bool
}

var (
	postgresDialect = dialect{
		name:     "postgres",
		schema:   postgresSchema,
		numbered: true,
		isDuplicate: func(err error) bool {
			var pgErr *pgconn.PgError
			return errors.As(err, &pgErr) && pgErr.Code == "23505"
		},
	}
	sqliteDialect = dialect{
		name:   "sqlite",
		schema: sqliteSchema,
		isDuplicate: func(err error) bool {
			var sqErr sqlite3.Error
			if !errors.As(err, &sqErr) {
				return false
			}
			return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
		},
	}
)

// SQL persists members and attendance in Postgres or SQLite.
type SQL struct {
	db   *sql.DB
	d    dialect
	opts Options
}

// NewPostgres wraps a pgx-backed handle.
func NewPostgres(db *sql.DB, opts Options) *SQL {
	return &SQL{db: db, d: postgresDialect, opts: opts}
}

// NewSQLite wraps a sqlite3-backed handle.
func NewSQLite(db *sql.DB, opts Options) *SQL {
	return &SQL{db: db, d: sqliteDialect, opts: opts}
}

// Migrate creates tables and indexes if they do not exist.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range migrations(s.d.schema, s.opts) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.name, s.classify(err))
		}
	}
	return nil
}

func (s *SQL) InsertMember(ctx context.Context, m model.Member) (model.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO members (id, name, qr_code, created_at)
		VALUES (?, ?, ?, ?)
	`), m.ID, m.Name, m.QRCode, m.CreatedAt)
	if err != nil {
		return model.Member{}, s.classify(err)
	}
	return m, nil
}

func (s *SQL) FindMemberByQRCode(ctx context.Context, qrCode string) (model.Member, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, qr_code, created_at FROM members WHERE qr_code = ?
	`), qrCode)
	return s.scanMember(row)
}

func (s *SQL) FindMemberByID(ctx context.Context, id string) (model.Member, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, qr_code, created_at FROM members WHERE id = ?
	`), id)
	return s.scanMember(row)
}

func (s *SQL) ListMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, qr_code, created_at FROM members ORDER BY name, id
	`)
	if err != nil {
		return nil, s.classify(err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := s.scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, s.classify(rows.Err())
}

func (s *SQL) FindAttendance(ctx context.Context, memberID, date string) (model.AttendanceRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, member_id, member_name, attendance_date, recorded_at, status
		FROM attendance
		WHERE member_id = ? AND attendance_date = ?
	`), memberID, date)
	return s.scanAttendance(row)
}

func (s *SQL) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = model.StatusPresent
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO attendance (id, member_id, member_name, attendance_date, recorded_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.MemberID, rec.MemberName, rec.Date, rec.Timestamp, string(rec.Status))
	if err != nil {
		return model.AttendanceRecord{}, s.classify(err)
	}
	return rec, nil
}

func (s *SQL) ListAttendanceForDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, member_id, member_name, attendance_date, recorded_at, status
		FROM attendance
		WHERE attendance_date = ?
		ORDER BY recorded_at, id
	`), date)
	if err != nil {
		return nil, s.classify(err)
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		rec, err := s.scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, s.classify(rows.Err())
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.classify(s.db.PingContext(ctx))
}

// Close closes the underlying connection.
func (s *SQL) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQL) scanMember(row scanner) (model.Member, error) {
	var m model.Member
	if err := row.Scan(&m.ID, &m.Name, &m.QRCode, &m.CreatedAt); err != nil {
		return model.Member{}, s.classify(err)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func (s *SQL) scanAttendance(row scanner) (model.AttendanceRecord, error) {
	var (
		rec    model.AttendanceRecord
		status string
	)
	if err := row.Scan(&rec.ID, &rec.MemberID, &rec.MemberName, &rec.Date, &rec.Timestamp, &status); err != nil {
		return model.AttendanceRecord{}, s.classify(err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	rec.Status = model.Status(status)
	return rec, nil
}

// rebind rewrites ? placeholders to $n for dialects that number them.
func (s *SQL) rebind(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classify maps driver errors onto the store's sentinel errors.
func (s *SQL) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case s.d.isDuplicate(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case transient(err):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

package store

var (
	postgresSchema = []string{`
	CREATE TABLE IF NOT EXISTS members (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		qr_code     TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, `
	CREATE TABLE IF NOT EXISTS attendance (
		id               TEXT PRIMARY KEY,
		member_id        TEXT NOT NULL REFERENCES members(id),
		member_name      TEXT NOT NULL,
		attendance_date  TEXT NOT NULL,
		recorded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		status           TEXT NOT NULL DEFAULT 'PRESENT',
		CONSTRAINT attendance_member_day_key UNIQUE (member_id, attendance_date)
	)`}

	sqliteSchema = []string{`
	CREATE TABLE IF NOT EXISTS members (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		qr_code     TEXT NOT NULL UNIQUE,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, `
	CREATE TABLE IF NOT EXISTS attendance (
		id               TEXT PRIMARY KEY,
		member_id        TEXT NOT NULL REFERENCES members(id),
		member_name      TEXT NOT NULL,
		attendance_date  TEXT NOT NULL,
		recorded_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		status           TEXT NOT NULL DEFAULT 'PRESENT',
		UNIQUE (member_id, attendance_date)
	)`}
)

const (
	attendanceDateIndex = `CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(attendance_date)`
	uniqueNameIndex     = `CREATE UNIQUE INDEX IF NOT EXISTS idx_members_name ON members(name)`
	dropUniqueNameIndex = `DROP INDEX IF EXISTS idx_members_name`
)

// migrations returns the boot-time statements for a dialect, in order.
func migrations(schema []string, opts Options) []string {
	stmts := append(append([]string{}, schema...), attendanceDateIndex)
	if opts.UniqueMemberNames {
		return append(stmts, uniqueNameIndex)
	}
	return append(stmts, dropUniqueNameIndex)
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/conorfennell/attendance/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLiteStore keeps the three tables in a single SQLite database.
type SQLiteStore struct {
	*tables
	conn *sql.DB
	path string
}

// OpenSQLite opens the database at path and ensures the schema exists.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps writes ordered and lets :memory: databases work.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	o := buildOptions(opts)
	s := &SQLiteStore{conn: db, path: path}
	s.tables = &tables{
		users:      newGuarded[domain.User](sqlUsers{db}, changeFor(TableUsers, path), o.onChange),
		schedule:   newGuarded[domain.ScheduleEntry](&sqlSchedule{db: db}, changeFor(TableSchedule, path), o.onChange),
		attendance: newGuarded[domain.AttendanceRecord](&sqlAttendance{db: db}, changeFor(TableAttendance, path), o.onChange),
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// replaceAll deletes every row of table and inserts rows, then the raw
// unreadable rows, inside one transaction.
func replaceAll[T any](ctx context.Context, db *sql.DB, table, insert string, rows []T, args func(T) []any, unreadable [][]any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, args(r)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	for _, raw := range unreadable {
		if _, err := stmt.ExecContext(ctx, raw...); err != nil {
			return fmt.Errorf("failed to reinsert row into %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

type sqlUsers struct{ db *sql.DB }

func (t sqlUsers) load(ctx context.Context) ([]domain.User, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT username, password_hash FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.Username, &u.PasswordHash); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (t sqlUsers) save(ctx context.Context, users []domain.User) error {
	return replaceAll(ctx, t.db, "users",
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		users, func(u domain.User) []any { return []any{u.Username, u.PasswordHash} }, nil)
}

// sqlSchedule keeps rows it could not decode and writes them back on save.
type sqlSchedule struct {
	db         *sql.DB
	unreadable [][]any
}

var scheduleCols = map[string]int{"username": 0, "course": 1, "day": 2, "start": 3, "end": 4, "added": 5}

func (t *sqlSchedule) load(ctx context.Context) ([]domain.ScheduleEntry, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT username, course, day, start_time, end_time, added FROM schedule ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	defer rows.Close()

	t.unreadable = nil
	entries := []domain.ScheduleEntry{}
	for rows.Next() {
		var username, course, day, start, end, added string
		if err := rows.Scan(&username, &course, &day, &start, &end, &added); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}
		e, err := decodeScheduleEntry(row{fields: []string{username, course, day, start, end, added}, cols: scheduleCols})
		if err != nil {
			slog.Warn("Keeping unreadable schedule row aside", "username", username, "course", course, "error", err)
			t.unreadable = append(t.unreadable, []any{username, course, day, start, end, added})
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *sqlSchedule) save(ctx context.Context, entries []domain.ScheduleEntry) error {
	return replaceAll(ctx, t.db, "schedule",
		`INSERT INTO schedule (username, course, day, start_time, end_time, added) VALUES (?, ?, ?, ?, ?, ?)`,
		entries, func(e domain.ScheduleEntry) []any {
			return []any{e.Username, e.Course, e.Day.String(), e.Start.String(), e.End.String(), domain.FormatDate(e.Added)}
		}, t.unreadable)
}

type sqlAttendance struct {
	db         *sql.DB
	unreadable [][]any
}

func (t *sqlAttendance) load(ctx context.Context) ([]domain.AttendanceRecord, error) {
	rows, err := t.db.QueryContext(ctx, `SELECT username, course, date FROM attendance ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}
	defer rows.Close()

	t.unreadable = nil
	records := []domain.AttendanceRecord{}
	for rows.Next() {
		var a domain.AttendanceRecord
		var date string
		if err := rows.Scan(&a.Username, &a.Course, &date); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		if a.Date, err = domain.ParseDate(date); err != nil {
			slog.Warn("Keeping unreadable attendance row aside", "username", a.Username, "course", a.Course, "error", err)
			t.unreadable = append(t.unreadable, []any{a.Username, a.Course, date})
			continue
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

func (t *sqlAttendance) save(ctx context.Context, records []domain.AttendanceRecord) error {
	return replaceAll(ctx, t.db, "attendance",
		`INSERT INTO attendance (username, course, date) VALUES (?, ?, ?)`,
		records, func(a domain.AttendanceRecord) []any {
			return []any{a.Username, a.Course, domain.FormatDate(a.Date)}
		}, t.unreadable)
}

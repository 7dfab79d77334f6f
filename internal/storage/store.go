package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/conorfennell/attendance/internal/domain"
)

// Table names one of the three persisted tables.
type Table string

const (
	TableUsers      Table = "users"
	TableSchedule   Table = "schedule"
	TableAttendance Table = "attendance"
)

// ErrNoChange may be returned from an update function to skip the write.
var ErrNoChange = errors.New("no change")

// Change describes a table that was just rewritten.
type Change struct {
	Table   Table
	Path    string // file that now holds the table
	Message string
}

// ChangeFunc receives a Change after every successful save.
// It is called synchronously and must not block.
type ChangeFunc func(Change)

// Store is the record store. Every save rewrites the whole table.
// Update runs a read-modify-write cycle while holding the table's lock.
type Store interface {
	LoadUsers(ctx context.Context) ([]domain.User, error)
	SaveUsers(ctx context.Context, users []domain.User) error
	UpdateUsers(ctx context.Context, fn func([]domain.User) ([]domain.User, error)) error

	LoadSchedule(ctx context.Context) ([]domain.ScheduleEntry, error)
	SaveSchedule(ctx context.Context, entries []domain.ScheduleEntry) error
	UpdateSchedule(ctx context.Context, fn func([]domain.ScheduleEntry) ([]domain.ScheduleEntry, error)) error

	LoadAttendance(ctx context.Context) ([]domain.AttendanceRecord, error)
	SaveAttendance(ctx context.Context, records []domain.AttendanceRecord) error
	UpdateAttendance(ctx context.Context, fn func([]domain.AttendanceRecord) ([]domain.AttendanceRecord, error)) error

	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	onChange      ChangeFunc
	creationDates bool
}

// WithChangeFunc registers fn to be told about every saved table.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(o *options) { o.onChange = fn }
}

// WithCreationDates makes CSVStore write the schedule's added column even
// when the file does not have it yet. Files that already carry it keep it.
func WithCreationDates() Option {
	return func(o *options) { o.creationDates = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// backend reads and writes one table without any locking.
type backend[T any] interface {
	load(ctx context.Context) ([]T, error)
	save(ctx context.Context, rows []T) error
}

// guarded serializes access to one table and emits a Change after each save.
type guarded[T any] struct {
	mu       sync.Mutex
	b        backend[T]
	change   Change
	onChange ChangeFunc
}

func newGuarded[T any](b backend[T], change Change, onChange ChangeFunc) *guarded[T] {
	return &guarded[T]{b: b, change: change, onChange: onChange}
}

func (g *guarded[T]) Load(ctx context.Context) ([]T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.b.load(ctx)
}

func (g *guarded[T]) Save(ctx context.Context, rows []T) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saveLocked(ctx, rows)
}

func (g *guarded[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows, err := g.b.load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(rows)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	return g.saveLocked(ctx, next)
}

func (g *guarded[T]) saveLocked(ctx context.Context, rows []T) error {
	if err := g.b.save(ctx, rows); err != nil {
		return err
	}
	if g.onChange != nil {
		g.onChange(g.change)
	}
	return nil
}

// tables bundles the three guarded tables shared by every Store implementation.
type tables struct {
	users      *guarded[domain.User]
	schedule   *guarded[domain.ScheduleEntry]
	attendance *guarded[domain.AttendanceRecord]
}

func (t *tables) LoadUsers(ctx context.Context) ([]domain.User, error) {
	return t.users.Load(ctx)
}

func (t *tables) SaveUsers(ctx context.Context, users []domain.User) error {
	return t.users.Save(ctx, users)
}

func (t *tables) UpdateUsers(ctx context.Context, fn func([]domain.User) ([]domain.User, error)) error {
	return t.users.Update(ctx, fn)
}

func (t *tables) LoadSchedule(ctx context.Context) ([]domain.ScheduleEntry, error) {
	return t.schedule.Load(ctx)
}

func (t *tables) SaveSchedule(ctx context.Context, entries []domain.ScheduleEntry) error {
	return t.schedule.Save(ctx, entries)
}

func (t *tables) UpdateSchedule(ctx context.Context, fn func([]domain.ScheduleEntry) ([]domain.ScheduleEntry, error)) error {
	return t.schedule.Update(ctx, fn)
}

func (t *tables) LoadAttendance(ctx context.Context) ([]domain.AttendanceRecord, error) {
	return t.attendance.Load(ctx)
}

func (t *tables) SaveAttendance(ctx context.Context, records []domain.AttendanceRecord) error {
	return t.attendance.Save(ctx, records)
}

func (t *tables) UpdateAttendance(ctx context.Context, fn func([]domain.AttendanceRecord) ([]domain.AttendanceRecord, error)) error {
	return t.attendance.Update(ctx, fn)
}

func changeFor(table Table, path string) Change {
	msg := map[Table]string{
		TableUsers:      "Users updated",
		TableSchedule:   "Schedule updated",
		TableAttendance: "Attendance updated",
	}[table]
	return Change{Table: table, Path: path, Message: msg}
}

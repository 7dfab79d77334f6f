package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/attendance/internal/domain"
)

// File names used by CSVStore inside its directory.
const (
	UsersFile      = "users.csv"
	ScheduleFile   = "schedule.csv"
	AttendanceFile = "attendance.csv"
)

// CSVStore keeps each table in its own CSV file.
type CSVStore struct {
	*tables
	dir string
}

// OpenCSV returns a store over the CSV files in dir, creating dir if needed.
// Missing files are treated as empty tables.
func OpenCSV(dir string, opts ...Option) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	o := buildOptions(opts)

	usersPath := filepath.Join(dir, UsersFile)
	schedulePath := filepath.Join(dir, ScheduleFile)
	attendancePath := filepath.Join(dir, AttendanceFile)

	users := &csvTable[domain.User]{
		path:     usersPath,
		header:   []string{"username", "password_hash"},
		required: []string{"username", "password_hash"},
		aliases:  map[string]string{"password": "password_hash"},
		encode: func(u domain.User) []string {
			return []string{u.Username, u.PasswordHash}
		},
		decode: func(r row) (domain.User, error) {
			return domain.User{Username: r.get("username"), PasswordHash: r.get("password_hash")}, nil
		},
	}
	schedule := &csvTable[domain.ScheduleEntry]{
		path:      schedulePath,
		header:    []string{"username", "course", "day", "start", "end"},
		required:  []string{"username", "course", "day", "start", "end"},
		optional:  []string{"added"},
		writeOpts: o.creationDates,
		encode: func(e domain.ScheduleEntry) []string {
			return []string{e.Username, e.Course, e.Day.String(), e.Start.String(), e.End.String(), domain.FormatDate(e.Added)}
		},
		decode: decodeScheduleEntry,
	}
	attendance := &csvTable[domain.AttendanceRecord]{
		path:     attendancePath,
		header:   []string{"username", "course", "date"},
		required: []string{"username", "course", "date"},
		encode: func(a domain.AttendanceRecord) []string {
			return []string{a.Username, a.Course, domain.FormatDate(a.Date)}
		},
		decode: func(r row) (domain.AttendanceRecord, error) {
			date, err := domain.ParseDate(r.get("date"))
			if err != nil {
				return domain.AttendanceRecord{}, err
			}
			return domain.AttendanceRecord{Username: r.get("username"), Course: r.get("course"), Date: date}, nil
		},
	}

	return &CSVStore{
		dir: dir,
		tables: &tables{
			users:      newGuarded[domain.User](users, changeFor(TableUsers, usersPath), o.onChange),
			schedule:   newGuarded[domain.ScheduleEntry](schedule, changeFor(TableSchedule, schedulePath), o.onChange),
			attendance: newGuarded[domain.AttendanceRecord](attendance, changeFor(TableAttendance, attendancePath), o.onChange),
		},
	}, nil
}

// Dir returns the directory holding the CSV files.
func (s *CSVStore) Dir() string {
	return s.dir
}

// Close is a no-op; files are not held open between calls.
func (s *CSVStore) Close() error {
	return nil
}

func decodeScheduleEntry(r row) (domain.ScheduleEntry, error) {
	day, err := domain.ParseWeekday(r.get("day"))
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	start, err := domain.ParseClock(r.get("start"))
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	end, err := domain.ParseClock(r.get("end"))
	if err != nil {
		return domain.ScheduleEntry{}, err
	}
	e := domain.ScheduleEntry{
		Username: r.get("username"),
		Course:   r.get("course"),
		Day:      day,
		Start:    start,
		End:      end,
	}
	if added := r.get("added"); added != "" {
		if e.Added, err = domain.ParseDate(added); err != nil {
			return domain.ScheduleEntry{}, err
		}
	}
	return e, nil
}

// row is one CSV record addressed by column name.
type row struct {
	fields []string
	cols   map[string]int
}

func (r row) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// csvTable maps one CSV file to a slice of T. Columns are located by header
// name so that legacy files with renamed or missing optional columns still load.
//
// Rows that cannot be decoded are kept as they were read and written back
// after the decoded rows on the next save, so a rewrite never loses them.
// Optional columns follow header in encode's output; they are written when
// writeOpts is set or the last loaded file already had them.
type csvTable[T any] struct {
	path      string
	header    []string
	required  []string
	optional  []string
	aliases   map[string]string
	writeOpts bool
	encode    func(T) []string
	decode    func(row) (T, error)

	// state of the last load, guarded by the table lock
	unreadable []row
	hadOpts    bool
}

// columns returns the header to write.
func (t *csvTable[T]) columns() []string {
	if len(t.optional) == 0 || !(t.writeOpts || t.hadOpts) {
		return t.header
	}
	return append(append([]string(nil), t.header...), t.optional...)
}

func (t *csvTable[T]) load(_ context.Context) ([]T, error) {
	t.unreadable = nil
	t.hadOpts = false

	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", t.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", t.path, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if alias, ok := t.aliases[name]; ok {
			name = alias
		}
		cols[name] = i
	}
	for _, name := range t.required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("failed to load %s: missing column %q", t.path, name)
		}
	}
	for _, name := range t.optional {
		if _, ok := cols[name]; ok {
			t.hadOpts = true
		}
	}

	rows := []T{}
	for line := 2; ; line++ {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.path, err)
		}
		r := row{fields: fields, cols: cols}
		v, err := t.decode(r)
		if err != nil {
			slog.Warn("Keeping unreadable row aside", "file", t.path, "line", line, "error", err)
			t.unreadable = append(t.unreadable, r)
			continue
		}
		rows = append(rows, v)
	}
	return rows, nil
}

// save writes the table to a temporary file and renames it over the old one.
func (t *csvTable[T]) save(_ context.Context, rows []T) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.path), "."+filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", t.path, err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode on temp file for %s: %w", t.path, err)
	}

	columns := t.columns()
	records := make([][]string, 0, len(rows)+len(t.unreadable)+1)
	records = append(records, columns)
	for _, v := range rows {
		records = append(records, t.encode(v)[:len(columns)])
	}
	for _, r := range t.unreadable {
		fields := make([]string, len(columns))
		for i, name := range columns {
			fields[i] = r.get(name)
		}
		records = append(records, fields)
	}

	w := csv.NewWriter(tmp)
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row to %s: %w", t.path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", t.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file for %s: %w", t.path, err)
	}
	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", t.path, err)
	}
	return nil
}

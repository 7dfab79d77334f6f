package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/conorfennell/attendance/internal/auth"
	"github.com/conorfennell/attendance/internal/domain"
	"github.com/conorfennell/attendance/internal/schedule"
)

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// handleIndex sends signed-in users to their schedule and everyone else to the login page.
func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if _, ok := s.sessionFromRequest(r); ok {
			http.Redirect(w, r, "/schedule", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.render(w, r, http.StatusOK, "login", page{Title: "Log in"})
		case http.MethodPost:
			username := r.PostFormValue("username")
			err := s.deps.Auth.Login(r.Context(), username, r.PostFormValue("password"))
			switch {
			case errors.Is(err, auth.ErrAuth):
				s.render(w, r, http.StatusUnauthorized, "login", page{Title: "Log in", Error: "Invalid username or password."})
			case err != nil:
				internalError(w, err)
			default:
				slog.Info("user logged in", "username", username)
				s.startSession(w, username)
				http.Redirect(w, r, "/schedule", http.StatusSeeOther)
			}
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.render(w, r, http.StatusOK, "login", page{Title: "Register"})
		case http.MethodPost:
			username := r.PostFormValue("username")
			err := s.deps.Auth.Register(r.Context(), username, r.PostFormValue("password"))
			switch {
			case errors.Is(err, auth.ErrUserExists):
				s.render(w, r, http.StatusConflict, "login", page{Title: "Register", Error: "Username already exists."})
			case errors.Is(err, auth.ErrEmptyCredentials):
				s.render(w, r, http.StatusBadRequest, "login", page{Title: "Register", Error: "Enter a username and a password."})
			case err != nil:
				internalError(w, err)
			default:
				slog.Info("user registered", "username", username)
				s.render(w, r, http.StatusOK, "login", page{Title: "Log in", Success: "Registration complete. You can now log in."})
			}
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.endSession(w, r)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
}

type scheduleView struct {
	Days      []domain.Weekday
	Courses   []string
	Entries   []domain.ScheduleEntry
	Timetable timetable
}

// handleSchedule lists the user's weekly blocks and adds new ones.
func (s *Server) handleSchedule() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.renderSchedule(w, r, http.StatusOK, page{})
		case http.MethodPost:
			s.handleAddCourse(w, r)
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleAddCourse(w http.ResponseWriter, r *http.Request) {
	var fields []schedule.FieldError
	day, err := domain.ParseWeekday(r.PostFormValue("day"))
	if err != nil {
		fields = append(fields, schedule.FieldError{Field: "day", Error: "day must be Monday through Friday"})
	}
	start, err := domain.ParseClock(r.PostFormValue("start"))
	if err != nil {
		fields = append(fields, schedule.FieldError{Field: "start", Error: "start time must be HH:MM"})
	}
	end, err := domain.ParseClock(r.PostFormValue("end"))
	if err != nil {
		fields = append(fields, schedule.FieldError{Field: "end", Error: "end time must be HH:MM"})
	}
	if len(fields) > 0 {
		s.renderSchedule(w, r, http.StatusUnprocessableEntity, page{FieldErrors: fields})
		return
	}

	entry, err := s.deps.Schedule.Add(r.Context(), currentUser(r.Context()), r.PostFormValue("course"), day, start, end)
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		s.renderSchedule(w, r, http.StatusUnprocessableEntity, page{FieldErrors: verr.Fields})
	case err != nil:
		internalError(w, err)
	default:
		s.renderSchedule(w, r, http.StatusOK, page{Success: fmt.Sprintf("Course %s added.", entry.Course)})
	}
}

func (s *Server) handleRemoveCourse() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		course := r.PostFormValue("course")
		n, err := s.deps.Schedule.Remove(r.Context(), currentUser(r.Context()), course)
		switch {
		case err != nil:
			internalError(w, err)
		case n == 0:
			s.renderSchedule(w, r, http.StatusOK, page{Info: fmt.Sprintf("No course named %s.", course)})
		default:
			s.renderSchedule(w, r, http.StatusOK, page{Success: fmt.Sprintf("Course %s removed.", course)})
		}
	}
}

func (s *Server) renderSchedule(w http.ResponseWriter, r *http.Request, status int, p page) {
	entries, err := s.deps.Schedule.ListFor(r.Context(), currentUser(r.Context()))
	if err != nil {
		internalError(w, err)
		return
	}
	sorted := append([]domain.ScheduleEntry(nil), entries...)
	schedule.Sort(sorted)

	p.Title = "Schedule"
	p.Active = "schedule"
	p.Data = scheduleView{
		Days:      domain.SchoolDays,
		Courses:   schedule.Courses(entries),
		Entries:   sorted,
		Timetable: buildTimetable(entries),
	}
	if len(entries) == 0 && p.Info == "" {
		p.Info = "No courses yet. Add your first course above."
	}
	s.render(w, r, status, "schedule", p)
}

type attendanceView struct {
	Date      string
	Day       domain.Weekday
	Classes   []classView
	Timetable timetable
}

type classView struct {
	Course  string
	Start   domain.Clock
	End     domain.Clock
	Checked bool
}

// handleAttendance shows the classes of one date with a checkbox each and
// records the boxes that changed.
func (s *Server) handleAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			date, p := s.requestedDate(r.URL.Query().Get("date"))
			s.renderAttendance(w, r, http.StatusOK, date, p)
		case http.MethodPost:
			s.handleMarkAttendance(w, r)
		default:
			methodNotAllowed(w)
		}
	}
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	date, err := domain.ParseDate(r.PostForm.Get("date"))
	if err != nil {
		s.renderAttendance(w, r, http.StatusBadRequest, domain.Date(timeNow()), page{Error: "Invalid date."})
		return
	}

	attended := make(map[string]bool)
	for _, c := range r.PostForm["attended"] {
		attended[c] = true
	}
	user := currentUser(r.Context())
	changed := 0
	seen := make(map[string]bool)
	for _, course := range r.PostForm["shown"] {
		if seen[course] {
			continue
		}
		seen[course] = true
		ok, err := s.deps.Ledger.Toggle(r.Context(), user, course, date, attended[course])
		if err != nil {
			internalError(w, err)
			return
		}
		if ok {
			changed++
		}
	}

	p := page{Info: "No changes."}
	if changed > 0 {
		p = page{Success: "Attendance saved."}
	}
	s.renderAttendance(w, r, http.StatusOK, date, p)
}

// requestedDate parses the date query parameter, falling back to today.
func (s *Server) requestedDate(raw string) (time.Time, page) {
	today := domain.Date(timeNow())
	if raw == "" {
		return today, page{}
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return today, page{Error: "Invalid date, showing today."}
	}
	return d, page{}
}

func (s *Server) renderAttendance(w http.ResponseWriter, r *http.Request, status int, date time.Time, p page) {
	user := currentUser(r.Context())
	entries, err := s.deps.Schedule.ListFor(r.Context(), user)
	if err != nil {
		internalError(w, err)
		return
	}
	marked, err := s.deps.Ledger.MarkedOn(r.Context(), user, date)
	if err != nil {
		internalError(w, err)
		return
	}

	day, ok := domain.WeekdayOf(date)
	if !ok {
		day = domain.Weekday(time.Friday)
		if p.Info == "" {
			p.Info = "Weekend: showing Friday's program."
		}
	}
	view := attendanceView{
		Date:      domain.FormatDate(date),
		Day:       day,
		Timetable: buildTimetable(entries),
	}
	for _, e := range schedule.ForDay(entries, day) {
		view.Classes = append(view.Classes, classView{
			Course:  e.Course,
			Start:   e.Start,
			End:     e.End,
			Checked: marked[e.Course],
		})
	}
	if len(view.Classes) == 0 && p.Info == "" {
		p.Info = fmt.Sprintf("No classes on %s.", day)
	}

	p.Title = "Attendance"
	p.Active = "attendance"
	p.Data = view
	s.render(w, r, status, "attendance", p)
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		user := currentUser(r.Context())
		p := page{Title: "Statistics", Active: "stats"}

		entries, err := s.deps.Schedule.ListFor(r.Context(), user)
		if err != nil {
			internalError(w, err)
			return
		}
		if len(entries) == 0 {
			p.Info = "Add your courses first."
			s.render(w, r, http.StatusOK, "stats", p)
			return
		}

		report, err := s.deps.Participation.Stats(r.Context(), user, domain.Date(timeNow()))
		if err != nil {
			internalError(w, err)
			return
		}
		if len(report.Courses) == 0 {
			p.Info = "No attendance recorded yet."
			s.render(w, r, http.StatusOK, "stats", p)
			return
		}
		p.Data = report
		s.render(w, r, http.StatusOK, "stats", p)
	}
}

func (s *Server) handleRanking() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		reports, err := s.deps.Participation.Ranking(r.Context(), domain.Date(timeNow()))
		if err != nil {
			internalError(w, err)
			return
		}
		p := page{Title: "Ranking", Active: "ranking"}
		if len(reports) == 0 {
			p.Info = "Not enough data for a ranking yet."
		} else {
			p.Data = reports
		}
		s.render(w, r, http.StatusOK, "ranking", p)
	}
}

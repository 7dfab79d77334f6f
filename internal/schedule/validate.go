package schedule

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/attendance/internal/domain"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("validation failed")

// FieldError is used to indicate an error with a specific input field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports rejected input. Nothing is persisted when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// custom validation tags & texts
var (
	schoolDayTag  = "schoolday"
	endAfterTag   = "endafterstart"
	fieldMessages = map[string]string{
		"username":   "username is required",
		"course":     "course name must not be empty",
		schoolDayTag: "day must be Monday through Friday",
		endAfterTag:  "end time must be after start time",
		"clock":      "time must be between 00:00 and 23:59",
	}
)

// newEntry is the validated form of an add request.
type newEntry struct {
	Username string         `validate:"required"`
	Course   string         `validate:"required"`
	Day      domain.Weekday `validate:"schoolday"`
	Start    domain.Clock   `validate:"min=0,max=1439"`
	End      domain.Clock   `validate:"min=0,max=1439"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation(schoolDayTag, func(fl validator.FieldLevel) bool {
		return domain.Weekday(fl.Field().Int()).Valid()
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		ne := sl.Current().Interface().(newEntry)
		if ne.End <= ne.Start {
			sl.ReportError(ne.End, "end", "End", endAfterTag, "")
		}
	}, newEntry{})
	return v
}

// check validates ne and converts validator errors into a ValidationError.
func check(ne newEntry) error {
	err := validate.Struct(ne)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		msg, ok := fieldMessages[fe.Tag()]
		switch {
		case ok:
		case fe.Tag() == "required":
			msg = fieldMessages[field]
		default:
			msg = fieldMessages["clock"]
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Error: msg})
	}
	return out
}

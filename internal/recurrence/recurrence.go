package recurrence

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"

	"trennkal/internal/holiday"
	"trennkal/internal/model"
)

const dateLayout = "2006-01-02"

// dayNames are the Estonian weekday names, indexed 0=Sunday..6=Saturday.
var dayNames = [7]string{
	"Pühapäev",
	"Esmaspäev",
	"Teisipäev",
	"Kolmapäev",
	"Neljapäev",
	"Reede",
	"Laupäev",
}

// byWeekday maps 0=Sunday..6=Saturday onto rrule weekday constants.
var byWeekday = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// Spec is the user-supplied weekly pattern: a date range, a weekday,
// a time window and descriptive fields. It is consumed once by
// Generate and never persisted here.
type Spec struct {
	StartDate string `validate:"required,datetime=2006-01-02"`
	EndDate   string `validate:"required,datetime=2006-01-02"`
	// Weekday uses 0=Sunday..6=Saturday.
	Weekday   int    `validate:"gte=0,lte=6"`
	StartTime string `validate:"required,datetime=15:04"`
	EndTime   string `validate:"required,datetime=15:04"`
	Title     string
	Location  string
}

// ValidationError reports a malformed Spec. Generation never starts
// when validation fails, so callers can tell "bad input" apart from a
// legitimately empty result (which is an empty slice and a nil error).
type ValidationError struct {
	cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recurrence spec: %v", e.cause)
}

func (e *ValidationError) Unwrap() error { return e.cause }

var validate = validator.New()

// Generate expands spec into the ordered list of concrete sessions:
// every date in [StartDate, EndDate] falling on spec.Weekday, minus the
// dates blacked out by cal. Blacked-out occurrences are omissions, not
// offsets; subsequent occurrences keep their weekly cadence.
//
// The function is pure: identical inputs always yield identical output,
// and an inverted date range yields an empty slice without error.
func Generate(spec Spec, cal *holiday.Calendar) ([]model.Session, error) {
	if err := validate.Struct(spec); err != nil {
		return nil, &ValidationError{cause: err}
	}
	if cal == nil {
		cal = holiday.Empty()
	}

	// Both parse: the validator checked the layouts above.
	start, _ := time.Parse(dateLayout, spec.StartDate)
	end, _ := time.Parse(dateLayout, spec.EndDate)

	sessions := make([]model.Session, 0)
	if end.Before(start) {
		return sessions, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   start,
		Byweekday: []rrule.Weekday{byWeekday[spec.Weekday]},
	})
	if err != nil {
		return nil, fmt.Errorf("recurrence rule: %w", err)
	}

	for _, candidate := range r.Between(start, end, true) {
		date := candidate.Format(dateLayout)
		if cal.IsBlackedOut(date) {
			continue
		}
		sessions = append(sessions, model.Session{
			Date:        date,
			DisplayDate: candidate.Format("02.01.2006"),
			DayName:     dayNames[int(candidate.Weekday())],
			Title:       spec.Title,
			StartTime:   spec.StartTime,
			EndTime:     spec.EndTime,
			Location:    spec.Location,
		})
	}
	return sessions, nil
}

package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trennkal/internal/holiday"
	"trennkal/internal/model"
)

func mondaysSpec() Spec {
	return Spec{
		StartDate: "2025-09-01",
		EndDate:   "2025-09-30",
		Weekday:   1, // Monday
		StartTime: "19:20",
		EndTime:   "20:20",
		Title:     "Tantsutrenn",
	}
}

func dates(sessions []model.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Date)
	}
	return out
}

func TestGenerateFiveMondays(t *testing.T) {
	sessions, err := Generate(mondaysSpec(), holiday.Empty())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"2025-09-01", "2025-09-08", "2025-09-15", "2025-09-22", "2025-09-29",
	}, dates(sessions))

	first := sessions[0]
	assert.Equal(t, "01.09.2025", first.DisplayDate)
	assert.Equal(t, "Esmaspäev", first.DayName)
	assert.Equal(t, "19:20", first.StartTime)
	assert.Equal(t, "20:20", first.EndTime)
	assert.Equal(t, "Tantsutrenn", first.Title)
	assert.Empty(t, first.ID)
}

func TestGenerateSkipsHolidaysWithoutShifting(t *testing.T) {
	cal, err := holiday.New([]holiday.Interval{{Start: "2025-09-14", End: "2025-09-20"}})
	require.NoError(t, err)

	sessions, err := Generate(mondaysSpec(), cal)
	require.NoError(t, err)

	// 09-15 falls inside the break and is omitted; the cadence of the
	// remaining occurrences is unchanged.
	assert.Equal(t, []string{
		"2025-09-01", "2025-09-08", "2025-09-22", "2025-09-29",
	}, dates(sessions))
}

func TestGenerateAllBlackedOut(t *testing.T) {
	cal, err := holiday.New([]holiday.Interval{{Start: "2025-09-01", End: "2025-09-30"}})
	require.NoError(t, err)

	sessions, err := Generate(mondaysSpec(), cal)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestGenerateInvertedRange(t *testing.T) {
	spec := mondaysSpec()
	spec.StartDate = "2025-09-30"
	spec.EndDate = "2025-09-01"

	sessions, err := Generate(spec, holiday.Empty())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestGenerateWeekdayAndSpacing(t *testing.T) {
	for weekday := 0; weekday < 7; weekday++ {
		spec := mondaysSpec()
		spec.StartDate = "2025-09-03"
		spec.EndDate = "2025-11-30"
		spec.Weekday = weekday

		sessions, err := Generate(spec, holiday.Empty())
		require.NoError(t, err)
		require.NotEmpty(t, sessions)

		var prev time.Time
		for i, s := range sessions {
			d, err := time.Parse("2006-01-02", s.Date)
			require.NoError(t, err)
			assert.Equal(t, weekday, int(d.Weekday()), "weekday %d session %s", weekday, s.Date)
			if i > 0 {
				assert.Equal(t, 7*24*time.Hour, d.Sub(prev), "weekday %d session %s", weekday, s.Date)
			}
			prev = d
		}
	}
}

func TestGenerateIdempotent(t *testing.T) {
	cal, err := holiday.New(holiday.EstonianSchoolHolidays())
	require.NoError(t, err)

	spec := mondaysSpec()
	spec.StartDate = "2025-09-01"
	spec.EndDate = "2026-05-31"

	first, err := Generate(spec, cal)
	require.NoError(t, err)
	second, err := Generate(spec, cal)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateValidation(t *testing.T) {
	cases := map[string]func(*Spec){
		"missing start date": func(s *Spec) { s.StartDate = "" },
		"missing end date":   func(s *Spec) { s.EndDate = "" },
		"missing start time": func(s *Spec) { s.StartTime = "" },
		"missing end time":   func(s *Spec) { s.EndTime = "" },
		"malformed date":     func(s *Spec) { s.StartDate = "01.09.2025" },
		"malformed time":     func(s *Spec) { s.StartTime = "25:99" },
		"weekday too large":  func(s *Spec) { s.Weekday = 7 },
		"weekday negative":   func(s *Spec) { s.Weekday = -1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := mondaysSpec()
			mutate(&spec)

			_, err := Generate(spec, holiday.Empty())
			require.Error(t, err)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "want ValidationError, got %T", err)
		})
	}
}

package holiday

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBlackedOutInclusiveBounds(t *testing.T) {
	cal, err := New([]Interval{{Start: "2025-09-14", End: "2025-09-20"}})
	require.NoError(t, err)

	assert.False(t, cal.IsBlackedOut("2025-09-13"))
	assert.True(t, cal.IsBlackedOut("2025-09-14"))
	assert.True(t, cal.IsBlackedOut("2025-09-17"))
	assert.True(t, cal.IsBlackedOut("2025-09-20"))
	assert.False(t, cal.IsBlackedOut("2025-09-21"))
}

func TestIsBlackedOutAnyInterval(t *testing.T) {
	cal, err := New([]Interval{
		{Start: "2024-12-23", End: "2025-01-05"},
		{Start: "2025-02-24", End: "2025-03-02"},
	})
	require.NoError(t, err)

	assert.True(t, cal.IsBlackedOut("2024-12-31"))
	assert.True(t, cal.IsBlackedOut("2025-01-01"))
	assert.True(t, cal.IsBlackedOut("2025-02-24"))
	assert.False(t, cal.IsBlackedOut("2025-02-23"))
}

func TestEmptyCalendar(t *testing.T) {
	assert.False(t, Empty().IsBlackedOut("2025-09-15"))
}

func TestNewRejectsBadIntervals(t *testing.T) {
	_, err := New([]Interval{{Start: "2025-9-1", End: "2025-09-30"}})
	assert.Error(t, err)

	_, err = New([]Interval{{Start: "2025-09-30", End: "2025-09-01"}})
	assert.Error(t, err)

	_, err = New([]Interval{{Start: "2025-09-01", End: "not-a-date"}})
	assert.Error(t, err)
}

func TestEstonianSchoolHolidaysValid(t *testing.T) {
	cal, err := New(EstonianSchoolHolidays())
	require.NoError(t, err)

	// Mid-winter break and summer pause are blacked out, a regular
	// school week is not.
	assert.True(t, cal.IsBlackedOut("2025-12-25"))
	assert.True(t, cal.IsBlackedOut("2025-07-15"))
	assert.False(t, cal.IsBlackedOut("2025-09-15"))
}

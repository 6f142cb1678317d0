package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trennkal/internal/model"
)

func septemberSessions() []model.Session {
	return []model.Session{
		{ID: "ses1", Date: "2025-09-01", StartTime: "19:20", EndTime: "20:20", Title: "Tantsutrenn", Location: "Tallinn Stuudio"},
		{ID: "ses2", Date: "2025-09-08", StartTime: "19:20", EndTime: "20:20", Title: "Tantsutrenn"},
	}
}

func TestBuild(t *testing.T) {
	body, err := Build("g1", "Tantsurühm", septemberSessions(), time.UTC)
	require.NoError(t, err)

	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "END:VCALENDAR")
	assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	assert.Contains(t, body, "SUMMARY:Tantsurühm: Tantsutrenn")
	assert.Contains(t, body, "LOCATION:Tallinn Stuudio")
	assert.Contains(t, body, "DTSTART:20250901T192000Z")
	assert.Contains(t, body, "DTEND:20250901T202000Z")
}

func TestBuildDeterministic(t *testing.T) {
	first, err := Build("g1", "Tantsurühm", septemberSessions(), time.UTC)
	require.NoError(t, err)
	second, err := Build("g1", "Tantsurühm", septemberSessions(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEventUIDStablePerGroupAndDate(t *testing.T) {
	assert.Equal(t, eventUID("g1", "2025-09-01"), eventUID("g1", "2025-09-01"))
	assert.NotEqual(t, eventUID("g1", "2025-09-01"), eventUID("g1", "2025-09-08"))
	assert.NotEqual(t, eventUID("g1", "2025-09-01"), eventUID("g2", "2025-09-01"))
	assert.True(t, strings.HasSuffix(eventUID("g1", "2025-09-01"), "@trennkal"))
}

func TestBuildRejectsBadTimes(t *testing.T) {
	sessions := []model.Session{{Date: "2025-09-01", StartTime: "late", EndTime: "20:20"}}
	_, err := Build("g1", "", sessions, time.UTC)
	assert.Error(t, err)
}

package feed

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"trennkal/internal/model"
)

// Build renders a session list as a parent-facing iCalendar. Event UIDs
// are derived deterministically from (groupID, date), so rebuilding the
// feed from the same sessions yields byte-identical events and calendar
// apps keep their subscriptions stable.
func Build(groupID, groupName string, sessions []model.Session, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//trennkal//schedule feed//ET")

	for _, session := range sessions {
		start, err := sessionTime(session.Date, session.StartTime, loc)
		if err != nil {
			return "", fmt.Errorf("feed: session %s: %w", session.Date, err)
		}
		end, err := sessionTime(session.Date, session.EndTime, loc)
		if err != nil {
			return "", fmt.Errorf("feed: session %s: %w", session.Date, err)
		}

		ev := cal.AddEvent(eventUID(groupID, session.Date))
		ev.SetDtStampTime(start)
		ev.SetStartAt(start)
		ev.SetEndAt(end)

		summary := session.Title
		if groupName != "" {
			summary = groupName + ": " + summary
		}
		ev.SetSummary(summary)
		if session.Location != "" {
			ev.SetLocation(session.Location)
		}
	}

	return cal.Serialize(), nil
}

// eventUID derives a stable UID from the group and date via a
// name-based UUID.
func eventUID(groupID, date string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("trennkal://"+groupID+"/"+date))
	return id.String() + "@trennkal"
}

func sessionTime(date, hhmm string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, loc)
}

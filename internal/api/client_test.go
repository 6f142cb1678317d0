package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-token", 5*time.Second, ""), srv
}

func TestGroup(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groups/g1", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"_id":"g1","name":"Tantsurühm","students":[
			{"_id":"stu1","firstName":"Mari","lastName":"Maasikas"},
			{"_id":"stu2","firstName":"Jaan","lastName":"Kask","parent":{"firstName":"Kati","lastName":"Kask","email":"kati@example.com"}}
		]}}`))
	}))

	group, err := client.Group(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, "Tantsurühm", group.Name)
	require.Len(t, group.Students, 2)
	assert.Equal(t, "Mari Maasikas", group.Students[0].FullName())
	assert.Equal(t, "kati@example.com", group.Students[1].ContactEmail())
}

func TestSchedules(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schedules", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "g1", q.Get("groupId"))
		assert.Equal(t, "2025-09-01", q.Get("startDate"))
		assert.Equal(t, "2025-09-30", q.Get("endDate"))
		_, _ = w.Write([]byte(`{"data":[
			{"_id":"ses1","date":"2025-09-01","startTime":"19:20","endTime":"20:20","title":"Tantsutrenn"},
			{"_id":"ses2","date":"2025-09-08","startTime":"19:20","endTime":"20:20","title":"Tantsutrenn"}
		]}`))
	}))

	sessions, err := client.Schedules(context.Background(), "g1", "2025-09-01", "2025-09-30")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "ses1", sessions[0].ID)
	assert.Equal(t, "2025-09-08", sessions[1].Date)
}

func TestSchedulesNullData(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	}))

	sessions, err := client.Schedules(context.Background(), "g1", "2025-09-01", "2025-09-30")
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestAttendanceFlattensNestedShape(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schedules/group/g1/attendance", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"attendanceByStudent":[
			{"student":{"_id":"stu1"},"records":[
				{"schedule":{"_id":"ses1"},"present":true,"_id":"rec1"},
				{"schedule":{"_id":"ses2"},"present":false,"_id":"rec2"}
			]},
			{"student":{"_id":"stu2"},"records":[]}
		]}}`))
	}))

	rows, err := client.Attendance(context.Background(), "g1", "2025-09-01", "2025-09-30")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "stu1", rows[0].StudentID)
	require.Len(t, rows[0].Records, 2)
	assert.Equal(t, AttendanceRecord{ScheduleID: "ses1", Present: true, RecordID: "rec1"}, rows[0].Records[0])
	assert.Equal(t, AttendanceRecord{ScheduleID: "ses2", Present: false, RecordID: "rec2"}, rows[0].Records[1])
	assert.Empty(t, rows[1].Records)
}

func TestToggleAttendance(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/schedules/ses1/attendance", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "stu1", payload["studentId"])
		assert.Equal(t, true, payload["present"])

		w.WriteHeader(http.StatusOK)
	}))

	err := client.ToggleAttendance(context.Background(), "ses1", "stu1", true)
	assert.NoError(t, err)
}

func TestToggleAttendanceFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database unavailable"}`))
	}))

	err := client.ToggleAttendance(context.Background(), "ses1", "stu1", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Contains(t, err.Error(), "500")
}

func TestGenerateBulk(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schedules/generate-bulk", r.URL.Path)

		var req BulkRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "g1", req.GroupID)
		assert.Equal(t, 1, req.DayOfWeek)
		assert.Equal(t, "19:20", req.StartTime)

		_, _ = w.Write([]byte(`{"data":[{"_id":"ses1","date":"2025-09-01"},{"_id":"ses2","date":"2025-09-08"}]}`))
	}))

	created, err := client.GenerateBulk(context.Background(), BulkRequest{
		GroupID:   "g1",
		StartDate: "2025-09-01",
		EndDate:   "2025-09-30",
		DayOfWeek: 1,
		StartTime: "19:20",
		EndTime:   "20:20",
		Title:     "Tantsutrenn",
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "ses1", created[0].ID)
}

func TestGenerateBulkRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"schedules overlap existing sessions"}`))
	}))

	_, err := client.GenerateBulk(context.Background(), BulkRequest{GroupID: "g1"})
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Equal(t, "schedules overlap existing sessions", perr.Message)
}

func TestConditionalGETUsesCache(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Header.Get("If-None-Match"))
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"data":{"_id":"g1","name":"Tantsurühm","students":[]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 5*time.Second, t.TempDir())

	first, err := client.Group(context.Background(), "g1")
	require.NoError(t, err)
	second, err := client.Group(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, requests, 2)
	assert.Empty(t, requests[0])
	assert.Equal(t, `"v1"`, requests[1])
}

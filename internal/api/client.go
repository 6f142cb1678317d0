package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "trennkal/internal/log"
	"trennkal/internal/model"
)

const defaultTimeout = 15 * time.Second

// Client talks to the club's REST backend. It owns request building,
// auth headers, timeouts and HTTP caching; all domain decisions stay
// with the callers.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	cache   *responseCache // nil disables conditional GET caching
}

// NewClient creates a Client for the given base URL. token, when
// non-empty, is sent as a bearer token on every request. cacheDir, when
// non-empty, enables an ETag/Last-Modified disk cache for reads.
func NewClient(baseURL, token string, timeout time.Duration, cacheDir string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
	if cacheDir != "" {
		c.cache = &responseCache{dir: cacheDir}
	}
	return c
}

// PersistenceError reports a rejected bulk-create. The preview computed
// before the call stays untouched in memory; nothing is partially
// applied because the backend treats the call as atomic.
type PersistenceError struct {
	Status  int
	Message string
}

func (e *PersistenceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bulk create rejected: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("bulk create rejected (status %d)", e.Status)
}

// apiMessage is the backend's error body shape.
type apiMessage struct {
	Message string `json:"message"`
}

// Group fetches a group with its student roster.
func (c *Client) Group(ctx context.Context, id string) (model.Group, error) {
	var envelope struct {
		Data model.Group `json:"data"`
	}
	if err := c.getJSON(ctx, "/groups/"+id, nil, &envelope); err != nil {
		return model.Group{}, err
	}
	return envelope.Data, nil
}

// Schedules fetches the persisted sessions of a group within the
// inclusive [startDate, endDate] window (YYYY-MM-DD).
func (c *Client) Schedules(ctx context.Context, groupID, startDate, endDate string) ([]model.Session, error) {
	q := url.Values{}
	q.Set("groupId", groupID)
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)

	var envelope struct {
		Data []model.Session `json:"data"`
	}
	if err := c.getJSON(ctx, "/schedules", q, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return []model.Session{}, nil
	}
	return envelope.Data, nil
}

// AttendanceRecord is one persisted presence fact.
type AttendanceRecord struct {
	ScheduleID string
	Present    bool
	RecordID   string
}

// StudentAttendance groups the persisted records of one student.
type StudentAttendance struct {
	StudentID string
	Records   []AttendanceRecord
}

// Attendance fetches all attendance records of a group within the
// window, flattened out of the backend's nested response shape.
func (c *Client) Attendance(ctx context.Context, groupID, startDate, endDate string) ([]StudentAttendance, error) {
	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)

	var envelope struct {
		Data struct {
			AttendanceByStudent []struct {
				Student struct {
					ID string `json:"_id"`
				} `json:"student"`
				Records []struct {
					Schedule struct {
						ID string `json:"_id"`
					} `json:"schedule"`
					Present bool   `json:"present"`
					ID      string `json:"_id"`
				} `json:"records"`
			} `json:"attendanceByStudent"`
		} `json:"data"`
	}
	if err := c.getJSON(ctx, "/schedules/group/"+groupID+"/attendance", q, &envelope); err != nil {
		return nil, err
	}

	out := make([]StudentAttendance, 0, len(envelope.Data.AttendanceByStudent))
	for _, sa := range envelope.Data.AttendanceByStudent {
		flat := StudentAttendance{StudentID: sa.Student.ID}
		for _, rec := range sa.Records {
			flat.Records = append(flat.Records, AttendanceRecord{
				ScheduleID: rec.Schedule.ID,
				Present:    rec.Present,
				RecordID:   rec.ID,
			})
		}
		out = append(out, flat)
	}
	return out, nil
}

// ToggleAttendance upserts the presence value for one (session,
// student) pair. The backend keys records by that pair, so repeated
// calls never create duplicates.
func (c *Client) ToggleAttendance(ctx context.Context, scheduleID, studentID string, present bool) error {
	body := struct {
		StudentID string `json:"studentId"`
		Present   bool   `json:"present"`
	}{StudentID: studentID, Present: present}

	status, respBody, err := c.postJSON(ctx, "/schedules/"+scheduleID+"/attendance", body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("attendance upsert failed: %s (status %d)", messageOf(respBody), status)
	}
	return nil
}

// BulkRequest is the payload of the bulk session-create endpoint.
type BulkRequest struct {
	GroupID   string `json:"groupId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Location  string `json:"location"`
	Title     string `json:"title"`
}

// GenerateBulk asks the backend to materialize a weekly series. A
// non-2xx response surfaces as *PersistenceError.
func (c *Client) GenerateBulk(ctx context.Context, req BulkRequest) ([]model.Session, error) {
	status, respBody, err := c.postJSON(ctx, "/schedules/generate-bulk", req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &PersistenceError{Status: status, Message: messageOf(respBody)}
	}

	var envelope struct {
		Data []model.Session `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("bulk create: decode response: %w", err)
	}
	return envelope.Data, nil
}

// getJSON performs a GET honoring the conditional-request disk cache
// when one is configured: 304 responses and network errors fall back to
// the cached body.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var (
		meta       cacheMeta
		cachedBody []byte
	)
	if c.cache != nil {
		meta, cachedBody = c.cache.load(u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Network error; reuse the cached body when we have one.
		if len(cachedBody) > 0 {
			appLog.Error("api get failed, using cached body", err, "url", redactURL(u))
			return json.Unmarshal(cachedBody, out)
		}
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		if c.cache != nil {
			c.cache.save(u, cacheMeta{
				URL:          u,
				ETag:         resp.Header.Get("ETag"),
				LastModified: resp.Header.Get("Last-Modified"),
			}, body)
		}
		return json.Unmarshal(body, out)

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return fmt.Errorf("api get %s: 304 without cached body", redactURL(u))
		}
		appLog.Debug("api get not modified, using cache", "url", redactURL(u))
		return json.Unmarshal(cachedBody, out)

	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api get %s failed: %s (status %d)", redactURL(u), messageOf(body), resp.StatusCode)
	}
}

// postJSON performs a POST and returns the status code plus raw body;
// interpreting non-2xx statuses is the caller's job.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func messageOf(body []byte) string {
	var msg apiMessage
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}
	return "request failed"
}

// redactURL strips the query string before logging; query parameters
// may carry identifiers that do not belong in logs.
func redactURL(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

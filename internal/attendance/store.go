package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trennkal/internal/api"
	appLog "trennkal/internal/log"
)

// Backend is the slice of the REST client the store needs. api.Client
// satisfies it; tests substitute a fake.
type Backend interface {
	Attendance(ctx context.Context, groupID, startDate, endDate string) ([]api.StudentAttendance, error)
	ToggleAttendance(ctx context.Context, scheduleID, studentID string, present bool) error
}

// Key is the natural key of a presence fact: at most one record exists
// per (session, student) pair.
type Key struct {
	SessionID string
	StudentID string
}

// Record is one presence fact. A missing record is equivalent to
// Present=false with no RecordID; the matrix stays sparse.
type Record struct {
	Present  bool
	RecordID string
}

// SyncError reports a single failed toggle. It is scoped to one
// (session, student) pair and never blocks other cells; the local value
// rolls back to the pre-toggle state.
type SyncError struct {
	SessionID string
	StudentID string
	cause     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("attendance sync failed for session %s student %s: %v", e.SessionID, e.StudentID, e.cause)
}

func (e *SyncError) Unwrap() error { return e.cause }

// Store caches the presence matrix of the currently viewed (group,
// month) window. Local state only ever changes after the backend
// confirmed the same change, so the cache can not drift ahead of the
// backend.
type Store struct {
	backend Backend

	mu      sync.Mutex
	records map[Key]Record
	gen     uint64
	window  string
	keyMu   map[Key]*sync.Mutex
}

// NewStore creates an empty store backed by the given client.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		records: make(map[Key]Record),
		keyMu:   make(map[Key]*sync.Mutex),
	}
}

// MonthRange expands a YYYY-MM month into its inclusive first and last
// day, both as YYYY-MM-DD.
func MonthRange(month string) (startDate, endDate string, err error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", fmt.Errorf("bad month %q: %w", month, err)
	}
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02"), nil
}

// Load hydrates the store for one (group, month) window, replacing any
// previous contents. Each call bumps a generation stamp: a Load or
// Toggle that was in flight when a newer Load started is discarded
// instead of being applied to the newer snapshot.
func (s *Store) Load(ctx context.Context, groupID, month string) error {
	startDate, endDate, err := MonthRange(month)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	rows, err := s.backend.Attendance(ctx, groupID, startDate, endDate)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// A newer window superseded this load; drop the result.
		appLog.Debug("attendance load superseded", "group", groupID, "month", month)
		return nil
	}
	if err != nil {
		return err
	}

	records := make(map[Key]Record)
	for _, sa := range rows {
		for _, rec := range sa.Records {
			key := Key{SessionID: rec.ScheduleID, StudentID: sa.StudentID}
			records[key] = Record{Present: rec.Present, RecordID: rec.RecordID}
		}
	}
	// Commit under a fresh generation so a toggle that captured its
	// snapshot while this load was in flight is discarded instead of
	// landing on the new one.
	s.gen++
	if window := groupID + "/" + month; window != s.window {
		s.window = window
		// The old window's keys will not be toggled again; drop their
		// locks so the map does not grow across months. A toggle still
		// holding an old lock is discarded by the generation check.
		s.keyMu = make(map[Key]*sync.Mutex)
	}
	s.records = records
	return nil
}

// Get returns the record for one (session, student) pair and whether an
// explicit record exists.
func (s *Store) Get(sessionID, studentID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[Key{SessionID: sessionID, StudentID: studentID}]
	return rec, ok
}

// Present reports whether the student was marked present at the
// session. Absence of a record means false.
func (s *Store) Present(sessionID, studentID string) bool {
	rec, _ := s.Get(sessionID, studentID)
	return rec.Present
}

// Len returns the number of explicit records currently cached.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Toggle flips the presence value of one pair. The upsert is sent to
// the backend first; only on success is the flipped value committed
// locally, so a failure leaves the cell exactly as it was and returns a
// *SyncError. Toggles on the same key are serialized; toggles on
// different keys proceed independently.
func (s *Store) Toggle(ctx context.Context, sessionID, studentID string) (bool, error) {
	key := Key{SessionID: sessionID, StudentID: studentID}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	current := s.records[key].Present
	gen := s.gen
	s.mu.Unlock()

	// current is the value as of the captured generation. A load that
	// hydrates fresh state while the upsert is in flight bumps the
	// generation at commit, so the flip below is discarded rather than
	// applied to a snapshot it was not computed from.
	next := !current
	if err := s.backend.ToggleAttendance(ctx, sessionID, studentID, next); err != nil {
		return current, &SyncError{SessionID: sessionID, StudentID: studentID, cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// A load committed mid-flight. The backend holds the toggled
		// value but the local snapshot is newer than this flip.
		appLog.Debug("attendance toggle superseded", "session", sessionID, "student", studentID)
		return next, nil
	}
	rec := s.records[key]
	rec.Present = next
	s.records[key] = rec
	return next, nil
}

func (s *Store) lockFor(key Key) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.keyMu[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.keyMu[key] = l
	return l
}

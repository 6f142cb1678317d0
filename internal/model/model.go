package model

// Session is one concrete scheduled training occurrence. Sessions
// produced by recurrence generation have no ID until the backend
// persists them; sessions loaded from the backend always do.
type Session struct {
	ID      string `json:"_id,omitempty"`
	GroupID string `json:"groupId,omitempty"`

	// Date is the session date as YYYY-MM-DD.
	Date string `json:"date"`
	// DisplayDate is the same date formatted as DD.MM.YYYY.
	DisplayDate string `json:"displayDate,omitempty"`
	// DayName is the Estonian weekday name for Date.
	DayName string `json:"dayName,omitempty"`

	Title     string `json:"title"`
	StartTime string `json:"startTime"` // HH:MM
	EndTime   string `json:"endTime"`   // HH:MM
	Location  string `json:"location,omitempty"`
}

// Parent is the contact person attached to a student record.
type Parent struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Student is a roster entry owned by the backend. Parent contact data
// may arrive either flattened (ParentName/ParentEmail) or as a nested
// Parent object depending on the endpoint.
type Student struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Age       int    `json:"age,omitempty"`

	ParentName  string  `json:"parentName,omitempty"`
	ParentEmail string  `json:"parentEmail,omitempty"`
	ParentPhone string  `json:"parentPhone,omitempty"`
	Parent      *Parent `json:"parent,omitempty"`
}

// FullName returns "First Last".
func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// ContactName returns the parent name, preferring the flattened field
// over the nested parent object.
func (s Student) ContactName() string {
	if s.ParentName != "" {
		return s.ParentName
	}
	if s.Parent != nil {
		name := s.Parent.FirstName
		if s.Parent.LastName != "" {
			if name != "" {
				name += " "
			}
			name += s.Parent.LastName
		}
		return name
	}
	return ""
}

// ContactEmail returns the parent email, preferring the flattened field.
func (s Student) ContactEmail() string {
	if s.ParentEmail != "" {
		return s.ParentEmail
	}
	if s.Parent != nil {
		return s.Parent.Email
	}
	return ""
}

// ContactPhone returns the parent phone, preferring the flattened field.
func (s Student) ContactPhone() string {
	if s.ParentPhone != "" {
		return s.ParentPhone
	}
	if s.Parent != nil {
		return s.Parent.Phone
	}
	return ""
}

// Group is a dance-class group with its roster.
type Group struct {
	ID       string    `json:"_id"`
	Name     string    `json:"name"`
	Students []Student `json:"students"`
}

// AttendanceStats is the derived attendance summary for one student
// over a set of sessions. It is computed, never stored.
type AttendanceStats struct {
	StudentID  string `json:"studentId"`
	Attended   int    `json:"attended"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"trennkal/internal/attendance"
	"trennkal/internal/model"
)

// utf8BOM makes common spreadsheet tools decode the file as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// estonianMonths indexes time.Month values, matching the locale the
// reports are read in.
var estonianMonths = [13]string{
	"",
	"jaanuar", "veebruar", "märts", "aprill", "mai", "juuni",
	"juuli", "august", "september", "oktoober", "november", "detsember",
}

// Rows renders a header plus data rows as comma-delimited text with a
// UTF-8 BOM prefix. Fields containing a comma, a quote or a newline are
// quoted with internal quotes doubled. Rows come out exactly in input
// order; filtering empty rows is the caller's job.
func Rows(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var attendanceHeader = []string{
	"Õpilane", "E-post", "Lapsevanem", "Kuu", "Osalenud", "Kokku trenne", "Protsent",
}

// AttendanceCSV renders the monthly attendance report for a roster:
// one row per student with contact data and derived stats. month is
// YYYY-MM. Returns the file body and the download filename.
func AttendanceCSV(students []model.Student, sessions []model.Session, store *attendance.Store, month string) ([]byte, string, error) {
	rows := make([][]string, 0, len(students))
	for _, student := range students {
		stats := store.Stats(student.ID, sessions)
		rows = append(rows, []string{
			student.FullName(),
			student.ContactEmail(),
			student.ContactName(),
			monthLabel(month),
			strconv.Itoa(stats.Attended),
			strconv.Itoa(stats.Total),
			strconv.Itoa(stats.Percentage) + "%",
		})
	}

	body, err := Rows(attendanceHeader, rows)
	if err != nil {
		return nil, "", err
	}
	return body, "kohalolek_" + month + ".csv", nil
}

var rosterHeader = []string{
	"Grupi nimi", "Õpilase eesnimi", "Õpilase perekonnanimi", "Vanus",
	"Lapsevanema nimi", "Lapsevanema e-post", "Telefon",
}

// RosterCSV renders the group roster with parent contact columns.
// Returns the file body and the download filename.
func RosterCSV(groupName string, students []model.Student) ([]byte, string, error) {
	rows := make([][]string, 0, len(students))
	for _, student := range students {
		age := ""
		if student.Age > 0 {
			age = strconv.Itoa(student.Age)
		}
		rows = append(rows, []string{
			groupName,
			student.FirstName,
			student.LastName,
			age,
			student.ContactName(),
			student.ContactEmail(),
			student.ContactPhone(),
		})
	}

	body, err := Rows(rosterHeader, rows)
	if err != nil {
		return nil, "", err
	}
	return body, groupName + "_õpilased.csv", nil
}

// monthLabel formats YYYY-MM as an Estonian "september 2025" label.
// Unparseable input passes through unchanged.
func monthLabel(month string) string {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return month
	}
	return estonianMonths[int(t.Month())] + " " + strconv.Itoa(t.Year())
}

package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusExcused Status = "EXCUSED"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// Record is the attendance of one student to one class meeting.
// (CourseID, StudentID, Date) is unique.
type Record struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	Date       string    `json:"date"` // YYYY-MM-DD
	Status     Status    `json:"status"`
	Remarks    string    `json:"remarks"`
	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type Entry struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    Status `json:"status" validate:"required,attendancestatus"`
	Remarks   string `json:"remarks" validate:"max=255"`
}

// RecordAttendance holds the attendance of a course meeting. CourseID and RecordedBy are set by the caller.
type RecordAttendance struct {
	CourseID   string  `json:"-"`
	RecordedBy string  `json:"-"`
	Date       string  `json:"date" validate:"required,isodate"`
	Entries    []Entry `json:"entries" validate:"required,min=1,dive"`
}

func (ra *RecordAttendance) Validate(validate *validator.Validate) error {
	ra.Date = core.CleanString(ra.Date)
	for i := range ra.Entries {
		ra.Entries[i].StudentID = core.CleanString(ra.Entries[i].StudentID)
		ra.Entries[i].Remarks = core.CleanString(ra.Entries[i].Remarks)
	}
	return validate.Struct(ra)
}

type QueryFilter struct {
	CourseID  string `query:"-"`
	StudentID string `query:"student_id"`
	DateFrom  string `query:"date_from" validate:"omitempty,isodate"`
	DateTo    string `query:"date_to" validate:"omitempty,isodate"`
	Status    Status `query:"status" validate:"omitempty,attendancestatus"`
}

func (qf *QueryFilter) Validate(validate *validator.Validate) error {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.DateFrom = core.CleanString(qf.DateFrom)
	qf.DateTo = core.CleanString(qf.DateTo)
	return validate.Struct(qf)
}

// Match reports whether r satisfies all the filter fields.
func (qf QueryFilter) Match(r Record) bool {
	if qf.CourseID != "" && r.CourseID != qf.CourseID {
		return false
	}
	if qf.StudentID != "" && r.StudentID != qf.StudentID {
		return false
	}
	// ISO dates sort lexicographically
	if qf.DateFrom != "" && r.Date < qf.DateFrom {
		return false
	}
	if qf.DateTo != "" && r.Date > qf.DateTo {
		return false
	}
	if qf.Status != "" && r.Status != qf.Status {
		return false
	}
	return true
}

// StudentSummary counts the attendance records of a student in a course.
type StudentSummary struct {
	StudentID string  `json:"student_id"`
	Present   int     `json:"present"`
	Absent    int     `json:"absent"`
	Late      int     `json:"late"`
	Excused   int     `json:"excused"`
	Total     int     `json:"total"`
	Rate      float64 `json:"rate"` // (present + late) / total
}

func (s *StudentSummary) add(status Status) {
	switch status {
	case StatusPresent:
		s.Present++
	case StatusAbsent:
		s.Absent++
	case StatusLate:
		s.Late++
	case StatusExcused:
		s.Excused++
	}
	s.Total++
}

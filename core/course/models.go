package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/schedule"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusArchived Status = "ARCHIVED"
)

var Statuses = []Status{StatusActive, StatusInactive, StatusArchived}

// OrderingFields are the fields courses can be ordered by.
var OrderingFields = []string{"code", "section", "title", "status", "semester", "academic_year", "created_at", "updated_at"}

type Course struct {
	ID           string              `json:"id"`
	Code         string              `json:"code"`
	Section      string              `json:"section"`
	Title        string              `json:"title"`
	FacultyID    string              `json:"faculty_id"`
	Status       Status              `json:"status"`
	Semester     string              `json:"semester"`
	AcademicYear string              `json:"academic_year"`
	Schedules    []schedule.Schedule `json:"schedules"`
	CreatedAt    time.Time           `json:"created_at"` // UTC
	UpdatedAt    time.Time           `json:"updated_at"` // UTC
}

// Label identifies the course to humans, eg. "CS101 - A".
func (c Course) Label() string {
	return c.Code + " - " + c.Section
}

func (c Course) IsActive() bool {
	return c.Status == StatusActive
}

type Enrollment struct {
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"` // UTC
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code         string              `json:"code" validate:"required,max=32"`
	Section      string              `json:"section" validate:"required,max=16"`
	Title        string              `json:"title" validate:"required"`
	FacultyID    string              `json:"faculty_id" validate:"required"`
	Status       Status              `json:"status" validate:"omitempty,coursestatus"`
	Semester     string              `json:"semester"`
	AcademicYear string              `json:"academic_year"`
	Schedules    []schedule.Schedule `json:"schedules" validate:"dive"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Code = core.CleanString(nc.Code)
	nc.Section = core.CleanString(nc.Section)
	nc.Title = core.CleanString(nc.Title)
	nc.FacultyID = core.CleanString(nc.FacultyID)
	nc.Semester = core.CleanString(nc.Semester)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	if nc.Status == "" {
		nc.Status = StatusActive
	}
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty fields are left untouched; a non-nil Schedules replaces all the course schedules.
type UpdateCourse struct {
	Code         string              `json:"code" validate:"omitempty,max=32"`
	Section      string              `json:"section" validate:"omitempty,max=16"`
	Title        string              `json:"title"`
	FacultyID    string              `json:"faculty_id"`
	Status       Status              `json:"status" validate:"omitempty,coursestatus"`
	Semester     *string             `json:"semester"`
	AcademicYear *string             `json:"academic_year"`
	Schedules    []schedule.Schedule `json:"schedules" validate:"omitempty,dive"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Code = core.CleanString(uc.Code)
	uc.Section = core.CleanString(uc.Section)
	uc.Title = core.CleanString(uc.Title)
	uc.FacultyID = core.CleanString(uc.FacultyID)
	return validate.Struct(uc)
}

// apply returns c updated with uc and reports whether the schedule placement changed.
func (uc UpdateCourse) apply(c Course) (Course, bool) {
	placementChanged := false
	if uc.Code != "" {
		c.Code = uc.Code
	}
	if uc.Section != "" {
		c.Section = uc.Section
	}
	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.FacultyID != "" && uc.FacultyID != c.FacultyID {
		c.FacultyID = uc.FacultyID
		placementChanged = true
	}
	if uc.Status != "" && uc.Status != c.Status {
		c.Status = uc.Status
		placementChanged = true
	}
	if uc.Semester != nil && core.CleanString(*uc.Semester) != c.Semester {
		c.Semester = core.CleanString(*uc.Semester)
		placementChanged = true
	}
	if uc.AcademicYear != nil && core.CleanString(*uc.AcademicYear) != c.AcademicYear {
		c.AcademicYear = core.CleanString(*uc.AcademicYear)
		placementChanged = true
	}
	if uc.Schedules != nil {
		c.Schedules = uc.Schedules
		placementChanged = true
	}
	return c, placementChanged
}

// CheckSchedule is a dry-run request for CheckScheduleOverlap.
type CheckSchedule struct {
	FacultyID        string              `json:"faculty_id"`
	Schedules        []schedule.Schedule `json:"schedules" validate:"dive"`
	ExcludeCourseIDs []string            `json:"exclude_course_ids"`
	Semester         string              `json:"semester"`
	AcademicYear     string              `json:"academic_year"`
}

func (cs *CheckSchedule) Validate(validate *validator.Validate) error {
	cs.FacultyID = core.CleanString(cs.FacultyID)
	cs.Semester = core.CleanString(cs.Semester)
	cs.AcademicYear = core.CleanString(cs.AcademicYear)
	return validate.Struct(cs)
}

type QueryFilter struct {
	Search       string `query:"search"`
	FacultyID    string `query:"faculty_id"`
	Status       Status `query:"status"`
	Semester     string `query:"semester"`
	AcademicYear string `query:"academic_year"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.FacultyID = core.CleanString(qf.FacultyID)
	qf.Semester = core.CleanString(qf.Semester)
	qf.AcademicYear = core.CleanString(qf.AcademicYear)
}

// ActiveFilter selects the ACTIVE courses of a faculty member.
// Empty Semester or AcademicYear match any.
type ActiveFilter struct {
	FacultyID    string
	ExcludeIDs   []string
	Semester     string
	AcademicYear string
}

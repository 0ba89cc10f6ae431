package grading

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

// MaxTotalWeight caps the sum of the component weights of a course.
const MaxTotalWeight = 100

// Component is a graded part of a course (quizzes, exams, projects...).
type Component struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Name      string    `json:"name"`
	Weight    float64   `json:"weight"`
	MaxScore  float64   `json:"max_score"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// Entry is the score of a student on a component.
type Entry struct {
	ComponentID string    `json:"component_id"`
	StudentID   string    `json:"student_id"`
	Score       float64   `json:"score"`
	RecordedBy  string    `json:"recorded_by"`
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

type NewComponent struct {
	CourseID string  `json:"-"`
	Name     string  `json:"name" validate:"required,max=64"`
	Weight   float64 `json:"weight" validate:"gt=0,lte=100"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
}

func (nc *NewComponent) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

// UpdateComponent defines what may be changed on a Component. Empty fields are left untouched.
type UpdateComponent struct {
	Name     string   `json:"name" validate:"omitempty,max=64"`
	Weight   *float64 `json:"weight" validate:"omitempty,gt=0,lte=100"`
	MaxScore *float64 `json:"max_score" validate:"omitempty,gt=0"`
}

func (uc *UpdateComponent) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	return validate.Struct(uc)
}

type Score struct {
	StudentID string   `json:"student_id" validate:"required"`
	Score     *float64 `json:"score" validate:"required,gte=0"`
}

// RecordScores holds the scores of a component. ComponentID and RecordedBy are set by the caller.
type RecordScores struct {
	ComponentID string  `json:"-"`
	RecordedBy  string  `json:"-"`
	Scores      []Score `json:"scores" validate:"required,min=1,dive"`
}

func (rs *RecordScores) Validate(validate *validator.Validate) error {
	for i := range rs.Scores {
		rs.Scores[i].StudentID = core.CleanString(rs.Scores[i].StudentID)
	}
	return validate.Struct(rs)
}

type EntryFilter struct {
	CourseID    string
	ComponentID string
	StudentID   string
}

// StudentGrade is a row of a class record.
type StudentGrade struct {
	StudentID string             `json:"student_id"`
	Scores    map[string]float64 `json:"scores"` // {componentID: score}
	Grade     float64            `json:"grade"`  // 0 - 100
}

type ClassRecord struct {
	CourseID    string         `json:"course_id"`
	Components  []Component    `json:"components"`
	TotalWeight float64        `json:"total_weight"`
	Students    []StudentGrade `json:"students"`
}

package grading

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("grade component not found")

	errNotCourseFaculty = "only the course faculty or an admin may manage its class record"
	errWeightExceeded   = fmt.Sprintf("total weight of the course components cannot exceed %d", MaxTotalWeight)
	errScoreAboveMax    = "score cannot exceed the component max score of %v"
	errMaxBelowScores   = "max score cannot be lower than already recorded scores"
)

type (
	Repository interface {
		// LockCourse runs fn within a transaction holding an exclusive lock on the class record of courseID.
		// Repository calls made through the repo passed to fn take part in the transaction.
		LockCourse(ctx context.Context, courseID string, fn func(repo Repository) error) error

		CreateComponent(ctx context.Context, c Component) (Component, error)
		GetComponent(ctx context.Context, id string) (Component, error)
		// QueryComponents returns the components of a course by creation date.
		QueryComponents(ctx context.Context, courseID string) ([]Component, error)
		UpdateComponent(ctx context.Context, c Component) (Component, error)
		// DeleteComponent deletes a component along with its entries.
		DeleteComponent(ctx context.Context, id string) error

		// UpsertEntry creates e or updates the score of the same component and student.
		UpsertEntry(ctx context.Context, e Entry) (Entry, error)
		QueryEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	}

	// CourseFinder is the subset of course.ServiceInterface needed here.
	CourseFinder interface {
		Get(ctx context.Context, id string) (course.Course, error)
		CheckEnrolled(ctx context.Context, courseID string, studentIDs ...string) error
		QueryEnrollments(ctx context.Context, courseID string) ([]course.Enrollment, error)
	}

	ServiceInterface interface {
		CreateComponent(ctx context.Context, actor user.User, nc NewComponent) (Component, error)
		GetComponent(ctx context.Context, id string) (Component, error)
		QueryComponents(ctx context.Context, courseID string) ([]Component, error)
		UpdateComponent(ctx context.Context, actor user.User, id string, uc UpdateComponent) (Component, error)
		DeleteComponent(ctx context.Context, actor user.User, id string) error
		RecordScores(ctx context.Context, actor user.User, rs RecordScores) ([]Entry, error)
		ClassRecord(ctx context.Context, actor user.User, courseID string) (ClassRecord, error)
	}

	Service struct {
		repo    Repository
		courses CourseFinder
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, courses CourseFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(courses, "courses"),
	).CheckAndPanic()

	return &Service{repo: repo, courses: courses}
}

func (svc *Service) CreateComponent(ctx context.Context, actor user.User, nc NewComponent) (Component, error) {
	if _, err := svc.authorize(ctx, actor, nc.CourseID); err != nil {
		return Component{}, err
	}

	var created Component
	err := svc.repo.LockCourse(ctx, nc.CourseID, func(repo Repository) error {
		if err := checkTotalWeight(ctx, repo, nc.CourseID, "", nc.Weight); err != nil {
			return err
		}
		now := time.Now().UTC()
		var err error
		created, err = repo.CreateComponent(ctx, Component{
			CourseID:  nc.CourseID,
			Name:      nc.Name,
			Weight:    nc.Weight,
			MaxScore:  nc.MaxScore,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return errors.Wrap(err, "creating component")
	})
	return created, err
}

func (svc *Service) GetComponent(ctx context.Context, id string) (Component, error) {
	return svc.repo.GetComponent(ctx, id)
}

func (svc *Service) QueryComponents(ctx context.Context, courseID string) ([]Component, error) {
	if _, err := svc.courses.Get(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryComponents(ctx, courseID)
}

func (svc *Service) UpdateComponent(ctx context.Context, actor user.User, id string, uc UpdateComponent) (Component, error) {
	comp, err := svc.repo.GetComponent(ctx, id)
	if err != nil {
		return Component{}, err
	}
	if _, err = svc.authorize(ctx, actor, comp.CourseID); err != nil {
		return Component{}, err
	}

	var updated Component
	err = svc.repo.LockCourse(ctx, comp.CourseID, func(repo Repository) error {
		comp, err := repo.GetComponent(ctx, id)
		if err != nil {
			return err
		}
		if uc.Name != "" {
			comp.Name = uc.Name
		}
		if uc.Weight != nil {
			if err = checkTotalWeight(ctx, repo, comp.CourseID, comp.ID, *uc.Weight); err != nil {
				return err
			}
			comp.Weight = *uc.Weight
		}
		if uc.MaxScore != nil && *uc.MaxScore < comp.MaxScore {
			entries, err := repo.QueryEntries(ctx, EntryFilter{ComponentID: comp.ID})
			if err != nil {
				return errors.Wrap(err, "querying entries")
			}
			for _, e := range entries {
				if e.Score > *uc.MaxScore {
					return core.NewValidationError(nil, core.FieldError{Field: "max_score", Error: errMaxBelowScores})
				}
			}
		}
		if uc.MaxScore != nil {
			comp.MaxScore = *uc.MaxScore
		}
		comp.UpdatedAt = time.Now().UTC()

		updated, err = repo.UpdateComponent(ctx, comp)
		return errors.Wrap(err, "updating component")
	})
	return updated, err
}

func (svc *Service) DeleteComponent(ctx context.Context, actor user.User, id string) error {
	comp, err := svc.repo.GetComponent(ctx, id)
	if err != nil {
		return err
	}
	if _, err = svc.authorize(ctx, actor, comp.CourseID); err != nil {
		return err
	}
	return svc.repo.DeleteComponent(ctx, id)
}

// RecordScores saves a validated RecordScores in one transaction. Scores must lie within
// [0, max score] and belong to students enrolled in the course.
func (svc *Service) RecordScores(ctx context.Context, actor user.User, rs RecordScores) ([]Entry, error) {
	comp, err := svc.repo.GetComponent(ctx, rs.ComponentID)
	if err != nil {
		return nil, err
	}
	if _, err = svc.authorize(ctx, actor, comp.CourseID); err != nil {
		return nil, err
	}

	studentIDs := make([]string, 0, len(rs.Scores))
	for _, s := range rs.Scores {
		studentIDs = append(studentIDs, s.StudentID)
	}
	if err = svc.courses.CheckEnrolled(ctx, comp.CourseID, studentIDs...); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entries := make([]Entry, 0, len(rs.Scores))
	err = svc.repo.LockCourse(ctx, comp.CourseID, func(repo Repository) error {
		// the max score may have changed since
		comp, err := repo.GetComponent(ctx, rs.ComponentID)
		if err != nil {
			return err
		}
		for _, s := range rs.Scores {
			if *s.Score > comp.MaxScore {
				return core.NewValidationError(nil, core.FieldError{
					Field: "score",
					Error: fmt.Sprintf(errScoreAboveMax, comp.MaxScore),
				})
			}
		}

		for _, s := range rs.Scores {
			e, err := repo.UpsertEntry(ctx, Entry{
				ComponentID: comp.ID,
				StudentID:   s.StudentID,
				Score:       *s.Score,
				RecordedBy:  actor.ID,
				UpdatedAt:   now,
			})
			if err != nil {
				return errors.Wrapf(err, "saving score of %s", s.StudentID)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ClassRecord computes the weighted grade of every student enrolled in a course.
// Missing scores count as 0. Students only see their own row.
func (svc *Service) ClassRecord(ctx context.Context, actor user.User, courseID string) (ClassRecord, error) {
	c, err := svc.courses.Get(ctx, courseID)
	if err != nil {
		return ClassRecord{}, err
	}
	manager := canManage(actor, c)
	if !manager && !actor.IsStudent() {
		return ClassRecord{}, core.NewPermissionError(errNotCourseFaculty)
	}

	comps, err := svc.repo.QueryComponents(ctx, courseID)
	if err != nil {
		return ClassRecord{}, errors.Wrap(err, "querying components")
	}
	enrollments, err := svc.courses.QueryEnrollments(ctx, courseID)
	if err != nil {
		return ClassRecord{}, errors.Wrap(err, "querying enrollments")
	}
	filter := EntryFilter{CourseID: courseID}
	if !manager {
		filter.StudentID = actor.ID
	}
	entries, err := svc.repo.QueryEntries(ctx, filter)
	if err != nil {
		return ClassRecord{}, errors.Wrap(err, "querying entries")
	}

	studentIDs := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		if manager || e.StudentID == actor.ID {
			studentIDs = append(studentIDs, e.StudentID)
		}
	}
	if !manager && len(studentIDs) == 0 {
		return ClassRecord{}, core.NewPermissionError("you are not enrolled in this course")
	}
	return ComputeClassRecord(courseID, comps, studentIDs, entries), nil
}

// ComputeClassRecord grades studentIDs: Σ(score / max score × weight) / Σ(weights) × 100,
// rounded to 2 decimals.
func ComputeClassRecord(courseID string, comps []Component, studentIDs []string, entries []Entry) ClassRecord {
	scores := make(map[string]map[string]float64, len(studentIDs))
	for _, e := range entries {
		if scores[e.StudentID] == nil {
			scores[e.StudentID] = make(map[string]float64)
		}
		scores[e.StudentID][e.ComponentID] = e.Score
	}

	var totalWeight float64
	for _, comp := range comps {
		totalWeight += comp.Weight
	}

	rows := make([]StudentGrade, 0, len(studentIDs))
	for _, id := range studentIDs {
		row := StudentGrade{StudentID: id, Scores: make(map[string]float64, len(comps))}
		var weighted float64
		for _, comp := range comps {
			score := scores[id][comp.ID]
			row.Scores[comp.ID] = score
			weighted += score / comp.MaxScore * comp.Weight
		}
		if totalWeight > 0 {
			row.Grade = math.Round(weighted/totalWeight*100*100) / 100
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StudentID < rows[j].StudentID })

	if comps == nil {
		comps = []Component{}
	}
	return ClassRecord{CourseID: courseID, Components: comps, TotalWeight: totalWeight, Students: rows}
}

func (svc *Service) authorize(ctx context.Context, actor user.User, courseID string) (course.Course, error) {
	c, err := svc.courses.Get(ctx, courseID)
	if err != nil {
		return course.Course{}, err
	}
	if !canManage(actor, c) {
		return course.Course{}, core.NewPermissionError(errNotCourseFaculty)
	}
	return c, nil
}

// checkTotalWeight fails when adding weight to the course components, except excludeID, exceeds MaxTotalWeight.
func checkTotalWeight(ctx context.Context, repo Repository, courseID, excludeID string, weight float64) error {
	comps, err := repo.QueryComponents(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "querying components")
	}
	total := weight
	for _, c := range comps {
		if c.ID != excludeID {
			total += c.Weight
		}
	}
	// tolerate float rounding, eg. 33.3 + 33.3 + 33.4
	if total > MaxTotalWeight+1e-9 {
		return core.NewValidationError(nil, core.FieldError{Field: "weight", Error: errWeightExceeded})
	}
	return nil
}

func canManage(actor user.User, c course.Course) bool {
	return actor.IsAdmin() || (actor.IsFaculty() && c.FacultyID == actor.ID)
}

package attendance

import (
	"context"
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
	ErrNotFound = errors.New("attendance record not found")

	errNotCourseFaculty = "only the course faculty or an admin may manage its attendance"
)

type (
	Repository interface {
		// Atomic runs fn within a transaction. Repository calls made through the repo passed to fn
		// take part in the transaction.
		Atomic(ctx context.Context, fn func(repo Repository) error) error
		// UpsertRecord creates r or updates the record of the same course, student and date.
		UpsertRecord(ctx context.Context, r Record) (Record, error)
		// QueryRecords returns the records matching filter, ordered by date then student.
		QueryRecords(ctx context.Context, filter QueryFilter) ([]Record, error)
		DeleteRecordsByID(ctx context.Context, ids ...string) (int, error)
	}

	// CourseFinder is the subset of course.ServiceInterface needed here.
	CourseFinder interface {
		Get(ctx context.Context, id string) (course.Course, error)
		CheckEnrolled(ctx context.Context, courseID string, studentIDs ...string) error
	}

	ServiceInterface interface {
		Record(ctx context.Context, actor user.User, ra RecordAttendance) ([]Record, error)
		Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Record, error)
		Summary(ctx context.Context, actor user.User, courseID string) ([]StudentSummary, error)
		Delete(ctx context.Context, ids ...string) (int, error)
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

// Record saves a validated RecordAttendance in one transaction. Existing records of the same day
// are overwritten.
func (svc *Service) Record(ctx context.Context, actor user.User, ra RecordAttendance) ([]Record, error) {
	c, err := svc.courses.Get(ctx, ra.CourseID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, c) {
		return nil, core.NewPermissionError(errNotCourseFaculty)
	}

	studentIDs := make([]string, 0, len(ra.Entries))
	for _, e := range ra.Entries {
		studentIDs = append(studentIDs, e.StudentID)
	}
	if err = svc.courses.CheckEnrolled(ctx, c.ID, studentIDs...); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]Record, 0, len(ra.Entries))
	err = svc.repo.Atomic(ctx, func(repo Repository) error {
		for _, e := range ra.Entries {
			r, err := repo.UpsertRecord(ctx, Record{
				CourseID:   c.ID,
				StudentID:  e.StudentID,
				Date:       ra.Date,
				Status:     e.Status,
				Remarks:    e.Remarks,
				RecordedBy: actor.ID,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil {
				return errors.Wrapf(err, "saving attendance of %s", e.StudentID)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Query returns the attendance records of a course. Students only see their own.
func (svc *Service) Query(ctx context.Context, actor user.User, filter QueryFilter) ([]Record, error) {
	c, err := svc.courses.Get(ctx, filter.CourseID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, c) {
		if !actor.IsStudent() {
			return nil, core.NewPermissionError(errNotCourseFaculty)
		}
		filter.StudentID = actor.ID
	}
	return svc.repo.QueryRecords(ctx, filter)
}

// Summary counts the attendance of each student of a course. Students only see their own.
func (svc *Service) Summary(ctx context.Context, actor user.User, courseID string) ([]StudentSummary, error) {
	records, err := svc.Query(ctx, actor, QueryFilter{CourseID: courseID})
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return svc.repo.DeleteRecordsByID(ctx, ids...)
}

// Summarize groups records per student, ordered by student ID.
func Summarize(records []Record) []StudentSummary {
	byStudent := make(map[string]*StudentSummary)
	for _, r := range records {
		s, ok := byStudent[r.StudentID]
		if !ok {
			s = &StudentSummary{StudentID: r.StudentID}
			byStudent[r.StudentID] = s
		}
		s.add(r.Status)
	}

	res := make([]StudentSummary, 0, len(byStudent))
	for _, s := range byStudent {
		if s.Total > 0 {
			s.Rate = math.Round(float64(s.Present+s.Late)/float64(s.Total)*1e4) / 1e4
		}
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StudentID < res[j].StudentID })
	return res
}

func canManage(actor user.User, c course.Course) bool {
	return actor.IsAdmin() || (actor.IsFaculty() && c.FacultyID == actor.ID)
}

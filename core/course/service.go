package course

import (
	"context"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")

	errFacultyMoved = errors.New("course faculty changed concurrently, try again")

	errNotFaculty   = "user is not a faculty member"
	errNotStudent   = "these users are not active students: "
	errNotEnrolled  = "these students are not enrolled in the course: "
	errUserNotFound = "user not found"
)

const maxLockAttempts = 3

type (
	Repository interface {
		ActiveCourseFinder

		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Course.Code, Course.Title or Course.Section.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		// UpdateCourse saves all the course fields; schedules are replaced.
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCoursesByID(ctx context.Context, ids ...string) (int, error)

		// LockFaculty runs fn within a transaction holding an exclusive lock on the schedule of facultyID.
		// Repository calls made through the repo passed to fn take part in the transaction.
		LockFaculty(ctx context.Context, facultyID string, fn func(repo Repository) error) error

		// AddEnrollments enrolls studentIDs in the course, skipping those already enrolled.
		// It returns the number of new enrollments.
		AddEnrollments(ctx context.Context, courseID string, studentIDs []string, at time.Time) (int, error)
		RemoveEnrollments(ctx context.Context, courseID string, studentIDs []string) (int, error)
		QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
		// FilterEnrolled returns the subset of studentIDs enrolled in the course.
		FilterEnrolled(ctx context.Context, courseID string, studentIDs []string) ([]string, error)
	}

	// UserFinder is the subset of user.ServiceInterface needed here.
	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Get(ctx context.Context, id string) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Update(ctx context.Context, id string, uc UpdateCourse) (Course, error)
		Archive(ctx context.Context, id string) (Course, error)
		Delete(ctx context.Context, ids ...string) (int, error)
		CheckScheduleOverlap(ctx context.Context, cs CheckSchedule) error

		Enroll(ctx context.Context, courseID string, studentIDs ...string) (int, error)
		Unenroll(ctx context.Context, courseID string, studentIDs ...string) (int, error)
		QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
		CheckEnrolled(ctx context.Context, courseID string, studentIDs ...string) error
	}

	Service struct {
		repo  Repository
		users UserFinder
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users UserFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
	).CheckAndPanic()

	return &Service{repo: repo, users: users}
}

// Create saves a validated NewCourse. ACTIVE courses are checked against the faculty timetable
// while holding the faculty lock.
func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.checkFaculty(ctx, nc.FacultyID); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	c := Course{
		Code:         nc.Code,
		Section:      nc.Section,
		Title:        nc.Title,
		FacultyID:    nc.FacultyID,
		Status:       nc.Status,
		Semester:     nc.Semester,
		AcademicYear: nc.AcademicYear,
		Schedules:    normalizeSchedules(nc.Schedules),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.Status == "" {
		c.Status = StatusActive
	}

	var created Course
	err := svc.repo.LockFaculty(ctx, c.FacultyID, func(repo Repository) error {
		if c.IsActive() {
			if err := CheckScheduleOverlap(ctx, repo, c.Schedules, c.FacultyID, nil, c.Semester, c.AcademicYear); err != nil {
				return err
			}
		}
		var err error
		created, err = repo.CreateCourse(ctx, c)
		return errors.Wrap(err, "creating course")
	})
	return created, err
}

func (svc *Service) Get(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

// Update applies a validated UpdateCourse. The resulting course is checked against the faculty
// timetable when it is ACTIVE and its placement (faculty, status, term or schedules) changed.
func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	orig, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if uc.FacultyID != "" && uc.FacultyID != orig.FacultyID {
		if err = svc.checkFaculty(ctx, uc.FacultyID); err != nil {
			return Course{}, err
		}
	}
	facultyID := orig.FacultyID
	if uc.FacultyID != "" {
		facultyID = uc.FacultyID
	}

	var updated Course
	for attempt := 0; ; attempt++ {
		movedTo := ""
		err = svc.repo.LockFaculty(ctx, facultyID, func(repo Repository) error {
			// reload within the lock
			c, err := repo.GetCourse(ctx, id)
			if err != nil {
				return err
			}
			c, placementChanged := uc.apply(c)
			if c.FacultyID != facultyID {
				// moved to another faculty since the lock key was picked
				movedTo = c.FacultyID
				return errFacultyMoved
			}
			c.Schedules = normalizeSchedules(c.Schedules)
			c.UpdatedAt = time.Now().UTC()

			if c.IsActive() && placementChanged {
				err = CheckScheduleOverlap(ctx, repo, c.Schedules, c.FacultyID, []string{c.ID}, c.Semester, c.AcademicYear)
				if err != nil {
					return err
				}
			}
			updated, err = repo.UpdateCourse(ctx, c)
			return errors.Wrap(err, "updating course")
		})
		if errors.Cause(err) == errFacultyMoved && attempt < maxLockAttempts-1 {
			facultyID = movedTo
			continue
		}
		return updated, err
	}
}

// Archive moves a course out of the faculty timetable.
func (svc *Service) Archive(ctx context.Context, id string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if c.Status == StatusArchived {
		return c, nil
	}
	c.Status = StatusArchived
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return svc.repo.DeleteCoursesByID(ctx, ids...)
}

// CheckScheduleOverlap is a dry run of the check done on Create and Update.
func (svc *Service) CheckScheduleOverlap(ctx context.Context, cs CheckSchedule) error {
	return CheckScheduleOverlap(ctx, svc.repo, cs.Schedules, cs.FacultyID, cs.ExcludeCourseIDs, cs.Semester, cs.AcademicYear)
}

func (svc *Service) Enroll(ctx context.Context, courseID string, studentIDs ...string) (int, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return 0, err
	}
	studentIDs = uniqueIDs(studentIDs)
	if len(studentIDs) == 0 {
		return 0, nil
	}

	invalid := make([]string, 0)
	for _, id := range studentIDs {
		usr, err := svc.users.GetByID(ctx, id)
		if err != nil {
			if errors.Cause(err) != user.ErrNotFound {
				return 0, errors.Wrap(err, "finding student")
			}
			invalid = append(invalid, id)
			continue
		}
		if !usr.IsStudent() || !usr.IsActive {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return 0, core.NewValidationError(nil, core.FieldError{
			Field: "student_ids",
			Error: errNotStudent + strings.Join(invalid, ", "),
		})
	}

	return svc.repo.AddEnrollments(ctx, courseID, studentIDs, time.Now().UTC())
}

func (svc *Service) Unenroll(ctx context.Context, courseID string, studentIDs ...string) (int, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return 0, err
	}
	studentIDs = uniqueIDs(studentIDs)
	if len(studentIDs) == 0 {
		return 0, nil
	}
	return svc.repo.RemoveEnrollments(ctx, courseID, studentIDs)
}

func (svc *Service) QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryEnrollments(ctx, courseID)
}

// CheckEnrolled returns a core.ValidationError naming the students not enrolled in the course.
func (svc *Service) CheckEnrolled(ctx context.Context, courseID string, studentIDs ...string) error {
	studentIDs = uniqueIDs(studentIDs)
	if len(studentIDs) == 0 {
		return nil
	}
	enrolled, err := svc.repo.FilterEnrolled(ctx, courseID, studentIDs)
	if err != nil {
		return errors.Wrap(err, "filtering enrolled students")
	}
	if len(enrolled) == len(studentIDs) {
		return nil
	}

	missing := make([]string, 0, len(studentIDs)-len(enrolled))
	for _, id := range studentIDs {
		if !core.StringInSlice(id, enrolled) {
			missing = append(missing, id)
		}
	}
	return core.NewValidationError(nil, core.FieldError{
		Field: "student_id",
		Error: errNotEnrolled + strings.Join(missing, ", "),
	})
}

func (svc *Service) checkFaculty(ctx context.Context, facultyID string) error {
	usr, err := svc.users.GetByID(ctx, facultyID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: errUserNotFound})
		}
		return errors.Wrap(err, "finding faculty")
	}
	if !usr.IsFaculty() || !usr.IsActive {
		return core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: errNotFaculty})
	}
	return nil
}

func normalizeSchedules(ss []schedule.Schedule) []schedule.Schedule {
	res := make([]schedule.Schedule, 0, len(ss))
	for _, s := range ss {
		s = schedule.Normalize(s)
		s.FromTime = strings.TrimSpace(s.FromTime)
		s.ToTime = strings.TrimSpace(s.ToTime)
		res = append(res, s)
	}
	return res
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/storage/database"
)

const courseColumns = "id, code, section, title, faculty_id, status, semester, academic_year, created_at, updated_at"

type courseRow struct {
	ID           string        `db:"id"`
	Code         string        `db:"code"`
	Section      string        `db:"section"`
	Title        string        `db:"title"`
	FacultyID    string        `db:"faculty_id"`
	Status       course.Status `db:"status"`
	Semester     string        `db:"semester"`
	AcademicYear string        `db:"academic_year"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:           row.ID,
		Code:         row.Code,
		Section:      row.Section,
		Title:        row.Title,
		FacultyID:    row.FacultyID,
		Status:       row.Status,
		Semester:     row.Semester,
		AcademicYear: row.AcademicYear,
		Schedules:    []schedule.Schedule{},
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type scheduleRow struct {
	CourseID string `db:"course_id"`
	schedule.Schedule
}

type courseRepository struct {
	repo
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{repo: newRepo(db)}
}

func (r *courseRepository) withExt(ext sqlx.ExtContext) *courseRepository {
	return &courseRepository{repo: repo{db: r.db, ext: ext}}
}

func (r *courseRepository) LockFaculty(ctx context.Context, facultyID string, fn func(repo course.Repository) error) error {
	return r.atomic(ctx, "course:faculty:"+facultyID, func(ext sqlx.ExtContext) error {
		return fn(r.withExt(ext))
	})
}

func (r *courseRepository) FindActiveCourses(ctx context.Context, filter course.ActiveFilter) ([]course.Course, error) {
	if !isUUID(filter.FacultyID) {
		return []course.Course{}, nil
	}
	var w where
	w.add("faculty_id = ?", filter.FacultyID)
	w.add("status = ?", course.StatusActive)
	if filter.Semester != "" {
		w.add("semester = ?", filter.Semester)
	}
	if filter.AcademicYear != "" {
		w.add("academic_year = ?", filter.AcademicYear)
	}
	if len(filter.ExcludeIDs) > 0 {
		w.add("NOT (id = ANY(?::uuid[]))", pq.Array(uuids(filter.ExcludeIDs)))
	}
	return r.selectCourses(ctx, w, " ORDER BY created_at")
}

func (r *courseRepository) selectCourses(ctx context.Context, w where, order string) ([]course.Course, error) {
	var rows []courseRow
	q := "SELECT " + courseColumns + " FROM courses" + w.String() + order
	if err := sqlx.SelectContext(ctx, r.ext, &rows, r.ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting courses")
	}

	courses := make([]course.Course, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
		ids = append(ids, row.ID)
	}
	if len(ids) == 0 {
		return courses, nil
	}

	schedules, err := r.selectSchedules(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if ss, ok := schedules[courses[i].ID]; ok {
			courses[i].Schedules = ss
		}
	}
	return courses, nil
}

func (r *courseRepository) selectSchedules(ctx context.Context, courseIDs []string) (map[string][]schedule.Schedule, error) {
	var rows []scheduleRow
	q := "SELECT course_id, day, from_time, to_time FROM course_schedules WHERE course_id = ANY($1::uuid[]) ORDER BY id"
	if err := sqlx.SelectContext(ctx, r.ext, &rows, q, pq.Array(courseIDs)); err != nil {
		return nil, errors.Wrap(err, "selecting schedules")
	}
	res := make(map[string][]schedule.Schedule, len(courseIDs))
	for _, row := range rows {
		res[row.CourseID] = append(res[row.CourseID], row.Schedule)
	}
	return res, nil
}

func (r *courseRepository) insertSchedules(ctx context.Context, ext sqlx.ExtContext, courseID string, ss []schedule.Schedule) error {
	for _, s := range ss {
		_, err := ext.ExecContext(
			ctx,
			"INSERT INTO course_schedules (course_id, day, from_time, to_time) VALUES ($1, $2, $3, $4)",
			courseID, s.Day, s.FromTime, s.ToTime,
		)
		if err != nil {
			return errors.Wrap(err, "inserting schedule")
		}
	}
	return nil
}

func (r *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	err := r.atomic(ctx, "", func(ext sqlx.ExtContext) error {
		q := `INSERT INTO courses (code, section, title, faculty_id, status, semester, academic_year, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`
		err := ext.QueryRowxContext(
			ctx, q,
			c.Code, c.Section, c.Title, c.FacultyID, c.Status, c.Semester, c.AcademicYear, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
		if err != nil {
			return errors.Wrap(err, "inserting course")
		}
		return r.insertSchedules(ctx, ext, c.ID, c.Schedules)
	})
	if err != nil {
		return course.Course{}, mapCourseErr(err)
	}
	if c.Schedules == nil {
		c.Schedules = []schedule.Schedule{}
	}
	return c, nil
}

func (r *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var w where
	w.add("id = ?", id)
	courses, err := r.selectCourses(ctx, w, "")
	if err != nil {
		return course.Course{}, err
	}
	if len(courses) == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return courses[0], nil
}

func (r *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			w.add("(code ILIKE ? OR title ILIKE ? OR section ILIKE ?)", pattern, pattern, pattern)
		}
		if filter.FacultyID != "" {
			if !isUUID(filter.FacultyID) {
				return []course.Course{}, nil
			}
			w.add("faculty_id = ?", filter.FacultyID)
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
		if filter.Semester != "" {
			w.add("semester = ?", filter.Semester)
		}
		if filter.AcademicYear != "" {
			w.add("academic_year = ?", filter.AcademicYear)
		}
	}
	order := orderBy(ordering, "code, section", course.OrderingFields...)
	return r.selectCourses(ctx, w, order)
}

func (r *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if !isUUID(c.ID) {
		return course.Course{}, course.ErrNotFound
	}
	err := r.atomic(ctx, "", func(ext sqlx.ExtContext) error {
		q := `UPDATE courses SET
				code = $2, section = $3, title = $4, faculty_id = $5, status = $6,
				semester = $7, academic_year = $8, updated_at = $9
			WHERE id = $1`
		res, err := ext.ExecContext(
			ctx, q,
			c.ID, c.Code, c.Section, c.Title, c.FacultyID, c.Status, c.Semester, c.AcademicYear, c.UpdatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "updating course")
		}
		if n, err := rowsAffected(res); err != nil {
			return err
		} else if n == 0 {
			return course.ErrNotFound
		}

		if _, err = ext.ExecContext(ctx, "DELETE FROM course_schedules WHERE course_id = $1", c.ID); err != nil {
			return errors.Wrap(err, "deleting schedules")
		}
		return r.insertSchedules(ctx, ext, c.ID, c.Schedules)
	})
	if err != nil {
		return course.Course{}, mapCourseErr(err)
	}
	if c.Schedules == nil {
		c.Schedules = []schedule.Schedule{}
	}
	return c, nil
}

func (r *courseRepository) DeleteCoursesByID(ctx context.Context, ids ...string) (int, error) {
	res, err := r.ext.ExecContext(ctx, "DELETE FROM courses WHERE id = ANY($1::uuid[])", pq.Array(uuids(ids)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting courses")
	}
	return rowsAffected(res)
}

func (r *courseRepository) AddEnrollments(ctx context.Context, courseID string, studentIDs []string, at time.Time) (int, error) {
	q := `INSERT INTO enrollments (course_id, student_id, enrolled_at)
		SELECT $1, student_id, $3 FROM unnest($2::uuid[]) AS student_id
		ON CONFLICT DO NOTHING`
	res, err := r.ext.ExecContext(ctx, q, courseID, pq.Array(uuids(studentIDs)), at)
	if err != nil {
		return 0, errors.Wrap(err, "inserting enrollments")
	}
	return rowsAffected(res)
}

func (r *courseRepository) RemoveEnrollments(ctx context.Context, courseID string, studentIDs []string) (int, error) {
	q := "DELETE FROM enrollments WHERE course_id = $1 AND student_id = ANY($2::uuid[])"
	res, err := r.ext.ExecContext(ctx, q, courseID, pq.Array(uuids(studentIDs)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting enrollments")
	}
	return rowsAffected(res)
}

func (r *courseRepository) QueryEnrollments(ctx context.Context, courseID string) ([]course.Enrollment, error) {
	var rows []struct {
		CourseID   string    `db:"course_id"`
		StudentID  string    `db:"student_id"`
		EnrolledAt time.Time `db:"enrolled_at"`
	}
	q := "SELECT course_id, student_id, enrolled_at FROM enrollments WHERE course_id = $1 ORDER BY enrolled_at, student_id"
	if err := sqlx.SelectContext(ctx, r.ext, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	res := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		res = append(res, course.Enrollment{CourseID: row.CourseID, StudentID: row.StudentID, EnrolledAt: row.EnrolledAt.UTC()})
	}
	return res, nil
}

func (r *courseRepository) FilterEnrolled(ctx context.Context, courseID string, studentIDs []string) ([]string, error) {
	if !isUUID(courseID) {
		return []string{}, nil
	}
	var enrolled []string
	q := "SELECT student_id FROM enrollments WHERE course_id = $1 AND student_id = ANY($2::uuid[])"
	if err := sqlx.SelectContext(ctx, r.ext, &enrolled, q, courseID, pq.Array(uuids(studentIDs))); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	return enrolled, nil
}

func mapCourseErr(err error) error {
	if errors.Cause(err) == course.ErrNotFound || errors.Cause(err) == sql.ErrNoRows {
		return course.ErrNotFound
	}
	if database.IsForeignKeyViolation(err) {
		return core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: "user not found"})
	}
	return err
}

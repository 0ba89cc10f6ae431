package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/schedule"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) LockFaculty(_ context.Context, facultyID string, fn func(repo course.Repository) error) error {
	return repo.db.locks.with("course:faculty:"+facultyID, func() error { return fn(repo) })
}

func (repo *courseRepository) FindActiveCourses(_ context.Context, filter course.ActiveFilter) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excl := idSet(filter.ExcludeIDs)
	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		switch {
		case c.FacultyID != filter.FacultyID, c.Status != course.StatusActive, excl[c.ID]:
			continue
		case filter.Semester != "" && c.Semester != filter.Semester:
			continue
		case filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear:
			continue
		}
		courses = append(courses, copyCourse(c))
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.Before(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.users[c.FacultyID]; !ok {
		return course.Course{}, core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: "user not found"})
	}
	c.ID = newID()
	repo.db.courses[c.ID] = copyCourse(c)
	return copyCourse(c), nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return copyCourse(c), nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		if filter == nil || matchCourse(c, filter) {
			courses = append(courses, copyCourse(c))
		}
	}
	sortCourses(courses, ordering)
	return courses, nil
}

func matchCourse(c course.Course, filter *course.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(c.Code), s) &&
			!strings.Contains(strings.ToLower(c.Title), s) &&
			!strings.Contains(strings.ToLower(c.Section), s) {
			return false
		}
	}
	switch {
	case filter.FacultyID != "" && c.FacultyID != filter.FacultyID:
		return false
	case filter.Status != "" && c.Status != filter.Status:
		return false
	case filter.Semester != "" && c.Semester != filter.Semester:
		return false
	case filter.AcademicYear != "" && c.AcademicYear != filter.AcademicYear:
		return false
	}
	return true
}

func sortCourses(courses []course.Course, ordering []core.DBOrdering) {
	ordering = core.FilterOrderings(ordering, course.OrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "code", Ascending: true}, {Field: "section", Ascending: true}}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		for _, ord := range ordering {
			var c int
			switch ord.Field {
			case "code":
				c = strings.Compare(courses[i].Code, courses[j].Code)
			case "section":
				c = strings.Compare(courses[i].Section, courses[j].Section)
			case "title":
				c = strings.Compare(courses[i].Title, courses[j].Title)
			case "status":
				c = strings.Compare(string(courses[i].Status), string(courses[j].Status))
			case "semester":
				c = strings.Compare(courses[i].Semester, courses[j].Semester)
			case "academic_year":
				c = strings.Compare(courses[i].AcademicYear, courses[j].AcademicYear)
			case "created_at":
				c = compareTimes(courses[i].CreatedAt, courses[j].CreatedAt)
			case "updated_at":
				c = compareTimes(courses[i].UpdatedAt, courses[j].UpdatedAt)
			}
			if c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return courses[i].ID < courses[j].ID
	})
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	if _, ok := repo.db.users[c.FacultyID]; !ok {
		return course.Course{}, core.NewValidationError(nil, core.FieldError{Field: "faculty_id", Error: "user not found"})
	}
	repo.db.courses[c.ID] = copyCourse(c)
	return copyCourse(c), nil
}

func (repo *courseRepository) DeleteCoursesByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.courses[id]; !ok {
			continue
		}
		delete(repo.db.courses, id)
		delete(repo.db.enrollments, id)
		for rid, r := range repo.db.attendance {
			if r.CourseID == id {
				delete(repo.db.attendance, rid)
			}
		}
		for cid, comp := range repo.db.components {
			if comp.CourseID == id {
				delete(repo.db.components, cid)
				delete(repo.db.entries, cid)
			}
		}
		n++
	}
	return n, nil
}

func (repo *courseRepository) AddEnrollments(_ context.Context, courseID string, studentIDs []string, at time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return 0, course.ErrNotFound
	}
	enrolled, ok := repo.db.enrollments[courseID]
	if !ok {
		enrolled = make(map[string]time.Time)
		repo.db.enrollments[courseID] = enrolled
	}
	var n int
	for _, id := range studentIDs {
		if _, ok := enrolled[id]; ok {
			continue
		}
		enrolled[id] = at
		n++
	}
	return n, nil
}

func (repo *courseRepository) RemoveEnrollments(_ context.Context, courseID string, studentIDs []string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	enrolled := repo.db.enrollments[courseID]
	var n int
	for _, id := range studentIDs {
		if _, ok := enrolled[id]; ok {
			delete(enrolled, id)
			n++
		}
	}
	return n, nil
}

func (repo *courseRepository) QueryEnrollments(_ context.Context, courseID string) ([]course.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]course.Enrollment, 0, len(repo.db.enrollments[courseID]))
	for id, at := range repo.db.enrollments[courseID] {
		res = append(res, course.Enrollment{CourseID: courseID, StudentID: id, EnrolledAt: at})
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].EnrolledAt.Equal(res[j].EnrolledAt) {
			return res[i].EnrolledAt.Before(res[j].EnrolledAt)
		}
		return res[i].StudentID < res[j].StudentID
	})
	return res, nil
}

func (repo *courseRepository) FilterEnrolled(_ context.Context, courseID string, studentIDs []string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrolled := make([]string, 0, len(studentIDs))
	for _, id := range studentIDs {
		if _, ok := repo.db.enrollments[courseID][id]; ok {
			enrolled = append(enrolled, id)
		}
	}
	return enrolled, nil
}

func copyCourse(c course.Course) course.Course {
	c.Schedules = append([]schedule.Schedule{}, c.Schedules...)
	return c
}

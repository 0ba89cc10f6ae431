package course

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/schedule"
)

type OverlapKind int

const (
	OverlapMissingFacultyID OverlapKind = iota + 1
	OverlapConflict
)

// OverlapError is returned when a set of schedules cannot be given to a faculty member.
// For OverlapConflict, Course and Schedule hold the first existing class found in the way.
type OverlapError struct {
	Kind     OverlapKind
	Course   Course
	Schedule schedule.Schedule
}

func (err *OverlapError) Error() string {
	if err.Kind == OverlapMissingFacultyID {
		return "faculty ID is required to check schedule conflicts"
	}
	return fmt.Sprintf(
		"schedule conflict with %s on %s (%s - %s)",
		err.Course.Label(), err.Schedule.Day, err.Schedule.FromTime, err.Schedule.ToTime,
	)
}

func IsOverlapError(err error) bool {
	_, ok := errors.Cause(err).(*OverlapError)
	return ok
}

// ActiveCourseFinder loads ACTIVE courses along with their schedules.
type ActiveCourseFinder interface {
	FindActiveCourses(ctx context.Context, filter ActiveFilter) ([]Course, error)
}

// CheckScheduleOverlap checks newSchedules against the ACTIVE courses of facultyID,
// ignoring excludeCourseIDs. Empty semester or academicYear match any.
// It returns nil, the first conflict found as an *OverlapError, or a repository error.
func CheckScheduleOverlap(
	ctx context.Context,
	finder ActiveCourseFinder,
	newSchedules []schedule.Schedule,
	facultyID string,
	excludeCourseIDs []string,
	semester, academicYear string,
) error {
	if facultyID == "" {
		return &OverlapError{Kind: OverlapMissingFacultyID}
	}
	if len(newSchedules) == 0 {
		return nil
	}

	courses, err := finder.FindActiveCourses(ctx, ActiveFilter{
		FacultyID:    facultyID,
		ExcludeIDs:   excludeCourseIDs,
		Semester:     semester,
		AcademicYear: academicYear,
	})
	if err != nil {
		return errors.Wrap(err, "finding active courses")
	}

	for _, ns := range newSchedules {
		ns = schedule.Normalize(ns)
		for _, c := range courses {
			for _, es := range c.Schedules {
				day := schedule.NormalizeDayName(es.Day)
				if day != ns.Day {
					continue
				}
				if schedule.CheckTimeOverlap(ns, schedule.Schedule{Day: day, FromTime: es.FromTime, ToTime: es.ToTime}) {
					return &OverlapError{
						Kind:     OverlapConflict,
						Course:   c,
						Schedule: schedule.Schedule{Day: day, FromTime: es.FromTime, ToTime: es.ToTime},
					}
				}
			}
		}
	}
	return nil
}

// checkSelfOverlap reports the first pair of schedules in ss that collide.
func checkSelfOverlap(ss []schedule.Schedule) (schedule.Schedule, schedule.Schedule, bool) {
	for i := 0; i < len(ss); i++ {
		for j := i + 1; j < len(ss); j++ {
			a, b := schedule.Normalize(ss[i]), schedule.Normalize(ss[j])
			if schedule.CheckTimeOverlap(a, b) {
				return ss[i], ss[j], true
			}
		}
	}
	return schedule.Schedule{}, schedule.Schedule{}, false
}

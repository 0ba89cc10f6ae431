package course_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/user"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	testutil "github.com/trezcool/darasa/tests"
)

func TestCheckScheduleOverlap(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	repo := inmemdb.NewCourseRepository(db)

	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.com", "", []string{user.RoleFaculty}, true)
	idle := testutil.CreateUser(t, usrRepo, "Idle", "idle", "idle@test.com", "", []string{user.RoleFaculty}, true)
	cs101 := testutil.CreateCourse(t, repo, "CS101", "A", prof.ID, schedule.Schedule{Day: "Mon", FromTime: "09:00", ToTime: "10:00"})

	tests := []struct {
		name      string
		schedules []schedule.Schedule
		facultyID string
		exclude   []string
		wantKind  course.OverlapKind // 0: no error
	}{
		{
			name:      "same day overlap",
			schedules: []schedule.Schedule{{Day: "Mon", FromTime: "09:30", ToTime: "10:30"}},
			facultyID: prof.ID,
			wantKind:  course.OverlapConflict,
		},
		{
			name:      "full day name overlap",
			schedules: []schedule.Schedule{{Day: "Monday", FromTime: "08:00 AM", ToTime: "09:01 AM"}},
			facultyID: prof.ID,
			wantKind:  course.OverlapConflict,
		},
		{
			name:      "other day",
			schedules: []schedule.Schedule{{Day: "Tue", FromTime: "09:30", ToTime: "10:30"}},
			facultyID: prof.ID,
		},
		{
			name:      "back to back",
			schedules: []schedule.Schedule{{Day: "Mon", FromTime: "10:00", ToTime: "11:00"}},
			facultyID: prof.ID,
		},
		{
			name:      "own course excluded",
			schedules: []schedule.Schedule{{Day: "Mon", FromTime: "09:30", ToTime: "10:30"}},
			facultyID: prof.ID,
			exclude:   []string{cs101.ID},
		},
		{
			name:      "faculty without courses",
			schedules: []schedule.Schedule{{Day: "Mon", FromTime: "09:30", ToTime: "10:30"}},
			facultyID: idle.ID,
		},
		{
			name:      "missing faculty",
			schedules: []schedule.Schedule{{Day: "Mon", FromTime: "09:30", ToTime: "10:30"}},
			wantKind:  course.OverlapMissingFacultyID,
		},
		{
			name:      "unparsable times never overlap",
			schedules: []schedule.Schedule{{Day: "Mon", FromTime: "nine", ToTime: "ten"}},
			facultyID: prof.ID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := course.CheckScheduleOverlap(ctx, repo, tt.schedules, tt.facultyID, tt.exclude, "", "")
			if tt.wantKind == 0 {
				assert.NoError(t, err)
				return
			}
			require.True(t, course.IsOverlapError(err), "got %v", err)
			oErr := errors.Cause(err).(*course.OverlapError)
			assert.Equal(t, tt.wantKind, oErr.Kind)
			if tt.wantKind == course.OverlapConflict {
				assert.Equal(t, cs101.ID, oErr.Course.ID)
				assert.Equal(t, "Monday", oErr.Schedule.Day)
				assert.Equal(t, "schedule conflict with CS101 - A on Monday (09:00 - 10:00)", err.Error())
			}
		})
	}
}

func TestCheckScheduleOverlap_term(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	repo := inmemdb.NewCourseRepository(db)

	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.com", "", []string{user.RoleFaculty}, true)
	c := testutil.CreateCourse(t, repo, "CS101", "A", prof.ID, schedule.Schedule{Day: "Wed", FromTime: "13:00", ToTime: "14:00"})
	c.Semester, c.AcademicYear = "1st", "2024-2025"
	_, err := repo.UpdateCourse(ctx, c)
	require.NoError(t, err)

	ss := []schedule.Schedule{{Day: "Wed", FromTime: "01:30 PM", ToTime: "02:30 PM"}}
	assert.NoError(t, course.CheckScheduleOverlap(ctx, repo, ss, prof.ID, nil, "2nd", "2024-2025"))
	assert.NoError(t, course.CheckScheduleOverlap(ctx, repo, ss, prof.ID, nil, "1st", "2025-2026"))
	assert.True(t, course.IsOverlapError(course.CheckScheduleOverlap(ctx, repo, ss, prof.ID, nil, "1st", "2024-2025")))
	assert.True(t, course.IsOverlapError(course.CheckScheduleOverlap(ctx, repo, ss, prof.ID, nil, "", "")))
}

package grading_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/grading"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	inmemdb "github.com/trezcool/darasa/storage/database/inmem"
	testutil "github.com/trezcool/darasa/tests"
)

func fPtr(f float64) *float64 { return &f }

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	res := make(map[string]string)
	for _, f := range vErr.Fields {
		res[f.Field] = f.Error
	}
	return res
}

func TestService(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	logger := logsvc.NewNopLogger()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	crsRepo := inmemdb.NewCourseRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), logger, conf)
	svc := grading.NewService(inmemdb.NewGradingRepository(db), course.NewService(crsRepo, usrSvc))

	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.com", "", []string{user.RoleFaculty}, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other", "other@test.com", "", []string{user.RoleFaculty}, true)
	s1 := testutil.CreateUser(t, usrRepo, "S1", "s1", "s1@test.com", "", []string{user.RoleStudent}, true)
	s2 := testutil.CreateUser(t, usrRepo, "S2", "s2", "s2@test.com", "", []string{user.RoleStudent}, true)
	s3 := testutil.CreateUser(t, usrRepo, "S3", "s3", "s3@test.com", "", []string{user.RoleStudent}, true)
	c := testutil.CreateCourse(t, crsRepo, "CS101", "A", prof.ID)
	testutil.Enroll(t, crsRepo, c.ID, s1.ID, s2.ID)

	quiz, err := svc.CreateComponent(ctx, prof, grading.NewComponent{CourseID: c.ID, Name: "Quiz", Weight: 40, MaxScore: 20})
	require.NoError(t, err)
	exam, err := svc.CreateComponent(ctx, prof, grading.NewComponent{CourseID: c.ID, Name: "Exam", Weight: 60, MaxScore: 100})
	require.NoError(t, err)

	t.Run("weight cap", func(t *testing.T) {
		_, err := svc.CreateComponent(ctx, prof, grading.NewComponent{CourseID: c.ID, Name: "Extra", Weight: 1, MaxScore: 10})
		assert.Contains(t, fieldErrors(t, err), "weight")

		_, err = svc.UpdateComponent(ctx, prof, quiz.ID, grading.UpdateComponent{Weight: fPtr(41)})
		assert.Contains(t, fieldErrors(t, err), "weight")
	})

	t.Run("other faculty", func(t *testing.T) {
		_, err := svc.CreateComponent(ctx, other, grading.NewComponent{CourseID: c.ID, Name: "X", Weight: 1, MaxScore: 1})
		assert.True(t, core.IsPermissionError(err), "got %v", err)
	})

	t.Run("record scores", func(t *testing.T) {
		_, err := svc.RecordScores(ctx, prof, grading.RecordScores{
			ComponentID: quiz.ID,
			Scores:      []grading.Score{{StudentID: s1.ID, Score: fPtr(15)}, {StudentID: s2.ID, Score: fPtr(10)}},
		})
		require.NoError(t, err)
		entries, err := svc.RecordScores(ctx, prof, grading.RecordScores{
			ComponentID: exam.ID,
			Scores:      []grading.Score{{StudentID: s1.ID, Score: fPtr(80)}},
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, prof.ID, entries[0].RecordedBy)

		_, err = svc.RecordScores(ctx, prof, grading.RecordScores{
			ComponentID: quiz.ID,
			Scores:      []grading.Score{{StudentID: s1.ID, Score: fPtr(21)}},
		})
		assert.Equal(t, map[string]string{"score": "score cannot exceed the component max score of 20"}, fieldErrors(t, err))

		_, err = svc.RecordScores(ctx, prof, grading.RecordScores{
			ComponentID: quiz.ID,
			Scores:      []grading.Score{{StudentID: s3.ID, Score: fPtr(1)}},
		})
		assert.Contains(t, fieldErrors(t, err), "student_id")
	})

	t.Run("max score below recorded scores", func(t *testing.T) {
		_, err := svc.UpdateComponent(ctx, prof, quiz.ID, grading.UpdateComponent{MaxScore: fPtr(12)})
		assert.Contains(t, fieldErrors(t, err), "max_score")
	})

	t.Run("class record", func(t *testing.T) {
		cr, err := svc.ClassRecord(ctx, prof, c.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(100), cr.TotalWeight)
		require.Len(t, cr.Students, 2)
		grades := map[string]float64{}
		for _, row := range cr.Students {
			grades[row.StudentID] = row.Grade
		}
		// s1: 15/20*40 + 80/100*60 = 30 + 48
		assert.Equal(t, 78.0, grades[s1.ID])
		// s2: 10/20*40 + 0
		assert.Equal(t, 20.0, grades[s2.ID])

		cr, err = svc.ClassRecord(ctx, s2, c.ID)
		require.NoError(t, err)
		require.Len(t, cr.Students, 1)
		assert.Equal(t, s2.ID, cr.Students[0].StudentID)

		_, err = svc.ClassRecord(ctx, s3, c.ID)
		assert.True(t, core.IsPermissionError(err), "got %v", err)
	})

	t.Run("delete component", func(t *testing.T) {
		require.NoError(t, svc.DeleteComponent(ctx, prof, exam.ID))
		_, err := svc.GetComponent(ctx, exam.ID)
		assert.Equal(t, grading.ErrNotFound, errors.Cause(err))

		cr, err := svc.ClassRecord(ctx, prof, c.ID)
		require.NoError(t, err)
		assert.Len(t, cr.Components, 1)
	})
}

// shrinkingRepo lowers the max score of a component right before the first course lock is taken,
// as a concurrent update would.
type shrinkingRepo struct {
	grading.Repository
	componentID string
	maxScore    float64
	done        bool
}

func (r *shrinkingRepo) LockCourse(ctx context.Context, courseID string, fn func(repo grading.Repository) error) error {
	if !r.done {
		r.done = true
		comp, err := r.Repository.GetComponent(ctx, r.componentID)
		if err != nil {
			return err
		}
		comp.MaxScore = r.maxScore
		if _, err = r.Repository.UpdateComponent(ctx, comp); err != nil {
			return err
		}
	}
	return r.Repository.LockCourse(ctx, courseID, fn)
}

func TestService_RecordScores_maxScoreLowered(t *testing.T) {
	ctx := context.Background()
	conf := testutil.NewConfig()
	logger := logsvc.NewNopLogger()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	crsRepo := inmemdb.NewCourseRepository(db)
	grdRepo := inmemdb.NewGradingRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), logger, conf)
	crsSvc := course.NewService(crsRepo, usrSvc)

	prof := testutil.CreateUser(t, usrRepo, "Prof", "prof", "prof@test.com", "", []string{user.RoleFaculty}, true)
	s1 := testutil.CreateUser(t, usrRepo, "S1", "s1", "s1@test.com", "", []string{user.RoleStudent}, true)
	c := testutil.CreateCourse(t, crsRepo, "CS101", "A", prof.ID)
	testutil.Enroll(t, crsRepo, c.ID, s1.ID)

	quiz, err := grading.NewService(grdRepo, crsSvc).CreateComponent(ctx, prof, grading.NewComponent{CourseID: c.ID, Name: "Quiz", Weight: 40, MaxScore: 20})
	require.NoError(t, err)

	svc := grading.NewService(&shrinkingRepo{Repository: grdRepo, componentID: quiz.ID, maxScore: 10}, crsSvc)
	_, err = svc.RecordScores(ctx, prof, grading.RecordScores{
		ComponentID: quiz.ID,
		Scores:      []grading.Score{{StudentID: s1.ID, Score: fPtr(15)}},
	})
	assert.Equal(t, map[string]string{"score": "score cannot exceed the component max score of 10"}, fieldErrors(t, err))

	entries, err := grdRepo.QueryEntries(ctx, grading.EntryFilter{ComponentID: quiz.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestComputeClassRecord(t *testing.T) {
	comps := []grading.Component{
		{ID: "q", Weight: 30, MaxScore: 10},
		{ID: "e", Weight: 30, MaxScore: 30},
	}
	entries := []grading.Entry{
		{ComponentID: "q", StudentID: "a", Score: 10},
		{ComponentID: "e", StudentID: "a", Score: 10},
	}
	cr := grading.ComputeClassRecord("c", comps, []string{"b", "a"}, entries)
	require.Len(t, cr.Students, 2)
	assert.Equal(t, "a", cr.Students[0].StudentID)
	// (30 + 10) / 60 * 100
	assert.Equal(t, 66.67, cr.Students[0].Grade)
	assert.Equal(t, 0.0, cr.Students[1].Grade)

	cr = grading.ComputeClassRecord("c", nil, []string{"a"}, nil)
	assert.Equal(t, 0.0, cr.Students[0].Grade)
	assert.NotNil(t, cr.Components)
}

package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/grading"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func Test_gradingApi(t *testing.T) {
	app := setup(t)
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleFaculty}, true)
	stud1 := testutil.CreateUser(t, app.usrRepo, "Stud 1", "stud1", "stud1@test.cd", "", []string{user.RoleStudent}, true)
	stud2 := testutil.CreateUser(t, app.usrRepo, "Stud 2", "stud2", "stud2@test.cd", "", []string{user.RoleStudent}, true)
	c := testutil.CreateCourse(t, app.courseRepo, "PHY1", "A", prof.ID)
	testutil.Enroll(t, app.courseRepo, c.ID, stud1.ID, stud2.ID)

	profToken := app.getToken(t, prof)
	compsPath := "/v1/courses/" + c.ID + "/grade-components"

	newComp := func(name string, weight, max float64) []byte {
		return marshalObj(t, grading.NewComponent{Name: name, Weight: weight, MaxScore: max})
	}
	scores := func(pairs ...interface{}) []byte {
		rs := grading.RecordScores{}
		for i := 0; i < len(pairs); i += 2 {
			score := pairs[i+1].(float64)
			rs.Scores = append(rs.Scores, grading.Score{StudentID: pairs[i].(string), Score: &score})
		}
		return marshalObj(t, rs)
	}

	var exam grading.Component
	t.Run("create component", func(t *testing.T) {
		rec := app.do(http.MethodPost, compsPath, profToken, newComp("Exam", 60, 100))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &exam)
		assert.Equal(t, c.ID, exam.CourseID)
		assert.Equal(t, 60.0, exam.Weight)
	})
	compPath := "/v1/grade-components/" + exam.ID

	runHTTPTests(t, app, []httpTest{
		{
			name:     "weight cap",
			method:   http.MethodPost,
			path:     compsPath,
			body:     newComp("Project", 50, 20),
			token:    profToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"weight": "total weight of the course components cannot exceed 100"}`),
		},
		{name: "zero weight", method: http.MethodPost, path: compsPath, body: newComp("Quiz", 0, 10), token: profToken, wantCode: http.StatusBadRequest},
		{name: "other faculty", method: http.MethodPost, path: compsPath, body: newComp("Quiz", 10, 10), token: app.getToken(t, other), wantCode: http.StatusForbidden},
		{
			name:     "score above max",
			method:   http.MethodPost,
			path:     compPath + "/scores",
			body:     scores(stud1.ID, 120.0),
			token:    profToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"score": "score cannot exceed the component max score of 100"}`),
		},
		{name: "unknown component", method: http.MethodPost, path: "/v1/grade-components/unknown/scores", body: scores(stud1.ID, 1.0), token: profToken, wantCode: http.StatusNotFound},
	})

	t.Run("class record", func(t *testing.T) {
		rec := app.do(http.MethodPost, compPath+"/scores", profToken, scores(stud1.ID, 80.0))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPost, compsPath, profToken, newComp("Quiz", 40, 20))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var quiz grading.Component
		unmarshalBody(t, rec, &quiz)
		rec = app.do(http.MethodPost, "/v1/grade-components/"+quiz.ID+"/scores", profToken, scores(stud1.ID, 10.0, stud2.ID, 20.0))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/v1/courses/"+c.ID+"/class-record", profToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cr grading.ClassRecord
		unmarshalBody(t, rec, &cr)
		assert.Equal(t, 100.0, cr.TotalWeight)
		require.Len(t, cr.Students, 2)
		grades := map[string]float64{cr.Students[0].StudentID: cr.Students[0].Grade, cr.Students[1].StudentID: cr.Students[1].Grade}
		assert.Equal(t, 68.0, grades[stud1.ID]) // 80/100*60 + 10/20*40
		assert.Equal(t, 40.0, grades[stud2.ID]) // 0 + 20/20*40

		// students only see their own row
		rec = app.do(http.MethodGet, "/v1/courses/"+c.ID+"/class-record", app.getToken(t, stud2))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &cr)
		require.Len(t, cr.Students, 1)
		assert.Equal(t, stud2.ID, cr.Students[0].StudentID)
	})

	t.Run("update and delete", func(t *testing.T) {
		rec := app.do(http.MethodPut, compPath, app.getToken(t, other), []byte(`{"name": "Final"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPut, compPath, profToken, []byte(`{"max_score": 50}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		rec = app.do(http.MethodPut, compPath, profToken, []byte(`{"name": "Final"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var comp grading.Component
		unmarshalBody(t, rec, &comp)
		assert.Equal(t, "Final", comp.Name)

		rec = app.do(http.MethodDelete, compPath, profToken)
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = app.do(http.MethodGet, compPath, profToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(http.MethodGet, compsPath, app.getToken(t, stud1))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var comps []grading.Component
		unmarshalBody(t, rec, &comps)
		assert.Len(t, comps, 1)
	})
}

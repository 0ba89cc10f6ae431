package echoapi

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func Test_courseApi_create(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := app.getToken(t, admin)

	newCourse := func(code, facultyID string, ss ...schedule.Schedule) []byte {
		return marshalObj(t, course.NewCourse{Code: code, Section: "A", Title: code, FacultyID: facultyID, Schedules: ss})
	}
	monMorning := schedule.Schedule{Day: "Mon", FromTime: "09:00", ToTime: "10:30"}

	t.Run("created", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/courses", adminToken, newCourse("CS101", prof.ID, monMorning))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c course.Course
		unmarshalBody(t, rec, &c)
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, course.StatusActive, c.Status)
		assert.Len(t, c.Schedules, 1)
	})

	t.Run("schedule conflict", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/courses", adminToken,
			newCourse("CS102", prof.ID, schedule.Schedule{Day: "Monday", FromTime: "10:00 AM", ToTime: "11:00 AM"}))
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

		var herr httpErr
		unmarshalBody(t, rec, &herr)
		assert.True(t, strings.HasPrefix(herr.Error, "schedule conflict with CS101 - A"), herr.Error)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "back to back",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourse("CS103", prof.ID, schedule.Schedule{Day: "Mon", FromTime: "10:30", ToTime: "12:00"}),
			token:    adminToken,
			wantCode: http.StatusCreated,
		},
		{
			name:     "unknown faculty",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourse("CS104", "ghost"),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"faculty_id": "user not found"}`),
		},
		{
			name:     "not a faculty member",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourse("CS104", stud.ID),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"faculty_id": "user is not a faculty member"}`),
		},
		{
			name:     "invalid schedule",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourse("CS105", prof.ID, schedule.Schedule{Day: "Funday", FromTime: "9", ToTime: "10:00"}),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "faculty cannot create",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourse("CS106", prof.ID),
			token:    app.getToken(t, prof),
			wantCode: http.StatusForbidden,
		},
	})
}

func Test_courseApi_checkSchedule(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleFaculty}, true)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)
	c := testutil.CreateCourse(t, app.courseRepo, "MATH1", "A", prof.ID, schedule.Schedule{Day: "Tue", FromTime: "13:00", ToTime: "14:00"})

	check := func(facultyID string, excl []string, ss ...schedule.Schedule) []byte {
		return marshalObj(t, course.CheckSchedule{FacultyID: facultyID, Schedules: ss, ExcludeCourseIDs: excl})
	}
	clash := schedule.Schedule{Day: "Tuesday", FromTime: "01:30 PM", ToTime: "02:30 PM"}
	profToken := app.getToken(t, prof)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "conflict",
			method:   http.MethodPost,
			path:     "/v1/courses/check-schedule",
			body:     check(prof.ID, nil, clash),
			token:    profToken,
			wantCode: http.StatusConflict,
			wantData: marshalObj(t, httpErr{Error: "schedule conflict with MATH1 - A on Tuesday (13:00 - 14:00)"}),
		},
		{
			name:     "excluded course",
			method:   http.MethodPost,
			path:     "/v1/courses/check-schedule",
			body:     check(prof.ID, []string{c.ID}, clash),
			token:    profToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "other faculty is free",
			method:   http.MethodPost,
			path:     "/v1/courses/check-schedule",
			body:     check(other.ID, nil, clash),
			token:    app.getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marshalObj(t, SuccessResponse{Success: "No schedule conflict."}),
		},
		{
			name:     "missing faculty",
			method:   http.MethodPost,
			path:     "/v1/courses/check-schedule",
			body:     check("", nil, clash),
			token:    app.getToken(t, admin),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "faculty ID is required to check schedule conflicts"}),
		},
		{
			name:     "faculty checks someone else",
			method:   http.MethodPost,
			path:     "/v1/courses/check-schedule",
			body:     check(other.ID, nil, clash),
			token:    profToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "students may not check",
			method:   http.MethodPost,
			path:     "/v1/courses/check-schedule",
			body:     check(prof.ID, nil, clash),
			token:    app.getToken(t, stud),
			wantCode: http.StatusForbidden,
		},
	})
}

func Test_courseApi_detail(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)
	c1 := testutil.CreateCourse(t, app.courseRepo, "CS101", "A", prof.ID, schedule.Schedule{Day: "Wed", FromTime: "08:00", ToTime: "09:00"})
	c2 := testutil.CreateCourse(t, app.courseRepo, "CS101", "B", prof.ID, schedule.Schedule{Day: "Thu", FromTime: "08:00", ToTime: "09:00"})
	adminToken := app.getToken(t, admin)
	studToken := app.getToken(t, stud)

	t.Run("list", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/courses?search=cs101", studToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var courses []course.Course
		unmarshalBody(t, rec, &courses)
		require.Len(t, courses, 2)
		assert.Equal(t, c1.ID, courses[0].ID)
		assert.Equal(t, c2.ID, courses[1].ID)
	})

	runHTTPTests(t, app, []httpTest{
		{name: "retrieve", method: http.MethodGet, path: "/v1/courses/" + c1.ID, token: studToken, wantCode: http.StatusOK},
		{name: "unknown", method: http.MethodGet, path: "/v1/courses/unknown", token: studToken, wantCode: http.StatusNotFound},
		{name: "student cannot update", method: http.MethodPut, path: "/v1/courses/" + c1.ID, body: []byte(`{"title": "x"}`), token: studToken, wantCode: http.StatusForbidden},
		{
			name:     "moving onto a taken slot",
			method:   http.MethodPut,
			path:     "/v1/courses/" + c2.ID,
			body:     []byte(`{"schedules": [{"day": "Wed", "from_time": "08:30", "to_time": "09:30"}]}`),
			token:    adminToken,
			wantCode: http.StatusConflict,
		},
	})

	t.Run("archive frees the slot", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/courses/"+c1.ID+"/archive", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var c course.Course
		unmarshalBody(t, rec, &c)
		assert.Equal(t, course.StatusArchived, c.Status)

		rec = app.do(http.MethodPut, "/v1/courses/"+c2.ID, adminToken,
			[]byte(`{"schedules": [{"day": "Wed", "from_time": "08:30", "to_time": "09:30"}]}`))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("delete", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/courses/"+c1.ID, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodDelete, "/v1/courses/"+c1.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_courseApi_enrollments(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleFaculty}, true)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)
	c := testutil.CreateCourse(t, app.courseRepo, "BIO1", "A", prof.ID)
	adminToken := app.getToken(t, admin)
	path := "/v1/courses/" + c.ID + "/enrollments"

	enroll := func(ids ...string) []byte {
		return marshalObj(t, EnrollmentRequest{StudentIDs: ids})
	}

	runHTTPTests(t, app, []httpTest{
		{name: "enroll", method: http.MethodPost, path: path, body: enroll(stud.ID, stud.ID), token: adminToken, wantCode: http.StatusOK, wantData: []byte(`{"count": 1}`)},
		{name: "already enrolled", method: http.MethodPost, path: path, body: enroll(stud.ID), token: adminToken, wantCode: http.StatusOK, wantData: []byte(`{"count": 0}`)},
		{
			name:     "not a student",
			method:   http.MethodPost,
			path:     path,
			body:     enroll(other.ID),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"student_ids": "these users are not active students: ` + other.ID + `"}`),
		},
		{name: "empty", method: http.MethodPost, path: path, body: enroll(), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "faculty cannot enroll", method: http.MethodPost, path: path, body: enroll(stud.ID), token: app.getToken(t, prof), wantCode: http.StatusForbidden},
		{name: "other faculty cannot list", method: http.MethodGet, path: path, token: app.getToken(t, other), wantCode: http.StatusForbidden},
		{name: "student cannot list", method: http.MethodGet, path: path, token: app.getToken(t, stud), wantCode: http.StatusForbidden},
	})

	t.Run("course faculty lists", func(t *testing.T) {
		rec := app.do(http.MethodGet, path, app.getToken(t, prof))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var enrollments []course.Enrollment
		unmarshalBody(t, rec, &enrollments)
		require.Len(t, enrollments, 1)
		assert.Equal(t, stud.ID, enrollments[0].StudentID)
	})

	t.Run("unenroll", func(t *testing.T) {
		rec := app.do(http.MethodDelete, path, adminToken, enroll(stud.ID))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"count": 1}`)}, rec)
	})
}

package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

const testPwd = "Tr0ub4dor&3xyz"

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", testPwd, []string{user.RoleAdmin}, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.cd", testPwd, []string{user.RoleStudent}, false)

	login := func(uname, pwd string) []byte {
		return marshalObj(t, LoginRequest{Username: uname, Password: pwd})
	}

	runHTTPTests(t, app, []httpTest{
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     login("admin", "wrong"),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     login("ghost", testPwd),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     login("ndog", testPwd),
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("by username or email", func(t *testing.T) {
		for _, uname := range []string{"admin", "ADMIN@test.cd"} {
			rec := app.do(http.MethodPost, "/v1/users/login", "", login(uname, testPwd))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp LoginResponse
			unmarshalBody(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)

			// the token authenticates
			rec = app.do(http.MethodGet, "/v1/users/me", resp.Token)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})
}

func Test_userApi_authRequired(t *testing.T) {
	app := setup(t)

	for _, path := range []string{"/v1/users", "/v1/courses", "/v1/break-glass/me", "/v1/courses/x/class-record"} {
		t.Run(path, func(t *testing.T) {
			rec := app.do(http.MethodGet, path, "")
			checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)}, rec)
		})
	}

	t.Run("bad token", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users/me", "not.a.token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost := user.User{ID: "ghost", Username: "ghost"}
		rec := app.do(http.MethodGet, "/v1/users/me", app.getToken(t, ghost))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)
	now := time.Now()
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, now.Add(-3*time.Hour))
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true, now.Add(-2*time.Hour))
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true, now.Add(-time.Hour))

	adminToken := app.getToken(t, admin)

	t.Run("admin only", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users", app.getToken(t, stud))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"})}, rec)
	})

	tests := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{name: "all, newest first", query: "", wantIDs: []string{stud.ID, prof.ID, admin.ID}},
		{name: "ordering", query: "?ordering=name", wantIDs: []string{admin.ID, prof.ID, stud.ID}},
		{name: "search", query: "?search=pro", wantIDs: []string{prof.ID}},
		{name: "role", query: "?role=" + user.RoleStudent, wantIDs: []string{stud.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodGet, "/v1/users"+tt.query, adminToken)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var users []user.User
			unmarshalBody(t, rec, &users)
			ids := make([]string, 0, len(users))
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func Test_userApi_create(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	adminToken := app.getToken(t, admin)

	newUser := func(uname string, roles ...string) []byte {
		return marshalObj(t, user.NewUser{
			Name:            "New " + uname,
			Username:        uname,
			Email:           uname + "@test.cd",
			Password:        testPwd,
			PasswordConfirm: testPwd,
			Roles:           roles,
		})
	}

	t.Run("creates a student", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/register", adminToken, newUser("kid", user.RoleStudent))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		unmarshalBody(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "kid", usr.Username)
		assert.True(t, usr.IsActive)
	})

	runHTTPTests(t, app, []httpTest{
		{
			name:     "duplicate username",
			method:   http.MethodPost,
			path:     "/v1/users/register",
			body:     newUser("kid"),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "role above own",
			method:   http.MethodPost,
			path:     "/v1/users/register",
			body:     newUser("boss", user.RoleAdminPrincipal),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		},
	})
}

func Test_userApi_detail(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	principal := testutil.CreateUser(t, app.usrRepo, "Principal", "principal", "principal@test.cd", "", []string{user.RoleAdminPrincipal}, true)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)

	adminToken := app.getToken(t, admin)
	studToken := app.getToken(t, stud)

	runHTTPTests(t, app, []httpTest{
		{name: "self", method: http.MethodGet, path: "/v1/users/" + stud.ID, token: studToken, wantCode: http.StatusOK},
		{name: "someone else", method: http.MethodGet, path: "/v1/users/" + other.ID, token: studToken, wantCode: http.StatusNotFound},
		{name: "admin reads anyone", method: http.MethodGet, path: "/v1/users/" + other.ID, token: adminToken, wantCode: http.StatusOK},
		{name: "unknown", method: http.MethodGet, path: "/v1/users/unknown", token: adminToken, wantCode: http.StatusNotFound},
		{
			name:     "student cannot change roles",
			method:   http.MethodPut,
			path:     "/v1/users/" + stud.ID,
			body:     []byte(`{"roles": ["admin:"]}`),
			token:    studToken,
			wantCode: http.StatusForbidden,
		},
		{name: "no suicide", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "no deleting superiors", method: http.MethodDelete, path: "/v1/users/" + principal.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "student cannot delete", method: http.MethodDelete, path: "/v1/users/" + stud.ID, token: studToken, wantCode: http.StatusForbidden},
	})

	t.Run("update self", func(t *testing.T) {
		rec := app.do(http.MethodPut, "/v1/users/"+stud.ID, studToken, []byte(`{"name": "Student One"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var usr user.User
		unmarshalBody(t, rec, &usr)
		assert.Equal(t, "Student One", usr.Name)
		assert.Equal(t, "stud", usr.Username)
	})

	t.Run("admin deletes", func(t *testing.T) {
		rec := app.do(http.MethodDelete, "/v1/users?id="+other.ID, adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/v1/users/"+other.ID, adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app := setup(t)
	testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", testPwd, []string{user.RoleStudent}, true)

	for _, email := range []string{"stud@test.cd", "nobody@test.cd"} {
		t.Run(email, func(t *testing.T) {
			app.mailSvc.Reset()
			rec := app.do(http.MethodPost, "/v1/users/password-reset", "", marshalObj(t, PasswordResetRequest{Email: email}))
			assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	}

	t.Run("mail only for known emails", func(t *testing.T) {
		app.mailSvc.Reset()
		app.do(http.MethodPost, "/v1/users/password-reset", "", marshalObj(t, PasswordResetRequest{Email: "nobody@test.cd"}))
		assert.Empty(t, app.mailSvc.SentMessages())

		app.do(http.MethodPost, "/v1/users/password-reset", "", marshalObj(t, PasswordResetRequest{Email: "stud@test.cd"}))
		assert.Len(t, app.mailSvc.SentMessages(), 1)
	})

	t.Run("invalid link", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/users/password-reset-confirm", "", marshalObj(t, user.ResetUserPassword{
			Token:           "bad",
			UID:             "bad",
			Password:        testPwd,
			PasswordConfirm: testPwd,
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}

func Test_userApi_rateLimit(t *testing.T) {
	conf := testutil.NewConfig()
	conf.Server.RateLimit = 0.001
	conf.Server.RateBurst = 2
	app := setup(t, conf)

	body := marshalObj(t, LoginRequest{Username: "ghost", Password: "nope"})
	for i := 0; i < 2; i++ {
		rec := app.do(http.MethodPost, "/v1/users/login", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := app.do(http.MethodPost, "/v1/users/login", "", body)
	checkCodeAndData(t, httpTest{wantCode: http.StatusTooManyRequests, wantData: marshalObj(t, httpErr{Error: "too many requests"})}, rec)
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)

	rec := app.do(http.MethodPost, "/v1/users/token-refresh", app.getToken(t, stud))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	unmarshalBody(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)

	expired := app.auth.userClaims(stud, time.Now().Add(-time.Hour).Unix())
	token, err := app.auth.GenerateToken(expired)
	require.NoError(t, err)
	rec = app.do(http.MethodPost, "/v1/users/token-refresh", token)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})}, rec)
}

package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/breakglass"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func Test_breakGlassApi_elevation(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	prof := testutil.CreateUser(t, app.usrRepo, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)
	profToken := app.getToken(t, prof)

	rec := app.do(http.MethodGet, "/v1/users", profToken)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = app.do(http.MethodGet, "/v1/break-glass/me", profToken)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var grant breakglass.Grant
	t.Run("self-promotion", func(t *testing.T) {
		app.mailSvc.Reset()
		rec := app.do(http.MethodPost, "/v1/break-glass", profToken, []byte(`{"reason": "registrar is away", "duration": 15}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshalBody(t, rec, &grant)
		assert.Equal(t, prof.ID, grant.UserID)
		assert.True(t, grant.SelfPromoted)

		// admins are notified
		msgs := app.mailSvc.SentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, admin.Email, msgs[0].To[0].Address)
	})

	t.Run("acts as admin", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/users", profToken)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/v1/break-glass/me", profToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var active breakglass.Grant
		unmarshalBody(t, rec, &active)
		assert.Equal(t, grant.ID, active.ID)
	})

	t.Run("but not as a real admin", func(t *testing.T) {
		// listing grants and granting others need actual admin roles
		rec := app.do(http.MethodGet, "/v1/break-glass", profToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		// an elevated user cannot assign roles above the base admin role
		rec = app.do(http.MethodPost, "/v1/users/register", profToken, marshalObj(t, user.NewUser{
			Name:            "Boss",
			Username:        "boss",
			Password:        testPwd,
			PasswordConfirm: testPwd,
			Roles:           []string{user.RoleAdminRegistrar},
		}))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		// nor keep admin rights past the grant
		rec = app.do(http.MethodPost, "/v1/users/register", profToken, marshalObj(t, user.NewUser{
			Name:            "Backup",
			Username:        "backup",
			Password:        testPwd,
			PasswordConfirm: testPwd,
			Roles:           []string{user.RoleAdmin},
		}))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		}, rec)

		rec = app.do(http.MethodPut, "/v1/users/"+prof.ID, profToken, []byte(`{"roles": ["admin:", "faculty:"]}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"roles": "not enough rights to set these roles"}`),
		}, rec)

		rec = app.do(http.MethodPut, "/v1/users/"+admin.ID, profToken, []byte(`{"is_active": false}`))
		assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

		stored, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: prof.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleFaculty}, stored.Roles)
		stored, err = app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: admin.ID})
		require.NoError(t, err)
		assert.True(t, stored.IsActive)
		_, err = app.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "backup"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("already active", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/break-glass", profToken, []byte(`{"reason": "again"}`))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marshalObj(t, httpErr{Error: breakglass.ErrAlreadyActive.Error()}),
		}, rec)
	})

	t.Run("deactivate", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/break-glass/"+grant.ID+"/deactivate", profToken, []byte(`{"reason": "done"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var g breakglass.Grant
		unmarshalBody(t, rec, &g)
		assert.NotNil(t, g.DeactivatedAt)
		assert.Equal(t, "done", g.DeactivationReason)

		rec = app.do(http.MethodGet, "/v1/users", profToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPost, "/v1/break-glass/"+grant.ID+"/deactivate", profToken)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func Test_breakGlassApi_adminGrants(t *testing.T) {
	app := setup(t)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	stud := testutil.CreateUser(t, app.usrRepo, "Stud", "stud", "stud@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	adminToken := app.getToken(t, admin)
	studToken := app.getToken(t, stud)

	runHTTPTests(t, app, []httpTest{
		{
			name:     "students are not eligible",
			method:   http.MethodPost,
			path:     "/v1/break-glass",
			body:     []byte(`{"reason": "I want power"}`),
			token:    studToken,
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "your roles are not eligible for self-promotion"}),
		},
		{
			name:     "only admins grant others",
			method:   http.MethodPost,
			path:     "/v1/break-glass",
			body:     []byte(`{"user_id": "` + other.ID + `", "reason": "help"}`),
			token:    studToken,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "admins need no grant",
			method:   http.MethodPost,
			path:     "/v1/break-glass",
			body:     []byte(`{"reason": "why not"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"user_id": "user is already an admin"}`),
		},
		{
			name:     "reason required",
			method:   http.MethodPost,
			path:     "/v1/break-glass",
			body:     []byte(`{"user_id": "` + stud.ID + `"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{name: "unknown grant", method: http.MethodPost, path: "/v1/break-glass/unknown/deactivate", token: adminToken, wantCode: http.StatusNotFound},
	})

	t.Run("admin grants a student", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/v1/break-glass", adminToken, []byte(`{"user_id": "`+stud.ID+`", "reason": "exam week"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var g breakglass.Grant
		unmarshalBody(t, rec, &g)
		assert.False(t, g.SelfPromoted)
		assert.Equal(t, admin.ID, g.GrantedBy)

		rec = app.do(http.MethodGet, "/v1/users", studToken)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = app.do(http.MethodGet, "/v1/break-glass?active=true", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var grants []breakglass.Grant
		unmarshalBody(t, rec, &grants)
		require.Len(t, grants, 1)
		assert.Equal(t, g.ID, grants[0].ID)

		// the grantee cannot end someone else's grant, admins can end theirs
		rec = app.do(http.MethodPost, "/v1/break-glass/"+g.ID+"/deactivate", app.getToken(t, other))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		rec = app.do(http.MethodPost, "/v1/break-glass/"+g.ID+"/deactivate", adminToken)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/breakglass"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func memoryConfig() *core.Config {
	conf := testutil.NewConfig()
	conf.Database.Engine = EngineMemory
	return conf
}

func TestNew_memory(t *testing.T) {
	c := New(memoryConfig)

	err := c.Invoke(func(repos Repositories, server *echoapi.Server, scheduler *cron.Cron) {
		assert.Nil(t, repos.DB)
		assert.NotNil(t, repos.Users)
		assert.Len(t, scheduler.Entries(), 1)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	require.NoError(t, err)
}

func TestNew_sharedStorage(t *testing.T) {
	c := New(memoryConfig)

	// services see what repositories save since both come from the same container
	err := c.Invoke(func(repos Repositories, usrSvc user.ServiceInterface, bgSvc breakglass.ServiceInterface) {
		ctx := context.Background()
		prof := testutil.CreateUser(t, repos.Users, "Prof", "prof", "prof@test.cd", "", []string{user.RoleFaculty}, true)

		got, err := usrSvc.GetByID(ctx, prof.ID)
		require.NoError(t, err)
		assert.Equal(t, prof.Username, got.Username)

		_, err = bgSvc.Activate(ctx, prof, breakglass.Activation{Reason: "testing", Duration: 1})
		require.NoError(t, err)
		n, err := bgSvc.ExpireStale(ctx, time.Now().Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
	require.NoError(t, err)
}

func TestNewScheduler_badSpec(t *testing.T) {
	conf := memoryConfig()
	conf.BreakGlass.ExpirySchedule = "every now and then"
	_, err := newScheduler(conf, nil, nil)
	assert.Error(t, err)
}

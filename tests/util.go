package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/schedule"
	"github.com/trezcool/darasa/core/user"
)

// NewConfig returns the configuration used across tests.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "TEST",
		TestMode:                  true,
		AppName:                   "Darasa",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "Darasa", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 30 * time.Minute,
			RateLimit:                 100,
			RateBurst:                 100,
		},
		BreakGlass: core.BreakGlassConfig{
			DefaultDuration:    30 * time.Minute,
			MaxDuration:        4 * time.Hour,
			AllowSelfPromotion: true,
			EligibleRoles:      []string{user.RoleFaculty},
			ExpirySchedule:     "@every 1m",
		},
	}
}

// NewValidator returns a validator with all the app validations registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	schedule.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse saves an ACTIVE course without checking the faculty timetable.
func CreateCourse(t *testing.T, repo course.Repository, code, section, facultyID string, schedules ...schedule.Schedule) course.Course {
	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Code:      code,
		Section:   section,
		Title:     code + " " + section,
		FacultyID: facultyID,
		Status:    course.StatusActive,
		Schedules: schedules,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

func Enroll(t *testing.T, repo course.Repository, courseID string, studentIDs ...string) {
	if _, err := repo.AddEnrollments(context.Background(), courseID, studentIDs, time.Now().UTC()); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}

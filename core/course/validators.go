package course

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/schedule"
)

var (
	courseStatusTag  = "coursestatus"
	courseStatusText = fmt.Sprintf("must be one of %s, %s or %s", StatusActive, StatusInactive, StatusArchived)

	schedOverlapTag  = "schedoverlap"
	schedOverlapText = "schedules must not overlap each other"
)

// InitValidators registers the course validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(courseStatusTag, func(fl validator.FieldLevel) bool {
		status := Status(fl.Field().String())
		for _, s := range Statuses {
			if s == status {
				return true
			}
		}
		return false
	})
	core.RegisterCustomTranslation(validate, translator, courseStatusTag, courseStatusText)

	validate.RegisterStructValidation(courseStructValidation, NewCourse{}, UpdateCourse{}, CheckSchedule{})
	core.RegisterCustomTranslation(validate, translator, schedOverlapTag, schedOverlapText)
}

// courseStructValidation rejects schedule lists that collide with themselves.
func courseStructValidation(sl validator.StructLevel) {
	var schedules []schedule.Schedule
	switch c := sl.Current().Interface().(type) {
	case NewCourse:
		schedules = c.Schedules
	case UpdateCourse:
		schedules = c.Schedules
	case CheckSchedule:
		schedules = c.Schedules
	}
	if _, _, overlap := checkSelfOverlap(schedules); overlap {
		sl.ReportError(schedules, "schedules", "Schedules", schedOverlapTag, "")
	}
}

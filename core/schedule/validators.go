package schedule

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	weekdayTag  = "weekday"
	weekdayText = "must be a day of the week, eg. Mon or Monday"

	timeOfDayTag  = "timeofday"
	timeOfDayText = "must be a time formatted as HH:MM or HH:MM AM|PM"

	windowTag  = "window"
	windowText = "from_time must be before to_time"
)

// InitValidators registers the schedule validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(weekdayTag, func(fl validator.FieldLevel) bool {
		return IsKnownDay(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, weekdayTag, weekdayText)

	_ = validate.RegisterValidation(timeOfDayTag, func(fl validator.FieldLevel) bool {
		return IsValidTime(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, timeOfDayTag, timeOfDayText)

	validate.RegisterStructValidation(scheduleStructValidation, Schedule{})
	core.RegisterCustomTranslation(validate, translator, windowTag, windowText)
}

// scheduleStructValidation checks that a schedule window is not empty or reversed.
func scheduleStructValidation(sl validator.StructLevel) {
	s := sl.Current().Interface().(Schedule)
	if !IsValidTime(s.FromTime) || !IsValidTime(s.ToTime) {
		return // reported by the field validators
	}
	from, to, _ := s.Window()
	if from >= to {
		sl.ReportError(s.ToTime, "to_time", "ToTime", windowTag, "")
	}
}

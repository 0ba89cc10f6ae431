package attendance

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	statusTag  = "attendancestatus"
	statusText = "must be one of PRESENT, ABSENT, LATE or EXCUSED"

	duplicateTag  = "nodupstudent"
	duplicateText = "a student may only appear once"
)

// InitValidators registers the attendance validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		status := Status(fl.Field().String())
		for _, s := range Statuses {
			if s == status {
				return true
			}
		}
		return false
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	validate.RegisterStructValidation(recordStructValidation, RecordAttendance{})
	core.RegisterCustomTranslation(validate, translator, duplicateTag, duplicateText)
}

func recordStructValidation(sl validator.StructLevel) {
	ra := sl.Current().Interface().(RecordAttendance)
	seen := make(map[string]bool, len(ra.Entries))
	for _, e := range ra.Entries {
		if e.StudentID != "" && seen[e.StudentID] {
			sl.ReportError(ra.Entries, "entries", "Entries", duplicateTag, "")
			return
		}
		seen[e.StudentID] = true
	}
}

package schedule

var dayNames = map[string]string{
	"Mon": "Monday", "Monday": "Monday",
	"Tue": "Tuesday", "Tuesday": "Tuesday",
	"Wed": "Wednesday", "Wednesday": "Wednesday",
	"Thu": "Thursday", "Thursday": "Thursday",
	"Fri": "Friday", "Friday": "Friday",
	"Sat": "Saturday", "Saturday": "Saturday",
	"Sun": "Sunday", "Sunday": "Sunday",
}

// NormalizeDayName maps `Mon` and `Monday` alike to `Monday`. Unknown names are returned as is.
func NormalizeDayName(day string) string {
	if full, ok := dayNames[day]; ok {
		return full
	}
	return day
}

func IsKnownDay(day string) bool {
	_, ok := dayNames[day]
	return ok
}

// Normalize returns s with its day in full form.
func Normalize(s Schedule) Schedule {
	s.Day = NormalizeDayName(s.Day)
	return s
}

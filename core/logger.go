package core

// Logger logs messages with optional args. Args may hold errors, maps of extras, or the
// user.User on whose behalf the work was done.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

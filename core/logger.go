package core

// Logger is any leveled logger that can also report to an external service.
// Implementations may inspect args for known types (eg. a logged-in user)
// to enrich reports.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

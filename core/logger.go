package core

// Logger is any service that can log messages.
// args may carry errors, `map[string]interface{}` fields and the acting Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies who performs an operation (archival, import...).
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func (a Actor) String() string {
	if a.Username != "" {
		return a.Username
	}
	return a.ID
}

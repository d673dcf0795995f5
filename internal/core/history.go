package core

// SessionHistory records tutoring-session start/end times. Calls are
// fire-and-forget from the caller's point of view: errors are logged by the
// call layer, never surfaced to users.
type SessionHistory interface {
	StartSession(sessionID string) error
	EndSession(sessionID string) error
}

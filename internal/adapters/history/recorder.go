// Package history records tutoring-session start and end times. The
// relational store of the full deployment sits behind the same port; this
// recorder keeps the interval in memory and emits it as structured log
// events, which is all the signaling tier itself needs.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Recorder struct {
	mu      sync.Mutex
	started map[string]time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{started: make(map[string]time.Time)}
}

func (r *Recorder) StartSession(sessionID string) error {
	now := time.Now()
	r.mu.Lock()
	r.started[sessionID] = now
	r.mu.Unlock()
	log.Info().Str("module", "history").Str("session", sessionID).Time("started_at", now).Msg("session started")
	return nil
}

func (r *Recorder) EndSession(sessionID string) error {
	now := time.Now()
	r.mu.Lock()
	started, ok := r.started[sessionID]
	delete(r.started, sessionID)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s has no recorded start", sessionID)
	}
	log.Info().Str("module", "history").Str("session", sessionID).Dur("duration", now.Sub(started)).Msg("session ended")
	return nil
}

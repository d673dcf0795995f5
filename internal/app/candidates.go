package app

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/siplo/one2one/internal/domain"
)

// CandidateQueue buffers ICE candidates that arrive before a user's media
// endpoint exists. Per-user FIFO order is preserved; draining removes the
// buffer so no candidate is ever forwarded twice.
type CandidateQueue struct {
	mu      sync.Mutex
	pending map[domain.SessionID][]webrtc.ICECandidateInit
}

func NewCandidateQueue() *CandidateQueue {
	return &CandidateQueue{pending: make(map[domain.SessionID][]webrtc.ICECandidateInit)}
}

func (q *CandidateQueue) Enqueue(id domain.SessionID, cand webrtc.ICECandidateInit) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[id] = append(q.pending[id], cand)
}

// Drain returns all queued candidates for the user in arrival order and
// removes the buffer.
func (q *CandidateQueue) Drain(id domain.SessionID) []webrtc.ICECandidateInit {
	q.mu.Lock()
	defer q.mu.Unlock()
	cands := q.pending[id]
	delete(q.pending, id)
	return cands
}

// Clear discards pending candidates. Called when a call is stopped,
// declined, or re-initiated.
func (q *CandidateQueue) Clear(id domain.SessionID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
}

func (q *CandidateQueue) Len(id domain.SessionID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[id])
}

package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/siplo/one2one/internal/core"
	"github.com/siplo/one2one/internal/domain"
	"github.com/siplo/one2one/internal/protocol"
)

// UserRegistry is the single store of registered users with two lookup
// indices into it. The by-id and by-name maps always reference the same
// session instance; they are never mutated independently.
//
// Register and Unregister are the only operations that emit partnerStatus
// notifications. Callers must not duplicate them.
type UserRegistry struct {
	mu     sync.RWMutex
	byID   map[domain.SessionID]core.UserSession
	byName map[string]core.UserSession
}

func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		byID:   make(map[domain.SessionID]core.UserSession),
		byName: make(map[string]core.UserSession),
	}
}

// Register inserts a new user, evicting any prior holder of the same name
// first: the prior holder's partner is notified offline and the holder is
// removed from both indices before the insert. Name reuse therefore always
// succeeds for the new connection.
func (r *UserRegistry) Register(user *domain.User, conn core.SignalConnection) (core.UserSession, error) {
	if user.Name == "" {
		return nil, core.ErrInvalidArgument
	}

	r.mu.Lock()
	if prev, ok := r.byName[user.Name]; ok {
		r.evictLocked(prev)
	}
	sess := core.NewUserSession(user, conn)
	r.byID[user.ID] = sess
	r.byName[user.Name] = sess
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("sid", string(user.ID)).Str("name", user.Name).Msg("registered user")
	return sess, nil
}

// Unregister notifies the user's partner offline and removes the user from
// both indices. No-op for unknown ids.
func (r *UserRegistry) Unregister(id domain.SessionID) {
	r.mu.Lock()
	sess, ok := r.byID[id]
	if ok {
		r.evictLocked(sess)
	}
	r.mu.Unlock()
	if ok {
		log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("unregistered user")
	}
}

func (r *UserRegistry) evictLocked(sess core.UserSession) {
	meta := sess.Meta()
	if partner, ok := r.byName[meta.PartnerName]; ok {
		sendTo(partner, protocol.NewPartnerStatus(false))
	}
	delete(r.byID, meta.ID)
	if cur, ok := r.byName[meta.Name]; ok && cur == sess {
		delete(r.byName, meta.Name)
	}
}

func (r *UserRegistry) LookupByID(id domain.SessionID) (core.UserSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[id]
	return sess, ok
}

func (r *UserRegistry) LookupByName(name string) (core.UserSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byName[name]
	return sess, ok
}

// SendPartnerStatus tells the user whether its declared partner is
// currently registered.
func (r *UserRegistry) SendPartnerStatus(sess core.UserSession) {
	_, online := r.LookupByName(sess.Meta().PartnerName)
	sendTo(sess, protocol.NewPartnerStatus(online))
}

// NotifyPartner tells the user's declared partner, if registered, that the
// user went online or offline.
func (r *UserRegistry) NotifyPartner(sess core.UserSession, online bool) {
	partner, ok := r.LookupByName(sess.Meta().PartnerName)
	if !ok {
		return
	}
	sendTo(partner, protocol.NewPartnerStatus(online))
}

func sendTo(sess core.UserSession, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("marshal outbound")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("sid", string(sess.Meta().ID)).Msg("drop notification")
	}
}

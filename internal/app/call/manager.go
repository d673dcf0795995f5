// Package call holds the two-party negotiation state machine and the
// media-resource orchestration for one active call.
package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/siplo/one2one/internal/app"
	"github.com/siplo/one2one/internal/core"
	"github.com/siplo/one2one/internal/domain"
	"github.com/siplo/one2one/internal/protocol"
)

// Manager owns every piece of shared call state: the user registry, the
// candidate queues and the map of active pipelines. The pipelines map keys
// BOTH participants' session ids to the same Pipeline instance; there is
// exactly one media resource per call, looked up under two keys.
//
// Each WebSocket connection delivers its messages sequentially, so races
// exist only across connections; mu serializes every read-modify-write on
// the shared maps. Engine calls always run outside the lock.
type Manager struct {
	registry *app.UserRegistry
	queue    *app.CandidateQueue
	prov     *Provisioner
	history  core.SessionHistory

	mu        sync.Mutex
	pipelines map[domain.SessionID]*Pipeline
}

func NewManager(registry *app.UserRegistry, queue *app.CandidateQueue, prov *Provisioner, history core.SessionHistory) *Manager {
	return &Manager{
		registry:  registry,
		queue:     queue,
		prov:      prov,
		history:   history,
		pipelines: make(map[domain.SessionID]*Pipeline),
	}
}

// Register creates the user, evicting any prior holder of the same name.
// The prior holder's call is stopped and it is told to hang up before the
// new user is inserted, so name reuse always succeeds.
func (m *Manager) Register(ctx context.Context, id domain.SessionID, msg protocol.Register, conn core.SignalConnection) {
	user, err := domain.NewUser(id, msg.Name, msg.PartnerName, msg.TutoringSessionID)
	if err != nil {
		sendRaw(conn, protocol.RegisterRejected(err.Error()))
		return
	}

	if prev, ok := m.registry.LookupByName(msg.Name); ok {
		if err := deliver(prev, protocol.NewStopCommunication("self unregistering")); err != nil {
			log.Warn().Err(err).Str("module", "call.manager").Str("name", msg.Name).Msg("notify evicted user")
		}
		m.Stop(ctx, prev.Meta().ID)
		m.registry.Unregister(prev.Meta().ID)
	}

	sess, err := m.registry.Register(user, conn)
	if err != nil {
		sendRaw(conn, protocol.RegisterRejected(err.Error()))
		return
	}

	if err := deliver(sess, protocol.RegisterAccepted()); err != nil {
		log.Warn().Err(err).Str("module", "call.manager").Str("sid", string(id)).Msg("register response")
	}
	m.registry.SendPartnerStatus(sess)
	m.registry.NotifyPartner(sess, true)
}

// Call starts negotiation: stash the offer on the caller, link the peers and
// forward incomingCall to the callee. Any failure resolves to a rejection
// message on the caller's connection.
func (m *Manager) Call(callerID domain.SessionID, msg protocol.Call) {
	m.queue.Clear(callerID)

	caller, ok := m.registry.LookupByID(callerID)
	if !ok {
		log.Warn().Str("module", "call.manager").Str("sid", string(callerID)).Msg("call from unknown session")
		return
	}

	rejectCause := fmt.Errorf("%w: %s", core.ErrNotRegistered, msg.To)
	if callee, ok := m.registry.LookupByName(msg.To); ok {
		m.mu.Lock()
		caller.Meta().SDPOffer = msg.SDPOffer
		caller.Meta().Peer = msg.To
		callee.Meta().Peer = msg.From
		m.mu.Unlock()

		err := deliver(callee, protocol.NewIncomingCall(msg.From))
		if err == nil {
			return
		}
		m.mu.Lock()
		caller.Meta().ClearCall()
		callee.Meta().ClearCall()
		m.mu.Unlock()
		rejectCause = err
	}

	if err := deliver(caller, protocol.CallRejected(rejectCause.Error())); err != nil {
		log.Warn().Err(err).Str("module", "call.manager").Str("sid", string(callerID)).Msg("call rejection")
	}
}

// IncomingCallResponse handles the callee's accept or decline. On accept the
// whole media graph is provisioned and both SDP answers generated, caller
// first; any failure tears down symmetrically: rejection to the caller,
// stopCommunication to the callee, resource released.
func (m *Manager) IncomingCallResponse(ctx context.Context, calleeID domain.SessionID, msg protocol.IncomingCallResponse) {
	callee, ok := m.registry.LookupByID(calleeID)
	if !ok {
		log.Warn().Str("module", "call.manager").Str("sid", string(calleeID)).Msg("response from unknown session")
		return
	}

	caller, callerOK := m.registry.LookupByName(msg.From)
	if msg.From == "" || !callerOK {
		if err := deliver(callee, protocol.NewStopCommunication("unknown from "+msg.From)); err != nil {
			log.Warn().Err(err).Str("module", "call.manager").Str("sid", string(calleeID)).Msg("unknown caller notice")
		}
		return
	}

	if msg.CallResponse != protocol.ResponseAccept {
		m.queue.Clear(caller.Meta().ID)
		m.queue.Clear(calleeID)
		m.mu.Lock()
		caller.Meta().ClearCall()
		callee.Meta().ClearCall()
		m.mu.Unlock()
		if err := deliver(caller, protocol.CallRejected("user declined")); err != nil {
			log.Warn().Err(err).Str("module", "call.manager").Str("sid", string(caller.Meta().ID)).Msg("decline notice")
		}
		return
	}

	pipeline, err := m.prov.Provision(ctx, caller, callee)
	if err != nil {
		m.abortSetup(ctx, nil, caller, callee, err)
		return
	}

	m.mu.Lock()
	m.pipelines[caller.Meta().ID] = pipeline
	m.pipelines[calleeID] = pipeline
	m.mu.Unlock()

	// Candidates that arrived while the graph was being built were queued;
	// feed them now that the endpoints exist.
	m.flushQueued(ctx, pipeline, caller.Meta().ID)
	m.flushQueued(ctx, pipeline, calleeID)

	callerAnswer, err := pipeline.GenerateAnswer(ctx, caller.Meta().ID, caller.Meta().SDPOffer)
	if err != nil {
		m.abortSetup(ctx, pipeline, caller, callee, err)
		return
	}
	calleeAnswer, err := pipeline.GenerateAnswer(ctx, calleeID, msg.SDPOffer)
	if err != nil {
		m.abortSetup(ctx, pipeline, caller, callee, err)
		return
	}

	if err := deliver(callee, protocol.NewStartCommunication(calleeAnswer)); err != nil {
		m.abortSetup(ctx, pipeline, caller, callee, err)
		return
	}
	if err := deliver(caller, protocol.CallAccepted(callerAnswer)); err != nil {
		log.Warn().Err(err).Str("module", "call.manager").Str("sid", string(caller.Meta().ID)).Msg("call accepted notice")
	}
	log.Info().Str("module", "call.manager").Str("caller", caller.Meta().Name).Str("callee", callee.Meta().Name).Msg("call established")
}

func (m *Manager) abortSetup(ctx context.Context, pipeline *Pipeline, caller, callee core.UserSession, cause error) {
	log.Error().Err(cause).Str("module", "call.manager").Str("caller", caller.Meta().Name).Str("callee", callee.Meta().Name).Msg("call setup failed")

	if pipeline != nil {
		pipeline.Release(ctx)
	}
	m.mu.Lock()
	delete(m.pipelines, caller.Meta().ID)
	delete(m.pipelines, callee.Meta().ID)
	caller.Meta().ClearCall()
	callee.Meta().ClearCall()
	m.mu.Unlock()
	m.queue.Clear(caller.Meta().ID)
	m.queue.Clear(callee.Meta().ID)

	if err := deliver(caller, protocol.CallRejected(cause.Error())); err != nil {
		log.Warn().Err(err).Str("module", "call.manager").Msg("setup failure rejection")
	}
	if err := deliver(callee, protocol.NewStopCommunication(cause.Error())); err != nil {
		log.Warn().Err(err).Str("module", "call.manager").Msg("setup failure stop")
	}
}

func (m *Manager) flushQueued(ctx context.Context, pipeline *Pipeline, id domain.SessionID) {
	ep, ok := pipeline.Endpoint(id)
	if !ok {
		return
	}
	for _, cand := range m.queue.Drain(id) {
		if err := ep.AddCandidate(ctx, cand); err != nil {
			log.Error().Err(err).Str("module", "call.manager").Str("sid", string(id)).Msg("flush queued candidate")
		}
	}
}

// OnIceCandidate forwards the candidate to the user's live endpoint when one
// exists and queues it otherwise.
func (m *Manager) OnIceCandidate(ctx context.Context, id domain.SessionID, cand webrtc.ICECandidateInit) {
	m.mu.Lock()
	pipeline := m.pipelines[id]
	m.mu.Unlock()

	if pipeline != nil {
		if ep, ok := pipeline.Endpoint(id); ok {
			if err := ep.AddCandidate(ctx, cand); err != nil {
				log.Error().Err(err).Str("module", "call.manager").Str("sid", string(id)).Msg("add candidate")
			}
			return
		}
	}
	m.queue.Enqueue(id, cand)
}

// Stop tears down the user's call if one exists and is a no-op otherwise.
// It tolerates every partial state: a partner that already unregistered, a
// pipeline that never finished provisioning, a stop before any accept.
func (m *Manager) Stop(ctx context.Context, id domain.SessionID) {
	m.mu.Lock()
	pipeline := m.pipelines[id]
	delete(m.pipelines, id)

	var partner core.UserSession
	if user, ok := m.registry.LookupByID(id); ok {
		if peer := user.Meta().Peer; peer != "" {
			if p, ok := m.registry.LookupByName(peer); ok {
				partner = p
			}
			user.Meta().ClearCall()
		}
	}
	if partner != nil {
		delete(m.pipelines, partner.Meta().ID)
		partner.Meta().ClearCall()
	}
	m.mu.Unlock()

	m.queue.Clear(id)
	if partner != nil {
		m.queue.Clear(partner.Meta().ID)
		if err := deliver(partner, protocol.NewStopCommunication("remote user hanged out")); err != nil {
			log.Warn().Err(err).Str("module", "call.manager").Str("sid", string(partner.Meta().ID)).Msg("stop notice")
		}
	}

	if pipeline == nil {
		return
	}
	pipeline.Release(ctx)
	if ts := pipeline.TutoringSession(); ts != "" && m.history != nil {
		if err := m.history.EndSession(ts); err != nil {
			log.Error().Err(err).Str("module", "call.manager").Str("session", ts).Msg("record session end")
		}
	}
	log.Info().Str("module", "call.manager").Str("sid", string(id)).Msg("call stopped")
}

// PartnerStatus answers an explicit status query from the client.
func (m *Manager) PartnerStatus(id domain.SessionID) {
	if sess, ok := m.registry.LookupByID(id); ok {
		m.registry.SendPartnerStatus(sess)
	}
}

// Disconnect handles a dropped transport: stop the call, then unregister.
func (m *Manager) Disconnect(ctx context.Context, id domain.SessionID) {
	m.Stop(ctx, id)
	m.registry.Unregister(id)
}

func deliver(sess core.UserSession, v any) error {
	frame, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		return fmt.Errorf("%w: %v", core.ErrDeliveryFailed, err)
	}
	return nil
}

func sendRaw(conn core.SignalConnection, v any) {
	frame, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "call.manager").Msg("marshal outbound")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "call.manager").Msg("send outbound")
	}
}

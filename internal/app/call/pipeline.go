package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/siplo/one2one/internal/app"
	"github.com/siplo/one2one/internal/core"
	"github.com/siplo/one2one/internal/domain"
	"github.com/siplo/one2one/internal/protocol"
)

// Provisioner builds the per-call media graph on the engine. The engine
// control session is established lazily on the first call and cached for
// the life of the process.
type Provisioner struct {
	Engine        core.Engine
	EngineAddr    string
	History       core.SessionHistory
	Queue         *app.CandidateQueue
	RecordingsURI string
	// StepTimeout bounds each provisioning step; zero disables the bound.
	StepTimeout time.Duration

	mu      sync.Mutex
	session core.EngineSession
}

// Pipeline is the media resource of one active call: the graph plus one
// endpoint per participant. Both participants' session ids map to the same
// Pipeline instance.
type Pipeline struct {
	mu        sync.Mutex
	graph     core.MediaGraph
	endpoints map[domain.SessionID]core.Endpoint

	// tutoringSession is the id the session start was recorded under;
	// teardown must end the session under the same id.
	tutoringSession string
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

func (p *Provisioner) connect(ctx context.Context) (core.EngineSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return p.session, nil
	}
	sess, err := p.Engine.Connect(ctx, p.EngineAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrEngineUnavailable, p.EngineAddr, err)
	}
	p.session = sess
	log.Info().Str("module", "call.pipeline").Str("addr", p.EngineAddr).Msg("connected to media engine")
	return sess, nil
}

// Provision runs the construction sequence for one call. Steps execute
// strictly in order; the first failure unwinds everything built so far and
// is reported wrapped in ErrProvisioningFailed. The engine connection
// itself failing is reported as ErrEngineUnavailable before any per-call
// resource exists.
func (p *Provisioner) Provision(ctx context.Context, caller, callee core.UserSession) (*Pipeline, error) {
	engine, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}

	var (
		graph      core.MediaGraph
		callerEP   core.Endpoint
		calleeEP   core.Endpoint
		recorder   core.Endpoint
		composite  core.Hub
		callerPort core.Element
		calleePort core.Element
		recPort    core.Element
	)

	// Every step that allocates pushes its release action; failure unwinds
	// in reverse. Graph release cascades to all elements created from it,
	// so later steps rely on the graph entry alone.
	var rollback []func()
	unwind := func() {
		for i := len(rollback) - 1; i >= 0; i-- {
			rollback[i]()
		}
	}

	steps := []step{
		{"create graph", func(ctx context.Context) error {
			g, err := engine.CreateGraph(ctx)
			if err != nil {
				return err
			}
			graph = g
			rollback = append(rollback, func() {
				if err := graph.Release(context.Background()); err != nil {
					log.Error().Err(err).Str("module", "call.pipeline").Msg("rollback graph release")
				}
			})
			return nil
		}},
		{"create caller endpoint", func(ctx context.Context) error {
			ep, err := p.participantEndpoint(ctx, graph, caller)
			callerEP = ep
			return err
		}},
		{"create callee endpoint", func(ctx context.Context) error {
			ep, err := p.participantEndpoint(ctx, graph, callee)
			calleeEP = ep
			return err
		}},
		{"create recorder endpoint", func(ctx context.Context) error {
			rec, err := graph.CreateEndpoint(ctx, core.KindRecorder, map[string]any{
				"mediaProfile": "MP4",
				"uri":          p.recordingURI(),
			})
			recorder = rec
			return err
		}},
		{"create composite", func(ctx context.Context) error {
			hub, err := graph.CreateHub(ctx)
			composite = hub
			return err
		}},
		{"connect caller to composite", func(ctx context.Context) error {
			port, err := composite.CreatePort(ctx)
			if err != nil {
				return err
			}
			callerPort = port
			return callerEP.Connect(ctx, callerPort)
		}},
		{"connect callee to composite", func(ctx context.Context) error {
			port, err := composite.CreatePort(ctx)
			if err != nil {
				return err
			}
			calleePort = port
			return calleeEP.Connect(ctx, calleePort)
		}},
		{"connect composite to recorder", func(ctx context.Context) error {
			port, err := composite.CreatePort(ctx)
			if err != nil {
				return err
			}
			recPort = port
			return recPort.Connect(ctx, recorder)
		}},
		{"cross-connect participants", func(ctx context.Context) error {
			if err := callerEP.Connect(ctx, calleeEP); err != nil {
				return err
			}
			return calleeEP.Connect(ctx, callerEP)
		}},
	}

	for _, s := range steps {
		if err := p.runStep(ctx, s); err != nil {
			unwind()
			return nil, fmt.Errorf("%w: %s: %w", core.ErrProvisioningFailed, s.name, err)
		}
	}

	// Session start is logging only: a history fault must not sabotage a
	// media graph that is already flowing.
	tutoringSession := callee.Meta().TutoringSessionID
	if tutoringSession != "" && p.History != nil {
		if err := p.History.StartSession(tutoringSession); err != nil {
			log.Error().Err(err).Str("module", "call.pipeline").Str("session", tutoringSession).Msg("record session start")
		}
	}

	return &Pipeline{
		graph: graph,
		endpoints: map[domain.SessionID]core.Endpoint{
			caller.Meta().ID: callerEP,
			callee.Meta().ID: calleeEP,
		},
		tutoringSession: tutoringSession,
	}, nil
}

// TutoringSession returns the id the call's session history was opened under,
// empty when the callee carried none.
func (p *Pipeline) TutoringSession() string { return p.tutoringSession }

func (p *Provisioner) runStep(ctx context.Context, s step) error {
	stepCtx := ctx
	cancel := context.CancelFunc(func() {})
	if p.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, p.StepTimeout)
	}
	defer cancel()

	err := s.run(stepCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", core.ErrEngineTimeout, s.name)
	}
	return err
}

// participantEndpoint creates one WebRTC endpoint, feeds it every candidate
// queued before it existed (in arrival order) and wires future
// engine-discovered candidates back to the participant's connection.
func (p *Provisioner) participantEndpoint(ctx context.Context, graph core.MediaGraph, sess core.UserSession) (core.Endpoint, error) {
	ep, err := graph.CreateEndpoint(ctx, core.KindWebRTC, nil)
	if err != nil {
		return nil, err
	}

	sid := sess.Meta().ID
	for _, cand := range p.Queue.Drain(sid) {
		if err := ep.AddCandidate(ctx, cand); err != nil {
			return nil, fmt.Errorf("drain queued candidate: %w", err)
		}
	}

	err = ep.OnCandidate(ctx, func(cand webrtc.ICECandidateInit) {
		if err := deliver(sess, protocol.NewIceCandidate(cand)); err != nil {
			log.Warn().Err(err).Str("module", "call.pipeline").Str("sid", string(sid)).Msg("forward discovered candidate")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe candidates: %w", err)
	}
	return ep, nil
}

func (p *Provisioner) recordingURI() string {
	base := strings.TrimRight(p.RecordingsURI, "/")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("%s/call-%s-%s.mp4", base, stamp, uuid.NewString()[:8])
}

// GenerateAnswer processes the participant's SDP offer on its endpoint and
// then triggers candidate gathering. Gathering is fire-and-forget: its
// failure is logged but never blocks answer delivery.
func (p *Pipeline) GenerateAnswer(ctx context.Context, id domain.SessionID, offer string) (string, error) {
	ep, ok := p.Endpoint(id)
	if !ok {
		return "", fmt.Errorf("no endpoint for session %s", id)
	}
	answer, err := ep.ProcessOffer(ctx, offer)
	if err != nil {
		return "", fmt.Errorf("process offer: %w", err)
	}
	if err := ep.GatherCandidates(ctx); err != nil {
		log.Error().Err(err).Str("module", "call.pipeline").Str("sid", string(id)).Msg("gather candidates")
	}
	return answer, nil
}

func (p *Pipeline) Endpoint(id domain.SessionID) (core.Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[id]
	return ep, ok
}

// Release frees the graph and everything under it. Idempotent: the second
// and later calls are no-ops.
func (p *Pipeline) Release(ctx context.Context) {
	p.mu.Lock()
	graph := p.graph
	p.graph = nil
	p.mu.Unlock()
	if graph == nil {
		return
	}
	if err := graph.Release(ctx); err != nil {
		log.Error().Err(err).Str("module", "call.pipeline").Msg("release graph")
	}
}

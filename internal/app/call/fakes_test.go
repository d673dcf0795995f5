package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/siplo/one2one/internal/core"
)

// fakeConn records every frame delivered to one client.
type fakeConn struct {
	mu       sync.Mutex
	frames   []core.Frame
	failSend bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("transport gone")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

// messages decodes everything the client received, in order.
func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) lastMessage(t *testing.T) map[string]any {
	t.Helper()
	msgs := c.messages(t)
	if len(msgs) == 0 {
		t.Fatalf("no messages received")
	}
	return msgs[len(msgs)-1]
}

func (c *fakeConn) findMessage(t *testing.T, id string) (map[string]any, bool) {
	t.Helper()
	for _, m := range c.messages(t) {
		if m["id"] == id {
			return m, true
		}
	}
	return nil, false
}

// fakeEngine scripts the media server. ops counts every engine operation in
// provisioning order; failAtOp makes that operation (1-based) fail so tests
// can probe rollback at each step.
type fakeEngine struct {
	mu            sync.Mutex
	connectErr    error
	connects      int
	failAtOp      int
	ops           int
	hangSubscribe bool
	session       *fakeSession
}

func (e *fakeEngine) Connect(ctx context.Context, addr string) (core.EngineSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connects++
	if e.connectErr != nil {
		return nil, e.connectErr
	}
	if e.session == nil {
		e.session = &fakeSession{engine: e}
	}
	return e.session, nil
}

func (e *fakeEngine) step() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops++
	if e.failAtOp != 0 && e.ops == e.failAtOp {
		return errors.New("engine op failed")
	}
	return nil
}

type fakeSession struct {
	engine *fakeEngine
	graphs []*fakeGraph
}

func (s *fakeSession) CreateGraph(ctx context.Context) (core.MediaGraph, error) {
	if err := s.engine.step(); err != nil {
		return nil, err
	}
	g := &fakeGraph{engine: s.engine}
	s.graphs = append(s.graphs, g)
	return g, nil
}

func (s *fakeSession) Close() error { return nil }

type fakeGraph struct {
	engine    *fakeEngine
	mu        sync.Mutex
	released  int
	endpoints []*fakeEndpoint
	hubs      []*fakeHub
}

func (g *fakeGraph) CreateEndpoint(ctx context.Context, kind core.EndpointKind, params map[string]any) (core.Endpoint, error) {
	if err := g.engine.step(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ep := &fakeEndpoint{graph: g, kind: kind, params: params}
	g.endpoints = append(g.endpoints, ep)
	return ep, nil
}

func (g *fakeGraph) CreateHub(ctx context.Context) (core.Hub, error) {
	if err := g.engine.step(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	h := &fakeHub{graph: g}
	g.hubs = append(g.hubs, h)
	return h, nil
}

func (g *fakeGraph) Release(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
	return nil
}

func (g *fakeGraph) releaseCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

func (g *fakeGraph) webrtcEndpoints() []*fakeEndpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*fakeEndpoint
	for _, ep := range g.endpoints {
		if ep.kind == core.KindWebRTC {
			out = append(out, ep)
		}
	}
	return out
}

type fakeEndpoint struct {
	graph  *fakeGraph
	kind   core.EndpointKind
	params map[string]any

	mu        sync.Mutex
	added     []webrtc.ICECandidateInit
	connected []core.Element
	onCand    func(webrtc.ICECandidateInit)
	offerErr  error
	gatherErr error
	gathered  int
}

func (e *fakeEndpoint) ID() string { return "ep" }

func (e *fakeEndpoint) Connect(ctx context.Context, sink core.Element) error {
	if err := e.graph.engine.step(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = append(e.connected, sink)
	return nil
}

func (e *fakeEndpoint) ProcessOffer(ctx context.Context, offer string) (string, error) {
	if e.offerErr != nil {
		return "", e.offerErr
	}
	return "answer:" + offer, nil
}

func (e *fakeEndpoint) GatherCandidates(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gathered++
	return e.gatherErr
}

func (e *fakeEndpoint) AddCandidate(ctx context.Context, cand webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.added = append(e.added, cand)
	return nil
}

func (e *fakeEndpoint) OnCandidate(ctx context.Context, fn func(webrtc.ICECandidateInit)) error {
	e.graph.engine.mu.Lock()
	hang := e.graph.engine.hangSubscribe
	e.graph.engine.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCand = fn
	return nil
}

func (e *fakeEndpoint) addedCandidates() []webrtc.ICECandidateInit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), e.added...)
}

type fakeHub struct {
	graph *fakeGraph
	ports int
}

func (h *fakeHub) ID() string { return "hub" }

func (h *fakeHub) Connect(ctx context.Context, sink core.Element) error {
	return h.graph.engine.step()
}

func (h *fakeHub) CreatePort(ctx context.Context) (core.Element, error) {
	if err := h.graph.engine.step(); err != nil {
		return nil, err
	}
	h.ports++
	return &fakePort{hub: h}, nil
}

type fakePort struct {
	hub       *fakeHub
	mu        sync.Mutex
	connected []core.Element
}

func (p *fakePort) ID() string { return "port" }

func (p *fakePort) Connect(ctx context.Context, sink core.Element) error {
	if err := p.hub.graph.engine.step(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = append(p.connected, sink)
	return nil
}

// fakeHistory records session bookkeeping calls.
type fakeHistory struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (h *fakeHistory) StartSession(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, id)
	return nil
}

func (h *fakeHistory) EndSession(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, id)
	return nil
}

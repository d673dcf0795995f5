package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/siplo/one2one/internal/core"
)

// element is any server-side media object addressed by id.
type element struct {
	s  *session
	id string
}

func (e *element) ID() string { return e.id }

func (e *element) Connect(ctx context.Context, sink core.Element) error {
	_, err := e.s.invoke(ctx, e.id, "connect", map[string]any{"sink": sink.ID()})
	return err
}

// graph implements core.MediaGraph over a MediaPipeline object.
type graph struct {
	element
}

func (g *graph) CreateEndpoint(ctx context.Context, kind core.EndpointKind, params map[string]any) (core.Endpoint, error) {
	ctor := map[string]any{"mediaPipeline": g.id}
	for k, v := range params {
		ctor[k] = v
	}
	id, err := g.s.create(ctx, string(kind), ctor)
	if err != nil {
		return nil, err
	}
	return &endpoint{element{s: g.s, id: id}}, nil
}

func (g *graph) CreateHub(ctx context.Context) (core.Hub, error) {
	id, err := g.s.create(ctx, "Composite", map[string]any{"mediaPipeline": g.id})
	if err != nil {
		return nil, err
	}
	return &hub{element{s: g.s, id: id}}, nil
}

func (g *graph) Release(ctx context.Context) error {
	return g.s.release(ctx, g.id)
}

type endpoint struct {
	element
}

func (e *endpoint) ProcessOffer(ctx context.Context, offer string) (string, error) {
	raw, err := e.s.invoke(ctx, e.id, "processOffer", map[string]any{"offer": offer})
	if err != nil {
		return "", err
	}
	var res struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("processOffer: bad result: %w", err)
	}
	return res.Value, nil
}

func (e *endpoint) GatherCandidates(ctx context.Context) error {
	_, err := e.s.invoke(ctx, e.id, "gatherCandidates", nil)
	return err
}

func (e *endpoint) AddCandidate(ctx context.Context, cand webrtc.ICECandidateInit) error {
	payload := map[string]any{"candidate": cand.Candidate}
	if cand.SDPMid != nil {
		payload["sdpMid"] = *cand.SDPMid
	}
	if cand.SDPMLineIndex != nil {
		payload["sdpMLineIndex"] = *cand.SDPMLineIndex
	}
	_, err := e.s.invoke(ctx, e.id, "addIceCandidate", map[string]any{"candidate": payload})
	return err
}

func (e *endpoint) OnCandidate(ctx context.Context, fn func(webrtc.ICECandidateInit)) error {
	return e.s.subscribe(ctx, e.id, "IceCandidateFound", func(data json.RawMessage) {
		var ev struct {
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Error().Err(err).Str("module", "engine").Str("object", e.id).Msg("bad candidate event")
			return
		}
		fn(ev.Candidate)
	})
}

type hub struct {
	element
}

func (h *hub) CreatePort(ctx context.Context) (core.Element, error) {
	id, err := h.s.create(ctx, "HubPort", map[string]any{"hub": h.id})
	if err != nil {
		return nil, err
	}
	return &element{s: h.s, id: id}, nil
}

package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// EndpointKind selects what graph.CreateEndpoint builds on the media server.
type EndpointKind string

const (
	KindWebRTC   EndpointKind = "WebRtcEndpoint"
	KindRecorder EndpointKind = "RecorderEndpoint"
)

// Engine is the external media server. Connect is expected to be called once
// per process and the session cached by the caller.
type Engine interface {
	Connect(ctx context.Context, addr string) (EngineSession, error)
}

// EngineSession is one live control connection to the media server.
type EngineSession interface {
	CreateGraph(ctx context.Context) (MediaGraph, error)
	Close() error
}

// MediaGraph owns all per-call media resources. Release cascades to every
// element created from it.
type MediaGraph interface {
	CreateEndpoint(ctx context.Context, kind EndpointKind, params map[string]any) (Endpoint, error)
	CreateHub(ctx context.Context) (Hub, error)
	Release(ctx context.Context) error
}

// Element is anything media can flow through.
type Element interface {
	ID() string
	Connect(ctx context.Context, sink Element) error
}

// Endpoint is a participant-facing or recording element.
type Endpoint interface {
	Element
	ProcessOffer(ctx context.Context, offer string) (answer string, err error)
	GatherCandidates(ctx context.Context) error
	AddCandidate(ctx context.Context, cand webrtc.ICECandidateInit) error
	// OnCandidate registers the handler for candidates the media server
	// discovers locally. At most one handler per endpoint.
	OnCandidate(ctx context.Context, fn func(webrtc.ICECandidateInit)) error
}

// Hub is a mixing element with on-demand connection points.
type Hub interface {
	Element
	CreatePort(ctx context.Context) (Element, error)
}

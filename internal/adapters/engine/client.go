// Package engine talks the media server's JSON-RPC-over-WebSocket control
// protocol and exposes it through the core media ports. Requests are
// correlated to responses by numeric id; server-pushed events are routed to
// per-object handlers.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/siplo/one2one/internal/core"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Client dials media servers. Implements core.Engine.
type Client struct {
	dialer *websocket.Dialer
}

func New() *Client {
	return &Client{dialer: websocket.DefaultDialer}
}

func (c *Client) Connect(ctx context.Context, addr string) (core.EngineSession, error) {
	ws, _, err := c.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	s := &session{
		conn:     ws,
		pending:  make(map[uint64]chan rpcMessage),
		handlers: make(map[string]func(json.RawMessage)),
	}
	go s.readLoop()
	log.Info().Str("module", "engine").Str("addr", addr).Msg("media engine session open")
	return s, nil
}

// session is one live control connection. Implements core.EngineSession.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	nextID    uint64
	pending   map[uint64]chan rpcMessage
	handlers  map[string]func(json.RawMessage)
	sessionID string
	closed    bool
}

func (s *session) CreateGraph(ctx context.Context) (core.MediaGraph, error) {
	id, err := s.create(ctx, "MediaPipeline", nil)
	if err != nil {
		return nil, err
	}
	return &graph{element{s: s, id: id}}, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *session) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = make(map[string]any)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("engine session closed")
	}
	s.nextID++
	id := s.nextID
	ch := make(chan rpcMessage, 1)
	s.pending[id] = ch
	if s.sessionID != "" {
		params["sessionId"] = s.sessionID
	}
	s.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	s.writeMu.Lock()
	err := s.conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		s.dropPending(id)
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		s.dropPending(id)
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("engine connection lost")
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		var res struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(resp.Result, &res); err == nil && res.SessionID != "" {
			s.mu.Lock()
			s.sessionID = res.SessionID
			s.mu.Unlock()
		}
		return resp.Result, nil
	}
}

func (s *session) dropPending(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *session) create(ctx context.Context, objType string, ctorParams map[string]any) (string, error) {
	params := map[string]any{"type": objType}
	if len(ctorParams) > 0 {
		params["constructorParams"] = ctorParams
	}
	raw, err := s.call(ctx, "create", params)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", objType, err)
	}
	var res struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("create %s: bad result: %w", objType, err)
	}
	return res.Value, nil
}

func (s *session) invoke(ctx context.Context, object, operation string, opParams map[string]any) (json.RawMessage, error) {
	params := map[string]any{"object": object, "operation": operation}
	if len(opParams) > 0 {
		params["operationParams"] = opParams
	}
	raw, err := s.call(ctx, "invoke", params)
	if err != nil {
		return nil, fmt.Errorf("invoke %s on %s: %w", operation, object, err)
	}
	return raw, nil
}

func (s *session) release(ctx context.Context, object string) error {
	if _, err := s.call(ctx, "release", map[string]any{"object": object}); err != nil {
		return fmt.Errorf("release %s: %w", object, err)
	}
	return nil
}

func (s *session) subscribe(ctx context.Context, object, eventType string, handler func(json.RawMessage)) error {
	s.mu.Lock()
	s.handlers[object] = handler
	s.mu.Unlock()
	_, err := s.call(ctx, "subscribe", map[string]any{"object": object, "type": eventType})
	if err != nil {
		return fmt.Errorf("subscribe %s on %s: %w", eventType, object, err)
	}
	return nil
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.failPending()
			log.Info().Err(err).Str("module", "engine").Msg("engine read loop closed")
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("module", "engine").Msg("bad engine frame")
			continue
		}

		if msg.Method == "onEvent" {
			s.dispatchEvent(msg.Params)
			continue
		}
		if msg.ID == nil {
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[*msg.ID]
		delete(s.pending, *msg.ID)
		s.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (s *session) dispatchEvent(params json.RawMessage) {
	var ev struct {
		Value struct {
			Object string          `json:"object"`
			Type   string          `json:"type"`
			Data   json.RawMessage `json:"data"`
		} `json:"value"`
	}
	if err := json.Unmarshal(params, &ev); err != nil {
		log.Error().Err(err).Str("module", "engine").Msg("bad event payload")
		return
	}

	s.mu.Lock()
	handler := s.handlers[ev.Value.Object]
	s.mu.Unlock()
	if handler != nil {
		handler(ev.Value.Data)
	}
}

func (s *session) failPending() {
	s.mu.Lock()
	s.closed = true
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/siplo/one2one/internal/domain"
	"github.com/siplo/one2one/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid domain.SessionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		// A dropped transport is equivalent to stop + unregister.
		ctl.Calls.Disconnect(context.Background(), sid)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(ctx, sid, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, sid domain.SessionID, c *wsConn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad inbound message")
		if errors.Is(err, protocol.ErrUnknownMessage) {
			ctl.sendJSON(c, protocol.NewError("Invalid message "+string(data)))
		} else {
			ctl.sendJSON(c, protocol.NewError(err.Error()))
		}
		return
	}

	switch msg := msg.(type) {
	case protocol.Register:
		ctl.Calls.Register(ctx, sid, msg, c)
	case protocol.Call:
		ctl.Calls.Call(sid, msg)
	case protocol.IncomingCallResponse:
		ctl.Calls.IncomingCallResponse(ctx, sid, msg)
	case protocol.Stop:
		ctl.Calls.Stop(ctx, sid)
	case protocol.OnIceCandidate:
		ctl.Calls.OnIceCandidate(ctx, sid, msg.Candidate)
	case protocol.PartnerStatusQuery:
		ctl.Calls.PartnerStatus(sid)
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := protocol.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

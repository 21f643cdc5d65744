package gateway

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-transcription-service/internal/models"
	"live-transcription-service/internal/schema"
	"live-transcription-service/internal/service/broadcast"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// outbound is a reply queued by the read pump. A join reply carries the
// subscriber handle so the write pump starts forwarding events only after the
// reply has been written.
type outbound struct {
	reply any
	sub   *broadcast.Subscriber
}

// wsConn is one subscriber connection. The write pump is the only writer of
// data frames; close frames go through WriteControl, which may be called
// concurrently.
type wsConn struct {
	ws  *websocket.Conn
	id  string
	gw  *Gateway
	log zerolog.Logger

	control chan outbound
	done    chan struct{}

	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, id string, gw *Gateway, log zerolog.Logger) *wsConn {
	return &wsConn{
		ws:      ws,
		id:      id,
		gw:      gw,
		log:     log,
		control: make(chan outbound, 8),
		done:    make(chan struct{}),
	}
}

// close sends a close frame with code and tears the connection down.
func (c *wsConn) close(code int, text string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *wsConn) readPump() {
	defer c.close(websocket.CloseNormalClosure, "")

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	joined := false
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn().Err(err).Msg("Websocket read error")
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.gw.metrics.RecordGatewayMessage("ignored")
			continue
		}

		msg, err := c.gw.validator.Decode(data)
		if err != nil {
			outcome := "malformed"
			if errors.Is(err, schema.ErrIncompleteMessage) {
				outcome = "incomplete"
			}
			c.gw.metrics.RecordGatewayMessage(outcome)
			c.log.Debug().Err(err).Msg("Ignoring subscriber message")
			continue
		}

		if !msg.IsJoin() {
			c.gw.metrics.RecordGatewayMessage("ignored")
			c.log.Debug().Str("event", msg.Event).Str("topic", msg.Topic).Msg("Ignoring subscriber event")
			continue
		}

		join := c.gw.validator.JoinPayload(*msg)
		out := outbound{reply: models.StatusReply{Status: models.StatusConnected}}
		if !joined {
			out.sub = c.gw.broadcaster.Register(c.id)
			joined = true
		}
		c.gw.metrics.RecordGatewayMessage("join")
		c.log.Info().
			Str("topic", msg.Topic).
			Str("domainAssistantId", join.DomainAssistantID).
			Str("locale", join.Locale).
			Msg("Subscriber joined")

		select {
		case c.control <- out:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close(websocket.CloseNormalClosure, "")
	}()

	var events <-chan models.TranscriptionEvent
	for {
		select {
		case out := <-c.control:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(out.reply); err != nil {
				c.log.Debug().Err(err).Msg("Websocket write error")
				return
			}
			if out.sub != nil {
				events = out.sub.Events()
			}

		case ev, ok := <-events:
			if !ok {
				// evicted or broadcaster closed
				c.close(websocket.CloseGoingAway, "subscription ended")
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(models.NewBroadcastMessage(ev)); err != nil {
				c.log.Debug().Err(err).Msg("Websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

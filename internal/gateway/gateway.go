// Package gateway serves the subscriber websocket endpoint. Subscribers join
// with a {topic, event, payload} message and then receive every broadcast
// transcription event as {message, is_final}.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-transcription-service/internal/observability/logging"
	"live-transcription-service/internal/observability/metrics"
	"live-transcription-service/internal/schema"
	"live-transcription-service/internal/service/broadcast"
)

// Gateway upgrades HTTP requests to subscriber connections.
type Gateway struct {
	broadcaster *broadcast.Broadcaster
	validator   *schema.Validator
	metrics     *metrics.Metrics
	log         zerolog.Logger

	mu       sync.Mutex
	conns    map[*wsConn]struct{}
	shutdown bool
	wg       sync.WaitGroup
}

// New creates a gateway that registers joined subscribers with b.
func New(b *broadcast.Broadcaster, m *metrics.Metrics) *Gateway {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Gateway{
		broadcaster: b,
		validator:   schema.New(),
		metrics:     m,
		log:         logging.WithComponent("gateway"),
		conns:       make(map[*wsConn]struct{}),
	}
}

// ServeHTTP handles one subscriber for the lifetime of its connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if g.shutdown {
		g.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		g.log.Debug().Err(err).Str("remoteAddr", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := newWSConn(ws, id, g, logging.WithSubscriber(id, r.RemoteAddr))

	if !g.track(c) {
		c.close(websocket.CloseGoingAway, "server shutting down")
		return
	}
	g.metrics.RecordGatewayConnection()
	c.log.Info().Msg("Subscriber connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	<-done

	g.broadcaster.Unregister(id)
	g.untrack(c)
	c.log.Info().Msg("Subscriber disconnected")
}

func (g *Gateway) track(c *wsConn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.shutdown {
		return false
	}
	g.conns[c] = struct{}{}
	return true
}

func (g *Gateway) untrack(c *wsConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c)
}

// Len returns the number of open websocket connections, joined or not.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown sends a close frame to every subscriber and waits for their
// handlers to return or ctx to expire.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.shutdown = true
	conns := make([]*wsConn, 0, len(g.conns))
	for c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	g.log.Info().Int("subscribers", len(conns)).Msg("Closing subscriber connections")
	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

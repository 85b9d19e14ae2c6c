package wsmux

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/scriptroom/storyengine/internal/bus"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/observability"
)

// clientOrigin renders a client id as the origin_client string the CRDT
// manager stamps broadcasts with (spec §4.1 uses string client ids;
// "0"/crdt.ServerOrigin is reserved for server/AI-originated writes).
func clientOrigin(clientID uint64) string {
	return fmt.Sprintf("%d", clientID)
}

// connectedFrame is the first text frame sent to every new client.
type connectedFrame struct {
	Type     string `json:"type"`
	ClientID uint64 `json:"client_id"`
}

type outboundFrame struct {
	binary bool
	data   []byte
}

// connection is one client's send-side state: a bounded outbound queue, a
// websocket.Conn, and a close-once guard, in the idiom of the teacher's
// Connection (send channel, closed channel, sync.Once close).
type connection struct {
	id     uint64
	ws     *websocket.Conn
	cfg    Config
	logger observability.Logger

	send      chan outboundFrame
	closed    chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
}

func newConnection(id uint64, ws *websocket.Conn, cfg Config, logger observability.Logger) *connection {
	depth := cfg.SendBufferDepth
	if depth <= 0 {
		depth = 64
	}
	return &connection{
		id:           id,
		ws:           ws,
		cfg:          cfg,
		logger:       logger,
		send:         make(chan outboundFrame, depth),
		closed:       make(chan struct{}),
		writeTimeout: 10 * time.Second,
	}
}

func (c *connection) sendConnected(ctx context.Context) error {
	data, err := json.Marshal(connectedFrame{Type: "connected", ClientID: c.id})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.ws.Write(writeCtx, websocket.MessageText, data)
}

// enqueueBinary queues a CRDT update frame, reporting false (without
// blocking) if the client's send buffer is full — the caller treats that
// as lag requiring a full resync (spec §5).
func (c *connection) enqueueBinary(data []byte) bool {
	select {
	case c.send <- outboundFrame{binary: true, data: data}:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// enqueueEvent queues a structural event as a JSON text frame. Unlike
// enqueueBinary, a full buffer here just drops the event silently —
// structural events are explicitly advisory (spec §5) and clients
// re-fetch via REST regardless.
func (c *connection) enqueueEvent(e bus.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		c.logger.Warn("failed to encode structural event", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case c.send <- outboundFrame{binary: false, data: data}:
	case <-c.closed:
	default:
		c.logger.Debug("dropping structural event for lagging client send buffer", map[string]interface{}{"client_id": c.id})
	}
}

// writePump drains the send queue onto the socket until the connection
// closes.
func (c *connection) writePump(ctx context.Context) {
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			msgType := websocket.MessageText
			if frame.binary {
				msgType = websocket.MessageBinary
			}
			err := c.ws.Write(writeCtx, msgType, frame.data)
			cancel()
			if err != nil {
				c.logger.Warn("websocket write failed", map[string]interface{}{"client_id": c.id, "error": err.Error()})
				return
			}
		}
	}
}

// readPump reads client frames until the socket closes or ctx is
// cancelled: binary frames are CRDT updates applied via ApplyUpdate; text
// frames are reserved for future presence/awareness and are accepted and
// ignored (spec §6). An invalid update is logged and does not terminate
// the session.
func (c *connection) readPump(ctx context.Context, mgr *crdt.Manager, logger observability.Logger) error {
	limiter := rate.NewLimiter(rate.Limit(c.cfg.RateLimitPerSec), c.cfg.RateLimitBurst)
	origin := clientOrigin(c.id)

	for {
		msgType, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.Allow() {
			logger.Warn("client exceeded rate limit, dropping frame", map[string]interface{}{"client_id": c.id})
			continue
		}

		switch msgType {
		case websocket.MessageBinary:
			if err := mgr.ApplyUpdate(ctx, origin, data); err != nil {
				logger.Warn("invalid crdt update from client", map[string]interface{}{"client_id": c.id, "error": err.Error()})
			}
		case websocket.MessageText:
			// Reserved for future awareness/presence frames; accepted and
			// ignored per spec §6.
		}
	}
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close(websocket.StatusNormalClosure, "connection closed")
	})
}

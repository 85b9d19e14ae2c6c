// Package wsmux is the WebSocket multiplex (spec §2 item 5, §6): it
// assigns each client a monotonic id, performs the initial CRDT sync,
// forwards structural events as text frames and CRDT updates as binary
// frames (suppressing the echo back to an update's origin client), and
// re-syncs a lagging client with a full state snapshot. Grounded on the
// teacher's internal/api/websocket/{server.go,connection.go} connection
// registry and send-channel/close-once idiom.
package wsmux

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/scriptroom/storyengine/internal/bus"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/observability"
)

// Config bounds the multiplex's per-connection behavior (spec §5: bounded
// everywhere).
type Config struct {
	MaxMessageBytes int64
	SendBufferDepth int
	RateLimitPerSec float64
	RateLimitBurst  int
}

// Multiplex owns the client registry and fans out CRDT updates and
// structural events to every connected client.
type Multiplex struct {
	crdtMgr *crdt.Manager
	bus     *bus.Bus
	cfg     Config
	logger  observability.Logger
	metrics observability.MetricsClient

	nextClientID uint64

	mu    sync.RWMutex
	conns map[uint64]*connection
}

// New wires a multiplex around an already-running CRDT manager and bus.
func New(crdtMgr *crdt.Manager, b *bus.Bus, cfg Config, logger observability.Logger, metrics observability.MetricsClient) *Multiplex {
	return &Multiplex{
		crdtMgr: crdtMgr,
		bus:     b,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		conns:   make(map[uint64]*connection),
	}
}

// Serve runs one client's full connection lifecycle: assigns a client id,
// sends the "connected" handshake and initial full CRDT sync, then pumps
// reads and writes until ctx is cancelled or the socket closes. It blocks
// until the connection ends.
func (m *Multiplex) Serve(ctx context.Context, ws *websocket.Conn) error {
	clientID := atomic.AddUint64(&m.nextClientID, 1)
	log := m.logger.With(map[string]interface{}{"client_id": clientID})

	conn := newConnection(clientID, ws, m.cfg, log)

	m.mu.Lock()
	m.conns[clientID] = conn
	activeCount := len(m.conns)
	m.mu.Unlock()
	m.metrics.SetGauge("wsmux_active_connections", float64(activeCount), nil)

	defer func() {
		m.mu.Lock()
		delete(m.conns, clientID)
		remaining := len(m.conns)
		m.mu.Unlock()
		m.metrics.SetGauge("wsmux_active_connections", float64(remaining), nil)
		conn.close()
	}()

	if err := conn.sendConnected(ctx); err != nil {
		return err
	}
	if err := m.sendFullSync(ctx, conn); err != nil {
		return err
	}

	updateSubID, updates := m.crdtMgr.Subscribe(m.cfg.SendBufferDepth)
	defer m.crdtMgr.Unsubscribe(updateSubID)

	eventSubID, events := m.bus.Subscribe(m.cfg.SendBufferDepth)
	defer m.bus.Unsubscribe(eventSubID)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.relayUpdates(ctx, conn, clientID, updates) }()
	go func() { defer wg.Done(); m.relayEvents(ctx, conn, events) }()
	go func() { defer wg.Done(); conn.writePump(ctx) }()

	err := conn.readPump(ctx, m.crdtMgr, log)
	conn.close()
	// The relay goroutines range over the subscription channels, which only
	// Unsubscribe closes, so unsubscribe before waiting for them.
	m.crdtMgr.Unsubscribe(updateSubID)
	m.bus.Unsubscribe(eventSubID)
	wg.Wait()
	return err
}

// sendFullSync sends the binary frame containing the full CRDT state,
// encoded as a diff from an empty state vector (spec §6's connect
// handshake and re-sync-on-lag behavior share this same payload).
func (m *Multiplex) sendFullSync(ctx context.Context, conn *connection) error {
	data, err := m.crdtMgr.Serialize(ctx)
	if err != nil {
		return err
	}
	if !conn.enqueueBinary(data) {
		return errors.New("full sync not queued: client send buffer full or connection closed")
	}
	return nil
}

// relayUpdates forwards CRDT update broadcasts as binary frames, never
// echoing a broadcast back to the client that caused it (spec §6). On a
// dropped/lagging send, it re-syncs the client from scratch instead of
// leaving it out of date (spec §5's lossy-broadcast recovery).
func (m *Multiplex) relayUpdates(ctx context.Context, conn *connection, selfClientID uint64, updates <-chan crdt.UpdateBroadcast) {
	selfOrigin := clientOrigin(selfClientID)
	for u := range updates {
		if u.OriginClient == selfOrigin {
			continue
		}
		if !conn.enqueueBinary(u.Data) {
			if err := m.sendFullSync(ctx, conn); err != nil {
				m.logger.Warn("resync after lag failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// relayEvents forwards structural events as JSON text frames.
func (m *Multiplex) relayEvents(_ context.Context, conn *connection, events <-chan bus.Event) {
	for e := range events {
		conn.enqueueEvent(e)
	}
}


package crdt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/observability"
)

// ServerOrigin is the origin_client value stamping every update the server
// itself produces directly (WriteNodeContent, FlushTokens, RewriteRegion),
// as opposed to updates decoded from a specific WebSocket client via
// ApplyUpdate.
const ServerOrigin = "0"

// UpdateBroadcast is one CRDT update tagged with the client that caused it
// (spec §4.1's update broadcast stream).
type UpdateBroadcast struct {
	OriginClient string
	Data         []byte
}

// ChangeNotification reports that a single (node, field)'s plain-text
// projection changed, for the in-process change-notification stream.
type ChangeNotification struct {
	NodeID string
	Field  Field
	Author string
}

// Manager is the sole owner of a Doc. All reads and writes pass through
// its Run loop, which serializes commands from a bounded queue exactly as
// the teacher's daemon loops (e.g. the websocket server's per-connection
// goroutine) serialize their own inbound channel — one command runs to
// completion before the next begins.
type Manager struct {
	cmds   chan any
	logger observability.Logger

	doc           *Doc
	snapshotCache *lru.Cache[fieldKey, string]

	subsMu  sync.Mutex
	subs    map[uint64]chan UpdateBroadcast
	nextSub uint64

	changes chan ChangeNotification

	droppedChanges  atomic.Int64
	droppedUpdates  atomic.Int64
}

// NewManager constructs a Manager. queueDepth bounds the command queue
// (spec default 256); changeDepth bounds the change-notification channel;
// snapshotCacheSize bounds the pre-image cache used for change detection.
func NewManager(queueDepth, changeDepth, snapshotCacheSize int, logger observability.Logger) (*Manager, error) {
	cache, err := lru.New[fieldKey, string](snapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &Manager{
		cmds:          make(chan any, queueDepth),
		logger:        logger,
		doc:           NewDoc(),
		snapshotCache: cache,
		subs:          make(map[uint64]chan UpdateBroadcast),
		changes:       make(chan ChangeNotification, changeDepth),
	}, nil
}

// Subscribe registers a new update-broadcast listener with the given
// buffer depth and returns its id (for Unsubscribe) and receive channel.
func (m *Manager) Subscribe(bufferDepth int) (uint64, <-chan UpdateBroadcast) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	m.nextSub++
	id := m.nextSub
	ch := make(chan UpdateBroadcast, bufferDepth)
	m.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener registered via Subscribe.
func (m *Manager) Unsubscribe(id uint64) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
}

// Changes returns the change-notification stream. Downstream consumers
// (internal/bus) must tolerate drops: a full channel means the
// notification is silently discarded (spec §4.1 change detection), so
// any reactor must periodically re-scan via ReadAllNodes rather than rely
// on every edit producing a notification.
func (m *Manager) Changes() <-chan ChangeNotification { return m.changes }

func (m *Manager) broadcast(u UpdateBroadcast) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- u:
		default:
			m.droppedUpdates.Add(1)
			m.logger.Warn("dropped update broadcast to lagging subscriber", nil)
		}
	}
}

func (m *Manager) notifyChange(n ChangeNotification) {
	select {
	case m.changes <- n:
	default:
		m.droppedChanges.Add(1)
		m.logger.Debug("dropped change notification, channel full", map[string]interface{}{
			"node_id": n.NodeID, "field": n.Field.String(),
		})
	}
}

// --- command/reply shapes ---

type cmdApplyUpdate struct {
	ClientID string
	Data     []byte
	Reply    chan error
}

type cmdGetStateVector struct{ Reply chan StateVector }

type cmdGetDiff struct {
	Remote StateVector
	Reply  chan []byte
}

type cmdWriteNodeContent struct {
	NodeID string
	Field  Field
	Text   string
	Author string
	Reply  chan struct{}
}

type cmdReadNodeContent struct {
	NodeID string
	Reply  chan NodeSnapshot
}

type cmdReadAllNodes struct{ Reply chan map[string]NodeSnapshot }

type cmdEnsureNode struct {
	NodeID string
	Reply  chan struct{}
}

type cmdRemoveNode struct {
	NodeID string
	Reply  chan struct{}
}

type cmdFlushTokens struct {
	NodeID string
	Tokens string
	Author string
	Reply  chan struct{}
}

type cmdRewriteRegion struct {
	NodeID   string
	Field    Field
	Start    int
	End      int
	NewText  string
	Author   string
	Reply    chan struct{}
}

type cmdSerialize struct{ Reply chan []byte }

type cmdLoad struct {
	Data  []byte
	Reply chan error
}

type cmdShutdown struct{ Done chan struct{} }

// Run processes commands until Shutdown is submitted or ctx is cancelled.
// It must run on its own goroutine; every exported method is safe to call
// concurrently because they only ever enqueue onto m.cmds.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-m.cmds:
			if m.dispatch(raw) {
				return
			}
		}
	}
}

// dispatch executes one command and reports whether the loop should exit.
func (m *Manager) dispatch(raw any) (shutdown bool) {
	switch cmd := raw.(type) {
	case cmdApplyUpdate:
		cmd.Reply <- m.applyUpdate(cmd.ClientID, cmd.Data)

	case cmdGetStateVector:
		cmd.Reply <- m.doc.StateVector()

	case cmdGetDiff:
		data, err := EncodeBytes(m.doc.Encode(cmd.Remote))
		if err != nil {
			m.logger.Error("encode diff failed", map[string]interface{}{"error": err.Error()})
			cmd.Reply <- nil
			return false
		}
		cmd.Reply <- data

	case cmdWriteNodeContent:
		m.doc.WriteNodeContent(cmd.NodeID, cmd.Field, cmd.Text, cmd.Author)
		m.snapshotCache.Remove(fieldKey{NodeID: cmd.NodeID, Field: cmd.Field})
		m.broadcastFullState(ServerOrigin)
		cmd.Reply <- struct{}{}

	case cmdReadNodeContent:
		cmd.Reply <- m.doc.ReadNodeContent(cmd.NodeID)

	case cmdReadAllNodes:
		cmd.Reply <- m.doc.ReadAllNodes()

	case cmdEnsureNode:
		m.doc.EnsureNode(cmd.NodeID)
		cmd.Reply <- struct{}{}

	case cmdRemoveNode:
		m.doc.RemoveNode(cmd.NodeID)
		m.snapshotCache.Remove(fieldKey{NodeID: cmd.NodeID, Field: FieldNotes})
		m.snapshotCache.Remove(fieldKey{NodeID: cmd.NodeID, Field: FieldContent})
		cmd.Reply <- struct{}{}

	case cmdFlushTokens:
		m.doc.FlushTokens(cmd.NodeID, cmd.Tokens, cmd.Author)
		m.snapshotCache.Remove(fieldKey{NodeID: cmd.NodeID, Field: FieldContent})
		m.broadcastFullState(ServerOrigin)
		cmd.Reply <- struct{}{}

	case cmdRewriteRegion:
		if !m.doc.RewriteRegion(cmd.NodeID, cmd.Field, cmd.Start, cmd.End, cmd.NewText, cmd.Author) {
			m.logger.Warn("RewriteRegion no-op after clamping", map[string]interface{}{
				"node_id": cmd.NodeID, "field": cmd.Field.String(), "start": cmd.Start, "end": cmd.End,
			})
		} else {
			m.snapshotCache.Remove(fieldKey{NodeID: cmd.NodeID, Field: cmd.Field})
			m.broadcastFullState(ServerOrigin)
		}
		cmd.Reply <- struct{}{}

	case cmdSerialize:
		data, err := EncodeBytes(m.doc.Encode(StateVector{}))
		if err != nil {
			m.logger.Error("serialize failed", map[string]interface{}{"error": err.Error()})
			cmd.Reply <- nil
			return false
		}
		cmd.Reply <- data

	case cmdLoad:
		u, err := DecodeBytes(cmd.Data)
		if err != nil {
			cmd.Reply <- apierr.Wrap(apierr.Serialization, "decode saved CRDT state", err)
			return false
		}
		m.doc.Apply(u)
		cmd.Reply <- nil

	case cmdShutdown:
		close(cmd.Done)
		return true
	}
	return false
}

// applyUpdate decodes and applies a client update, diffing each touched
// (node, field) against the cached pre-image and emitting one change
// notification per field whose plain text actually changed (spec §4.1
// ApplyUpdate / change detection). Only fields touched by the update's
// ops are compared — an untouched field cannot have changed, so this is
// equivalent to, but cheaper than, re-snapshotting every node on every
// command. A field with no cached pre-image (never seen, evicted, or
// invalidated by a server-side write) is compared against the empty string.
func (m *Manager) applyUpdate(clientID string, data []byte) error {
	u, err := DecodeBytes(data)
	if err != nil {
		m.logger.Warn("failed to decode CRDT update", map[string]interface{}{"client_id": clientID, "error": err.Error()})
		return apierr.Wrap(apierr.Serialization, "decode CRDT update", err)
	}

	touched := make(map[fieldKey]bool)
	for _, o := range u.Ops {
		touched[fieldKey{NodeID: o.NodeID, Field: o.Field}] = true
	}

	m.doc.Apply(u)

	author := "human:" + clientID
	for key := range touched {
		if key.Field != FieldNotes && key.Field != FieldContent {
			continue
		}
		newText := m.doc.seq(key).plainText()
		old, _ := m.snapshotCache.Get(key)
		if old != newText {
			m.snapshotCache.Add(key, newText)
			m.notifyChange(ChangeNotification{NodeID: key.NodeID, Field: key.Field, Author: author})
		}
	}

	m.broadcast(UpdateBroadcast{OriginClient: clientID, Data: data})
	return nil
}

// broadcastFullState re-serializes the whole doc and broadcasts it tagged
// with origin. Commands that mutate the doc directly (as opposed to
// ApplyUpdate, which already has encoded bytes to rebroadcast) use this;
// it is simpler than tracking exactly which ops a direct mutation
// produced, at the cost of broadcasting more bytes than strictly changed.
func (m *Manager) broadcastFullState(origin string) {
	data, err := EncodeBytes(m.doc.Encode(StateVector{}))
	if err != nil {
		m.logger.Error("encode broadcast failed", map[string]interface{}{"error": err.Error()})
		return
	}
	m.broadcast(UpdateBroadcast{OriginClient: origin, Data: data})
}

// --- public, blocking command submission API ---

func (m *Manager) ApplyUpdate(ctx context.Context, clientID string, data []byte) error {
	reply := make(chan error, 1)
	if err := m.send(ctx, cmdApplyUpdate{ClientID: clientID, Data: data, Reply: reply}); err != nil {
		return err
	}
	return recvErr(ctx, reply)
}

func (m *Manager) GetStateVector(ctx context.Context) (StateVector, error) {
	reply := make(chan StateVector, 1)
	if err := m.send(ctx, cmdGetStateVector{Reply: reply}); err != nil {
		return nil, err
	}
	return recvGeneric(ctx, reply)
}

func (m *Manager) GetDiff(ctx context.Context, remote StateVector) ([]byte, error) {
	reply := make(chan []byte, 1)
	if err := m.send(ctx, cmdGetDiff{Remote: remote, Reply: reply}); err != nil {
		return nil, err
	}
	return recvGeneric(ctx, reply)
}

func (m *Manager) WriteNodeContent(ctx context.Context, nodeID string, field Field, text, author string) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdWriteNodeContent{NodeID: nodeID, Field: field, Text: text, Author: author, Reply: reply}); err != nil {
		return err
	}
	_, err := recvGeneric(ctx, reply)
	return err
}

func (m *Manager) ReadNodeContent(ctx context.Context, nodeID string) (NodeSnapshot, error) {
	reply := make(chan NodeSnapshot, 1)
	if err := m.send(ctx, cmdReadNodeContent{NodeID: nodeID, Reply: reply}); err != nil {
		return NodeSnapshot{}, err
	}
	return recvGeneric(ctx, reply)
}

func (m *Manager) ReadAllNodes(ctx context.Context) (map[string]NodeSnapshot, error) {
	reply := make(chan map[string]NodeSnapshot, 1)
	if err := m.send(ctx, cmdReadAllNodes{Reply: reply}); err != nil {
		return nil, err
	}
	return recvGeneric(ctx, reply)
}

func (m *Manager) EnsureNode(ctx context.Context, nodeID string) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdEnsureNode{NodeID: nodeID, Reply: reply}); err != nil {
		return err
	}
	_, err := recvGeneric(ctx, reply)
	return err
}

func (m *Manager) RemoveNode(ctx context.Context, nodeID string) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdRemoveNode{NodeID: nodeID, Reply: reply}); err != nil {
		return err
	}
	_, err := recvGeneric(ctx, reply)
	return err
}

func (m *Manager) FlushTokens(ctx context.Context, nodeID, tokens, author string) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdFlushTokens{NodeID: nodeID, Tokens: tokens, Author: author, Reply: reply}); err != nil {
		return err
	}
	_, err := recvGeneric(ctx, reply)
	return err
}

func (m *Manager) RewriteRegion(ctx context.Context, nodeID string, field Field, start, end int, newText, author string) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdRewriteRegion{NodeID: nodeID, Field: field, Start: start, End: end, NewText: newText, Author: author, Reply: reply}); err != nil {
		return err
	}
	_, err := recvGeneric(ctx, reply)
	return err
}

func (m *Manager) Serialize(ctx context.Context) ([]byte, error) {
	reply := make(chan []byte, 1)
	if err := m.send(ctx, cmdSerialize{Reply: reply}); err != nil {
		return nil, err
	}
	return recvGeneric(ctx, reply)
}

func (m *Manager) Load(ctx context.Context, data []byte) error {
	reply := make(chan error, 1)
	if err := m.send(ctx, cmdLoad{Data: data, Reply: reply}); err != nil {
		return err
	}
	return recvErr(ctx, reply)
}

// Shutdown enqueues the shutdown command and waits for the Run loop to
// acknowledge it.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if err := m.send(ctx, cmdShutdown{Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) send(ctx context.Context, cmd any) error {
	select {
	case m.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return apierr.Wrap(apierr.ChannelClosed, "CRDT manager command queue", ctx.Err())
	}
}

// recvErr waits on a reply channel that itself carries an error (the
// command's own result), distinguishing that from a transport-level
// failure (timeout/cancellation/closed channel) by flattening both into a
// single returned error.
func recvErr(ctx context.Context, ch chan error) error {
	v, err := recvGeneric(ctx, ch)
	if err != nil {
		return err
	}
	return v
}

func recvGeneric[T any](ctx context.Context, ch chan T) (T, error) {
	var zero T
	select {
	case v, ok := <-ch:
		if !ok {
			return zero, apierr.New(apierr.ChannelClosed, "CRDT manager reply channel closed")
		}
		return v, nil
	case <-ctx.Done():
		return zero, apierr.Wrap(apierr.ChannelClosed, "CRDT manager reply", ctx.Err())
	}
}

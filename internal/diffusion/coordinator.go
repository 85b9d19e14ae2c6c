package diffusion

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/observability"
)

// coordinatorState names the position in the diagram from spec §4.3. The
// coordinator records it as it moves between states, but nothing reads it:
// Status reports the engine's own load state, and dispatch itself is driven
// by which fields are set (engine nil/loaded), not by this enum.
type coordinatorState int

const (
	stateStarting coordinatorState = iota
	stateIdle
	stateIdleWithModel
	stateInfilling
	stateUnavailable
)

// EngineFactory constructs the Engine from inside the coordinator's own
// goroutine, mirroring the Rust original's Python-interpreter-per-thread
// pattern: construction itself may fail (missing runtime, bad environment),
// in which case the coordinator falls into Unavailable rather than Idle.
type EngineFactory func() (Engine, error)

// Coordinator runs a single Engine on a dedicated goroutine pinned to one
// OS thread with runtime.LockOSThread, processing commands from a bounded
// queue one at a time — the same single-owner-task shape as crdt.Manager,
// generalized to a worker whose calls may block the underlying thread
// indefinitely.
type Coordinator struct {
	cmds    chan any
	logger  observability.Logger
	factory EngineFactory

	state coordinatorState

	subsMu  sync.Mutex
	subs    map[uint64]chan Progress
	nextSub uint64
}

// NewCoordinator creates a Coordinator with the given command queue and
// progress broadcast depths (spec §4.3: 16 and 64) and a default simulated
// engine. Run must be called (typically via `go c.Run(ctx)`) before any
// command is issued.
func NewCoordinator(cmdQueueDepth, progressBroadcastDepth int, logger observability.Logger) *Coordinator {
	return NewCoordinatorWithEngine(cmdQueueDepth, progressBroadcastDepth, logger, func() (Engine, error) {
		return newSimulatedEngine(), nil
	})
}

// NewCoordinatorWithEngine is NewCoordinator with an explicit engine
// factory, for tests and for wiring a real inference backend in.
func NewCoordinatorWithEngine(cmdQueueDepth, progressBroadcastDepth int, logger observability.Logger, factory EngineFactory) *Coordinator {
	return &Coordinator{
		cmds:    make(chan any, cmdQueueDepth),
		logger:  logger,
		factory: factory,
		subs:    make(map[uint64]chan Progress),
	}
}

// Subscribe registers a listener for progress broadcasts and returns its id
// (for Unsubscribe) and receive-only channel.
func (c *Coordinator) Subscribe(bufferDepth int) (uint64, <-chan Progress) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Progress, bufferDepth)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a previously registered listener.
func (c *Coordinator) Unsubscribe(id uint64) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Coordinator) broadcast(p Progress) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- p:
		default:
			c.logger.Warn("dropping diffusion progress update for lagging subscriber", map[string]interface{}{"subscriber": id})
		}
	}
}

// Run pins the calling goroutine to its OS thread — the engine's model
// state is not safe to move across threads and an inference step may hold
// interpreter/GPU-level locks for long intervals, which would starve a
// cooperative scheduler sharing the thread. Run blocks until ctx is
// cancelled or a Shutdown command is processed.
func (c *Coordinator) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	c.state = stateStarting
	engine, err := c.factory()
	if err != nil {
		c.logger.Error("diffusion engine initialization failed", map[string]interface{}{"error": err.Error()})
		c.state = stateUnavailable
		c.drainWithError(ctx, fmt.Errorf("diffusion engine unavailable: %w", err))
		return
	}

	c.state = stateIdle
	c.logger.Info("diffusion coordinator started", nil)

	rt := &runtimeState{device: "cpu"}
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-c.cmds:
			if c.dispatch(engine, rt, raw) {
				return
			}
		}
	}
}

// runtimeState is local to the Run goroutine: which model path/device is
// currently loaded, tracked separately from the engine because Status
// reports must survive an engine that only exposes IsLoaded().
type runtimeState struct {
	modelPath string
	device    string
}

// drainWithError replies to every command received with a clear failure,
// so callers blocked on a reply channel never hang — the Unavailable
// branch of spec §4.3's state diagram.
func (c *Coordinator) drainWithError(ctx context.Context, initErr error) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-c.cmds:
			switch cmd := raw.(type) {
			case cmdLoadModel:
				cmd.Reply <- apierr.Wrap(apierr.InfillFailed, "diffusion engine unavailable", initErr)
			case cmdUnloadModel:
				cmd.Reply <- apierr.Wrap(apierr.InfillFailed, "diffusion engine unavailable", initErr)
			case cmdInfill:
				cmd.Reply <- infillResult{Err: apierr.Wrap(apierr.InfillFailed, "diffusion engine unavailable", initErr)}
			case cmdStatus:
				cmd.Reply <- Status{ModelLoaded: false, Device: "none"}
			case cmdShutdown:
				close(cmd.Done)
				return
			}
		}
	}
}

func (c *Coordinator) dispatch(engine Engine, rt *runtimeState, raw any) (shutdown bool) {
	switch cmd := raw.(type) {
	case cmdLoadModel:
		err := engine.LoadModel(cmd.Path, cmd.Device)
		if err != nil {
			cmd.Reply <- apierr.Wrap(apierr.InvalidOperation, "load model failed", err)
		} else {
			c.state = stateIdleWithModel
			rt.modelPath = cmd.Path
			rt.device = cmd.Device
			c.logger.Info("diffusion model loaded", map[string]interface{}{"model_path": cmd.Path, "device": cmd.Device})
			cmd.Reply <- nil
		}

	case cmdUnloadModel:
		err := engine.UnloadModel()
		if err != nil {
			cmd.Reply <- apierr.Wrap(apierr.InvalidOperation, "unload model failed", err)
		} else {
			c.state = stateIdle
			rt.modelPath = ""
			c.logger.Info("diffusion model unloaded", nil)
			cmd.Reply <- nil
		}

	case cmdInfill:
		if !engine.IsLoaded() {
			cmd.Reply <- infillResult{Err: apierr.New(apierr.ModelNotLoaded, "model not loaded — call the load endpoint first")}
			return false
		}
		c.state = stateInfilling
		text, err := engine.Infill(cmd.Req, func(p Progress) { c.broadcast(p) })
		if err != nil {
			c.state = stateIdleWithModel
			cmd.Reply <- infillResult{Err: apierr.Wrap(apierr.InfillFailed, "infill failed", err)}
			return false
		}
		c.state = stateIdleWithModel
		cmd.Reply <- infillResult{Text: text}

	case cmdStatus:
		cmd.Reply <- Status{ModelLoaded: engine.IsLoaded(), ModelPath: rt.modelPath, Device: rt.device}

	case cmdShutdown:
		_ = engine.UnloadModel()
		c.logger.Info("diffusion coordinator shutting down", nil)
		close(cmd.Done)
		return true
	}
	return false
}

type cmdLoadModel struct {
	Path, Device string
	Reply        chan error
}

type cmdUnloadModel struct {
	Reply chan error
}

type infillResult struct {
	Text string
	Err  error
}

type cmdInfill struct {
	Req   InfillRequest
	Reply chan infillResult
}

type cmdStatus struct {
	Reply chan Status
}

type cmdShutdown struct {
	Done chan struct{}
}

func (c *Coordinator) send(ctx context.Context, cmd any) error {
	select {
	case c.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return apierr.Wrap(apierr.ChannelClosed, "diffusion coordinator command send cancelled", ctx.Err())
	}
}

// LoadModel loads model weights for device ("cuda" or "cpu").
func (c *Coordinator) LoadModel(ctx context.Context, path, device string) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, cmdLoadModel{Path: path, Device: device, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return apierr.Wrap(apierr.ChannelClosed, "diffusion coordinator reply wait cancelled", ctx.Err())
	}
}

// UnloadModel releases the loaded model, symmetric with LoadModel.
func (c *Coordinator) UnloadModel(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, cmdUnloadModel{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return apierr.Wrap(apierr.ChannelClosed, "diffusion coordinator reply wait cancelled", ctx.Err())
	}
}

// Infill runs denoising to completion and returns the final text. Progress
// is delivered separately to every Subscribe-d channel, not returned here.
func (c *Coordinator) Infill(ctx context.Context, req InfillRequest) (string, error) {
	reply := make(chan infillResult, 1)
	if err := c.send(ctx, cmdInfill{Req: req, Reply: reply}); err != nil {
		return "", err
	}
	select {
	case r := <-reply:
		return r.Text, r.Err
	case <-ctx.Done():
		return "", apierr.Wrap(apierr.ChannelClosed, "diffusion coordinator reply wait cancelled", ctx.Err())
	}
}

// Status reports whether a model is loaded and which path/device.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := c.send(ctx, cmdStatus{Reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Status{}, apierr.Wrap(apierr.ChannelClosed, "diffusion coordinator reply wait cancelled", ctx.Err())
	}
}

// Shutdown unloads the model and stops Run's loop.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.send(ctx, cmdShutdown{Done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return apierr.Wrap(apierr.ChannelClosed, "diffusion coordinator shutdown wait cancelled", ctx.Err())
	}
}

package restapi

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptroom/storyengine/internal/apierr"
	"github.com/scriptroom/storyengine/internal/bus"
	"github.com/scriptroom/storyengine/internal/cache"
	"github.com/scriptroom/storyengine/internal/config"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/diffusion"
	"github.com/scriptroom/storyengine/internal/observability"
	"github.com/scriptroom/storyengine/internal/store"
	"github.com/scriptroom/storyengine/internal/timeline"
)

// projectSession bundles one project's live core: its bus (which in turn
// owns the timeline mutex), the CRDT manager, and the diffusion
// coordinator, plus the cancel function that stops both owners' Run loops.
type projectSession struct {
	ID   uuid.UUID
	Name string

	Bus       *bus.Bus
	CRDTMgr   *crdt.Manager
	Diffusion *diffusion.Coordinator

	// Cache backs recap packing for prompt-context assembly (see
	// handleGenerateScript); shared across sessions since it holds no
	// project-specific state.
	Cache cache.Cache

	cancel context.CancelFunc
}

// sessionManager holds the single active projectSession (spec §1
// Non-goal: multi-project tenancy within one server process). Creating or
// loading a new project stops the previous one's background loops first.
type sessionManager struct {
	mu      sync.Mutex
	active  *projectSession
	cfg     config.Config
	store   store.PersistenceStore
	logger  observability.Logger
	metrics observability.MetricsClient
	tracer  *observability.TracingHandler
	cache   cache.Cache
}

func newSessionManager(cfg config.Config, persistence store.PersistenceStore, logger observability.Logger, metrics observability.MetricsClient, tracer *observability.TracingHandler) *sessionManager {
	return &sessionManager{cfg: cfg, store: persistence, logger: logger, metrics: metrics, tracer: tracer, cache: newRecapCache(cfg, logger)}
}

// newRecapCache dials Redis when cfg.Cache.Address is set, falling back to
// the no-op cache (and logging why) on any dial failure or when no address
// is configured at all.
func newRecapCache(cfg config.Config, logger observability.Logger) cache.Cache {
	if cfg.Cache.Address == "" {
		return cache.NewNoOpCache()
	}
	rc, err := cache.NewRedisCache(cache.RedisConfig{
		Address:      cfg.Cache.Address,
		Password:     cfg.Cache.Password,
		Database:     cfg.Cache.Database,
		DialTimeout:  cfg.Cache.DialTimeout,
		ReadTimeout:  cfg.Cache.ReadTimeout,
		WriteTimeout: cfg.Cache.WriteTimeout,
		PoolSize:     cfg.Cache.PoolSize,
	})
	if err != nil {
		logger.Warn("redis cache unavailable, falling back to no-op", map[string]interface{}{"error": err.Error()})
		return cache.NewNoOpCache()
	}
	return rc
}

func (sm *sessionManager) current() *projectSession {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// CreateFromTemplate builds a fresh project from one of the three fixed
// templates (spec §6) and makes it the active session.
func (sm *sessionManager) CreateFromTemplate(name string, kind timeline.TemplateKind) (*projectSession, error) {
	tl, err := timeline.BuildTemplate(kind)
	if err != nil {
		return nil, err
	}

	sess, err := sm.startSession(uuid.New(), name, tl)
	if err != nil {
		return nil, err
	}

	for _, n := range tl.Nodes {
		if err := sess.CRDTMgr.EnsureNode(context.Background(), n.ID.String()); err != nil {
			sm.logger.Warn("failed to ensure crdt entry for template node", map[string]interface{}{"node_id": n.ID.String(), "error": err.Error()})
		}
	}

	sm.replace(sess)
	return sess, nil
}

// Load restores a previously saved project from the store and makes it
// the active session.
func (sm *sessionManager) Load(projectID uuid.UUID) (*projectSession, error) {
	meta, tl, blob, err := sm.store.Load(projectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Serialization, "load project", err)
	}

	sess, err := sm.startSession(projectID, meta.Name, tl)
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		if err := sess.CRDTMgr.Load(context.Background(), blob); err != nil {
			return nil, apierr.Wrap(apierr.Serialization, "load crdt blob", err)
		}
	}

	sm.replace(sess)
	return sess, nil
}

// startSession constructs the CRDT manager, diffusion coordinator, and bus
// around tl, and starts their background loops, without making it active
// yet (the caller decides when to swap via replace).
func (sm *sessionManager) startSession(id uuid.UUID, name string, tl *timeline.Timeline) (*projectSession, error) {
	ctx, cancel := context.WithCancel(context.Background())

	crdtLogger := sm.logger.With(map[string]interface{}{"component": "crdt_manager", "project_id": id.String()})
	crdtMgr, err := crdt.NewManager(sm.cfg.CRDT.CommandQueueDepth, sm.cfg.CRDT.ChangeNotifyDepth, sm.cfg.CRDT.SnapshotCacheSize, crdtLogger)
	if err != nil {
		cancel()
		return nil, err
	}
	go crdtMgr.Run(ctx)

	diffLogger := sm.logger.With(map[string]interface{}{"component": "diffusion_coordinator", "project_id": id.String()})
	diffCoord := diffusion.NewCoordinator(sm.cfg.Diffusion.CommandQueueDepth, sm.cfg.Diffusion.ProgressBroadcastDepth, diffLogger)
	go diffCoord.Run(ctx)

	b := bus.New(tl, crdtMgr, diffCoord, sm.saveFunc(id, name, tl, crdtMgr), sm.cfg.Save.DebounceInterval, sm.logger.With(map[string]interface{}{"component": "bus", "project_id": id.String()}), sm.tracer, sm.metrics)
	go b.Saver().Run(ctx)

	return &projectSession{ID: id, Name: name, Bus: b, CRDTMgr: crdtMgr, Diffusion: diffCoord, Cache: sm.cache, cancel: cancel}, nil
}

func (sm *sessionManager) saveFunc(id uuid.UUID, name string, _ *timeline.Timeline, crdtMgr *crdt.Manager) bus.SaveFunc {
	return func() error {
		sm.mu.Lock()
		sess := sm.active
		sm.mu.Unlock()
		if sess == nil || sess.ID != id {
			return nil
		}

		blob, err := crdtMgr.Serialize(context.Background())
		if err != nil {
			return err
		}
		meta := store.ProjectMeta{ID: id, Name: sess.Name, UpdatedAt: time.Now()}
		return sm.store.Save(id, meta, sess.Bus.Timeline(), blob)
	}
}

// replace swaps in sess as the active session, stopping the previous
// session's background loops if one existed.
func (sm *sessionManager) replace(sess *projectSession) {
	sm.mu.Lock()
	prev := sm.active
	sm.active = sess
	sm.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
}

// Rename updates the active session's display name.
func (sm *sessionManager) Rename(name string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == nil {
		return apierr.New(apierr.InvalidOperation, "no active project")
	}
	sm.active.Name = name
	sm.active.Bus.Saver().TriggerSave()
	return nil
}

// Command storyserver runs the collaborative screenplay authoring server:
// the REST command surface, the WebSocket multiplex, and the debounced
// file-backed persistence loop, wired together in the idiom of the
// teacher's apps/mcp-server/cmd/server/main.go (flags, signal-based
// shutdown, ordered component construction with deferred teardown).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scriptroom/storyengine/internal/config"
	"github.com/scriptroom/storyengine/internal/crdt"
	"github.com/scriptroom/storyengine/internal/observability"
	"github.com/scriptroom/storyengine/internal/restapi"
	"github.com/scriptroom/storyengine/internal/store"
	"github.com/scriptroom/storyengine/internal/wsmux"
)

var (
	configFile  = flag.String("config", "", "path to a YAML config file (overrides default locations)")
	showVersion = flag.Bool("version", false, "print version information and exit")
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("storyserver\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", version, buildTime, gitCommit)
		os.Exit(0)
	}

	logger := observability.NewStandardLogger()
	logger.Info("starting storyserver", map[string]interface{}{
		"version": version, "build_time": buildTime, "git_commit": gitCommit,
	})

	cfg, err := config.NewLoader().Load(*configFile)
	if err != nil {
		logger.Error("failed to load configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	metrics := observability.NewPrometheusMetricsClient(prometheus.DefaultRegisterer)
	tracer := observability.NewTracingHandler(observability.NewTracerStartFunc("storyengine"), metrics, logger)

	persistence, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to initialize project store", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	apiServer := restapi.NewServer(cfg, persistence, logger, metrics, tracer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := resumeMostRecentProject(apiServer, persistence, logger); err != nil {
		logger.Warn("no project resumed at startup", map[string]interface{}{"error": err.Error()})
	}

	engine := gin.New()
	apiServer.RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", gin.WrapF(wsHandler(apiServer, cfg, logger, metrics)))

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: engine,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]interface{}{"address": cfg.ListenAddr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	if err := waitForShutdown(ctx, httpServer, serverErrCh, logger); err != nil {
		logger.Error("shutdown error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	logger.Info("storyserver stopped gracefully", nil)
}

// resumeMostRecentProject loads the first project the store reports, if
// any, so a restart doesn't leave the server without an active session
// (spec §1 Non-goal: multi-project tenancy — exactly one project is ever
// active, so "most recent" here just means "any").
func resumeMostRecentProject(s *restapi.Server, persistence store.PersistenceStore, logger observability.Logger) error {
	ids, err := persistence.List()
	if err != nil {
		return fmt.Errorf("list stored projects: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no stored projects to resume")
	}
	if err := s.LoadProject(ids[0]); err != nil {
		return fmt.Errorf("load project %s: %w", ids[0], err)
	}
	logger.Info("resumed project", map[string]interface{}{"project_id": ids[0].String()})
	return nil
}

// wsHandler serves every upgrade request through one wsmux.Multiplex per
// active project session, so clients of the same project share its client
// id counter and connection registry. A new Multiplex is built when the
// session is replaced (creating or loading a different project).
func wsHandler(s *restapi.Server, cfg config.Config, logger observability.Logger, metrics observability.MetricsClient) http.HandlerFunc {
	var (
		muxMu  sync.Mutex
		mux    *wsmux.Multiplex
		muxMgr *crdt.Manager
	)
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.Session()
		if sess == nil {
			http.Error(w, "no active project", http.StatusServiceUnavailable)
			return
		}
		muxMu.Lock()
		if mux == nil || muxMgr != sess.CRDTMgr {
			mux = wsmux.New(sess.CRDTMgr, sess.Bus, wsmux.Config{
				MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
				SendBufferDepth: cfg.CRDT.UpdateBroadcastDepth,
				RateLimitPerSec: cfg.WebSocket.RateLimitPerSec,
				RateLimitBurst:  cfg.WebSocket.RateLimitBurst,
			}, logger, metrics)
			muxMgr = sess.CRDTMgr
		}
		current := mux
		muxMu.Unlock()
		current.HTTPHandler()(w, r)
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM, ctx cancellation, or a
// listener error, then drains in-flight requests within a bounded window.
func waitForShutdown(ctx context.Context, httpServer *http.Server, serverErrCh <-chan error, logger observability.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErrCh:
		return err
	case <-ctx.Done():
		logger.Info("context cancelled", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

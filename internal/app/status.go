package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/jobstore"
)

const (
	// terminalCacheTTL is how long a finished job record is served from
	// memory. Finished records never change, so this only bounds memory.
	terminalCacheTTL     = 10 * time.Minute
	cacheCleanupInterval = 30 * time.Minute
)

// statusServer exposes /health and /jobs/:id over HTTP.
type statusServer struct {
	ctx        context.Context
	httpServer *http.Server
}

// newStatusRouter builds the status API. Terminal records are cached; records
// of running jobs always go to the store.
func newStatusRouter(ctx context.Context, store jobstore.Store, cache *gocache.Cache) *gin.Engine {
	logger := ctxlog.FromContext(ctx)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		logger.Debug("Health check endpoint hit.", "remote_addr", c.Request.RemoteAddr)
		c.String(http.StatusOK, "OK\n")
	})

	router.GET("/jobs/:id", func(c *gin.Context) {
		id := c.Param("id")
		if v, ok := cache.Get(id); ok {
			logger.Debug("Job record served from cache.", "job_id", id)
			c.JSON(http.StatusOK, v.(*jobstore.Record))
			return
		}
		rec, err := store.Get(c.Request.Context(), id)
		switch {
		case errors.Is(err, jobstore.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			logger.Error("Failed to load job record.", "job_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job record"})
			return
		}
		if rec.Terminal() {
			cache.Set(id, rec, gocache.DefaultExpiration)
		}
		c.JSON(http.StatusOK, rec)
	})

	return router
}

func newStatusServer(ctx context.Context, store jobstore.Store, port int) *statusServer {
	cache := gocache.New(terminalCacheTTL, cacheCleanupInterval)
	return &statusServer{
		ctx: ctx,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newStatusRouter(ctx, store, cache),
		},
	}
}

// start runs the server in a goroutine so it doesn't block.
func (s *statusServer) start() {
	logger := ctxlog.FromContext(s.ctx)
	go func() {
		logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/health", s.httpServer.Addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server failed unexpectedly", "error", err)
		}
	}()
}

func (s *statusServer) close() error {
	logger := ctxlog.FromContext(s.ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down status server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Status server shutdown failed", "error", err)
		return err
	}
	logger.Debug("Status server shut down gracefully.")
	return nil
}

// Serve runs only the status server over the job database at cfg.StateDB
// until ctx is cancelled.
func Serve(ctx context.Context, outW io.Writer, cfg *Config) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	if cfg.StateDB == "" {
		return errors.New("serve requires a state database")
	}
	if cfg.StatusPort <= 0 {
		return errors.New("serve requires a status port")
	}
	store, closeStore, err := OpenStore(ctx, cfg.StateDB)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer closeStore()

	srv := newStatusServer(ctx, store, cfg.StatusPort)
	srv.start()
	<-ctx.Done()
	return srv.close()
}

// ErrNoStateDB is returned by LookupJob when no database path is configured.
var ErrNoStateDB = errors.New("no state database configured; set --state-db")

// LookupJob reads one job record from the database at path.
func LookupJob(ctx context.Context, path, id string) (*jobstore.Record, error) {
	if path == "" {
		return nil, ErrNoStateDB
	}
	store, closeStore, err := OpenStore(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	defer closeStore()
	return store.Get(ctx, id)
}

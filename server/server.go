package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"tapedeck/config"
	"tapedeck/handlers"
	"tapedeck/metrics"
	"tapedeck/middleware"
	"tapedeck/services"
	"tapedeck/web"
	"tapedeck/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server wires storage, the event hub and the HTTP router together
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	projects services.ProjectService
	hub      websocket.Hub
	metrics  *metrics.Metrics
	engine   *gin.Engine

	mu      sync.Mutex
	cancel  context.CancelFunc
	hubDone chan struct{}
	watcher *services.StorageWatcher
}

// New builds a server from cfg. Nothing runs until Start or Run is called.
func New(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}

	inspector := services.NewTrackInspector(logger.Named("inspector"))
	projects, err := services.NewProjectService(cfg.Storage.DataDir, inspector, logger.Named("projects"))
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger.Named("hub"))
	m := metrics.New(hub.ClientCount)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logging(logger.Named("http")))
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Security())
	// multipart parts beyond this are spooled to temp files by net/http
	r.MaxMultipartMemory = 32 << 20

	setupRoutes(r, routeHandlers{
		projects: handlers.NewProjectHandler(projects, hub, m, logger.Named("projects")),
		audio:    handlers.NewAudioHandler(projects, inspector, logger.Named("audio")),
		events:   handlers.NewEventHandler(hub, projects, logger.Named("events")),
		health:   handlers.NewHealthHandler("tapedeck", projects.DataDir()),
		web:      handlers.NewWebHandler(web.Static()),
		metrics:  m.Handler(),
	}, middleware.BodyLimit(cfg.MaxUploadBytes()))

	return &Server{
		cfg:      cfg,
		logger:   logger,
		projects: projects,
		hub:      hub,
		metrics:  m,
		engine:   r,
	}, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Projects returns the storage service
func (s *Server) Projects() services.ProjectService {
	return s.projects
}

// Start runs the event hub and, when enabled, the storage watcher
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("server already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.hubDone = make(chan struct{})
	go func() {
		defer close(s.hubDone)
		s.hub.Run(ctx)
	}()

	if s.cfg.Storage.Watch {
		debounce := time.Duration(s.cfg.Storage.WatchDebounce) * time.Millisecond
		watcher, err := services.NewStorageWatcher(s.projects.DataDir(), debounce, s.hub, s.projects.Writes(), s.logger.Named("watcher"))
		if err != nil {
			s.logger.Warn("storage watcher unavailable", zap.Error(err))
			return nil
		}
		if err := watcher.Start(ctx); err != nil {
			_ = watcher.Stop()
			s.logger.Warn("storage watcher unavailable", zap.Error(err))
			return nil
		}
		s.watcher = watcher
	}
	return nil
}

// Close stops the watcher and the hub
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	var err error
	if s.watcher != nil {
		err = s.watcher.Stop()
		s.watcher = nil
	}
	s.cancel()
	<-s.hubDone
	s.cancel = nil
	return err
}

// Run starts background work and serves HTTP until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Close()

	addr := net.JoinHostPort("", strconv.Itoa(s.cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("tapedeck web server starting",
			zap.String("addr", addr),
			zap.String("data_dir", s.projects.DataDir()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

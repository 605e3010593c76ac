// Package devserver is an in-memory stand-in for the course backend. It serves
// the endpoints the coursegen client consumes so the client can be exercised
// end to end without the real service.
package devserver

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/coursegen/internal/config"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

type Server struct {
	log      *logger.Logger
	cfg      config.DevServerConfig
	store    *Store
	auth     *Auth
	jobs     *Jobs
	upgrader websocket.Upgrader
	engine   *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log *logger.Logger, cfg config.DevServerConfig, store *Store) *Server {
	if store == nil {
		store = NewStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		log:    log.With("component", "DevServer"),
		cfg:    cfg,
		store:  store,
		auth:   NewAuth(cfg.JWTSecret, cfg.TokenTTL.Duration, cfg.Users),
		ctx:    ctx,
		cancel: cancel,
	}
	s.jobs = NewJobs(ctx, log, cfg.StepDelay.Duration, cfg.JobRetention.Duration)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(cfg.AllowedOrigins, origin)
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Store exposes the backing store for seeding.
func (s *Server) Store() *Store { return s.store }

// SeedUsers gives every configured user a sample course.
func (s *Server) SeedUsers() {
	for _, name := range slices.Sorted(maps.Keys(s.auth.users)) {
		c := s.store.Seed(s.auth.userID(name))
		s.log.Info("seeded course", "user", name, "course_id", c.ID)
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("coursegen-devserver"))
	r.Use(AttachTraceContext())
	r.Use(RequestLogger(s.log))
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(CORS(s.cfg.AllowedOrigins))
	}

	r.GET("/healthcheck", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", s.login)
		api.GET("/ai/ws/generation/:batch_id", s.streamProgress)
		api.GET("/courses/public/courses", s.listPublishedCourses)
		api.GET("/courses/public/courses/search", s.searchPublishedCourses)
	}

	protected := api.Group("/")
	protected.Use(RequireAuth(s.log, s.auth))
	{
		protected.GET("/auth/me", s.me)

		// Courses
		protected.GET("/courses/", s.listCourses)
		protected.POST("/courses/", s.createCourse)
		protected.POST("/courses/by-file-id", s.createCourseByFileID)
		protected.GET("/courses/:id", s.getCourse)
		protected.DELETE("/courses/:id", s.deleteCourse)
		protected.PUT("/publish", s.setPublished(true))
		protected.PUT("/unpublish", s.setPublished(false))
		protected.POST("/generate-toc", s.generateTOC)
		protected.DELETE("/clear-toc", s.clearTOC)
		protected.DELETE("/clear-module-contents", s.clearModuleContents)
		protected.GET("/courses/public/modules", s.listModules)
		protected.POST("/courses/public/modules", s.createModule)
		protected.PUT("/courses/public/modules/:id", s.updateModule)
		protected.DELETE("/courses/public/modules/:id", s.deleteModule)
		protected.GET("/courses/units", s.listUnits)
		protected.POST("/courses/public/units", s.createUnit)
		protected.PUT("/courses/units/:id", s.updateUnit)
		protected.DELETE("/courses/public/units/:id", s.deleteUnit)
		protected.GET("/courses/public/units/:id/contents", s.listUnitContents(func(c *gin.Context) (int64, bool) { return paramID(c, "id") }))
		protected.GET("/courses/public/contents/:id", s.getContent)

		// Contents
		protected.GET("/contents/unit", s.listUnitContents(func(c *gin.Context) (int64, bool) { return queryID(c, "unit_id") }))
		protected.POST("/contents", s.createContent)
		protected.PUT("/contents/:id", s.updateContent)
		protected.DELETE("/contents/:id", s.deleteContent)
		protected.POST("/contents/generate", s.generateContent)
		protected.POST("/contents/:id/regenerate", s.regenerateContent)
		protected.POST("/contents/batch-generate", s.batchGenerateModule)
		protected.POST("/batch-generate-all", s.batchGenerateCourse)

		// AI
		protected.POST("/ai/generate/batch", s.startAIBatch)
		for _, kind := range assistKinds {
			protected.POST("/ai/generate/"+kind, s.assist(kind))
		}
	}
	return r
}

// Run serves on addr until ctx is done, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("devserver listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close stops running jobs and open progress streams.
func (s *Server) Close() {
	s.cancel()
	s.jobs.Wait()
}

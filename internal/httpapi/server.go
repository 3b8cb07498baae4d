// Package httpapi is the REST boundary of promptcron.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

// Backend is what the handlers need from the application.
type Backend interface {
	ListSchedules(ctx context.Context) ([]schedule.Schedule, error)
	CreateSchedule(ctx context.Context, in schedule.Input) (schedule.Schedule, error)
	DeleteSchedule(ctx context.Context, id string) (bool, error)
	RunSchedule(ctx context.Context, id string) error
	NextRuns(id string, n int) []time.Time
	Status() any
}

type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogBodies      bool
	// NextRuns is how many upcoming fire times list/create responses carry.
	NextRuns int
}

type Server struct {
	cfg     Config
	backend Backend
	log     logx.Logger
	engine  *gin.Engine

	mu   sync.Mutex
	srv  *http.Server
	addr string
}

func New(cfg Config, backend Backend, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.NextRuns <= 0 {
		cfg.NextRuns = 3
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{cfg: cfg, backend: backend, log: log.With(logx.String("comp", "http"))}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log, cfg.LogBodies))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	s.routes(r)
	s.engine = r
	return s
}

// Handler exposes the router (tests use it with httptest).
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the listener synchronously and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info("http listening", logx.String("addr", s.addr))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", logx.Err(err))
		}
	}()
	return nil
}

// Addr is the bound address after Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// corsConfig allows every origin when none (or "*") is configured.
func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

type handlerFunc func(c *gin.Context) (any, *Error)

// resolve renders the handler result with status, or its *Error.
func resolve(status int, h handlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, apiErr := h(c)
		if apiErr != nil {
			body := gin.H{"error": apiErr.Message}
			if apiErr.Field != "" {
				body["field"] = apiErr.Field
			}
			c.JSON(apiErr.Code, body)
			return
		}
		c.JSON(status, result)
	}
}

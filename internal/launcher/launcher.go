// Package launcher is a reference peer: it authenticates SDK sessions over a
// websocket and executes their api_call requests from an action registry.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/framelink/internal/auth"
	"github.com/danmuck/framelink/internal/config"
	"github.com/danmuck/framelink/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const shutdownGrace = 5 * time.Second

type Launcher struct {
	Name     string
	Addr     string
	Appeared time.Time
	Registry *Registry

	cfg            config.LauncherConfig
	validator      auth.Validator
	handshakeLimit time.Duration
	callRate       rate.Limit
	callBurst      int
	allowed        map[string]struct{}
	upgrader       websocket.Upgrader
	router         *gin.Engine
	logger         zerolog.Logger

	connsMu  sync.Mutex
	conns    map[*websocket.Conn]struct{}
	draining bool
}

type options struct {
	validator auth.Validator
}

type Option func(*options)

// WithValidator replaces the token check built from config. The config's
// token, tokens and token_ttl are then ignored.
func WithValidator(v auth.Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// New validates cfg and builds a launcher with the builtin actions and all
// routes registered.
func New(cfg config.LauncherConfig, opts ...Option) (*Launcher, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.WithDefaults()
	validate := config.ValidateLauncherConfig
	if o.validator != nil {
		validate = config.ValidateLauncherSettings
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	now := time.Now()
	validator := o.validator
	if validator == nil {
		var err error
		if validator, err = cfg.Validator(now); err != nil {
			return nil, err
		}
	}
	limit, err := cfg.HandshakeTimeout()
	if err != nil {
		return nil, err
	}

	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	l := &Launcher{
		Name:           cfg.Name,
		Addr:           cfg.Addr,
		Appeared:       now,
		Registry:       NewRegistry(),
		cfg:            cfg,
		validator:      validator,
		handshakeLimit: limit,
		callRate:       rate.Limit(cfg.CallRate),
		callBurst:      cfg.CallBurst,
		allowed:        make(map[string]struct{}, len(cfg.AllowedOrigins)),
		conns:          make(map[*websocket.Conn]struct{}),
		router:         r,
		logger:         log.Logger.With().Str("launcher", cfg.Name).Logger(),
	}
	for _, origin := range cfg.AllowedOrigins {
		l.allowed[origin] = struct{}{}
	}
	l.upgrader = websocket.Upgrader{CheckOrigin: l.checkOrigin}
	if err := l.registerBuiltins(); err != nil {
		return nil, err
	}
	l.RegisterRoutes()
	return l, nil
}

func (l *Launcher) HTTPRouter() *gin.Engine {
	return l.router
}

func (l *Launcher) RegisterRoutes() {
	l.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  l.uptime().String(),
			"service": l.Name,
			"version": "0.0.1",
		})
	})

	l.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	l.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"uptime":  l.uptime().String(),
			"service": l.Name,
			"version": "0.0.1",
		})
	})

	l.router.GET("/actions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actions": l.Registry.Names()})
	})

	l.router.GET(config.DefaultHandlerPath, func(c *gin.Context) {
		path := strings.TrimSpace(l.cfg.HandlerScript)
		if path == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "no handler script configured"})
			return
		}
		c.File(path)
	})

	l.router.GET(config.DefaultWebSocketPath, l.handleWebSocket)
}

// checkOrigin admits only configured host origins, compared exactly.
func (l *Launcher) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	_, ok := l.allowed[origin]
	if !ok {
		observability.RecordLauncherAuth(l.Name, "origin_rejected")
		l.logger.Warn().Str("origin", origin).Msg("launcher upgrade from disallowed origin")
	}
	return ok
}

func (l *Launcher) handleWebSocket(c *gin.Context) {
	conn, err := l.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.logger.Debug().Err(err).Msg("launcher upgrade failed")
		return
	}
	if !l.trackConn(conn) {
		_ = conn.Close()
		return
	}
	defer l.untrackConn(conn)
	l.newPeerConn(conn, c.Request.Header.Get("Origin")).serve(c.Request.Context())
}

func (l *Launcher) trackConn(conn *websocket.Conn) bool {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	if l.draining {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Launcher) untrackConn(conn *websocket.Conn) {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	delete(l.conns, conn)
}

// closeConns ends every websocket session. http.Server.Shutdown does not
// touch hijacked connections.
func (l *Launcher) closeConns() {
	l.connsMu.Lock()
	l.draining = true
	conns := make([]*websocket.Conn, 0, len(l.conns))
	for conn := range l.conns {
		conns = append(conns, conn)
	}
	l.connsMu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "launcher shutting down"), deadline)
		_ = conn.Close()
	}
	if len(conns) > 0 {
		l.logger.Info().Int("count", len(conns)).Msg("launcher closed peer connections")
	}
}

// Conns reports the number of live websocket sessions.
func (l *Launcher) Conns() int {
	l.connsMu.Lock()
	defer l.connsMu.Unlock()
	return len(l.conns)
}

func (l *Launcher) ExecuteAction(ctx context.Context, req Request) (any, error) {
	action, ok := l.Registry.Get(req.Action)
	if !ok {
		observability.RecordLauncherAction(l.Name, req.Action, 0, false)
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, req.Action)
	}

	start := time.Now()
	out, err := action(ctx, req)
	observability.RecordLauncherAction(l.Name, req.Action, time.Since(start), err == nil)
	if err != nil {
		l.logger.Error().
			Str("action", req.Action).
			Str("request_id", req.RequestID).
			Err(err).
			Msg("launcher action failed")
		return nil, err
	}

	l.logger.Info().
		Str("action", req.Action).
		Str("request_id", req.RequestID).
		Msg("launcher action executed")
	return out, nil
}

// Serve listens on Addr until ctx is done, then shuts down gracefully.
func (l *Launcher) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	return l.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done. Open websocket sessions are
// closed on shutdown.
func (l *Launcher) ServeListener(ctx context.Context, ln net.Listener) error {
	l.connsMu.Lock()
	l.draining = false
	l.connsMu.Unlock()

	srv := &http.Server{
		Handler:           l.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if l.cfg.TLSCert != "" {
			l.logger.Info().Str("addr", ln.Addr().String()).Bool("tls", true).Msg("launcher listening")
			errCh <- srv.ServeTLS(ln, l.cfg.TLSCert, l.cfg.TLSKey)
			return
		}
		l.logger.Info().Str("addr", ln.Addr().String()).Msg("launcher listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		l.closeConns()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		l.closeConns()
		return err
	}
}

func (l *Launcher) uptime() time.Duration {
	return time.Since(l.Appeared).Truncate(time.Millisecond)
}

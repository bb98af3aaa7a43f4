package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"wanwatch/internal/api"
	"wanwatch/internal/config"
	"wanwatch/internal/model"
)

// CollectFunc runs one full collection cycle.
type CollectFunc func(ctx context.Context) ([]model.NeighborRecord, error)

// Server serves collected neighbor records over HTTP.
type Server struct {
	cfg     config.APIConfig
	collect CollectFunc
	health  api.HealthResponse
	log     *zap.Logger
	e       *echo.Echo

	// cycles coalesces concurrent requests onto the cycle in flight.
	cycles singleflight.Group
	// ctx bounds shared cycles; a departing client does not cancel them.
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds the server and its routes. health describes the transport for
// GET /health.
func New(cfg config.APIConfig, collect CollectFunc, health api.HealthResponse, log *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		collect: collect,
		health:  health,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.health.Status = "ok"
	s.health.Auth = cfg.JWTSecret != ""
	s.e = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestLogger(s.log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/health", s.handleHealth)

	var mw []echo.MiddlewareFunc
	if s.cfg.RateLimit > 0 {
		mw = append(mw, s.rateLimiter())
	}
	if s.cfg.JWTSecret != "" {
		mw = append(mw, requireToken([]byte(s.cfg.JWTSecret)))
	}
	e.GET("/neighbors", s.handleNeighbors, mw...)
	e.GET("/api/neighbors", s.handleNeighbors, mw...)
	e.GET("/ws/neighbors", s.handleStream, mw...)
	return e
}

func (s *Server) rateLimiter() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.cfg.RateLimit),
		Burst:     s.cfg.RateBurst,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "client not identifiable")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.e
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.e.Server.ReadHeaderTimeout = 5 * time.Second

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("listen", s.cfg.Listen))
		errCh <- s.e.Start(s.cfg.Listen)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// neighbors joins the cycle in flight, or starts one. Once a cycle returns the
// next call starts a fresh one.
func (s *Server) neighbors(ctx context.Context) ([]model.NeighborRecord, error) {
	ch := s.cycles.DoChan("cycle", func() (any, error) {
		return s.collect(s.ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		records, _ := res.Val.([]model.NeighborRecord)
		if records == nil {
			records = []model.NeighborRecord{}
		}
		return records, nil
	}
}

func (s *Server) handleNeighbors(c echo.Context) error {
	records, err := s.neighbors(c.Request().Context())
	if err != nil {
		s.log.Error("collection failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.health)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.Is(err, ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.As(err, &he):
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, api.ErrorResponse{Error: msg})
}

// Package status serves the read-only health and status endpoints.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bnema/proxied/internal/boundaries/in"
	"github.com/bnema/proxied/internal/boundaries/out"
	"github.com/bnema/proxied/internal/domain"
	"github.com/bnema/proxied/pkg/logger"
)

// ScheduleLister lists scheduler entries.
type ScheduleLister interface {
	List() []domain.CronEntry
}

// Deps are the services the endpoints read from. Limiter and Schedule may be nil.
type Deps struct {
	Routes   in.RouteService
	Proxy    in.StatusService
	Schedule ScheduleLister
	Limiter  out.RateLimiter
}

// Server wraps the echo instance.
type Server struct {
	echo *echo.Echo
	deps Deps
	log  *logger.Logger
}

// NewServer registers the routes and middleware.
func NewServer(deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, deps: deps, log: log.With("component", "http")}
	e.Use(middleware.Recover())
	e.Use(s.accessLog())
	e.Use(securityHeaders)
	if deps.Limiter != nil {
		e.Use(s.rateLimit())
	}

	e.GET("/healthz", s.healthz)
	e.GET("/status", s.status)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("status endpoint listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) accessLog() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request",
				"remote_ip", c.RealIP(),
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	})
}

// securityHeaders marks every response as non-cacheable JSON that must not
// be framed or sniffed.
func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		return next(c)
	}
}

func (s *Server) rateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.deps.Limiter.Allow(c.Request().Context(), "ip:"+c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type scheduleEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Interval string `json:"interval"`
	LastRun  string `json:"last_run,omitempty"`
	NextRun  string `json:"next_run,omitempty"`
	LastErr  string `json:"last_error,omitempty"`
	Running  bool   `json:"running"`
	Runs     int    `json:"runs"`
	Skipped  int    `json:"skipped"`
}

type statusResponse struct {
	Routes     *domain.RouteCounts `json:"routes,omitempty"`
	RoutesErr  string              `json:"routes_error,omitempty"`
	Schedule   []scheduleEntry     `json:"schedule,omitempty"`
	Proxy      *domain.ProxyStatus `json:"proxy,omitempty"`
	ProxyError string              `json:"proxy_error,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// status always answers 200; unreachable parts are reported inline.
func (s *Server) status(c echo.Context) error {
	ctx := c.Request().Context()
	var resp statusResponse

	if s.deps.Routes != nil {
		counts, err := s.deps.Routes.Count(ctx)
		if err != nil {
			resp.RoutesErr = err.Error()
		} else {
			resp.Routes = counts
		}
	}

	if s.deps.Schedule != nil {
		for _, e := range s.deps.Schedule.List() {
			interval := "once"
			if !e.Schedule.Once() {
				interval = e.Schedule.Interval.String()
			}
			resp.Schedule = append(resp.Schedule, scheduleEntry{
				ID:       e.ID,
				Name:     e.Name,
				Interval: interval,
				LastRun:  formatTime(e.LastRun),
				NextRun:  formatTime(e.NextRun),
				LastErr:  e.LastErr,
				Running:  e.Running,
				Runs:     e.Runs,
				Skipped:  e.Skipped,
			})
		}
	}

	if s.deps.Proxy != nil {
		st, err := s.deps.Proxy.Status(ctx)
		if err != nil {
			resp.ProxyError = err.Error()
		} else {
			resp.Proxy = st
		}
	}

	return c.JSON(http.StatusOK, resp)
}

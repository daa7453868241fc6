// Package server exposes turns over HTTP as a server-sent event stream
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sealor/pharmacy-agent/pkg/agent"
	"github.com/sealor/pharmacy-agent/pkg/history"
)

type Turner interface {
	RunTurn(ctx context.Context, userText string, prior []history.Turn, emit func(agent.Event) bool) []history.Turn
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	turns  Turner
	store  Pinger
	logger *slog.Logger
}

type chatRequest struct {
	Message string         `json:"message"`
	History []history.Turn `json:"history"`
}

type historyFrame struct {
	Type    string         `json:"type"`
	History []history.Turn `json:"history"`
}

func New(turns Turner, store Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{echo: echo.New(), turns: turns, store: store, logger: logger}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "path", v.URIPath, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				s.logger.Error("request failed", append(attrs, "error", v.Error)...)
			} else {
				s.logger.Info("request", attrs...)
			}
			return nil
		},
	}))

	s.echo.POST("/chat", s.chat)
	s.echo.GET("/health", s.health)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}
	if err := history.ValidateTurns(req.History); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	// a disconnected client cancels the request context and with it the turn
	ctx := c.Request().Context()
	final := s.turns.RunTurn(ctx, req.Message, req.History, func(e agent.Event) bool {
		if err := writeEvent(res, string(e.Type), e); err != nil {
			s.logger.Warn("failed to send event", "error", err)
			return false
		}
		return true
	})

	if ctx.Err() != nil {
		return nil
	}
	if err := writeEvent(res, "history", historyFrame{Type: "history", History: final}); err != nil {
		s.logger.Warn("failed to send history", "error", err)
	}
	return nil
}

func writeEvent(res *echo.Response, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func (s *Server) health(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

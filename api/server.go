// Package api is the HTTP control surface: status, last signals, on-demand
// cycles, the operator kill switch clear and a websocket feed of cycle
// reports.
package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rustyeddy/equitybot/engine"
	"github.com/rustyeddy/equitybot/pkg/logger"
	"github.com/rustyeddy/equitybot/state"
	"github.com/rustyeddy/equitybot/strategies"
)

// Controller is the part of *engine.Engine the API drives.
type Controller interface {
	Status(ctx context.Context) (engine.Status, error)
	RunCycle(ctx context.Context, opts engine.Options) (engine.Report, error)
	ClearKillSwitch(ctx context.Context, operator string) (bool, error)
}

type Server struct {
	ctl    Controller
	hub    *Hub
	log    *zap.Logger
	router *gin.Engine
}

// NewServer wires the routes. hub may be nil, which disables /ws.
func NewServer(ctl Controller, hub *Hub, log *zap.Logger) *Server {
	s := &Server{ctl: ctl, hub: hub, log: logger.OrNop(log), router: gin.New()}
	s.router.Use(gin.Recovery(), s.requestLog())
	s.RegisterRoutes(s.router)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", s.status)
	r.GET("/signals", s.signals)
	r.GET("/signals/:symbol", s.signal)
	r.POST("/cycle", s.cycle)
	r.POST("/killswitch/clear", s.clearKillSwitch)
	if s.hub != nil {
		r.GET("/ws", gin.WrapF(s.hub.ServeWS))
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func (s *Server) status(c *gin.Context) {
	st, err := s.ctl.Status(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) signals(c *gin.Context) {
	st, err := s.ctl.Status(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	only := c.Query("filter")
	out := make([]strategies.Signal, 0, len(st.LastSignals))
	for _, sig := range st.LastSignals {
		switch {
		case only == "actionable" && !sig.Actionable():
			continue
		case only == "shadow" && !sig.Shadow():
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	c.JSON(http.StatusOK, out)
}

func (s *Server) signal(c *gin.Context) {
	st, err := s.ctl.Status(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	sym := strings.ToUpper(c.Param("symbol"))
	sig, ok := st.LastSignals[sym]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no signal for " + sym})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (s *Server) cycle(c *gin.Context) {
	opts := engine.Options{DryRun: c.Query("dry_run") == "true"}
	rep, err := s.ctl.RunCycle(c.Request.Context(), opts)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rep)
	case errors.Is(err, engine.ErrCycleBusy):
		s.fail(c, http.StatusConflict, err)
	case errors.Is(err, engine.ErrCycleAborted):
		s.fail(c, http.StatusServiceUnavailable, err)
	case errors.Is(err, state.ErrPersistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
	default:
		s.fail(c, http.StatusInternalServerError, err)
	}
}

type clearRequest struct {
	Operator string `json:"operator" binding:"required"`
}

func (s *Server) clearKillSwitch(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	cleared, err := s.ctl.ClearKillSwitch(c.Request.Context(), req.Operator)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"cleared": cleared})
	case errors.Is(err, engine.ErrOperatorRequired):
		s.fail(c, http.StatusBadRequest, err)
	case errors.Is(err, engine.ErrCycleBusy):
		s.fail(c, http.StatusConflict, err)
	default:
		s.fail(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) fail(c *gin.Context, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.log.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

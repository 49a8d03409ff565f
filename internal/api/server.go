// Package api exposes the controller and the chat relay over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cnap-oss/gridion/internal/artifact"
	"github.com/cnap-oss/gridion/internal/controller"
	"github.com/cnap-oss/gridion/internal/relay"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RunController is the part of the controller the HTTP layer drives.
type RunController interface {
	CreateRun(ctx context.Context, brief, campaignType string) (string, error)
	GetRun(runID string) (*controller.RunSnapshot, error)
	CancelRun(runID string) error
	Combine(ctx context.Context, req controller.CombineRequest) (string, error)
	StartFinalVideo(ctx context.Context, prompt string) (string, error)
	GetFinalVideo(id string) (*controller.FinalJob, error)
	Metrics() *controller.Metrics
}

// Server는 HTTP API 서버입니다.
type Server struct {
	logger     *zap.Logger
	ctrl       RunController
	relay      *relay.Relay
	artifacts  *artifact.Store
	httpServer *http.Server
}

// NewServer는 새 API 서버를 생성합니다.
func NewServer(logger *zap.Logger, addr string, ctrl RunController, rl *relay.Relay, artifacts *artifact.Store) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger,
		ctrl:      ctrl,
		relay:     rl,
		artifacts: artifacts,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes는 라우터를 구성합니다.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Get("/run/{runId}", s.handleGetRun)
		r.Delete("/run/{runId}", s.handleCancelRun)
		r.Post("/chat", s.handleChat)
		r.Post("/combine", s.handleCombine)
		r.Post("/veo/generate", s.handleFinalGenerate)
		r.Get("/veo/{jobId}", s.handleFinalStatus)
		r.Get("/videos/{runId}/{file}", s.handleVideo)
		r.Get("/metrics", s.handleMetrics)
	})

	return r
}

// Start는 서버를 시작하고 ctx가 끝날 때까지 블록합니다.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("Starting API server", zap.String("addr", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop은 진행 중인 요청을 마무리하고 서버를 종료합니다.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

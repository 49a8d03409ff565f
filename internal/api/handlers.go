package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cnap-oss/gridion/internal/artifact"
	"github.com/cnap-oss/gridion/internal/controller"
	"github.com/cnap-oss/gridion/internal/relay"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type generateRequest struct {
	Prompt       string `json:"prompt"`
	CampaignType string `json:"campaignType"`
}

type generateResponse struct {
	RunID string `json:"runId"`
}

type combineRequest struct {
	UserPrompt   string            `json:"userPrompt"`
	AgentPrompts map[string]string `json:"agentPrompts"`
	CampaignType string            `json:"campaignType"`
}

type combineResponse struct {
	CombinedPrompt string `json:"combinedPrompt"`
}

type finalGenerateRequest struct {
	Prompt string `json:"prompt"`
}

type finalGenerateResponse struct {
	JobID string `json:"jobId"`
}

type finalStatusResponse struct {
	Status    string  `json:"status"`
	VideoPath *string `json:"videoPath"`
	Error     *string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}

	runID, err := s.ctrl.CreateRun(r.Context(), req.Prompt, req.CampaignType)
	if err != nil {
		switch {
		case errors.Is(err, controller.ErrEmptyBrief):
			writeError(w, http.StatusBadRequest, "prompt required")
		case errors.Is(err, controller.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		default:
			s.logger.Error("Failed to create run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start run")
		}
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{RunID: runID})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.GetRun(chi.URLParam(r, "runId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runId")
	if err := s.ctrl.CancelRun(runID); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusAccepted, generateResponse{RunID: runID})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req relay.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}

	sess, err := s.relay.Open(r.Context(), req)
	if err != nil {
		s.logger.Warn("Chat upstream unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "chat upstream unavailable")
		return
	}

	// 여기서부터는 헤더가 나가므로 에러는 로그로만 남깁니다.
	if err := sess.Pump(r.Context(), relay.NewSSEWriter(w)); err != nil && r.Context().Err() == nil {
		s.logger.Warn("Chat relay ended with error", zap.Error(err))
	}
}

func (s *Server) handleCombine(w http.ResponseWriter, r *http.Request) {
	var req combineRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.UserPrompt) == "" || len(req.AgentPrompts) == 0 {
		writeError(w, http.StatusBadRequest, "userPrompt and agentPrompts required")
		return
	}

	prompts := make(map[controller.Role]string, len(req.AgentPrompts))
	for k, v := range req.AgentPrompts {
		if role, ok := controller.ParseRole(k); ok {
			prompts[role] = v
		}
	}

	combined, err := s.ctrl.Combine(r.Context(), controller.CombineRequest{
		Brief:        req.UserPrompt,
		CampaignType: req.CampaignType,
		AgentPrompts: prompts,
	})
	if err != nil {
		if errors.Is(err, controller.ErrInvalidCombine) {
			writeError(w, http.StatusBadRequest, "userPrompt and agentPrompts required")
			return
		}
		s.logger.Error("Combine error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to combine prompts")
		return
	}

	writeJSON(w, http.StatusOK, combineResponse{CombinedPrompt: combined})
}

func (s *Server) handleFinalGenerate(w http.ResponseWriter, r *http.Request) {
	var req finalGenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID, err := s.ctrl.StartFinalVideo(r.Context(), req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, controller.ErrEmptyFinalPrompt):
			writeError(w, http.StatusBadRequest, "prompt is required")
		case errors.Is(err, controller.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		default:
			s.logger.Error("Failed to start final video", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start final video")
		}
		return
	}

	writeJSON(w, http.StatusOK, finalGenerateResponse{JobID: jobID})
}

func (s *Server) handleFinalStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.ctrl.GetFinalVideo(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, finalStatusResponse{
		Status:    job.Status,
		VideoPath: job.VideoPath,
		Error:     job.Error,
	})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	runID, file := chi.URLParam(r, "runId"), chi.URLParam(r, "file")

	f, err := s.artifacts.Open(runID, file)
	if err != nil {
		if errors.Is(err, artifact.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "video not found")
			return
		}
		s.logger.Error("Failed to open video", zap.String("run_id", runID), zap.String("file", file), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open video")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to open video")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, file, info.ModTime(), f)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Metrics().GetSnapshot())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Package api exposes the planning pipeline over HTTP.
package api

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/odvcencio/deskpilot/pkg/action"
	"github.com/odvcencio/deskpilot/pkg/assistant"
	"github.com/odvcencio/deskpilot/pkg/config"
	"github.com/odvcencio/deskpilot/pkg/errors"
	"github.com/odvcencio/deskpilot/pkg/executor"
	"github.com/odvcencio/deskpilot/pkg/logging"
	"github.com/odvcencio/deskpilot/pkg/planner"
)

// Synthesizer renders text to audio. Satisfied by *tts.Client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceType string) ([]byte, string, error)
}

// Config wires the server's collaborators. Assistant and TTS are optional;
// their endpoints report unavailability when unset.
type Config struct {
	RulesPath string
	Home      string
	Executor  *executor.Executor
	Assistant *assistant.Assistant
	TTS       Synthesizer
	Logger    *logging.Logger
}

// Server serves the plan/preview/execute pipeline plus the assistant and
// speech endpoints.
type Server struct {
	rulesPath string
	home      string
	exec      *executor.Executor
	assist    *assistant.Assistant
	tts       Synthesizer
	log       *logging.Logger
	router    *chi.Mux
}

// NewServer builds the HTTP server and its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		rulesPath: cfg.RulesPath,
		home:      cfg.Home,
		exec:      cfg.Executor,
		assist:    cfg.Assistant,
		tts:       cfg.TTS,
		log:       cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/plan", instrument("plan", s.handlePlan))
	r.Post("/api/preview", instrument("preview", s.handlePreview))
	r.Post("/api/execute", instrument("execute", s.handleExecute))
	r.Post("/api/assistant", instrument("assistant", s.handleAssistant))
	r.Post("/api/tts", instrument("tts", s.handleTTS))
	r.Get("/api/rules", instrument("rules", s.handleRules))
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metricsHandler())

	s.router = r
	return s
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// loadRules reads the rules file fresh so edits apply without a restart.
// A broken or missing file falls back to the built-in defaults.
func (s *Server) loadRules() *config.Rules {
	if s.rulesPath == "" {
		return config.Default(s.home)
	}
	rules, err := config.Load(s.rulesPath, s.home)
	if err != nil {
		if s.log != nil {
			s.log.Warn(logging.CategoryAPI, "rules_load_failed", userMessage(err), map[string]any{
				"path": s.rulesPath,
			})
		}
		return config.Default(s.home)
	}
	return rules
}

type planRequest struct {
	Text string `json:"text"`
}

type actionsRequest struct {
	Actions []action.Envelope `json:"actions"`
	Confirm bool              `json:"confirm"`
}

type ttsRequest struct {
	Text      string `json:"text"`
	VoiceType string `json:"voice_type"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rules := s.loadRules()
	actions, err := planner.Plan(rules, req.Text)
	if err != nil {
		recordPlan(false)
		s.logError("plan_failed", err)
		respondError(w, http.StatusBadRequest, userMessage(err))
		return
	}
	recordPlan(true)
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"actions":       action.Envelopes(actions),
		"allowed_roots": s.exec.Guard().Roots(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	preview, err := s.exec.Preview(action.FromEnvelopes(req.Actions))
	if err != nil {
		s.logError("preview_failed", err)
		respondError(w, http.StatusBadRequest, userMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req actionsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.exec.Execute(action.FromEnvelopes(req.Actions), req.Confirm)
	if err != nil {
		s.logError("execute_failed", err)
		respondError(w, http.StatusBadRequest, userMessage(err))
		return
	}
	for _, result := range resp.Results {
		recordAction(result.Action.Type, result.OK)
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	if s.assist == nil {
		respondError(w, http.StatusServiceUnavailable, "助手未配置")
		return
	}
	var req assistant.Request
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.assist.Respond(r.Context(), s.loadRules(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.IsCode(err, errors.ErrCodeInvalidInput) {
			status = http.StatusBadRequest
		}
		s.logError("assistant_failed", err)
		respondError(w, status, userMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		*assistant.Reply
	}{true, reply})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		respondError(w, http.StatusServiceUnavailable, "语音合成未配置")
		return
	}
	var req ttsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "请输入文本")
		return
	}

	audio, format, err := s.tts.Synthesize(r.Context(), text, req.VoiceType)
	if err != nil {
		s.logError("tts_failed", err)
		respondError(w, http.StatusInternalServerError, userMessage(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"audio_base64": base64.StdEncoding.EncodeToString(audio),
		"format":       format,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"rules_path":    s.rulesPath,
		"allowed_roots": s.exec.Guard().Roots(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) logError(eventType string, err error) {
	if s.log == nil {
		return
	}
	s.log.Error(logging.CategoryAPI, eventType, err.Error(), nil)
}

func userMessage(err error) string {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return coded.UserFacing()
	}
	return err.Error()
}

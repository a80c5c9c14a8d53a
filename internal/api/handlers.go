package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/attentive-data/focus.report/internal/config"
	"github.com/attentive-data/focus.report/internal/db"
	"github.com/attentive-data/focus.report/internal/engine"
	"github.com/attentive-data/focus.report/internal/httputil"
	"github.com/attentive-data/focus.report/internal/report"
	"github.com/attentive-data/focus.report/internal/session"
	"github.com/attentive-data/focus.report/internal/streak"
	"github.com/attentive-data/focus.report/internal/version"
)

// DefaultUserID is used when a request does not name a user. The
// service is single-user in the common case.
const DefaultUserID = "local"

type Server struct {
	db      *db.DB
	machine *session.Machine
	engine  *engine.Engine
	cfg     *config.TuningConfig
}

func NewServer(database *db.DB, machine *session.Machine, eng *engine.Engine, cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		db:      database,
		machine: machine,
		engine:  eng,
		cfg:     cfg,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/start", s.startSession)
	mux.HandleFunc("/api/sessions/pause", s.pauseSession)
	mux.HandleFunc("/api/sessions/resume", s.resumeSession)
	mux.HandleFunc("/api/sessions/stop", s.stopSession)
	mux.HandleFunc("/api/sessions/distraction", s.addDistraction)
	mux.HandleFunc("/api/sessions/current", s.currentSession)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/frames", s.ingestFrame)
	mux.HandleFunc("/api/streaks", s.showStreaks)
	mux.HandleFunc("/api/focus_stats", s.showFocusStats)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/debug/session-chart", s.sessionChart)
	return mux
}

type startSessionRequest struct {
	UserID        string `json:"user_id"`
	TargetSeconds int    `json:"target_seconds"`
	CameraEnabled *bool  `json:"camera_enabled"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	if req.TargetSeconds <= 0 {
		httputil.BadRequest(w, "target_seconds must be positive")
		return
	}
	cameraEnabled := true
	if req.CameraEnabled != nil {
		cameraEnabled = *req.CameraEnabled
	}

	sess, err := s.machine.Start(r.Context(), req.UserID, req.TargetSeconds, cameraEnabled)
	if err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to start session: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sess)
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.machine.Pause(r.Context()); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"state": string(s.machine.State())})
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.machine.Resume(); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"state": string(s.machine.State())})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	sess, err := s.machine.Stop(r.Context())
	if err != nil {
		// The machine has already released the session; surface the
		// persistence failure with the session so the client can
		// reconcile.
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"session": sess,
		})
		return
	}
	if sess == nil {
		httputil.WriteJSONOK(w, map[string]string{"state": string(session.StateIdle)})
		return
	}
	httputil.WriteJSONOK(w, sess)
}

type distractionRequest struct {
	Kind     string `json:"kind"`
	Severity int    `json:"severity"`
	Note     string `json:"note"`
}

func (s *Server) addDistraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req distractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Kind == "" {
		httputil.BadRequest(w, "kind is required")
		return
	}

	if err := s.machine.AddDistraction(r.Context(), req.Kind, req.Severity, req.Note); err != nil {
		switch {
		case errors.Is(err, session.ErrNotActive):
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, session.ErrBadSeverity):
			httputil.BadRequest(w, err.Error())
		default:
			httputil.InternalServerError(w, fmt.Sprintf("failed to record distraction: %v", err))
		}
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "recorded"})
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := map[string]interface{}{
		"state":     string(s.machine.State()),
		"session":   s.machine.Current(),
		"remaining": s.machine.Remaining(),
	}
	if s.engine != nil {
		resp["snapshot"] = s.engine.Latest()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.db.RecentSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []session.FocusSession{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// ingestFrame feeds one landmark frame into the detection pipeline. The
// response reports whether the frame was accepted or skipped because a
// detection was still in flight.
func (s *Server) ingestFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.engine == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "frame pipeline not running")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read frame body: %v", err))
		return
	}

	accepted := s.engine.OnFrame(engine.Frame{Data: data, Timestamp: time.Now()})
	httputil.WriteJSON(w, http.StatusAccepted, map[string]bool{"accepted": accepted})
}

func (s *Server) showStreaks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = DefaultUserID
	}

	days, err := s.db.CompletedSessionDays(r.Context(), userID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load session days: %v", err))
		return
	}
	httputil.WriteJSONOK(w, streak.Calc(days, time.Now().UTC()))
}

func (s *Server) showFocusStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	days := 1
	if d := r.URL.Query().Get("days"); d != "" {
		parsedDays, err := strconv.Atoi(d)
		if err != nil || parsedDays < 1 {
			httputil.BadRequest(w, "Invalid 'days' parameter")
			return
		}
		days = parsedDays
	}

	stats, err := s.db.FocusRollup(r.Context(), days)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute focus stats: %v", err))
		return
	}
	if stats == nil {
		stats = []db.DailyFocusStat{}
	}
	httputil.WriteJSONOK(w, stats)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"focus_gain_per_sec":    s.cfg.GetFocusGainPerSec(),
		"defocus_loss_per_sec":  s.cfg.GetDefocusLossPerSec(),
		"no_face_loss_per_sec":  s.cfg.GetNoFaceLossPerSec(),
		"min_focus_confidence":  s.cfg.GetMinFocusConfidence(),
		"distraction_threshold": s.cfg.GetDistractionThreshold(),
		"pause_on_distraction":  s.cfg.GetPauseOnDistraction(),
		"debounce_window":       s.cfg.GetDebounceWindow().String(),
		"fps_window":            s.cfg.GetFPSWindow().String(),
		"tick_interval":         s.cfg.GetTickInterval().String(),
		"autosave_interval":     s.cfg.GetAutosaveInterval().String(),
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"state":   string(s.machine.State()),
	})
}

func (s *Server) sessionChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing 'id' parameter")
		return
	}

	sess, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("session %s not found", id))
		return
	}

	page, err := report.RenderSessionChart(sess)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

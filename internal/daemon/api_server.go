package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"drover/internal/config"
	"drover/internal/logging"
	"drover/internal/scheduler"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/history", srv.handleHistory)
	mux.HandleFunc("/api/targets", srv.handleTargets)
	mux.HandleFunc("/api/stats", srv.handleStats)
	mux.HandleFunc("/api/stats/reset", srv.handleStatsReset)
	mux.HandleFunc("/api/focus", srv.handleFocus)
	mux.HandleFunc("/api/queue/", srv.handleQueueCommand)
	mux.HandleFunc("/api/quota", srv.handleQuota)
	mux.HandleFunc("/api/conversation", srv.handleConversation)
	mux.HandleFunc("/api/tasks", srv.handleTasks)
	mux.Handle("/metrics", promhttp.Handler())

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound listen address, empty before start.
func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.daemon.Scheduler().History(),
	})
}

func (s *apiServer) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"targets": s.daemon.Pool().Targets(),
	})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"stats":       s.daemon.Pool().Stats(ctx),
		"awayActions": s.daemon.Pool().AwayActions(ctx),
	})
}

func (s *apiServer) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.daemon.Pool().ResetStats(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleFocus receives window focus changes from the desktop shell and
// forwards them to every injected payload.
func (s *apiServer) handleFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Focused bool `json:"focused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid focus payload")
		return
	}
	s.daemon.Pool().SetFocusState(r.Context(), payload.Focused)
	s.writeJSON(w, http.StatusOK, map[string]any{"focused": payload.Focused})
}

func (s *apiServer) handleQueueCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	command := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	sched := s.daemon.Scheduler()
	ctx := r.Context()

	var err error
	switch command {
	case "start":
		err = sched.Start(ctx, scheduler.StartSourceUser)
	case "pause":
		err = sched.Pause()
	case "resume":
		err = sched.Resume()
	case "skip":
		err = sched.Skip(ctx)
	case "stop":
		stopped := sched.Stop()
		s.writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
		return
	case "reset":
		err = sched.Reset(ctx)
	default:
		s.writeError(w, http.StatusNotFound, "unknown queue command")
		return
	}

	if err != nil {
		s.writeError(w, queueErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func queueErrorStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, scheduler.ErrNotRunning),
		errors.Is(err, scheduler.ErrGraceActive),
		errors.Is(err, scheduler.ErrWrongMode):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrQueueEmpty):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Exhausted bool `json:"exhausted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid quota payload")
		return
	}
	s.daemon.Scheduler().SetQuotaExhausted(payload.Exhausted)
	s.writeJSON(w, http.StatusOK, map[string]any{"exhausted": payload.Exhausted})
}

func (s *apiServer) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var payload struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid conversation payload")
		return
	}
	s.daemon.Scheduler().SetConversation(payload.Target)
	s.writeJSON(w, http.StatusOK, map[string]any{"target": payload.Target})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := s.daemon.Store()

	switch r.Method {
	case http.MethodGet:
		tasks, err := st.ListTasks(ctx)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		type taskView struct {
			ID        int64     `json:"id"`
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"createdAt"`
		}
		views := make([]taskView, 0, len(tasks))
		for _, task := range tasks {
			views = append(views, taskView{ID: task.ID, Text: task.Text, CreatedAt: task.CreatedAt})
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"tasks": views})

	case http.MethodPost:
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid task payload")
			return
		}
		if strings.TrimSpace(payload.Text) == "" {
			s.writeError(w, http.StatusBadRequest, "task text is required")
			return
		}
		task, err := st.AddTask(ctx, payload.Text)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]any{"id": task.ID})

	case http.MethodDelete:
		removed, err := st.ClearTasks(ctx)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"removed": removed})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"montage/internal/api"
	"montage/internal/config"
	"montage/internal/library"
	"montage/internal/logging"
	"montage/internal/services"
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.requireAuth(srv.handleStatus))
	mux.HandleFunc("/api/assets", srv.requireAuth(srv.handleAssets))
	mux.HandleFunc("/api/assets/", srv.requireAuth(srv.handleAssetSubtree))
	mux.HandleFunc("/api/jobs", srv.requireAuth(srv.handleJobs))
	mux.HandleFunc("/api/jobs/", srv.requireAuth(srv.handleJob))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
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

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DBPath:       status.DBPath,
		LockFilePath: status.LockFilePath,
		MediaDir:     status.MediaDir,
		Assets:       status.Health.Assets,
		StepsWaiting: status.Health.StepsWaiting,
		StepsFailed:  status.Health.StepsFailed,
		JobsRunning:  status.Health.JobsRunning,
		JobsFailed:   status.Health.JobsFailed,
	})
}

func (s *apiServer) handleAssets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		assets, err := s.daemon.store.ListAssets(r.Context(), strings.TrimSpace(r.URL.Query().Get("project")))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.AssetListResponse{Assets: api.FromAssets(assets)})
	case http.MethodPost:
		var req api.CreateAssetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var (
			asset *library.Asset
			err   error
		)
		switch {
		case req.Path != "":
			asset, err = s.daemon.store.RegisterAsset(r.Context(), req.Path, req.ProjectID)
		case len(req.Data) > 0:
			asset, err = s.daemon.store.CreateAsset(r.Context(), library.NewAsset{
				Name:      req.Name,
				MIMEType:  req.MIMEType,
				ProjectID: req.ProjectID,
				Data:      req.Data,
			})
		default:
			s.writeError(w, http.StatusBadRequest, "either data or path is required")
			return
		}
		if err != nil {
			s.writeServiceError(w, err)
			return
		}

		s.daemon.runner.TriggerAsync(asset.ID)
		s.writeJSON(w, http.StatusCreated, api.AssetResponse{Asset: api.FromAsset(asset)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAssetSubtree routes /api/assets/{id}, /api/assets/{id}/pipeline, and
// /api/assets/{id}/pipeline/{step}.
func (s *apiServer) handleAssetSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/assets/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleAssetByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "pipeline":
		s.handlePipeline(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "pipeline":
		s.handleRunStep(w, r, parts[0], parts[2])
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleAssetByID(w http.ResponseWriter, r *http.Request, assetID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	asset, err := s.daemon.store.GetAsset(r.Context(), assetID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if asset == nil {
		s.writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.AssetResponse{Asset: api.FromAsset(asset)})
}

func (s *apiServer) handlePipeline(w http.ResponseWriter, r *http.Request, assetID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	states, err := s.daemon.runner.Pipeline(r.Context(), assetID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PipelineResponse{
		AssetID: assetID,
		Steps:   api.FromStepStates(states),
	})
}

func (s *apiServer) handleRunStep(w http.ResponseWriter, r *http.Request, assetID, stepID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.RunStepRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	state, err := s.daemon.runner.RunStep(r.Context(), assetID, stepID, req.Params)
	if err != nil && state == nil {
		s.writeServiceError(w, err)
		return
	}
	// A failed step run still returns the recorded state; clients read the
	// error string off the step.
	s.writeJSON(w, http.StatusOK, api.StepResponse{Step: api.FromStepState(state)})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var filter library.JobFilter
		if value := strings.TrimSpace(r.URL.Query().Get("status")); value != "" {
			parsed, ok := library.ParseJobStatus(value)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job status %q", value))
				return
			}
			filter.Status = parsed
		}
		filter.AssetID = strings.TrimSpace(r.URL.Query().Get("asset"))
		filter.ProjectID = strings.TrimSpace(r.URL.Query().Get("project"))
		jobs, err := s.daemon.store.ListJobs(r.Context(), filter)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
	case http.MethodPost:
		var req api.StartJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		kind, ok := library.ParseJobKind(req.Kind)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job kind %q", req.Kind))
			return
		}
		job, err := s.daemon.adapter.Start(r.Context(), kind, req.AssetID, req.ProjectID, req.Params)
		if err != nil && job == nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.JobResponse{Job: api.FromJob(job)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleJob serves GET /api/jobs/{id}. Every read polls the provider for
// non-terminal jobs, so clients observing a job drive its reconciliation.
func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.daemon.adapter.Poll(r.Context(), id)
	if err != nil && job == nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	details := services.Details(err)
	status := http.StatusInternalServerError
	switch details.Marker {
	case services.ErrNotFound:
		status = http.StatusNotFound
	case services.ErrValidation:
		status = http.StatusBadRequest
	case services.ErrPrecondition:
		status = http.StatusConflict
	case services.ErrConfiguration:
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, details.Message)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/pipeline"
	"pixguard/internal/services"
)

// maxUploadBytes caps multipart submissions so a runaway upload cannot
// exhaust memory or the staging volume.
const maxUploadBytes = 64 << 20

// scanWaitTimeout bounds synchronous scan requests. Runs still processing
// when it elapses are returned in their queued representation so the caller
// can poll instead.
const scanWaitTimeout = 25 * time.Second

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	runs   *api.RunService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Daemon.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Daemon.APIToken),
		logger: logger,
		daemon: d,
		runs:   api.NewRunService(d.store),
	}

	mux := http.NewServeMux()
	srv.route(mux, "/api/status", srv.handleStatus)
	srv.route(mux, "/api/scans", srv.handleScans)
	srv.route(mux, "/api/runs", srv.handleRuns)
	srv.route(mux, "/api/runs/", srv.handleRunByID)
	srv.route(mux, "/api/assets", srv.handleAssets)
	srv.route(mux, "/api/assets/", srv.handleAssetAction)
	srv.route(mux, "/api/matches", srv.handleMatches)
	srv.route(mux, "/api/matches/", srv.handleMatchByID)
	srv.route(mux, "/api/dossiers", srv.handleDossiers)
	srv.route(mux, "/api/dossiers/", srv.handleDossierByID)
	srv.route(mux, "/api/notifications", srv.handleNotifications)
	srv.route(mux, "/api/notifications/", srv.handleNotificationAction)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, authMiddleware(s.token, handler))
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
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

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		CatalogPath:  status.CatalogPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Checks:       api.FromChecks(status.Checks),
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleScans accepts a multipart image upload and either queues a scan run
// or, with wait=true, blocks until the run reaches a terminal state.
func (s *apiServer) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	file, header, owner, ok := s.acceptUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	staged, err := api.StageUpload(s.daemon.cfg, header.Filename, file)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	run, err := s.daemon.store.NewRun(r.Context(), owner, header.Filename, staged)
	if err != nil {
		_ = os.Remove(staged)
		s.writeError(w, http.StatusInternalServerError, "could not queue the scan")
		return
	}

	if !parseBoolParam(r.FormValue("wait")) {
		s.writeJSON(w, http.StatusAccepted, api.RunResponse{Run: api.FromRun(run)})
		return
	}
	s.respondAfterRun(r.Context(), w, run)
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []catalog.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, catalog.Status(trimmed))
	}

	runs, err := s.runs.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunListResponse{Runs: runs})
}

func (s *apiServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := s.pathID(w, strings.TrimPrefix(r.URL.Path, "/api/runs/"), "run")
	if !ok {
		return
	}
	run, err := s.runs.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.RunResponse{Run: *run})
}

func (s *apiServer) handleAssets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		owner := strings.TrimSpace(r.URL.Query().Get("owner"))
		assets, err := s.daemon.ListAssets(r.Context(), owner)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.AssetListResponse{Assets: api.FromAssets(assets)})
	case http.MethodPost:
		s.handleProtect(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleProtect(w http.ResponseWriter, r *http.Request) {
	file, header, owner, ok := s.acceptUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "could not read the upload")
		return
	}
	result, err := api.ProtectImage(r.Context(), api.ProtectImageRequest{
		Config:   s.daemon.cfg,
		Store:    s.daemon.store,
		Logger:   s.daemon.logger,
		Deps:     s.daemon.deps,
		Data:     data,
		Filename: header.Filename,
		Owner:    owner,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if result.Created {
		code = http.StatusCreated
	}
	s.writeJSON(w, code, api.AssetResponse{Asset: api.FromAsset(result.Asset), Created: result.Created})
}

func (s *apiServer) handleAssetAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, action, ok := s.pathAction(w, strings.TrimPrefix(r.URL.Path, "/api/assets/"), "asset")
	if !ok {
		return
	}
	if action != "rescan" {
		s.writeError(w, http.StatusNotFound, "unknown asset action")
		return
	}

	// The body is optional; a bare POST queues the rescan.
	var body struct {
		Wait bool `json:"wait"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	run, err := s.daemon.RescanAsset(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !body.Wait {
		s.writeJSON(w, http.StatusAccepted, api.RunResponse{Run: *run})
		return
	}
	stored, err := s.daemon.store.GetRun(r.Context(), run.ID)
	if err != nil || stored == nil {
		s.writeError(w, http.StatusInternalServerError, "rescan run disappeared")
		return
	}
	s.respondAfterRun(r.Context(), w, stored)
}

func (s *apiServer) handleMatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []catalog.MatchStatus
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, catalog.MatchStatus(trimmed))
	}
	matches, err := s.daemon.ListMatches(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.MatchListResponse{Matches: api.FromMatches(matches)})
}

func (s *apiServer) handleMatchByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/matches/")
	if idStr, found := strings.CutSuffix(rest, "/review"); found {
		s.handleMatchReview(w, r, idStr)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := s.pathID(w, rest, "match")
	if !ok {
		return
	}
	match, err := s.daemon.GetMatch(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if match == nil {
		s.writeError(w, http.StatusNotFound, "match not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.MatchResponse{Match: api.FromMatch(match)})
}

func (s *apiServer) handleMatchReview(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := s.pathID(w, idStr, "match")
	if !ok {
		return
	}
	var body struct {
		Action     string `json:"action"`
		ReviewedBy string `json:"reviewed_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid review request body")
		return
	}
	result, err := s.daemon.ReviewMatch(r.Context(), id, body.Action, body.ReviewedBy)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleDossiers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []catalog.DeliveryStatus
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		statuses = append(statuses, catalog.DeliveryStatus(trimmed))
	}
	dossiers, err := s.daemon.ListDossiers(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.DossierListResponse{Dossiers: api.FromDossiers(dossiers)})
}

func (s *apiServer) handleDossierByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/dossiers/")
	if idStr, found := strings.CutSuffix(rest, "/deliver"); found {
		s.handleDossierDeliver(w, r, idStr)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := s.pathID(w, rest, "dossier")
	if !ok {
		return
	}
	dossier, attempts, err := s.daemon.GetDossier(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if dossier == nil {
		s.writeError(w, http.StatusNotFound, "dossier not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.DossierDetailResponse{
		Dossier:  api.FromDossier(dossier),
		Attempts: api.FromDeliveryAttempts(attempts),
	})
}

func (s *apiServer) handleDossierDeliver(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := s.pathID(w, idStr, "dossier")
	if !ok {
		return
	}
	dossier, err := s.daemon.DeliverDossier(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DossierResponse{Dossier: dossier})
}

func (s *apiServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	query := r.URL.Query()
	owner := strings.TrimSpace(query.Get("user"))
	unread := parseBoolParam(query.Get("unread"))
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	notifications, err := s.daemon.ListNotifications(r.Context(), owner, unread, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationListResponse{
		Notifications: api.FromNotifications(notifications),
	})
}

func (s *apiServer) handleNotificationAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, action, ok := s.pathAction(w, strings.TrimPrefix(r.URL.Path, "/api/notifications/"), "notification")
	if !ok {
		return
	}
	if action != "read" {
		s.writeError(w, http.StatusNotFound, "unknown notification action")
		return
	}
	updated, err := s.daemon.MarkNotificationsRead(r.Context(), []int64{id})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationsReadResponse{Updated: updated})
}

// acceptUpload validates a multipart submission and returns the image part
// and its owner. It writes the error response itself when validation fails.
func (s *apiServer) acceptUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart request")
		return nil, nil, "", false
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		file, header, err = r.FormFile("file")
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, `multipart field "image" is required`)
		return nil, nil, "", false
	}
	owner := strings.TrimSpace(r.FormValue("owner"))
	if owner == "" {
		_ = file.Close()
		s.writeError(w, http.StatusBadRequest, "owner is required")
		return nil, nil, "", false
	}
	return file, header, owner, true
}

// respondAfterRun waits for the run to reach a terminal state and writes the
// scan result. Runs still processing at the wait deadline are returned in
// their queued representation with 202 so the caller can poll.
func (s *apiServer) respondAfterRun(ctx context.Context, w http.ResponseWriter, run *catalog.Run) {
	waitCtx, cancel := context.WithTimeout(ctx, scanWaitTimeout)
	defer cancel()

	final, err := s.waitForRun(waitCtx, run.ID)
	if err != nil {
		if final != nil {
			s.writeJSON(w, http.StatusAccepted, api.RunResponse{Run: api.FromRun(final)})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := pipeline.BuildResult(ctx, s.daemon.store, final)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromResult(result))
}

// waitForRun polls the run row until the workflow drives it to a terminal
// state. The workflow manager stays the only writer; synchronous HTTP scans
// observe rather than execute.
func (s *apiServer) waitForRun(ctx context.Context, runID int64) (*catalog.Run, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var last *catalog.Run
	for {
		run, err := s.daemon.store.GetRun(ctx, runID)
		if err != nil {
			return last, err
		}
		if run == nil {
			return last, fmt.Errorf("run %d disappeared while waiting", runID)
		}
		last = run
		switch run.Status {
		case catalog.StatusCompleted, catalog.StatusFailed, catalog.StatusReview:
			return run, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *apiServer) pathID(w http.ResponseWriter, idStr, kind string) (int64, bool) {
	if idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, kind+" not found")
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid "+kind+" id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) pathAction(w http.ResponseWriter, rest, kind string) (int64, string, bool) {
	idStr, action, found := strings.Cut(rest, "/")
	if !found || action == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, kind+" action not found")
		return 0, "", false
	}
	id, ok := s.pathID(w, idStr, kind)
	if !ok {
		return 0, "", false
	}
	return id, action, true
}

func parseBoolParam(value string) bool {
	return value == "1" || strings.EqualFold(value, "true")
}

// httpStatusForError maps service sentinels onto HTTP status codes.
func httpStatusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrState), errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrDelivery):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError surfaces the human-readable message from a wrapped
// service error; internal causes stay in the logs.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	message := services.Details(err).Message
	if message == "" {
		message = err.Error()
	}
	s.writeError(w, httpStatusForError(err), message)
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

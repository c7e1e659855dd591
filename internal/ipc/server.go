package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"pixguard/internal/api"
	"pixguard/internal/catalog"
	"pixguard/internal/daemon"
	"pixguard/internal/logging"
	"pixguard/internal/logs"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Pixguard", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun pixguard daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.CatalogPath = status.CatalogPath
	resp.LockPath = status.LockFilePath
	resp.Workflow = api.FromStatusSummary(status.Workflow)
	resp.Checks = api.FromChecks(status.Checks)
	return nil
}

func (s *service) RunList(req RunListRequest, resp *RunListResponse) error {
	statuses := make([]catalog.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := catalog.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	runs, err := s.daemon.ListRuns(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Runs = api.FromRuns(runs)
	return nil
}

func (s *service) RunDescribe(req RunDescribeRequest, resp *RunDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid run id %d", req.ID)
	}
	run, err := s.daemon.GetRun(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d not found", req.ID)
	}
	resp.Run = api.FromRun(run)
	return nil
}

func (s *service) RunResult(req RunResultRequest, resp *RunResultResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid run id %d", req.ID)
	}
	result, err := s.daemon.RunResult(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) RunClear(_ RunClearRequest, resp *RunClearResponse) error {
	s.log().Debug("run clear requested")
	removed, err := s.daemon.ClearRuns(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("runs cleared",
		logging.String(logging.FieldEventType, "run_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) RunClearCompleted(_ RunClearCompletedRequest, resp *RunClearCompletedResponse) error {
	s.log().Debug("run clear completed requested")
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed runs cleared",
		logging.String(logging.FieldEventType, "run_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) RunClearFailed(_ RunClearFailedRequest, resp *RunClearFailedResponse) error {
	s.log().Debug("run clear failed requested")
	removed, err := s.daemon.ClearFailed(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("failed runs cleared",
		logging.String(logging.FieldEventType, "run_clear_failed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) RunReset(_ RunResetRequest, resp *RunResetResponse) error {
	s.log().Debug("run reset stuck requested")
	updated, err := s.daemon.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("stuck runs reset",
		logging.String(logging.FieldEventType, "run_reset_stuck"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) RunRetry(req RunRetryRequest, resp *RunRetryResponse) error {
	s.log().Debug("run retry requested", logging.Int("run_count", len(req.IDs)))
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("runs retried",
		logging.String(logging.FieldEventType, "run_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) RunHealth(_ RunHealthRequest, resp *RunHealthResponse) error {
	health, err := s.daemon.RunHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Review = health.Review
	resp.Failed = health.Failed
	resp.Completed = health.Completed
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalRuns = health.TotalRuns
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) Protect(req ProtectRequest, resp *ProtectResponse) error {
	s.log().Debug("protect requested", logging.String(logging.FieldOwner, req.Owner))
	asset, created, err := s.daemon.ProtectFile(s.ctx, req.Path, req.Owner)
	if err != nil {
		return err
	}
	resp.Asset = api.FromAsset(asset)
	resp.Created = created
	return nil
}

func (s *service) Scan(req ScanRequest, resp *ScanResponse) error {
	s.log().Debug("scan requested", logging.String(logging.FieldOwner, req.Owner))
	run, err := s.daemon.ScanFile(s.ctx, req.Path, req.Owner)
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("scan did not queue a run")
	}
	resp.Run = *run
	s.log().Info("scan queued via IPC",
		logging.String(logging.FieldEventType, "scan_queued"),
		logging.Int64(logging.FieldRunID, run.ID))
	return nil
}

func (s *service) Rescan(req RescanRequest, resp *RescanResponse) error {
	if req.AssetID <= 0 {
		return fmt.Errorf("invalid asset id %d", req.AssetID)
	}
	run, err := s.daemon.RescanAsset(s.ctx, req.AssetID)
	if err != nil {
		return err
	}
	if run == nil {
		return errors.New("rescan did not queue a run")
	}
	resp.Run = *run
	s.log().Info("rescan queued via IPC",
		logging.String(logging.FieldEventType, "rescan_queued"),
		logging.Int64(logging.FieldRunID, run.ID),
		logging.Int64(logging.FieldAssetID, req.AssetID))
	return nil
}

func (s *service) AssetList(req AssetListRequest, resp *AssetListResponse) error {
	assets, err := s.daemon.ListAssets(s.ctx, req.Owner)
	if err != nil {
		return err
	}
	resp.Assets = api.FromAssets(assets)
	return nil
}

func (s *service) MatchList(req MatchListRequest, resp *MatchListResponse) error {
	statuses := make([]catalog.MatchStatus, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := catalog.ParseMatchStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	matches, err := s.daemon.ListMatches(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Matches = api.FromMatches(matches)
	return nil
}

func (s *service) MatchDescribe(req MatchDescribeRequest, resp *MatchDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid match id %d", req.ID)
	}
	match, err := s.daemon.GetMatch(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if match == nil {
		return fmt.Errorf("match %d not found", req.ID)
	}
	resp.Match = api.FromMatch(match)
	return nil
}

func (s *service) MatchReview(req MatchReviewRequest, resp *MatchReviewResponse) error {
	s.log().Debug("match review requested",
		logging.Int64(logging.FieldMatchID, req.ID),
		logging.String("action", req.Action))
	result, err := s.daemon.ReviewMatch(s.ctx, req.ID, req.Action, req.ReviewedBy)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) DossierList(req DossierListRequest, resp *DossierListResponse) error {
	statuses := make([]catalog.DeliveryStatus, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := catalog.ParseDeliveryStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	dossiers, err := s.daemon.ListDossiers(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Dossiers = api.FromDossiers(dossiers)
	return nil
}

func (s *service) DossierDescribe(req DossierDescribeRequest, resp *DossierDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid dossier id %d", req.ID)
	}
	dossier, attempts, err := s.daemon.GetDossier(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if dossier == nil {
		return fmt.Errorf("dossier %d not found", req.ID)
	}
	resp.Dossier = api.FromDossier(dossier)
	resp.Attempts = api.FromDeliveryAttempts(attempts)
	return nil
}

func (s *service) DossierDeliver(req DossierDeliverRequest, resp *DossierDeliverResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid dossier id %d", req.ID)
	}
	s.log().Debug("dossier delivery requested", logging.Int64(logging.FieldDossierID, req.ID))
	dossier, err := s.daemon.DeliverDossier(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Dossier = dossier
	return nil
}

func (s *service) NotificationList(req NotificationListRequest, resp *NotificationListResponse) error {
	rows, err := s.daemon.ListNotifications(s.ctx, req.Owner, req.UnreadOnly, req.Limit)
	if err != nil {
		return err
	}
	resp.Notifications = api.FromNotifications(rows)
	return nil
}

func (s *service) NotificationsRead(req NotificationsReadRequest, resp *NotificationsReadResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("notifications read requires at least one id")
	}
	updated, err := s.daemon.MarkNotificationsRead(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	return nil
}

package dossier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/services"
)

// Worker drains the delivery queue: it claims pending dossiers, sends
// them, and records every attempt. Each dossier transitions pending→sent
// on claim and sent→delivered or sent→failed when the attempt resolves,
// so a crash mid-send leaves an auditable trail instead of a silent loss.
type Worker struct {
	store       *catalog.Store
	logger      *slog.Logger
	deliverer   Deliverer
	notifier    notify.Service
	interval    time.Duration
	maxAttempts int
}

// NewWorker builds a delivery worker backed by the SMTP mailer.
func NewWorker(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notify.Service) (*Worker, error) {
	mailer, err := NewMailer(cfg.Delivery, logger)
	if err != nil {
		return nil, err
	}
	return NewWorkerWithDeliverer(cfg, store, logger, notifier, mailer), nil
}

// NewWorkerWithDeliverer builds a worker around an explicit deliverer
// (used in tests).
func NewWorkerWithDeliverer(cfg *config.Config, store *catalog.Store, logger *slog.Logger, notifier notify.Service, deliverer Deliverer) *Worker {
	interval := time.Duration(cfg.Daemon.DeliveryPollSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxAttempts := cfg.Delivery.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		store:       store,
		logger:      logging.NewComponentLogger(logger, "dossier-delivery"),
		deliverer:   deliverer,
		notifier:    notifier,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// StartLoop polls the queue until the context is cancelled. Failed
// dossiers wait for the next tick, so at most one retry per dossier per
// interval.
func (w *Worker) StartLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("delivery worker stopping")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		delivered, err := w.DeliverNext(ctx)
		if err != nil {
			w.logger.Error("delivery queue scan failed", logging.Error(err))
			return
		}
		if !delivered {
			return
		}
	}
}

// DeliverNext claims and sends the oldest deliverable dossier. It returns
// true only when a dossier was delivered; a failed attempt is recorded on
// the dossier and reported as (false, nil) so the caller does not spin on
// the same row.
func (w *Worker) DeliverNext(ctx context.Context) (bool, error) {
	dossier, err := w.store.NextDeliverableDossier(ctx, w.maxAttempts)
	if err != nil {
		return false, services.Wrap(services.ErrPersistence, "delivery", "next dossier", "Could not read the delivery queue", err)
	}
	if dossier == nil {
		return false, nil
	}

	claimed, err := w.store.ClaimDossier(ctx, dossier.ID, dossier.Status)
	if err != nil {
		return false, services.Wrap(services.ErrPersistence, "delivery", "claim dossier", "Could not claim the dossier for delivery", err)
	}
	if !claimed {
		// Another worker got there first.
		return false, nil
	}

	attempt := dossier.Attempts + 1
	if _, err := w.attemptDelivery(ctx, dossier, attempt); err != nil {
		return false, nil
	}
	return true, nil
}

// Deliver sends one dossier on demand, outside the poll loop. Delivered
// dossiers are returned as-is rather than re-sent.
func (w *Worker) Deliver(ctx context.Context, dossierID int64) (*catalog.Dossier, error) {
	dossier, err := w.store.GetDossier(ctx, dossierID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "delivery", "load dossier", "Could not load the dossier", err)
	}
	if dossier == nil {
		return nil, services.Wrap(services.ErrNotFound, "delivery", "load dossier", fmt.Sprintf("Dossier %d does not exist", dossierID), nil)
	}
	if dossier.Status == catalog.DeliveryDelivered {
		return dossier, nil
	}

	claimed, err := w.store.ClaimDossier(ctx, dossier.ID, dossier.Status)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "delivery", "claim dossier", "Could not claim the dossier for delivery", err)
	}
	if !claimed {
		return nil, services.Wrap(services.ErrTransient, "delivery", "claim dossier",
			fmt.Sprintf("Dossier %d is being delivered by the background worker; try again shortly", dossierID), nil)
	}

	if _, err := w.attemptDelivery(ctx, dossier, dossier.Attempts+1); err != nil {
		return nil, err
	}
	refreshed, err := w.store.GetDossier(ctx, dossier.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "delivery", "load dossier", "Could not reload the dossier after delivery", err)
	}
	return refreshed, nil
}

// attemptDelivery runs one send and records its outcome on the dossier
// and in the attempt log. The caller has already claimed the dossier.
func (w *Worker) attemptDelivery(ctx context.Context, dossier *catalog.Dossier, attempt int) (string, error) {
	sentTo, deliverErr := w.deliverer.Deliver(ctx, dossier)
	if deliverErr != nil {
		if err := w.store.RecordDeliveryAttempt(ctx, dossier.ID, attempt, catalog.DeliveryFailed, deliverErr.Error()); err != nil {
			w.logger.Warn("failed to record delivery attempt", logging.Int64(logging.FieldDossierID, dossier.ID), logging.Error(err))
		}
		if err := w.store.MarkDossierFailed(ctx, dossier.ID, deliverErr.Error()); err != nil {
			w.logger.Warn("failed to mark dossier failed", logging.Int64(logging.FieldDossierID, dossier.ID), logging.Error(err))
		}
		w.logger.Warn("dossier delivery failed",
			logging.Int64(logging.FieldDossierID, dossier.ID),
			logging.Int("attempt", attempt),
			logging.Error(deliverErr),
		)
		w.publish(ctx, notify.EventDeliveryFailed, dossier, notify.Payload{
			"attempt": strconv.Itoa(attempt),
			"error":   deliverErr.Error(),
		})
		return "", deliverErr
	}

	if err := w.store.RecordDeliveryAttempt(ctx, dossier.ID, attempt, catalog.DeliveryDelivered, ""); err != nil {
		w.logger.Warn("failed to record delivery attempt", logging.Int64(logging.FieldDossierID, dossier.ID), logging.Error(err))
	}
	if err := w.store.MarkDossierDelivered(ctx, dossier.ID, sentTo); err != nil {
		return "", services.Wrap(services.ErrPersistence, "delivery", "mark delivered", "Delivery succeeded but could not be recorded", err)
	}
	w.logger.Info("dossier delivered",
		logging.Int64(logging.FieldDossierID, dossier.ID),
		logging.Int("attempt", attempt),
		logging.String("recipient", sentTo),
	)
	w.publish(ctx, notify.EventDossierDelivered, dossier, notify.Payload{
		"recipient": sentTo,
	})
	return sentTo, nil
}

func (w *Worker) publish(ctx context.Context, event notify.Event, dossier *catalog.Dossier, extra notify.Payload) {
	if w.notifier == nil {
		return
	}
	payload := notify.Payload{
		"dossier_id": strconv.FormatInt(dossier.ID, 10),
		"subject":    dossier.Subject,
	}
	if snap, err := ParseSnapshot(dossier.SnapshotJSON); err == nil {
		payload["owner"] = snap.Owner
		payload["match_id"] = strconv.FormatInt(snap.MatchID, 10)
	}
	for key, value := range extra {
		payload[key] = value
	}
	if err := w.notifier.Publish(ctx, event, payload); err != nil {
		w.logger.Debug("delivery notification failed", logging.String(logging.FieldEventType, string(event)), logging.Error(err))
	}
}

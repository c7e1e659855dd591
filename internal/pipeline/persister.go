package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/logging"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/stage"
)

// Persister records qualifying candidates as pending matches. Each (source
// asset, matched asset) pair is recorded at most once no matter how many
// runs rediscover it, and one candidate failing to persist never blocks the
// rest of the batch.
type Persister struct {
	store  *catalog.Store
	logger *slog.Logger
}

// NewPersister constructs the persisting stage handler.
func NewPersister(store *catalog.Store, logger *slog.Logger) *Persister {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "persister"))
	}
	return &Persister{store: store, logger: stageLogger}
}

func (p *Persister) Prepare(ctx context.Context, run *catalog.Run) error {
	if run.ProgressStage == "" {
		run.ProgressStage = "Persisting"
	}
	run.ProgressMessage = "Recording qualifying matches"
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	logging.WithContext(ctx, p.logger).Info("starting match persistence", logging.Int64(logging.FieldRunID, run.ID))
	return nil
}

func (p *Persister) Execute(ctx context.Context, run *catalog.Run) error {
	logger := logging.WithContext(ctx, p.logger)

	if run.SourceAssetID == nil {
		return services.Wrap(
			services.ErrValidation, "persisting", "validate inputs",
			"Run has no source asset; rerun fingerprinting", nil)
	}
	scored, err := stage.ParseScored(run.ScoredJSON)
	if err != nil {
		return err
	}
	qualified := scoring.Qualified(scored)
	if len(qualified) == 0 {
		run.MatchCount = 0
		run.SetProgress("Persisting", "No qualifying matches", 100)
		logger.Info("no qualifying matches to record")
		return nil
	}

	persisted, fresh, failed := 0, 0, 0
	for _, hit := range qualified {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, created, err := p.persistOne(ctx, run, hit)
		if err != nil {
			failed++
			logger.Warn(
				"failed to record match, continuing with the rest",
				logging.String(logging.FieldProvider, hit.Candidate.Provider),
				logging.String("target", hit.Candidate.TargetURL()),
				logging.Error(err),
			)
			continue
		}
		persisted++
		if created {
			fresh++
		}
	}

	run.MatchCount = int64(persisted)
	message := fmt.Sprintf("Recorded %d matches", persisted)
	if failed > 0 {
		message = fmt.Sprintf("Recorded %d matches (%d failed)", persisted, failed)
	}
	run.SetProgress("Persisting", message, 100)
	logger.Info(
		"match persistence finished",
		logging.Int("persisted", persisted),
		logging.Int("new", fresh),
		logging.Int("existing", persisted-fresh),
		logging.Int("failed", failed),
	)
	return nil
}

func (p *Persister) persistOne(ctx context.Context, run *catalog.Run, hit scoring.Scored) (*catalog.Match, bool, error) {
	cand := hit.Candidate
	asset := &catalog.MatchedAsset{
		Kind:         catalog.AssetExternal,
		URL:          cand.TargetURL(),
		Provider:     cand.Provider,
		Title:        cand.Title,
		SourceDomain: cand.SourceDomain,
	}
	if cand.InternalAssetID != 0 {
		internalID := cand.InternalAssetID
		asset.Kind = catalog.AssetInternal
		asset.SourceAssetID = &internalID
	}
	registered, err := p.store.EnsureMatchedAsset(ctx, asset)
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "persisting", "register matched asset", "", err)
	}

	payload, err := json.Marshal(hit)
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "persisting", "encode candidate", "", err)
	}
	match, created, err := p.store.InsertMatchIfAbsent(ctx, &catalog.Match{
		SourceAssetID:  *run.SourceAssetID,
		MatchedAssetID: registered.ID,
		RunID:          &run.ID,
		Score:          hit.Score,
		Basis:          hit.Basis,
		Status:         catalog.MatchPending,
		CandidateJSON:  string(payload),
	})
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "persisting", "insert match", "", err)
	}
	return match, created, nil
}

// HealthCheck verifies the catalog database is reachable.
func (p *Persister) HealthCheck(ctx context.Context) stage.Health {
	const name = "persister"
	if p.store == nil {
		return stage.Unhealthy(name, "catalog store unavailable")
	}
	health := p.store.CheckHealth(ctx)
	if !health.DatabaseReadable {
		detail := health.Error
		if detail == "" {
			detail = "catalog database not readable"
		}
		return stage.Unhealthy(name, detail)
	}
	return stage.Healthy(name)
}

package pipeline

import (
	"context"
	"fmt"

	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/embedding"
	"pixguard/internal/logging"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/stage"
)

// Scorer ranks collected candidates against the run's fingerprint and
// records which of them qualify as matches.
type Scorer struct {
	store  *catalog.Store
	cfg    *config.Config
	logger *slog.Logger
	scorer *scoring.Scorer
}

// NewScorer constructs the scoring stage handler. The models provider is
// shared with the fingerprinter so the text tower loads at most once.
func NewScorer(cfg *config.Config, store *catalog.Store, logger *slog.Logger, models *embedding.Lazy) *Scorer {
	return NewScorerWithDependencies(cfg, store, logger, scoring.NewScorer(cfg, models, logger))
}

// NewScorerWithDependencies allows injecting collaborators (used in tests).
func NewScorerWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, scorer *scoring.Scorer) *Scorer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "scorer"))
	}
	return &Scorer{store: store, cfg: cfg, logger: stageLogger, scorer: scorer}
}

func (s *Scorer) Prepare(ctx context.Context, run *catalog.Run) error {
	if run.ProgressStage == "" {
		run.ProgressStage = "Scoring"
	}
	run.ProgressMessage = "Ranking candidates against the fingerprint"
	run.ProgressPercent = 0
	run.ErrorMessage = ""
	logging.WithContext(ctx, s.logger).Info("starting scoring", logging.Int64(logging.FieldRunID, run.ID))
	return nil
}

func (s *Scorer) Execute(ctx context.Context, run *catalog.Run) error {
	logger := logging.WithContext(ctx, s.logger)

	fp, err := stage.ParseFingerprint(run.FingerprintJSON)
	if err != nil {
		return err
	}
	if !fp.HasSignals() {
		return services.Wrap(
			services.ErrValidation, "scoring", "validate inputs",
			"Run carries no fingerprint; rerun fingerprinting", nil)
	}
	candidates, err := stage.ParseCandidates(run.CandidatesJSON)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		run.ScoredJSON = ""
		run.SetProgress("Scoring", "No candidates to score", 100)
		logger.Info("no candidates to score")
		return nil
	}

	scored, err := s.scorer.ScoreAll(ctx, &fp, candidates)
	if err != nil {
		return err
	}
	run.ScoredJSON, err = stage.EncodeScored(scored)
	if err != nil {
		return err
	}

	qualified := scoring.Qualified(scored)
	run.SetProgress("Scoring", fmt.Sprintf("Scored %d candidates, %d qualified", len(scored), len(qualified)), 100)
	attrs := []logging.Attr{
		logging.Int("candidates", len(scored)),
		logging.Int("qualified", len(qualified)),
	}
	if len(qualified) > 0 {
		attrs = append(attrs, logging.Float64("top_score", qualified[0].Score))
	}
	logger.Info("scoring completed", logging.Args(attrs...)...)
	return nil
}

// HealthCheck reports scoring readiness. Scoring is pure computation over
// the run payload, so only wiring can break it.
func (s *Scorer) HealthCheck(ctx context.Context) stage.Health {
	const name = "scorer"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if s.scorer == nil {
		return stage.Unhealthy(name, "scorer unavailable")
	}
	return stage.Healthy(name)
}

package api

import (
	"context"
	"fmt"
	"log/slog"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/dossier"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/review"
)

type ReviewMatchRequest struct {
	Config     *config.Config
	Store      *catalog.Store
	Logger     *slog.Logger
	Reviewer   *review.Service // optional; built from config when nil
	MatchID    int64
	Action     string
	ReviewedBy string
}

// ReviewMatch applies a confirm or decline decision to a match and reports
// the settled state in transport form. Repeating a decision replays the
// stored outcome.
func ReviewMatch(ctx context.Context, req ReviewMatchRequest) (ReviewResult, error) {
	if req.Store == nil {
		return ReviewResult{}, fmt.Errorf("catalog store is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	action, err := review.ParseAction(req.Action)
	if err != nil {
		return ReviewResult{}, err
	}

	reviewer := req.Reviewer
	if reviewer == nil {
		if req.Config == nil {
			return ReviewResult{}, fmt.Errorf("configuration is required")
		}
		reviewer = review.NewService(req.Config, req.Store, logger)
	}

	outcome, err := reviewer.Review(ctx, req.MatchID, action, req.ReviewedBy)
	if err != nil {
		return ReviewResult{}, err
	}

	result := ReviewResult{
		Success:      true,
		MatchID:      req.MatchID,
		Status:       string(outcome.Status),
		Transitioned: outcome.Transitioned,
	}
	if outcome.Dossier != nil {
		result.DossierID = outcome.Dossier.ID
	}
	if outcome.DossierErr != nil {
		result.DossierError = outcome.DossierErr.Error()
	}
	return result, nil
}

type DeliverDossierRequest struct {
	Config    *config.Config
	Store     *catalog.Store
	Logger    *slog.Logger
	Worker    *dossier.Worker // optional; built from config when nil
	DossierID int64
}

// DeliverDossier sends one dossier immediately instead of waiting for the
// delivery lane's next tick. The failed attempt is recorded on the dossier
// before the error comes back, so a failure here never loses history.
func DeliverDossier(ctx context.Context, req DeliverDossierRequest) (Dossier, error) {
	if req.Store == nil {
		return Dossier{}, fmt.Errorf("catalog store is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	worker := req.Worker
	if worker == nil {
		if req.Config == nil {
			return Dossier{}, fmt.Errorf("configuration is required")
		}
		built, err := dossier.NewWorker(req.Config, req.Store, logger, notify.NewService(req.Config, req.Store))
		if err != nil {
			return Dossier{}, err
		}
		worker = built
	}

	delivered, err := worker.Deliver(ctx, req.DossierID)
	if err != nil {
		return Dossier{}, err
	}
	return FromDossier(delivered), nil
}

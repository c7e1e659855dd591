// Package review applies operator decisions to matches. A pending match
// accepts exactly one decision; repeating a decision is a no-op that
// reports the state already reached, so retried CLI calls and double
// clicks in a frontend cannot duplicate enforcement work.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/dossier"
	"pixguard/internal/logging"
	"pixguard/internal/notify"
	"pixguard/internal/services"
)

// Action is an operator decision on a pending match.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionDecline Action = "decline"
)

// ParseAction maps user input onto a review action.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionConfirm:
		return ActionConfirm, nil
	case ActionDecline:
		return ActionDecline, nil
	default:
		return "", services.Wrap(
			services.ErrValidation,
			"review",
			"parse action",
			fmt.Sprintf("Unknown review action %q; use confirm or decline", raw),
			nil,
		)
	}
}

// Outcome reports where the match ended up. Transitioned is false when the
// match was already terminal and the call changed nothing. DossierErr
// carries a dossier-creation failure without undoing the confirmation.
type Outcome struct {
	Match        *catalog.Match
	Status       catalog.MatchStatus
	Transitioned bool
	Dossier      *catalog.Dossier
	DossierErr   error
}

// DossierFactory creates the dossier for a confirmed match.
type DossierFactory interface {
	Ensure(ctx context.Context, req dossier.BuildRequest) (*catalog.Dossier, bool, error)
}

// Service reviews matches and queues dossiers for confirmed ones.
type Service struct {
	store    *catalog.Store
	logger   *slog.Logger
	builder  DossierFactory
	notifier notify.Service
}

// NewService wires the service with the production dossier builder and
// notifier.
func NewService(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Service {
	return NewServiceWithDependencies(store, logger, dossier.NewBuilder(cfg, store, logger), notify.NewService(cfg, store))
}

// NewServiceWithDependencies wires the service with explicit collaborators
// (used in tests).
func NewServiceWithDependencies(store *catalog.Store, logger *slog.Logger, builder DossierFactory, notifier notify.Service) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "review"),
		builder:  builder,
		notifier: notifier,
	}
}

// Review applies an action to a match. Confirming transitions the match
// first and then creates its dossier; a dossier failure is reported on the
// outcome but never rolls the confirmation back, since EnsureDossier can
// repair it later. Reviewing an already-decided match returns the existing
// decision without side effects.
func (s *Service) Review(ctx context.Context, matchID int64, action Action, reviewedBy string) (*Outcome, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "review", "load match", "Could not load the match", err)
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "review", "load match", fmt.Sprintf("Match %d does not exist", matchID), nil)
	}
	if match.Status.Terminal() {
		return s.settledOutcome(ctx, match), nil
	}

	target := catalog.MatchConfirmed
	if action == ActionDecline {
		target = catalog.MatchDeclined
	}

	won, err := s.store.TransitionMatch(ctx, matchID, catalog.MatchPending, target, reviewedBy)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "review", "transition match", "Could not record the review decision", err)
	}
	refreshed, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "review", "reload match", "Decision recorded but the match could not be reloaded", err)
	}
	if !won {
		// A concurrent reviewer decided first; report their decision.
		return s.settledOutcome(ctx, refreshed), nil
	}

	s.logger.Info("match reviewed",
		logging.Int64(logging.FieldMatchID, matchID),
		logging.String("decision", string(target)),
		logging.String("reviewed_by", reviewedBy),
	)

	outcome := &Outcome{Match: refreshed, Status: refreshed.Status, Transitioned: true}
	if target == catalog.MatchConfirmed {
		created, err := s.createDossier(ctx, refreshed)
		outcome.Dossier = created
		outcome.DossierErr = err
		if err != nil {
			s.logger.Warn("dossier creation failed; match stays confirmed",
				logging.Int64(logging.FieldMatchID, matchID),
				logging.Error(err),
			)
		}
	}

	s.announce(ctx, refreshed, target)
	return outcome, nil
}

// EnsureDossier creates the missing dossier for a confirmed match. It
// repairs confirmations whose dossier creation failed; when the dossier
// already exists it is returned unchanged.
func (s *Service) EnsureDossier(ctx context.Context, matchID int64) (*catalog.Dossier, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "review", "load match", "Could not load the match", err)
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "review", "load match", fmt.Sprintf("Match %d does not exist", matchID), nil)
	}
	if match.Status != catalog.MatchConfirmed {
		return nil, services.Wrap(
			services.ErrState,
			"review",
			"ensure dossier",
			fmt.Sprintf("Only confirmed matches carry a dossier; match %d is %s", matchID, match.Status),
			nil,
		)
	}
	return s.createDossier(ctx, match)
}

// settledOutcome describes a match that is already terminal, attaching the
// existing dossier for confirmed ones.
func (s *Service) settledOutcome(ctx context.Context, match *catalog.Match) *Outcome {
	outcome := &Outcome{Match: match, Status: match.Status, Transitioned: false}
	if match.Status == catalog.MatchConfirmed {
		existing, err := s.store.FindDossierByMatch(ctx, match.ID)
		if err != nil {
			s.logger.Warn("could not look up the existing dossier",
				logging.Int64(logging.FieldMatchID, match.ID),
				logging.Error(err),
			)
		} else {
			outcome.Dossier = existing
		}
	}
	return outcome
}

func (s *Service) createDossier(ctx context.Context, match *catalog.Match) (*catalog.Dossier, error) {
	source, err := s.store.GetSourceAsset(ctx, match.SourceAssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "review", "load source asset", "Could not load the protected asset", err)
	}
	if source == nil {
		return nil, services.Wrap(services.ErrNotFound, "review", "load source asset", fmt.Sprintf("Source asset %d is missing", match.SourceAssetID), nil)
	}
	matched, err := s.store.GetMatchedAsset(ctx, match.MatchedAssetID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "review", "load matched asset", "Could not load the matched asset", err)
	}
	if matched == nil {
		return nil, services.Wrap(services.ErrNotFound, "review", "load matched asset", fmt.Sprintf("Matched asset %d is missing", match.MatchedAssetID), nil)
	}

	created, _, err := s.builder.Ensure(ctx, dossier.BuildRequest{Match: match, Source: source, Matched: matched})
	return created, err
}

func (s *Service) announce(ctx context.Context, match *catalog.Match, decision catalog.MatchStatus) {
	if s.notifier == nil {
		return
	}
	event := notify.EventMatchConfirmed
	if decision == catalog.MatchDeclined {
		event = notify.EventMatchDeclined
	}
	target := fmt.Sprintf("asset #%d", match.MatchedAssetID)
	if matched, err := s.store.GetMatchedAsset(ctx, match.MatchedAssetID); err == nil && matched != nil && matched.URL != "" {
		target = matched.URL
	}
	payload := notify.Payload{
		"match_id": strconv.FormatInt(match.ID, 10),
		"target":   target,
	}
	if source, err := s.store.GetSourceAsset(ctx, match.SourceAssetID); err == nil && source != nil {
		payload["owner"] = source.Owner
	}
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		s.logger.Debug("review notification failed", logging.String(logging.FieldEventType, string(event)), logging.Error(err))
	}
}

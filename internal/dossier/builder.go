// Package dossier turns confirmed matches into takedown reports and
// delivers them to the configured enforcement recipient over SMTP.
package dossier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
	"pixguard/internal/logging"
	"pixguard/internal/pagemeta"
	"pixguard/internal/providers"
	"pixguard/internal/scoring"
	"pixguard/internal/services"
	"pixguard/internal/textutil"
)

// BuildRequest is the single call shape for dossier creation: the match
// being confirmed plus the two assets it links. All three are required.
type BuildRequest struct {
	Match   *catalog.Match
	Source  *catalog.SourceAsset
	Matched *catalog.MatchedAsset
}

func (r BuildRequest) validate() error {
	if r.Match == nil || r.Match.ID == 0 || r.Source == nil || r.Matched == nil {
		return services.Wrap(
			services.ErrValidation,
			"dossier",
			"build request",
			"Dossier request requires the match, its source asset and its matched asset",
			nil,
		)
	}
	return nil
}

// Builder assembles dossiers from the facts persisted on the match row.
type Builder struct {
	store  *catalog.Store
	cfg    *config.Config
	logger *slog.Logger
	pages  *pagemeta.Fetcher
}

// NewBuilder constructs a builder with a live page-metadata fetcher.
func NewBuilder(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Builder {
	timeout := time.Duration(cfg.Delivery.TimeoutSeconds) * time.Second
	return NewBuilderWithDependencies(cfg, store, logger, pagemeta.NewFetcher(logger, timeout))
}

// NewBuilderWithDependencies constructs a builder with explicit
// dependencies (used in tests). A nil fetcher disables page enrichment.
func NewBuilderWithDependencies(cfg *config.Config, store *catalog.Store, logger *slog.Logger, pages *pagemeta.Fetcher) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "dossier-builder"),
		pages:  pages,
	}
}

// Ensure returns the dossier for a confirmed match, creating it on first
// call. The UNIQUE(match_id) constraint backs the at-most-once guarantee,
// so concurrent confirms converge on a single row.
func (b *Builder) Ensure(ctx context.Context, req BuildRequest) (*catalog.Dossier, bool, error) {
	if err := req.validate(); err != nil {
		return nil, false, err
	}
	existing, err := b.store.FindDossierByMatch(ctx, req.Match.ID)
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "dossier", "find dossier", "Could not look up the existing dossier", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	draft, err := b.Build(ctx, req)
	if err != nil {
		return nil, false, err
	}
	stored, created, err := b.store.EnsureDossier(ctx, draft)
	if err != nil {
		return nil, false, services.Wrap(services.ErrPersistence, "dossier", "persist dossier", "Could not record the dossier; retry the confirmation", err)
	}
	return stored, created, nil
}

// Build assembles an unsaved dossier from the match's stored candidate
// payload. Apart from the best-effort page enrichment the result is
// deterministic for a given match row.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*catalog.Dossier, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	snapshot := b.snapshotFor(ctx, req)
	groupID, err := b.groupFor(ctx, req.Match.SourceAssetID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "dossier", "encode snapshot", "Could not encode the dossier snapshot", err)
	}

	return &catalog.Dossier{
		MatchID:      req.Match.ID,
		GroupID:      groupID,
		Status:       catalog.DeliveryPending,
		Subject:      subjectFor(snapshot),
		BodyText:     renderBody(b.cfg.Delivery, snapshot),
		SnapshotJSON: string(payload),
	}, nil
}

// groupFor keeps all dossiers about the same protected asset under one
// group id so an enforcement thread can be tracked end to end.
func (b *Builder) groupFor(ctx context.Context, sourceAssetID int64) (string, error) {
	groupID, err := b.store.DossierGroupForAsset(ctx, sourceAssetID)
	if err != nil {
		return "", services.Wrap(services.ErrPersistence, "dossier", "resolve group", "Could not resolve the dossier group", err)
	}
	if groupID == "" {
		groupID = uuid.NewString()
	}
	return groupID, nil
}

func (b *Builder) snapshotFor(ctx context.Context, req BuildRequest) Snapshot {
	var scored scoring.Scored
	if raw := strings.TrimSpace(req.Match.CandidateJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &scored); err != nil {
			b.logger.Warn("match candidate payload unreadable, dossier falls back to asset facts",
				logging.Int64(logging.FieldMatchID, req.Match.ID),
				logging.Error(err),
			)
		}
	}
	candidate := scored.Candidate

	targetURL := candidate.TargetURL()
	if targetURL == "" {
		targetURL = req.Matched.URL
	}
	title := candidate.Title
	if title == "" {
		title = req.Matched.Title
	}
	domain := candidate.SourceDomain
	if domain == "" {
		domain = req.Matched.SourceDomain
	}
	provider := candidate.Provider
	if provider == "" {
		provider = req.Matched.Provider
	}

	confirmedAt := time.Now().UTC()
	if req.Match.ReviewedAt != nil {
		confirmedAt = req.Match.ReviewedAt.UTC()
	}

	snapshot := Snapshot{
		Owner:            req.Source.Owner,
		SourceAssetID:    req.Source.ID,
		OriginalFilename: req.Source.OriginalFilename,
		SourceSHA256:     req.Source.SHA256,
		StorageKey:       req.Source.StorageKey,
		MatchID:          req.Match.ID,
		MatchedAssetID:   req.Matched.ID,
		TargetURL:        targetURL,
		PageURL:          candidate.PageURL,
		ImageURL:         candidate.ImageURL,
		Provider:         provider,
		Title:            title,
		SourceDomain:     domain,
		Score:            req.Match.Score,
		Basis:            req.Match.Basis,
		ForSale:          string(candidate.ForSale),
		Price:            candidate.Price,
		Currency:         candidate.Currency,
		ConfirmedAt:      confirmedAt,
	}

	b.enrich(ctx, &snapshot)
	return snapshot
}

// enrich scrapes the infringing page for presentation details. Any failure
// leaves the enrichment fields empty; the dossier is complete without them.
func (b *Builder) enrich(ctx context.Context, snapshot *Snapshot) {
	if b.pages == nil {
		return
	}
	pageURL := snapshot.PageURL
	if pageURL == "" {
		pageURL = snapshot.TargetURL
	}
	if pageURL == "" {
		return
	}
	meta, err := b.pages.Fetch(ctx, pageURL)
	if err != nil || meta == nil {
		if err != nil {
			b.logger.Debug("page enrichment skipped",
				logging.String("page_url", pageURL),
				logging.Error(err),
			)
		}
		return
	}
	if !nearDuplicateTitle(meta.Title, snapshot.Title) {
		snapshot.PageTitle = meta.Title
	}
	snapshot.PageDescription = meta.Description
	snapshot.PageSiteName = meta.SiteName
	if snapshot.Price == "" && meta.Price != "" {
		snapshot.Price = meta.Price
		snapshot.Currency = meta.Currency
		snapshot.ForSale = string(providers.TristateYes)
	}
}

// nearDuplicateTitle reports whether a scraped page title carries the same
// token content as the listing title already on the snapshot, so the dossier
// does not present the same evidence line twice.
func nearDuplicateTitle(scraped, listing string) bool {
	if scraped == "" || listing == "" {
		return false
	}
	sv := textutil.NewTokenVector(scraped)
	lv := textutil.NewTokenVector(listing)
	return textutil.CosineSimilarity(sv, lv) >= 0.9
}

func subjectFor(snapshot Snapshot) string {
	location := snapshot.SourceDomain
	if location == "" {
		location = snapshot.Provider
	}
	if location == "" {
		location = "an external site"
	}
	name := snapshot.OriginalFilename
	if name == "" {
		name = fmt.Sprintf("asset #%d", snapshot.SourceAssetID)
	}
	return fmt.Sprintf("Takedown notice: %s found on %s", name, location)
}

func renderBody(cfg config.Delivery, snapshot Snapshot) string {
	var body strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&body, format+"\n", args...)
	}

	line("To whom it may concern,")
	line("")
	line("This notice reports the unauthorized reproduction of a copyrighted")
	line("image owned by %s.", snapshot.Owner)
	line("")
	line("Protected work:")
	if snapshot.OriginalFilename != "" {
		line("  File:    %s", snapshot.OriginalFilename)
	}
	if snapshot.SourceSHA256 != "" {
		line("  SHA-256: %s", snapshot.SourceSHA256)
	}
	line("  Owner:   %s", snapshot.Owner)
	line("")
	line("Infringing copy:")
	if snapshot.TargetURL != "" {
		line("  URL:   %s", snapshot.TargetURL)
	}
	if snapshot.PageURL != "" && snapshot.PageURL != snapshot.TargetURL {
		line("  Page:  %s", snapshot.PageURL)
	}
	if snapshot.SourceDomain != "" {
		line("  Site:  %s", snapshot.SourceDomain)
	}
	pageTitle := snapshot.PageTitle
	if pageTitle == "" {
		pageTitle = snapshot.Title
	}
	if pageTitle != "" {
		line("  Title: %s", pageTitle)
	}
	if snapshot.ForSale == string(providers.TristateYes) {
		if snapshot.Price != "" {
			line("  Offered for sale at %s %s", snapshot.Price, snapshot.Currency)
		} else {
			line("  Offered for sale")
		}
	}
	line("")
	line("Automated visual comparison scored the two images at %.2f (%s).", snapshot.Score, snapshot.Basis)
	line("")
	line("Please remove or disable access to the infringing material. This")
	line("notice was generated on %s.", snapshot.ConfirmedAt.Format("2006-01-02"))
	line("")
	line("Regards,")
	if cfg.AgentName != "" {
		line("%s", cfg.AgentName)
	}
	if cfg.AgentContact != "" {
		line("%s", cfg.AgentContact)
	}

	return body.String()
}

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"pixguard/internal/api"
)

func buildRunStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildRunListRows(runs []api.Run) [][]string {
	if len(runs) == 0 {
		return nil
	}
	sorted := api.SortRunsNewestFirst(runs)

	rows := make([][]string, 0, len(sorted))
	for _, run := range sorted {
		name := strings.TrimSpace(run.OriginalFilename)
		if name == "" {
			if run.SourceAssetID > 0 {
				name = fmt.Sprintf("asset %d", run.SourceAssetID)
			} else {
				name = "-"
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", run.ID),
			run.Owner,
			name,
			formatStatusLabel(run.Status),
			fmt.Sprintf("%d", run.MatchCount),
			formatDisplayTime(run.CreatedAt),
		})
	}
	return rows
}

func buildAssetRows(assets []api.Asset) [][]string {
	rows := make([][]string, 0, len(assets))
	for _, asset := range assets {
		rows = append(rows, []string{
			fmt.Sprintf("%d", asset.ID),
			asset.Owner,
			asset.OriginalFilename,
			truncateHash(asset.SHA256),
			yesNo(asset.Fingerprinted),
			formatDisplayTime(asset.CreatedAt),
		})
	}
	return rows
}

func buildMatchRows(matches []api.Match) [][]string {
	rows := make([][]string, 0, len(matches))
	for _, match := range matches {
		origin := strings.TrimSpace(match.SourceDomain)
		if origin == "" {
			origin = strings.TrimSpace(match.Provider)
		}
		if origin == "" && match.InternalAssetID > 0 {
			origin = "internal corpus"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", match.ID),
			fmt.Sprintf("%d", match.SourceAssetID),
			formatScore(match.SimilarityScore),
			match.Basis,
			formatStatusLabel(match.Status),
			origin,
			formatDisplayTime(match.CreatedAt),
		})
	}
	return rows
}

func buildDossierRows(dossiers []api.Dossier) [][]string {
	rows := make([][]string, 0, len(dossiers))
	for _, dossier := range dossiers {
		rows = append(rows, []string{
			fmt.Sprintf("%d", dossier.ID),
			fmt.Sprintf("%d", dossier.MatchID),
			formatStatusLabel(dossier.Status),
			fmt.Sprintf("%d", dossier.Attempts),
			dossier.SentTo,
			formatDisplayTime(dossier.UpdatedAt),
		})
	}
	return rows
}

func buildNotificationRows(notifications []api.Notification) [][]string {
	rows := make([][]string, 0, len(notifications))
	for _, n := range notifications {
		read := ""
		if !n.Read {
			read = "*"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", n.ID),
			read,
			n.EventType,
			n.Title,
			formatDisplayTime(n.CreatedAt),
		})
	}
	return rows
}

func buildAttemptRows(attempts []api.DeliveryAttempt) [][]string {
	rows := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		rows = append(rows, []string{
			fmt.Sprintf("%d", attempt.Attempt),
			formatStatusLabel(attempt.Outcome),
			attempt.ErrorMessage,
			formatDisplayTime(attempt.CreatedAt),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.3f", score)
}

func truncateHash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > 12 {
		return value[:12]
	}
	return value
}

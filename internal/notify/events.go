package notify

import (
	"fmt"
	"strings"
)

// Event identifies a notable workflow moment.
type Event string

const (
	EventScanStarted      Event = "scan_started"
	EventMatchesFound     Event = "matches_found"
	EventNoMatches        Event = "no_matches"
	EventMatchConfirmed   Event = "match_confirmed"
	EventMatchDeclined    Event = "match_declined"
	EventDossierDelivered Event = "dossier_delivered"
	EventDeliveryFailed   Event = "delivery_failed"
	EventRunFailed        Event = "run_failed"
	EventTest             Event = "test"
)

// Payload carries event context as loose strings; render picks out the keys
// it knows. Common keys: filename, owner, count, top_score, match_id,
// target, dossier_id, recipient, attempt, context, error, run_id.
type Payload map[string]string

// Categories map events onto the enable/disable switches in configuration.
const (
	categoryMatches  = "matches"
	categoryReview   = "review"
	categoryDelivery = "delivery"
	categoryErrors   = "errors"
	categoryAlways   = ""
)

// message is a rendered event ready for a sink. push=false marks chatty
// progress events that are persisted to the feed but never pushed.
type message struct {
	event    Event
	category string
	title    string
	body     string
	tags     []string
	priority string
	push     bool
}

func render(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventScanStarted:
		return message{
			event:    event,
			category: categoryMatches,
			title:    "Pixguard - Scan Started",
			body:     fmt.Sprintf("🔍 Scanning %s", get("filename")),
			tags:     []string{"pixguard", "scan", "started"},
			push:     false,
		}, true
	case EventMatchesFound:
		return message{
			event:    event,
			category: categoryMatches,
			title:    "Pixguard - Matches Found",
			body:     fmt.Sprintf("⚠️ %s potential matches for %s (top score %s)", get("count"), get("filename"), get("top_score")),
			tags:     []string{"pixguard", "matches", "found"},
			priority: "high",
			push:     true,
		}, true
	case EventNoMatches:
		return message{
			event:    event,
			category: categoryMatches,
			title:    "Pixguard - Scan Clean",
			body:     fmt.Sprintf("✅ No matches found for %s", get("filename")),
			tags:     []string{"pixguard", "scan", "clean"},
			push:     true,
		}, true
	case EventMatchConfirmed:
		return message{
			event:    event,
			category: categoryReview,
			title:    "Pixguard - Match Confirmed",
			body:     fmt.Sprintf("⚖️ Match #%s confirmed (%s), dossier queued", get("match_id"), get("target")),
			tags:     []string{"pixguard", "review", "confirmed"},
			push:     true,
		}, true
	case EventMatchDeclined:
		return message{
			event:    event,
			category: categoryReview,
			title:    "Pixguard - Match Declined",
			body:     fmt.Sprintf("Match #%s declined (%s)", get("match_id"), get("target")),
			tags:     []string{"pixguard", "review", "declined"},
			push:     false,
		}, true
	case EventDossierDelivered:
		return message{
			event:    event,
			category: categoryDelivery,
			title:    "Pixguard - Dossier Delivered",
			body:     fmt.Sprintf("📨 Dossier #%s delivered to %s", get("dossier_id"), get("recipient")),
			tags:     []string{"pixguard", "dossier", "delivered"},
			push:     true,
		}, true
	case EventDeliveryFailed:
		return message{
			event:    event,
			category: categoryDelivery,
			title:    "Pixguard - Delivery Failed",
			body:     fmt.Sprintf("❌ Dossier #%s delivery attempt %s failed: %s", get("dossier_id"), get("attempt"), get("error")),
			tags:     []string{"pixguard", "dossier", "failed"},
			priority: "high",
			push:     true,
		}, true
	case EventRunFailed:
		body := "❌ Error"
		if c := get("context"); c != "" {
			body += " with " + c
		}
		body += ": " + get("error")
		return message{
			event:    event,
			category: categoryErrors,
			title:    "Pixguard - Error",
			body:     body,
			tags:     []string{"pixguard", "error", "alert"},
			priority: "high",
			push:     true,
		}, true
	case EventTest:
		return message{
			event:    event,
			category: categoryAlways,
			title:    "Pixguard - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"pixguard", "test"},
			priority: "low",
			push:     true,
		}, true
	default:
		return message{}, false
	}
}

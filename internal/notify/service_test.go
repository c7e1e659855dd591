package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"pixguard/internal/notify"
	"pixguard/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenNothingConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.FeedEnabled = false
	cfg.Notifications.NtfyTopic = ""

	svc := notify.NewService(cfg, nil)
	err := svc.Publish(context.Background(), notify.EventMatchesFound, notify.Payload{"filename": "x.png"})
	if err != nil {
		t.Fatalf("noop service returned error: %v", err)
	}
}

func TestNtfySinkFormatsEvents(t *testing.T) {
	tests := []struct {
		name           string
		event          notify.Event
		payload        notify.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "matches found",
			event: notify.EventMatchesFound,
			payload: notify.Payload{
				"count":     "3",
				"filename":  "fox.png",
				"top_score": "0.92",
			},
			expectTitle:    "Pixguard - Matches Found",
			expectMessage:  "⚠️ 3 potential matches for fox.png (top score 0.92)",
			expectTags:     "pixguard,matches,found",
			expectPriority: "high",
		},
		{
			name:  "scan clean",
			event: notify.EventNoMatches,
			payload: notify.Payload{
				"filename": "fox.png",
			},
			expectTitle:   "Pixguard - Scan Clean",
			expectMessage: "✅ No matches found for fox.png",
			expectTags:    "pixguard,scan,clean",
		},
		{
			name:  "dossier delivered",
			event: notify.EventDossierDelivered,
			payload: notify.Payload{
				"dossier_id": "7",
				"recipient":  "legal@example.com",
			},
			expectTitle:   "Pixguard - Dossier Delivered",
			expectMessage: "📨 Dossier #7 delivered to legal@example.com",
			expectTags:    "pixguard,dossier,delivered",
		},
		{
			name:  "run failed",
			event: notify.EventRunFailed,
			payload: notify.Payload{
				"context": "fingerprinting",
				"error":   "unreadable image",
			},
			expectTitle:    "Pixguard - Error",
			expectMessage:  "❌ Error with fingerprinting: unreadable image",
			expectTags:     "pixguard,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := testsupport.NewConfig(t)
			cfg.Notifications.FeedEnabled = false
			cfg.Notifications.NtfyServer = server.URL
			cfg.Notifications.NtfyTopic = "pixguard-test"

			svc := notify.NewService(cfg, nil)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("publish returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfySinkSkipsChattyEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected push for progress event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.FeedEnabled = false
	cfg.Notifications.NtfyServer = server.URL
	cfg.Notifications.NtfyTopic = "pixguard-test"

	svc := notify.NewService(cfg, nil)
	for _, event := range []notify.Event{notify.EventScanStarted, notify.EventMatchDeclined} {
		if err := svc.Publish(context.Background(), event, notify.Payload{"filename": "x.png"}); err != nil {
			t.Fatalf("expected no error for feed-only event %s, got %v", event, err)
		}
	}
}

func TestDisabledCategoryDropsEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected push for disabled category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.FeedEnabled = false
	cfg.Notifications.NtfyServer = server.URL
	cfg.Notifications.NtfyTopic = "pixguard-test"
	cfg.Notifications.Matches = false

	svc := notify.NewService(cfg, nil)
	err := svc.Publish(context.Background(), notify.EventMatchesFound, notify.Payload{"filename": "x.png"})
	if err != nil {
		t.Fatalf("disabled category should drop silently, got %v", err)
	}
}

func TestFeedSinkPersistsNotifications(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	svc := notify.NewService(cfg, store)
	err := svc.Publish(context.Background(), notify.EventMatchesFound, notify.Payload{
		"count":     "2",
		"filename":  "fox.png",
		"owner":     "alice",
		"top_score": "0.81",
		"run_id":    "11",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	rows, err := store.ListNotifications(context.Background(), "", false, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 feed row, got %d", len(rows))
	}
	row := rows[0]
	if row.EventType != string(notify.EventMatchesFound) {
		t.Fatalf("event type = %q", row.EventType)
	}
	if row.RunID == nil || *row.RunID != 11 {
		t.Fatalf("run id not carried: %+v", row.RunID)
	}
	if row.Owner != "alice" {
		t.Fatalf("owner not carried: %q", row.Owner)
	}
	if row.ReadAt != nil {
		t.Fatal("fresh notification should be unread")
	}
}

func TestFeedRecordsEventsTheNtfySinkSkips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	svc := notify.NewService(cfg, store)
	if err := svc.Publish(context.Background(), notify.EventScanStarted, notify.Payload{"filename": "fox.png"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	rows, err := store.ListNotifications(context.Background(), "", false, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("feed should keep progress events, got %d rows", len(rows))
	}
}

func TestUnknownEventIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	svc := notify.NewService(cfg, store)
	if err := svc.Publish(context.Background(), notify.Event("bogus"), nil); err == nil {
		t.Fatal("unknown events should be rejected")
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pixguard/internal/catalog"
	"pixguard/internal/config"
)

const userAgent = "Pixguard-Go/0.1.0"

// Service is the notification surface workflow components depend on.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService assembles the configured sinks. With the feed disabled and no
// ntfy topic, a no-op service is returned.
func NewService(cfg *config.Config, store *catalog.Store) Service {
	var sinks []sink
	if cfg.Notifications.FeedEnabled && store != nil {
		sinks = append(sinks, &feedSink{store: store})
	}
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		server := strings.TrimRight(strings.TrimSpace(cfg.Notifications.NtfyServer), "/")
		if server == "" {
			server = "https://ntfy.sh"
		}
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sinks = append(sinks, &ntfySink{
			endpoint: server + "/" + topic,
			client:   &http.Client{Timeout: timeout},
		})
	}
	if len(sinks) == 0 {
		return Noop()
	}
	return &service{cfg: cfg.Notifications, sinks: sinks}
}

// Noop returns a service that accepts every event and does nothing.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

type sink interface {
	deliver(ctx context.Context, msg message, payload Payload) error
}

type service struct {
	cfg   config.Notifications
	sinks []sink
}

// Publish renders the event and fans it out to every sink. Events in a
// disabled category are silently dropped; sink failures are joined so the
// caller can log them, but partial delivery still happened.
func (s *service) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	if !s.enabled(msg.category) {
		return nil
	}
	var errs []error
	for _, target := range s.sinks {
		if err := target.deliver(ctx, msg, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *service) enabled(category string) bool {
	switch category {
	case categoryMatches:
		return s.cfg.Matches
	case categoryReview:
		return s.cfg.Review
	case categoryDelivery:
		return s.cfg.Delivery
	case categoryErrors:
		return s.cfg.Errors
	default:
		return true
	}
}

// ntfySink POSTs rendered messages to an ntfy topic.
type ntfySink struct {
	endpoint string
	client   *http.Client
}

func (n *ntfySink) deliver(ctx context.Context, msg message, _ Payload) error {
	if !msg.push {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// feedSink records every rendered event in the catalog so the CLI can list
// notifications after the fact.
type feedSink struct {
	store *catalog.Store
}

func (f *feedSink) deliver(ctx context.Context, msg message, payload Payload) error {
	row := &catalog.Notification{
		Owner:     strings.TrimSpace(payload["owner"]),
		EventType: string(msg.event),
		Title:     msg.title,
		Body:      msg.body,
		RunID:     parseID(payload["run_id"]),
		MatchID:   parseID(payload["match_id"]),
	}
	if _, err := f.store.InsertNotification(ctx, row); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	return nil
}

func parseID(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return nil
	}
	return &id
}

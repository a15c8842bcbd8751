package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"assetmirror/internal/config"
)

const userAgent = "assetmirror/dev"

// Outcome is the final state of a run as reported to the operator.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
)

// RunNotice summarises a finished run.
type RunNotice struct {
	Command  string
	RunID    string
	Outcome  Outcome
	Entries  int
	Fetched  int
	Failed   int
	Missing  int
	Findings int
	Fatal    int
	Duration time.Duration
	Err      error
}

// Service is the notification surface used by the command layer.
type Service interface {
	NotifyRunFinished(ctx context.Context, notice RunNotice) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a noop when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notify.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRunFinished(ctx context.Context, notice RunNotice) error {
	return n.send(ctx, formatRunNotice(notice))
}

func formatRunNotice(notice RunNotice) payload {
	var builder strings.Builder
	switch notice.Command {
	case "verify":
		fmt.Fprintf(&builder, "Verify %s: %d entries, %d findings (%d fatal)",
			notice.Outcome, notice.Entries, notice.Findings, notice.Fatal)
	default:
		fmt.Fprintf(&builder, "Mirror %s: %d entries, %d fetched, %d failed, %d missing",
			notice.Outcome, notice.Entries, notice.Fetched, notice.Failed, notice.Missing)
	}
	if notice.Duration > 0 {
		fmt.Fprintf(&builder, " in %s", notice.Duration.Round(time.Second))
	}
	if notice.Err != nil {
		fmt.Fprintf(&builder, "\nError: %v", notice.Err)
	}
	if notice.RunID != "" {
		fmt.Fprintf(&builder, "\nRun: %s", notice.RunID)
	}

	data := payload{
		title:   fmt.Sprintf("assetmirror - %s %s", notice.Command, notice.Outcome),
		message: builder.String(),
		tags:    []string{"assetmirror", notice.Command, string(notice.Outcome)},
	}
	switch notice.Outcome {
	case OutcomeAborted:
		data.priority = "high"
	case OutcomeSucceeded:
		data.priority = "low"
	}
	return data
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "assetmirror - Test",
		message:  "Notification system test",
		tags:     []string{"assetmirror", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) NotifyRunFinished(context.Context, RunNotice) error { return nil }
func (noopService) TestNotification(context.Context) error            { return nil }

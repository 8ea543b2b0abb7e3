package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/amishk599/jobsync/internal/model"
	"github.com/amishk599/jobsync/internal/retry"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// SlackNotifier sends new-posting alerts to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger
	spacing    time.Duration // pause between messages, Slack allows about one per second
}

// NewSlackNotifier returns a notifier that posts each posting to Slack via
// webhook. Rate-limited and 5xx posts are retried through retrier, which may
// be nil.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, retrier *retry.Retrier, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		retrier:    retrier,
		logger:     logger,
		spacing:    500 * time.Millisecond,
	}
}

// Notify sends each posting as a separate Slack message using Block Kit.
// Returns an error only if ALL messages fail. Individual failures are logged.
func (s *SlackNotifier) Notify(postings []model.Posting) error {
	if len(postings) == 0 {
		return nil
	}

	ctx := context.Background()
	failures := 0
	for i, p := range postings {
		if i > 0 {
			time.Sleep(s.spacing)
		}

		body, err := json.Marshal(buildPayload(p))
		if err == nil {
			err = s.retrier.Do(ctx, "slack webhook", func(ctx context.Context) error {
				return s.post(ctx, body)
			})
		}
		if err != nil {
			s.logger.Error("slack notification failed", "company", p.Company, "title", p.Title, "url", p.URL, "error", err)
			failures++
			continue
		}
		s.logger.Debug("slack message sent", "company", p.Company, "title", p.Title)
	}

	sent := len(postings) - failures
	if failures == len(postings) {
		return fmt.Errorf("all %d slack notifications failed", failures)
	}
	s.logger.Info("slack notifications complete", "sent", sent, "failed", failures)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode != http.StatusOK {
		return model.NewHTTPError(resp, errors.New("slack webhook rejected message"))
	}
	return nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Fields   []slackText    `json:"fields,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type  string    `json:"type"`
	Text  slackText `json:"text"`
	URL   string    `json:"url"`
	Style string    `json:"style"`
}

// SendTestMessage sends a dummy posting notification to verify the integration works.
func SendTestMessage(n model.Notifier) error {
	now := time.Now().UTC()
	test := model.Posting{
		URL:         "https://www.finn.no/job/search",
		Source:      model.SourceFINN,
		Title:       "Testvarsel fra jobsync",
		Company:     "jobsync",
		Location:    "Bergen",
		Deadline:    "Snarest",
		Summary:     "Integrasjonen fungerer.",
		Status:      model.StatusActive,
		FirstSeenAt: now,
	}
	return n.Notify([]model.Posting{test})
}

func buildPayload(p model.Posting) slackPayload {
	deadline := p.Deadline
	if deadline == "" {
		deadline = "Not specified"
	}
	location := p.Location
	if location == "" {
		location = "Not specified"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: p.Company + ": " + p.Title},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Company:*\n" + p.Company},
				{Type: "mrkdwn", Text: "*Location:*\n" + location},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: "*Deadline:*\n" + deadline},
				{Type: "mrkdwn", Text: "*Source:*\n" + string(p.Source)},
			},
		},
	}

	if p.Summary != "" {
		text := p.Summary
		if p.MatchedKeyword != "" {
			text = fmt.Sprintf("*Keyword:* %s\n%s", p.MatchedKeyword, p.Summary)
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		})
	}

	blocks = append(blocks,
		slackBlock{
			Type: "actions",
			Elements: []slackElement{
				{
					Type:  "button",
					Text:  slackText{Type: "plain_text", Text: "Open Posting"},
					URL:   p.URL,
					Style: "primary",
				},
			},
		},
		slackBlock{Type: "divider"},
	)

	return slackPayload{Blocks: blocks}
}

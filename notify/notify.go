// Package notify posts operational alerts to a Slack incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"fuelagent"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook is a minimal Slack incoming-webhook client.
type Webhook struct {
	webhookURL string
	httpClient doer
}

func NewWebhook(webhookURL string, httpClient doer) *Webhook {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Webhook{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (w *Webhook) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}
	return nil
}

// ExhaustionAlert tells the on-call channel that a request could not be
// served by any credential/model permutation.
type ExhaustionAlert struct {
	client  fuelagent.SlackClient
	channel string
}

func NewExhaustionAlert(client fuelagent.SlackClient, channel string) *ExhaustionAlert {
	return &ExhaustionAlert{client: client, channel: channel}
}

func (a *ExhaustionAlert) NotifyExhausted(ctx context.Context, requestID string, err error) error {
	msg := FormatExhausted(requestID, err)
	if perr := a.client.PostMessage(ctx, a.channel, msg); perr != nil {
		return fmt.Errorf("failed to send exhaustion alert: %w", perr)
	}
	slog.Info("NOTIFY: Exhaustion alert sent", "request_id", requestID, "channel", a.channel)
	return nil
}

// FormatExhausted renders the alert text. Rate-limit exhaustion is called out
// separately since it usually means a quota needs raising.
func FormatExhausted(requestID string, err error) string {
	var b strings.Builder
	if errors.Is(err, fuelagent.ErrRateLimited) {
		b.WriteString(":hourglass: Meal estimate failed: credentials/models are rate limited.")
	} else {
		b.WriteString(":warning: Meal estimate failed on every credential/model.")
	}

	var ex *fuelagent.ExhaustedError
	if errors.As(err, &ex) {
		fmt.Fprintf(&b, "\nAttempts: %d", ex.Attempts)
		if ex.RateLimited > 0 {
			fmt.Fprintf(&b, "\nRate limited: %d", ex.RateLimited)
		}
		if stage := fuelagent.StageOf(ex.Last); stage != "" {
			fmt.Fprintf(&b, "\nLast stage: %s", stage)
		}
	}
	if requestID != "" {
		fmt.Fprintf(&b, "\nRequest: %s", requestID)
	}
	if err != nil {
		fmt.Fprintf(&b, "\nError: %s", err)
	}
	return b.String()
}

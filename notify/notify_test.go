package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"fuelagent"
	"fuelagent/notify"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

type mockDoer struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockDoer) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr error
	}{
		{
			name: "success",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
			},
		},
		{
			name: "failure status",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusBadRequest, Status: "400 Bad Request", Body: io.NopCloser(bytes.NewBufferString("bad request"))}, nil
			},
			wantErr: fmt.Errorf("failed to post message: 400 Bad Request"),
		},
		{
			name: "do error",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("network error")
			},
			wantErr: fmt.Errorf("network error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := notify.NewWebhook("http://example.com/webhook", &mockDoer{doFunc: tt.doFunc})
			err := w.PostMessage(context.Background(), "#fuel-alerts", "hello")
			should.Equal(t, tt.wantErr, err)
		})
	}
}

func TestPostMessage_Payload(t *testing.T) {
	var got map[string]string
	w := notify.NewWebhook("http://example.com/webhook", &mockDoer{doFunc: func(req *http.Request) (*http.Response, error) {
		should.Equal(t, "application/json", req.Header.Get("Content-Type"))
		must.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString("ok"))}, nil
	}})

	must.NoError(t, w.PostMessage(context.Background(), "#fuel-alerts", "hi"))
	should.Equal(t, map[string]string{"channel": "#fuel-alerts", "text": "hi"}, got)
}

type recordingSlack struct {
	channel, message string
	err              error
}

func (r *recordingSlack) PostMessage(ctx context.Context, channel, message string) error {
	r.channel, r.message = channel, message
	return r.err
}

func TestExhaustionAlert(t *testing.T) {
	last := &fuelagent.StageError{Stage: fuelagent.StageIdentify, Err: fmt.Errorf("gemini: %w", fuelagent.ErrRateLimited)}
	exhausted := &fuelagent.ExhaustedError{Attempts: 4, RateLimited: 4, Last: last}

	slack := &recordingSlack{}
	must.NoError(t, notify.NewExhaustionAlert(slack, "#ops").NotifyExhausted(context.Background(), "req-1", exhausted))

	should.Equal(t, "#ops", slack.channel)
	should.Contains(t, slack.message, "rate limited")
	should.Contains(t, slack.message, "Attempts: 4")
	should.Contains(t, slack.message, "Rate limited: 4")
	should.Contains(t, slack.message, "Last stage: identify")
	should.Contains(t, slack.message, "Request: req-1")

	slack.err = errors.New("webhook down")
	err := notify.NewExhaustionAlert(slack, "#ops").NotifyExhausted(context.Background(), "req-2", exhausted)
	should.ErrorContains(t, err, "webhook down")
}

func TestFormatExhausted_NotRateLimited(t *testing.T) {
	msg := notify.FormatExhausted("", &fuelagent.ExhaustedError{Attempts: 2, Last: errors.New("boom")})
	should.Contains(t, msg, "failed on every credential/model")
	should.NotContains(t, msg, "Request:")
	should.NotContains(t, msg, "Last stage")
}

func TestFormatExhausted_EarlierAttemptsThrottled(t *testing.T) {
	msg := notify.FormatExhausted("req-3", &fuelagent.ExhaustedError{Attempts: 4, RateLimited: 3, Last: errors.New("bad gateway")})
	should.Contains(t, msg, "rate limited")
	should.Contains(t, msg, "Rate limited: 3")
	should.Contains(t, msg, "Error: ")
}

package llm

import (
	"errors"
	"net/http"
	"testing"

	"fuelagent"

	"github.com/stretchr/testify/assert"
)

func TestIsQuotaMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want bool
	}{
		{name: "status code", msg: "googleapi: Error 429", want: true},
		{name: "quota", msg: "You exceeded your current quota", want: true},
		{name: "resource exhausted", msg: "RESOURCE_EXHAUSTED", want: true},
		{name: "bedrock throttling", msg: "ThrottlingException: Too many tokens", want: true},
		{name: "rate limit", msg: "rate limit reached for requests", want: true},
		{name: "bad request", msg: "400 Bad Request: invalid image", want: false},
		{name: "empty", msg: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuotaMessage(tt.msg))
		})
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, body: "slow down", rateLimited: true},
		{name: "quota in body", status: http.StatusForbidden, body: `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, rateLimited: true},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", rateLimited: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StatusError("gemini", tt.status, []byte(tt.body))
			assert.Error(t, err)
			assert.Equal(t, tt.rateLimited, errors.Is(err, fuelagent.ErrRateLimited))
			assert.Contains(t, err.Error(), tt.body)
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("x", nil))

	plain := errors.New("connection reset")
	assert.Same(t, plain, Classify("x", plain))

	quota := errors.New("quota exceeded for project")
	err := Classify("x", quota)
	assert.ErrorIs(t, err, fuelagent.ErrRateLimited)
	assert.ErrorIs(t, err, quota)

	// Already classified errors are not wrapped twice.
	assert.Same(t, err, RateLimited("y", err))
}

func TestOptionsWithDefaults(t *testing.T) {
	assert.Equal(t, Options{MaxTokens: defaultMaxTokens, Temperature: defaultTemperature, TopP: defaultTopP}, Options{}.WithDefaults())

	custom := Options{MaxTokens: 10, Temperature: 0.5, TopP: 0.3}
	assert.Equal(t, custom, custom.WithDefaults())
}

func TestPartAndTarget(t *testing.T) {
	assert.False(t, Text("hi").IsImage())
	assert.True(t, Image("image/jpeg", []byte{1}).IsImage())

	target := Target{Credential: Credential{Name: "KEY_A", Secret: "s3cret"}, Model: "gemini-2.5-flash"}
	assert.Equal(t, "KEY_A/gemini-2.5-flash", target.String())
	assert.NotContains(t, target.String(), "s3cret")
	assert.Equal(t, "query", EmbedQuery.String())
	assert.Equal(t, "document", EmbedDocument.String())
}

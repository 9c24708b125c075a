package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"fuelagent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEstimator struct {
	result fuelagent.MealEstimate
	err    error
}

func (s stubEstimator) Estimate(ctx context.Context, images [][]byte, description string) (fuelagent.MealEstimate, error) {
	return s.result, s.err
}

func TestHandle(t *testing.T) {
	rateLimited := &fuelagent.ExhaustedError{Attempts: 4, Last: fmt.Errorf("gemini: %w", fuelagent.ErrRateLimited)}
	failed := &fuelagent.ExhaustedError{Attempts: 4, Last: errors.New("bad gateway")}
	mostlyThrottled := &fuelagent.ExhaustedError{Attempts: 4, RateLimited: 3, Last: errors.New("bad gateway")}

	tests := []struct {
		name        string
		est         stubEstimator
		wantErr     bool
		exhausted   bool
		rateLimited bool
		sentinel    bool
	}{
		{
			name: "success",
			est:  stubEstimator{result: fuelagent.MealEstimate{SummaryName: "Laksa", TotalCalories: 589}},
		},
		{
			name:        "rate limited exhaustion",
			est:         stubEstimator{result: fuelagent.SentinelEstimate(), err: rateLimited},
			exhausted:   true,
			rateLimited: true,
			sentinel:    true,
		},
		{
			name:        "throttled before a final upstream failure",
			est:         stubEstimator{result: fuelagent.SentinelEstimate(), err: mostlyThrottled},
			exhausted:   true,
			rateLimited: true,
			sentinel:    true,
		},
		{
			name:      "other exhaustion",
			est:       stubEstimator{result: fuelagent.SentinelEstimate(), err: failed},
			exhausted: true,
			sentinel:  true,
		},
		{
			name:     "invalid input",
			est:      stubEstimator{err: fmt.Errorf("%w: empty", fuelagent.ErrInvalidInput)},
			sentinel: true,
		},
		{
			name:    "unexpected error",
			est:     stubEstimator{err: context.DeadlineExceeded},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := handle(context.Background(), tt.est, Params{Description: "laksa"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exhausted, res.Exhausted)
			assert.Equal(t, tt.rateLimited, res.RateLimited)
			assert.Equal(t, tt.sentinel, res.Estimate.IsSentinel())
		})
	}
}

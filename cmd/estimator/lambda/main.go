package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"

	"fuelagent"
	"fuelagent/cmd/estimator/setup"

	"github.com/aws/aws-lambda-go/lambda"
)

// Params carries base64-encoded images in JSON.
type Params struct {
	RequestID   string   `json:"request_id,omitempty"`
	Images      [][]byte `json:"images"`
	Description string   `json:"description"`
}

// Results lets the web layer map exhaustion to a "try again later" answer.
type Results struct {
	Estimate    fuelagent.MealEstimate `json:"estimate"`
	Exhausted   bool                   `json:"exhausted"`
	RateLimited bool                   `json:"rate_limited"`
	Error       string                 `json:"error,omitempty"`
}

func main() {
	cfg, err := setup.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	// Built on first invocation so the AWS clients see the invocation context.
	build := sync.OnceValues(func() (*setup.App, error) {
		return setup.Build(context.Background(), cfg, setup.Options{
			AttemptLogger: fuelagent.NewStdoutAttemptLogger(),
		})
	})

	initOtel := sync.OnceFunc(func() {
		if _, _, _, err := fuelagent.InitOtel(context.Background()); err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		}
	})

	fn := func(ctx context.Context, params Params) (Results, error) {
		initOtel()

		app, err := build()
		if err != nil {
			slog.Error("SETUP: Failed to build estimator", "error", err)
			return Results{}, err
		}

		if params.RequestID != "" {
			ctx = fuelagent.WithRequestID(ctx, params.RequestID)
		}
		return handle(ctx, app.Estimator, params)
	}

	lambda.Start(fn)
}

func handle(ctx context.Context, est fuelagent.Estimator, params Params) (Results, error) {
	result, err := est.Estimate(ctx, params.Images, params.Description)
	switch {
	case err == nil:
		return Results{Estimate: result}, nil
	case errors.Is(err, fuelagent.ErrAllPermutationsExhausted):
		slog.Error("RESULT: All permutations exhausted", "error", err)
		return Results{
			Estimate:    result,
			Exhausted:   true,
			RateLimited: errors.Is(err, fuelagent.ErrRateLimited),
			Error:       err.Error(),
		}, nil
	case errors.Is(err, fuelagent.ErrInvalidInput):
		return Results{Estimate: fuelagent.SentinelEstimate(), Error: err.Error()}, nil
	}
	slog.Error("RESULT: Error handling request", "error", err)
	return Results{}, err
}

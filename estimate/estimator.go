// Package estimate runs the multi-pass meal estimation pipeline: identify the
// items, retrieve reference candidates, judge matches and portions, then
// aggregate nutrients. The whole chain is retried across credential/model
// permutations by a rotation.Controller.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fuelagent"
	"fuelagent/hpb"
	"fuelagent/imaging"
	"fuelagent/llm"
	"fuelagent/reference"
	"fuelagent/rotation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// NoFoodName summarizes a request in which nothing edible was identified.
const NoFoodName = "No food identified"

const defaultCallTimeout = 60 * time.Second

// Notifier is told when a request exhausts every permutation.
type Notifier interface {
	NotifyExhausted(ctx context.Context, requestID string, err error) error
}

type Options struct {
	TopK          int
	CallTimeout   time.Duration
	LookupTimeout time.Duration
	Notifier      Notifier
}

type Estimator struct {
	normalizer *imaging.Normalizer
	matchers   reference.MatcherFactory
	controller *rotation.Controller
	identifier *Identifier
	judge      *Judge
	label      *LabelExtractor
	aggregator *Aggregator
	notifier   Notifier

	topK        int
	callTimeout time.Duration

	tracer      trace.Tracer
	estimates   metric.Int64Counter
	attempts    metric.Int64Counter
	exhausted   metric.Int64Counter
	rateLimited metric.Int64Counter
	duration    metric.Float64Histogram
}

var _ fuelagent.Estimator = (*Estimator)(nil)

func New(gen llm.Generator, matchers reference.MatcherFactory, lookup hpb.Lookup, controller *rotation.Controller, normalizer *imaging.Normalizer, opts Options) *Estimator {
	if opts.TopK <= 0 {
		opts.TopK = reference.DefaultTopK
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if normalizer == nil {
		normalizer = imaging.NewNormalizer(imaging.DefaultQuality, "")
	}

	meter := otel.Meter(fuelagent.TracerNameEstimator)
	estimates, _ := meter.Int64Counter("estimates_total",
		metric.WithDescription("Total number of estimate requests"))
	attempts, _ := meter.Int64Counter("estimate_attempts_total",
		metric.WithDescription("Total number of pipeline attempts across permutations"))
	exhausted, _ := meter.Int64Counter("estimate_exhausted_total",
		metric.WithDescription("Total number of requests that exhausted every permutation"))
	rateLimited, _ := meter.Int64Counter("rate_limited_total",
		metric.WithDescription("Total number of attempts that failed with a rate limit"))
	duration, _ := meter.Float64Histogram("estimate_duration_seconds",
		metric.WithDescription("Duration of estimate requests in seconds"))

	return &Estimator{
		normalizer:  normalizer,
		matchers:    matchers,
		controller:  controller,
		identifier:  NewIdentifier(gen),
		judge:       NewJudge(gen),
		label:       NewLabelExtractor(gen),
		aggregator:  NewAggregator(lookup, opts.LookupTimeout),
		notifier:    opts.Notifier,
		topK:        opts.TopK,
		callTimeout: opts.CallTimeout,
		tracer:      otel.Tracer(fuelagent.TracerNameEstimator),
		estimates:   estimates,
		attempts:    attempts,
		exhausted:   exhausted,
		rateLimited: rateLimited,
		duration:    duration,
	}
}

// Estimate runs the pipeline. When every permutation fails it returns the
// sentinel estimate together with a *fuelagent.ExhaustedError. A request with
// neither usable images nor a description fails with ErrInvalidInput and does
// not advance the rotation flag.
func (e *Estimator) Estimate(ctx context.Context, images [][]byte, description string) (fuelagent.MealEstimate, error) {
	requestID := fuelagent.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = fuelagent.WithRequestID(ctx, requestID)
	}

	ctx, span := e.tracer.Start(ctx, "Estimator.Estimate", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Int("images", len(images)),
		attribute.Bool("has_description", strings.TrimSpace(description) != ""),
	))
	defer span.End()

	began := time.Now()
	e.estimates.Add(ctx, 1)
	defer func() {
		e.duration.Record(ctx, time.Since(began).Seconds())
	}()

	description = strings.TrimSpace(description)
	if len(images) == 0 && description == "" {
		span.SetStatus(codes.Error, "invalid input")
		return fuelagent.MealEstimate{}, fmt.Errorf("%w: no images and no description", fuelagent.ErrInvalidInput)
	}

	batch, err := e.normalizer.Normalize(ctx, images)
	if err != nil {
		span.RecordError(err)
		return fuelagent.MealEstimate{}, &fuelagent.StageError{Stage: fuelagent.StageNormalize, Err: err}
	}
	defer func() {
		if err := batch.Release(); err != nil {
			slog.Warn("ESTIMATOR: Failed to release images", "error", err)
		}
	}()

	if len(batch.Images) == 0 && description == "" {
		span.SetStatus(codes.Error, "invalid input")
		return fuelagent.MealEstimate{}, fmt.Errorf("%w: no decodable images and no description", fuelagent.ErrInvalidInput)
	}

	slog.Info("ESTIMATOR: Starting", "request_id", requestID, "images", len(batch.Images), "skipped", batch.Skipped)

	var result fuelagent.MealEstimate
	rep, err := e.controller.Run(ctx, func(ctx context.Context, target llm.Target) error {
		e.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("model", target.Model)))

		est, err := e.attempt(ctx, target, batch, description)
		if err != nil {
			if errors.Is(err, fuelagent.ErrRateLimited) {
				e.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("model", target.Model)))
			}
			return err
		}
		result = est
		return nil
	})
	span.SetAttributes(
		attribute.Int("rotation.start", rep.Start),
		attribute.Int("rotation.visited", len(rep.Visited)),
		attribute.String("rotation.state", rep.State.String()),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var ex *fuelagent.ExhaustedError
		if !errors.As(err, &ex) {
			return fuelagent.MealEstimate{}, err
		}

		e.exhausted.Add(ctx, 1)
		slog.Error("ESTIMATOR: Returning sentinel", "request_id", requestID, "attempts", ex.Attempts,
			"rate_limited", ex.RateLimited)
		if e.notifier != nil {
			if nerr := e.notifier.NotifyExhausted(ctx, requestID, err); nerr != nil {
				slog.Warn("ESTIMATOR: Failed to send exhaustion alert", "error", nerr)
			}
		}
		return fuelagent.SentinelEstimate(), err
	}

	slog.Info("ESTIMATOR: Completed", "request_id", requestID, "summary", result.SummaryName,
		"calories", result.TotalCalories, "items", len(result.Items), "target", rep.Last.String())
	return result, nil
}

// attempt runs the whole chain once against a single target.
func (e *Estimator) attempt(ctx context.Context, target llm.Target, batch *imaging.Batch, description string) (fuelagent.MealEstimate, error) {
	ctx, span := e.tracer.Start(ctx, "Estimator.attempt", trace.WithAttributes(
		attribute.String("credential", target.Credential.Name),
		attribute.String("model", target.Model),
	))
	defer span.End()

	images, err := batch.Parts()
	if err != nil {
		// Local failure, identical on every permutation.
		return fuelagent.MealEstimate{}, rotation.Permanent(&fuelagent.StageError{Stage: fuelagent.StageNormalize, Err: err})
	}

	id, err := e.identify(ctx, target, images, description)
	if err != nil {
		return fuelagent.MealEstimate{}, err
	}

	if id.LabelDetected && len(images) > 0 {
		return e.readLabel(ctx, target, images, description)
	}

	if len(id.Items) == 0 {
		slog.Info("ESTIMATOR: Nothing identified")
		return Total(NoFoodName, nil), nil
	}

	cands, err := e.match(ctx, target, id)
	if err != nil {
		return fuelagent.MealEstimate{}, err
	}

	j, err := e.runJudge(ctx, target, images, description, id, cands)
	if err != nil {
		return fuelagent.MealEstimate{}, err
	}

	ctx, aggSpan := e.tracer.Start(ctx, "aggregate")
	defer aggSpan.End()
	est := e.aggregator.Aggregate(ctx, j.MealName, j.Items)
	aggSpan.SetAttributes(attribute.Int("calories", est.TotalCalories))
	return est, nil
}

func (e *Estimator) identify(ctx context.Context, target llm.Target, images []llm.Part, description string) (Identification, error) {
	ctx, span := e.tracer.Start(ctx, "identify")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	id, err := e.identifier.Identify(ctx, target, images, description)
	if err != nil {
		span.RecordError(err)
		return Identification{}, err
	}
	span.SetAttributes(attribute.Int("items", len(id.Items)), attribute.Bool("label", id.LabelDetected))
	return id, nil
}

func (e *Estimator) readLabel(ctx context.Context, target llm.Target, images []llm.Part, description string) (fuelagent.MealEstimate, error) {
	ctx, span := e.tracer.Start(ctx, "label")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	est, err := e.label.Extract(ctx, target, images, description)
	if err != nil {
		span.RecordError(err)
	}
	return est, err
}

func (e *Estimator) match(ctx context.Context, target llm.Target, id Identification) ([][]fuelagent.Candidate, error) {
	ctx, span := e.tracer.Start(ctx, "match")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	cands, err := retrieve(ctx, e.matchers(target.Credential), id.Items, e.topK)
	if err != nil {
		span.RecordError(err)
	}
	return cands, err
}

func (e *Estimator) runJudge(ctx context.Context, target llm.Target, images []llm.Part, description string, id Identification, cands [][]fuelagent.Candidate) (Judgement, error) {
	ctx, span := e.tracer.Start(ctx, "judge")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	j, err := e.judge.Judge(ctx, target, images, description, id, cands)
	if err != nil {
		span.RecordError(err)
		return Judgement{}, err
	}
	span.SetAttributes(attribute.Int("items", len(j.Items)))
	return j, nil
}

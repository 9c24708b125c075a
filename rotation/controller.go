package rotation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fuelagent"
	"fuelagent/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the controller's position in one invocation.
type State int

const (
	NotStarted State = iota
	Attempting
	Succeeded
	Exhausted
	// Aborted means a permanent error stopped the loop early.
	Aborted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying on another permutation.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Report describes what one Run visited.
type Report struct {
	Start   int
	Visited []llm.Target
	State   State
	Last    llm.Target
}

// Attempt is the unit of work run once per permutation.
type Attempt func(ctx context.Context, target llm.Target) error

type Controller struct {
	plan   Plan
	store  Store
	logger fuelagent.AttemptLogger
	tracer trace.Tracer
}

func NewController(plan Plan, store Store, logger fuelagent.AttemptLogger) *Controller {
	if logger == nil {
		logger = fuelagent.NewNoOpAttemptLogger()
	}
	return &Controller{
		plan:   plan,
		store:  store,
		logger: logger,
		tracer: otel.Tracer(fuelagent.TracerNameRotation),
	}
}

func (c *Controller) Plan() Plan { return c.plan }

// Run advances the persisted flag once, then tries fn on every permutation
// in order until one succeeds. When all fail it returns an
// *fuelagent.ExhaustedError carrying the last failure. A Permanent error or
// a cancelled caller context stops the loop and is returned unwrapped.
func (c *Controller) Run(ctx context.Context, fn Attempt) (Report, error) {
	var rep Report

	start, err := c.store.Advance(ctx, c.plan.Size())
	if err != nil {
		slog.Warn("ROTATION: Failed to advance rotation flag, starting at first credential", "error", err)
		start = 0
	}
	rep.Start = start

	perms := c.plan.Permutations(start)
	slog.Info("ROTATION: Starting", "start", start, "permutations", len(perms))

	var last error
	var throttled int
	for i, target := range perms {
		rep.State = Attempting
		rep.Last = target
		rep.Visited = append(rep.Visited, target)

		err := c.attempt(ctx, i+1, target, fn)
		if err == nil {
			rep.State = Succeeded
			slog.Info("ROTATION: Attempt succeeded", "attempt", i+1, "credential", target.Credential.Name, "model", target.Model)
			return rep, nil
		}
		last = err

		if IsPermanent(err) {
			rep.State = Aborted
			var p *permanentError
			errors.As(err, &p)
			slog.Warn("ROTATION: Permanent failure, not rotating", "attempt", i+1, "error", p.err)
			return rep, p.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			rep.State = Aborted
			slog.Warn("ROTATION: Caller context done, not rotating", "attempt", i+1, "error", ctxErr)
			return rep, ctxErr
		}

		if errors.Is(err, fuelagent.ErrRateLimited) {
			throttled++
			slog.Warn("ROTATION: Rate limited, advancing", "attempt", i+1, "credential", target.Credential.Name, "model", target.Model)
		} else {
			slog.Warn("ROTATION: Attempt failed, advancing", "attempt", i+1, "credential", target.Credential.Name, "model", target.Model, "error", err)
		}
	}

	rep.State = Exhausted
	slog.Error("ROTATION: All permutations exhausted", "attempts", len(perms), "rate_limited", throttled, "last_error", last)
	return rep, &fuelagent.ExhaustedError{Attempts: len(perms), RateLimited: throttled, Last: last}
}

func (c *Controller) attempt(ctx context.Context, n int, target llm.Target, fn Attempt) error {
	ctx, span := c.tracer.Start(ctx, "Controller.attempt", trace.WithAttributes(
		attribute.Int("attempt", n),
		attribute.String("credential", target.Credential.Name),
		attribute.String("model", target.Model),
	))
	defer span.End()

	began := time.Now()
	err := fn(ctx, target)

	entry := fuelagent.AttemptLog{
		RequestID:  fuelagent.RequestIDFrom(ctx),
		Attempt:    n,
		Timestamp:  began,
		Credential: target.Credential.Name,
		Model:      target.Model,
		DurationMS: time.Since(began).Milliseconds(),
	}
	if err != nil {
		entry.Stage = fuelagent.StageOf(err)
		entry.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if logErr := c.logger.LogAttempt(entry); logErr != nil {
		slog.Warn("ROTATION: Failed to log attempt", "error", logErr)
	}
	return err
}

package fuelagent

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited classifies provider throttling and quota errors.
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformedModelOutput is returned when a model answer cannot be decoded.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// ErrExternalLookup marks a failed nutrient detail lookup for one item.
	ErrExternalLookup = errors.New("external lookup failed")

	// ErrAllPermutationsExhausted is the terminal pipeline failure.
	ErrAllPermutationsExhausted = errors.New("all credential/model permutations exhausted")

	// ErrInvalidInput rejects requests with neither images nor description.
	ErrInvalidInput = errors.New("invalid input")
)

// Pipeline stage names recorded on StageError and attempt logs.
const (
	StageNormalize = "normalize"
	StageIdentify  = "identify"
	StageMatch     = "match"
	StageJudge     = "judge"
	StageLabel     = "label"
	StageAggregate = "aggregate"
)

// MalformedOutputError carries the stage and raw text of an undecodable answer.
type MalformedOutputError struct {
	Stage  string
	Reason string
	Raw    string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, ErrMalformedModelOutput, e.Reason)
}

func (e *MalformedOutputError) Unwrap() error {
	return ErrMalformedModelOutput
}

// StageError tags an error with the pipeline stage that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage recorded on err, or "" when there is none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ExhaustedError is returned once every permutation has failed. It unwraps to
// ErrAllPermutationsExhausted, to the last attempt's error, and to
// ErrRateLimited when any attempt was throttled.
type ExhaustedError struct {
	Attempts    int
	RateLimited int
	Last        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts (%d rate limited): %v", ErrAllPermutationsExhausted, e.Attempts, e.RateLimited, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	errs := []error{ErrAllPermutationsExhausted}
	if e.Last != nil {
		errs = append(errs, e.Last)
	}
	if e.RateLimited > 0 {
		errs = append(errs, ErrRateLimited)
	}
	return errs
}

package fuelagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// AttemptLogger is the interface for per-permutation attempt logging.
type AttemptLogger interface {
	LogAttempt(attempt AttemptLog) error
}

// NewAttemptLogFilePath returns a file path based on a cleaned up model name to make it easier to identify logs produced with various models.
func NewAttemptLogFilePath(model string) string {
	return fmt.Sprintf(
		"./logs/%d.%s.json",
		time.Now().Unix(),
		strings.NewReplacer(":", "_", "/", "_").Replace(strings.ToLower(model)),
	)
}

// AttemptLog represents a single (credential, model) attempt of one estimate request.
type AttemptLog struct {
	RequestID  string    `json:"request_id,omitempty"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
	Credential string    `json:"credential"`
	Model      string    `json:"model"`
	Stage      string    `json:"stage,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// FileAttemptLogger accumulates attempts and writes them as one document on Flush.
type FileAttemptLogger struct {
	mu       sync.Mutex
	attempts []AttemptLog
	writer   io.Writer
}

// NewFileAttemptLogger creates a new file-based attempt logger
func NewFileAttemptLogger(writer io.Writer) *FileAttemptLogger {
	return &FileAttemptLogger{
		attempts: make([]AttemptLog, 0),
		writer:   writer,
	}
}

// LogAttempt buffers the attempt (does not flush immediately)
func (l *FileAttemptLogger) LogAttempt(attempt AttemptLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, attempt)
	return nil
}

// Flush writes all accumulated attempts to the writer
func (l *FileAttemptLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == nil {
		return nil
	}

	data, err := json.MarshalIndent(map[string]any{
		"estimate_session": map[string]any{
			"timestamp": time.Now(),
			"attempts":  l.attempts,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal attempt log: %w", err)
	}

	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write attempt log: %w", err)
	}

	l.attempts = l.attempts[:0]
	return nil
}

// NoOpAttemptLogger discards all attempts.
type NoOpAttemptLogger struct{}

func NewNoOpAttemptLogger() *NoOpAttemptLogger {
	return &NoOpAttemptLogger{}
}

func (nop *NoOpAttemptLogger) LogAttempt(attempt AttemptLog) error {
	return nil
}

// StdoutAttemptLogger writes each attempt as a JSON line (for Lambda/CloudWatch)
type StdoutAttemptLogger struct {
	out io.Writer
}

func NewStdoutAttemptLogger() *StdoutAttemptLogger {
	return &StdoutAttemptLogger{out: os.Stdout}
}

func (l *StdoutAttemptLogger) LogAttempt(attempt AttemptLog) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(l.out, string(data))
	return err
}

type requestIDKey struct{}

// WithRequestID attaches the per-invocation request id used in attempt logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id stored by WithRequestID, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Package storage loads reference dataset snapshots from files, S3 or memory.
package storage

import (
	"context"
	"errors"
)

// Source returns the raw bytes of a snapshot document.
type Source interface {
	Load(ctx context.Context) ([]byte, error)
}

// TestSource is a simple in-memory implementation for testing
type TestSource struct {
	data []byte
	err  error
}

func NewTestSource(data []byte) *TestSource {
	return &TestSource{data: data}
}

func NewTestSourceWithError() *TestSource {
	return &TestSource{err: errors.New("not found")}
}

func (t *TestSource) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

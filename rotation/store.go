package rotation

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	_ "modernc.org/sqlite"
)

// maxCASRetries bounds optimistic update loops under contention.
const maxCASRetries = 64

var errContention = errors.New("rotation state update lost to concurrent writers")

// Store persists the active credential index across invocations. Advance
// is an atomic read-modify-write: it returns the index to start from and
// stores the following one, so concurrent invocations never share a start.
type Store interface {
	Advance(ctx context.Context, n int) (int, error)
	Get(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

func next(idx, n int) (current, following int) {
	if n <= 0 {
		return 0, 0
	}
	current = ((idx % n) + n) % n
	return current, (current + 1) % n
}

// MemoryStore keeps the flag in process memory. It does not survive
// restarts and is meant for tests and single-shot CLI runs.
type MemoryStore struct {
	mu  sync.Mutex
	idx int
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Advance(ctx context.Context, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, following := next(m.idx, n)
	m.idx = following
	return cur, nil
}

func (m *MemoryStore) Get(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idx, nil
}

func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idx = 0
	return nil
}

// SQLiteStore keeps the flag in a single versioned row and updates it with
// optimistic concurrency, so several processes may share one database file.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, name: "active_credential"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS rotation_state (
        name TEXT PRIMARY KEY,
        idx INTEGER NOT NULL,
        version INTEGER NOT NULL,
        updated_at DATETIME NOT NULL
    );
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) read(ctx context.Context) (idx, version int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT idx, version FROM rotation_state WHERE name = ?`, s.name)
	err = row.Scan(&idx, &version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO rotation_state (name, idx, version, updated_at) VALUES (?, 0, 0, ?)`,
			s.name, time.Now().UTC()); err != nil {
			return 0, 0, fmt.Errorf("failed to seed rotation state: %w", err)
		}
		return s.read(ctx)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read rotation state: %w", err)
	}
	return idx, version, nil
}

func (s *SQLiteStore) Advance(ctx context.Context, n int) (int, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		idx, version, err := s.read(ctx)
		if err != nil {
			return 0, err
		}

		cur, following := next(idx, n)
		res, err := s.db.ExecContext(ctx,
			`UPDATE rotation_state SET idx = ?, version = version + 1, updated_at = ? WHERE name = ? AND version = ?`,
			following, time.Now().UTC(), s.name, version)
		if err != nil {
			return 0, fmt.Errorf("failed to update rotation state: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 1 {
			return cur, nil
		}
		slog.Debug("ROTATION: Lost optimistic update, retrying", "attempt", attempt, "version", version)
	}
	return 0, errContention
}

func (s *SQLiteStore) Get(ctx context.Context) (int, error) {
	idx, _, err := s.read(ctx)
	return idx, err
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, _, err := s.read(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE rotation_state SET idx = 0, version = version + 1, updated_at = ? WHERE name = ?`,
		time.Now().UTC(), s.name)
	if err != nil {
		return fmt.Errorf("failed to reset rotation state: %w", err)
	}
	return nil
}

type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3State struct {
	ActiveCredentialIndex int       `json:"active_credential_index"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// S3Store keeps the flag in a small JSON object and relies on S3
// conditional writes (If-Match / If-None-Match) for atomic updates.
type S3Store struct {
	s3     s3API
	bucket string
	key    string
}

func NewS3Store(client s3API, bucket, key string) *S3Store {
	return &S3Store{s3: client, bucket: bucket, key: key}
}

// load returns the state and its ETag. A missing object yields the zero
// state and an empty ETag.
func (s *S3Store) load(ctx context.Context) (s3State, string, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return s3State{}, "", nil
		}
		return s3State{}, "", fmt.Errorf("failed to get rotation state from S3: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return s3State{}, "", fmt.Errorf("failed to read rotation state: %w", err)
	}

	var st s3State
	if err := json.Unmarshal(data, &st); err != nil {
		return s3State{}, "", fmt.Errorf("failed to decode rotation state: %w", err)
	}
	return st, aws.ToString(resp.ETag), nil
}

func (s *S3Store) put(ctx context.Context, st s3State, etag string) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if etag == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(etag)
	}

	_, err = s.s3.PutObject(ctx, in)
	return err
}

func isConditionFailure(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}

func (s *S3Store) Advance(ctx context.Context, n int) (int, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		st, etag, err := s.load(ctx)
		if err != nil {
			return 0, err
		}

		cur, following := next(st.ActiveCredentialIndex, n)
		err = s.put(ctx, s3State{ActiveCredentialIndex: following}, etag)
		if err == nil {
			return cur, nil
		}
		if !isConditionFailure(err) {
			return 0, fmt.Errorf("failed to put rotation state to S3: %w", err)
		}
		slog.Debug("ROTATION: Conditional write rejected, retrying", "attempt", attempt)
	}
	return 0, errContention
}

func (s *S3Store) Get(ctx context.Context) (int, error) {
	st, _, err := s.load(ctx)
	return st.ActiveCredentialIndex, err
}

func (s *S3Store) Reset(ctx context.Context) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		_, etag, err := s.load(ctx)
		if err != nil {
			return err
		}
		err = s.put(ctx, s3State{}, etag)
		if err == nil {
			return nil
		}
		if !isConditionFailure(err) {
			return fmt.Errorf("failed to put rotation state to S3: %w", err)
		}
	}
	return errContention
}

package reference

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fuelagent"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog reads the crawler's hpb_foods and hpb_embeddings tables.
// Entry ids are the crawler's crId values.
type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &SQLiteCatalog{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func (c *SQLiteCatalog) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS hpb_foods (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        crId TEXT NOT NULL UNIQUE,
        name TEXT NOT NULL,
        description TEXT,
        category_l1 TEXT,
        category_l2 TEXT,
        type TEXT,
        default_unit TEXT,
        default_weight REAL,
        calories REAL,
        protein REAL,
        carbs REAL,
        fat REAL
    );

    CREATE TABLE IF NOT EXISTS hpb_embeddings (
        crId TEXT PRIMARY KEY,
        embedding TEXT NOT NULL
    );
    `
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const selectFoods = `
    SELECT crId, name, COALESCE(description, ''), COALESCE(category_l1, ''), COALESCE(category_l2, ''),
           COALESCE(default_unit, ''), COALESCE(default_weight, 0),
           COALESCE(calories, 0), COALESCE(protein, 0), COALESCE(carbs, 0), COALESCE(fat, 0)
    FROM hpb_foods
`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (fuelagent.ReferenceFoodEntry, error) {
	var (
		e      fuelagent.ReferenceFoodEntry
		l1, l2 string
	)
	err := row.Scan(&e.ID, &e.Name, &e.Description, &l1, &l2,
		&e.DefaultUnit, &e.DefaultWeightGrams,
		&e.Nutrients.Calories, &e.Nutrients.Protein, &e.Nutrients.Carbs, &e.Nutrients.Fat)
	if err != nil {
		return e, err
	}
	for _, cat := range []string{l1, l2} {
		if cat = strings.TrimSpace(cat); cat != "" {
			e.CategoryPath = append(e.CategoryPath, cat)
		}
	}
	return e, nil
}

func (c *SQLiteCatalog) ListEntries(ctx context.Context) ([]fuelagent.ReferenceFoodEntry, error) {
	rows, err := c.db.QueryContext(ctx, selectFoods+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var entries []fuelagent.ReferenceFoodEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan food: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (c *SQLiteCatalog) Entry(ctx context.Context, id string) (fuelagent.ReferenceFoodEntry, bool, error) {
	e, err := scanEntry(c.db.QueryRowContext(ctx, selectFoods+" WHERE crId = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return fuelagent.ReferenceFoodEntry{}, false, nil
	}
	if err != nil {
		return fuelagent.ReferenceFoodEntry{}, false, fmt.Errorf("failed to query food %s: %w", id, err)
	}
	return e, true, nil
}

// Embeddings decodes every stored JSON float array.
func (c *SQLiteCatalog) Embeddings(ctx context.Context) (map[string][]float64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT crId, embedding FROM hpb_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var (
			id  string
			raw string
			vec []float64
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// Upsert writes an entry and, when vec is non-nil, its embedding.
func (c *SQLiteCatalog) Upsert(ctx context.Context, e fuelagent.ReferenceFoodEntry, vec []float64) error {
	var l1, l2 string
	if len(e.CategoryPath) > 0 {
		l1 = e.CategoryPath[0]
	}
	if len(e.CategoryPath) > 1 {
		l2 = strings.Join(e.CategoryPath[1:], " / ")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO hpb_foods (crId, name, description, category_l1, category_l2, default_unit, default_weight, calories, protein, carbs, fat)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(crId) DO UPDATE SET
            name=excluded.name, description=excluded.description,
            category_l1=excluded.category_l1, category_l2=excluded.category_l2,
            default_unit=excluded.default_unit, default_weight=excluded.default_weight,
            calories=excluded.calories, protein=excluded.protein, carbs=excluded.carbs, fat=excluded.fat
    `, e.ID, e.Name, e.Description, l1, l2, e.DefaultUnit, e.DefaultWeightGrams,
		e.Nutrients.Calories, e.Nutrients.Protein, e.Nutrients.Carbs, e.Nutrients.Fat)
	if err != nil {
		return fmt.Errorf("failed to upsert food %s: %w", e.ID, err)
	}

	if vec != nil {
		raw, err := json.Marshal(vec)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO hpb_embeddings (crId, embedding) VALUES (?, ?)
            ON CONFLICT(crId) DO UPDATE SET embedding=excluded.embedding
        `, e.ID, string(raw))
		if err != nil {
			return fmt.Errorf("failed to upsert embedding %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

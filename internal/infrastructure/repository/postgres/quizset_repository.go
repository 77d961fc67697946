package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

type QuizSetRepository struct {
	db *sql.DB
}

func NewQuizSetRepository(db *sql.DB) *QuizSetRepository {
	return &QuizSetRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *QuizSetRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS quiz_sets (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	items JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quiz_sets_difficulty ON quiz_sets(difficulty);
CREATE INDEX IF NOT EXISTS idx_quiz_sets_created_at ON quiz_sets(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *QuizSetRepository) Save(ctx context.Context, set *domain.QuizSet) error {
	itemsJSON, err := json.Marshal(set.Items)
	if err != nil {
		return fmt.Errorf("marshal quiz items: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO quiz_sets (id, title, difficulty, items, created_at)
VALUES ($1,$2,$3,$4,$5)
`,
		set.ID, set.Title, string(set.Difficulty), itemsJSON, set.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz set: %w", err)
	}
	return nil
}

func (r *QuizSetRepository) GetByID(ctx context.Context, id string) (*domain.QuizSet, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, difficulty, items, created_at
FROM quiz_sets
WHERE id = $1
`, id)

	var set domain.QuizSet
	var difficulty string
	var itemsRaw []byte

	err := row.Scan(&set.ID, &set.Title, &difficulty, &itemsRaw, &set.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get quiz set", fmt.Errorf("quiz set %s", id))
		}
		return nil, fmt.Errorf("scan quiz set: %w", err)
	}

	if err := json.Unmarshal(itemsRaw, &set.Items); err != nil {
		return nil, fmt.Errorf("unmarshal quiz items: %w", err)
	}
	set.Difficulty = domain.Difficulty(difficulty)
	return &set, nil
}

func (r *QuizSetRepository) List(ctx context.Context, difficulty domain.Difficulty) ([]domain.QuizSetMeta, error) {
	const baseQuery = `
SELECT id, title, difficulty, created_at, jsonb_array_length(items)
FROM quiz_sets
`
	var rows *sql.Rows
	var err error
	if difficulty == "" {
		rows, err = r.db.QueryContext(ctx, baseQuery+`ORDER BY created_at DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, baseQuery+`WHERE difficulty = $1 ORDER BY created_at DESC`, string(difficulty))
	}
	if err != nil {
		return nil, fmt.Errorf("query quiz sets: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizSetMeta, 0, 16)
	for rows.Next() {
		var meta domain.QuizSetMeta
		var diff string
		if err := rows.Scan(&meta.ID, &meta.Title, &diff, &meta.CreatedAt, &meta.Count); err != nil {
			return nil, fmt.Errorf("scan quiz set meta: %w", err)
		}
		meta.Difficulty = domain.Difficulty(diff)
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz sets: %w", err)
	}
	return out, nil
}

func (r *QuizSetRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quiz_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz set: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quiz set rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "delete quiz set", fmt.Errorf("quiz set %s", id))
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"evater/api/internal/exam"
)

type TestRepo struct{ DB *sql.DB }

func NewTestRepo(db *sql.DB) *TestRepo { return &TestRepo{DB: db} }

// Save stores a generated test. Saving the same id again overwrites it.
func (r *TestRepo) Save(ctx context.Context, t exam.Test) error {
	js, err := json.Marshal(t)
	if err != nil {
		return err
	}
	const q = `
insert into tests (id, created_at, grade, subject, topic, difficulty, length, unsupported_by_source, result_json)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (id) do update
set grade = excluded.grade,
    subject = excluded.subject,
    topic = excluded.topic,
    difficulty = excluded.difficulty,
    length = excluded.length,
    unsupported_by_source = excluded.unsupported_by_source,
    result_json = excluded.result_json`
	_, err = r.DB.ExecContext(ctx, q,
		t.ID, t.CreatedAt, t.Grade, t.Subject, t.Topic, string(t.Difficulty), string(t.Length),
		t.UnsupportedBySource, js,
	)
	return err
}

// Find returns the test with the given id or ErrNotFound.
func (r *TestRepo) Find(ctx context.Context, id string) (exam.Test, error) {
	const q = `select result_json from tests where id = $1`
	var js []byte
	if err := r.DB.QueryRowContext(ctx, q, id).Scan(&js); err != nil {
		return exam.Test{}, err
	}
	var t exam.Test
	if err := json.Unmarshal(js, &t); err != nil {
		// a broken row is as good as a missing one
		return exam.Test{}, ErrNotFound
	}
	return t, nil
}

// PurgeOlderThan deletes old tests so the table does not grow unbounded.
func (r *TestRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from tests where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

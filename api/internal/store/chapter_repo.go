package store

import (
	"context"
	"database/sql"
	"strings"
)

// ChapterRepo serves chapter summaries used as reference content for
// question generation.
type ChapterRepo struct{ DB *sql.DB }

func NewChapterRepo(db *sql.DB) *ChapterRepo { return &ChapterRepo{DB: db} }

// Summary looks a chapter up case-insensitively. It returns ErrNotFound when
// there is no such chapter.
func (r *ChapterRepo) Summary(ctx context.Context, grade, subject, chapter string) (string, error) {
	const q = `select summary
	           from chapter_contents
	           where grade = $1 and lower(subject) = lower($2) and lower(chapter) = lower($3)
	           limit 1`
	var summary string
	if err := r.DB.QueryRowContext(ctx, q, strings.TrimSpace(grade), strings.TrimSpace(subject), strings.TrimSpace(chapter)).Scan(&summary); err != nil {
		return "", err
	}
	return summary, nil
}

// Upsert stores or replaces a chapter summary.
func (r *ChapterRepo) Upsert(ctx context.Context, grade, subject, chapter, summary string) error {
	const q = `
insert into chapter_contents (grade, subject, chapter, summary)
values ($1, $2, $3, $4)
on conflict (grade, subject, chapter) do update
set summary = excluded.summary`
	_, err := r.DB.ExecContext(ctx, q, strings.TrimSpace(grade), strings.TrimSpace(subject), strings.TrimSpace(chapter), summary)
	return err
}

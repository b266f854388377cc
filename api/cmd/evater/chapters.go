package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"evater/api/internal/store"
)

// chapterEntry is one item of a chapter summaries file.
type chapterEntry struct {
	Grade   string `yaml:"grade"`
	Subject string `yaml:"subject"`
	Chapter string `yaml:"chapter"`
	Summary string `yaml:"summary"`
}

func readChapters(r io.Reader) ([]chapterEntry, error) {
	var doc struct {
		Chapters []chapterEntry `yaml:"chapters"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode chapters: %w", err)
	}
	if len(doc.Chapters) == 0 {
		return nil, errors.New("no chapters in file")
	}
	for i, c := range doc.Chapters {
		if strings.TrimSpace(c.Grade) == "" || strings.TrimSpace(c.Subject) == "" ||
			strings.TrimSpace(c.Chapter) == "" || strings.TrimSpace(c.Summary) == "" {
			return nil, fmt.Errorf("chapter %d: grade, subject, chapter and summary are required", i+1)
		}
	}
	return doc.Chapters, nil
}

var chaptersCmd = &cobra.Command{
	Use:   "chapters",
	Short: "Manage chapter summaries used as reference content",
}

var chaptersImportCmd = &cobra.Command{
	Use:     "import <file.yaml>",
	Short:   "Insert or replace chapter summaries from a YAML file",
	Example: `  evater chapters import ./chapters.yaml`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		entries, err := readChapters(f)
		if err != nil {
			return err
		}

		dsn := store.ResolveDSN()
		if dsn == "" {
			return errors.New("DATABASE_URL or PGHOST must be set")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		db, err := store.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		repo := store.NewChapterRepo(db)
		for _, c := range entries {
			if err := repo.Upsert(ctx, c.Grade, c.Subject, c.Chapter, c.Summary); err != nil {
				return fmt.Errorf("upsert %s/%s/%s: %w", c.Grade, c.Subject, c.Chapter, err)
			}
		}
		logger.Info("chapters imported", zap.Int("count", len(entries)), zap.String("db", store.SafeDSNSummary(dsn)))
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d chapters\n", len(entries))
		return nil
	},
}

func init() {
	chaptersCmd.AddCommand(chaptersImportCmd)
}

package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
)

// CSVSink writes one file per run under dir.
type CSVSink struct {
	dir string
}

func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir}
}

func (s *CSVSink) Name() string { return "csv" }

// PostsPath is the file SavePosts writes for run.
func (s *CSVSink) PostsPath(run string) string {
	return filepath.Join(s.dir, run+".csv")
}

func (s *CSVSink) CommentsPath(run string) string {
	return filepath.Join(s.dir, run+"_comments.csv")
}

// SavePosts writes the header and one row per post. An empty slice still
// produces a header-only file.
func (s *CSVSink) SavePosts(ctx context.Context, run string, posts []model.CanonicalPost) error {
	rows := make([][]string, len(posts))
	for i, p := range posts {
		rows[i] = p.Row()
	}
	if err := s.write(s.PostsPath(run), model.PostColumns, rows); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues(s.Name(), "posts").Add(float64(len(rows)))
	return nil
}

func (s *CSVSink) SaveComments(ctx context.Context, run string, comments []model.CanonicalComment) error {
	rows := make([][]string, len(comments))
	for i, c := range comments {
		rows[i] = c.Row()
	}
	if err := s.write(s.CommentsPath(run), model.CommentColumns, rows); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues(s.Name(), "comments").Add(float64(len(rows)))
	return nil
}

func (s *CSVSink) Close() error { return nil }

// write goes through a temp file so a failed run never leaves a half-written
// file at path.
func (s *CSVSink) write(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

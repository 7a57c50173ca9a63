package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS reddit_posts (
	post_id TEXT PRIMARY KEY,
	title TEXT,
	author TEXT,
	score,
	created_at,
	comment_count,
	url TEXT,
	run TEXT NOT NULL,
	loaded_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS reddit_comments (
	comment_id TEXT PRIMARY KEY,
	post_id TEXT NOT NULL,
	author TEXT,
	body TEXT,
	score,
	created_at,
	run TEXT NOT NULL,
	loaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_run ON reddit_posts(run);
CREATE INDEX IF NOT EXISTS idx_comments_post ON reddit_comments(post_id);
`

const upsertPostSQL = `
INSERT INTO reddit_posts (post_id, title, author, score, created_at, comment_count, url, run, loaded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(post_id) DO UPDATE SET
	title = excluded.title,
	author = excluded.author,
	score = excluded.score,
	created_at = excluded.created_at,
	comment_count = excluded.comment_count,
	url = excluded.url,
	run = excluded.run,
	loaded_at = excluded.loaded_at
`

const upsertCommentSQL = `
INSERT INTO reddit_comments (comment_id, post_id, author, body, score, created_at, run, loaded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(comment_id) DO UPDATE SET
	post_id = excluded.post_id,
	author = excluded.author,
	body = excluded.body,
	score = excluded.score,
	created_at = excluded.created_at,
	run = excluded.run,
	loaded_at = excluded.loaded_at
`

// SQLiteSink upserts rows into a local SQLite database. Score and timestamp
// columns are untyped so values keep the type they arrived with.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	sink, err := NewSQLiteSink(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewSQLiteSink wraps an open handle and makes sure the schema exists.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) SavePosts(ctx context.Context, run string, posts []model.CanonicalPost) error {
	if len(posts) == 0 {
		return nil
	}

	loadedAt := s.now().UTC()
	err := s.inTx(ctx, upsertPostSQL, func(stmt *sql.Stmt) error {
		for _, p := range posts {
			args := storeValues(p.Values())
			args = append(args, run, loadedAt)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("upsert post %s: %w", model.FormatValue(p.PostID), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.RowsWritten.WithLabelValues(s.Name(), "posts").Add(float64(len(posts)))
	return nil
}

func (s *SQLiteSink) SaveComments(ctx context.Context, run string, comments []model.CanonicalComment) error {
	if len(comments) == 0 {
		return nil
	}

	loadedAt := s.now().UTC()
	err := s.inTx(ctx, upsertCommentSQL, func(stmt *sql.Stmt) error {
		for _, c := range comments {
			args := storeValues(c.Values())
			args = append(args, run, loadedAt)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("upsert comment %s: %w", model.FormatValue(c.CommentID), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.RowsWritten.WithLabelValues(s.Name(), "comments").Add(float64(len(comments)))
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) inTx(ctx context.Context, query string, fn func(*sql.Stmt) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	if err := fn(stmt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func storeValues(values []any) []any {
	out := make([]any, len(values), len(values)+2)
	for i, v := range values {
		out[i] = model.StoreValue(v)
	}
	return out
}

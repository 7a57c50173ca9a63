package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawItem is one decoded `data` object from a listing or comment child entry.
// Numbers are kept as json.Number so values pass through untouched.
type RawItem map[string]any

// Has reports whether key is present, regardless of its value.
func (r RawItem) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the value for key rendered as text, or "" when absent.
func (r RawItem) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// PostColumns is the column order of the posts table.
var PostColumns = []string{"post_id", "title", "author", "score", "created_at", "comment_count", "url"}

// CommentColumns is the column order of the comments table.
var CommentColumns = []string{"comment_id", "post_id", "author", "body", "score", "created_at"}

// CanonicalPost is the output projection of a valid listing item. Values are
// copied from the raw item without conversion.
type CanonicalPost struct {
	PostID       any `json:"post_id" bson:"post_id"`
	Title        any `json:"title" bson:"title"`
	Author       any `json:"author" bson:"author"`
	Score        any `json:"score" bson:"score"`
	CreatedAt    any `json:"created_at" bson:"created_at"`
	CommentCount any `json:"comment_count" bson:"comment_count"`
	URL          any `json:"url" bson:"url"`
}

// Values returns the fields in PostColumns order.
func (p CanonicalPost) Values() []any {
	return []any{p.PostID, p.Title, p.Author, p.Score, p.CreatedAt, p.CommentCount, p.URL}
}

// Row renders the post as a table row in PostColumns order.
func (p CanonicalPost) Row() []string {
	return formatRow(p.Values())
}

// CanonicalComment is the output projection of a comment entry.
type CanonicalComment struct {
	CommentID any    `json:"comment_id" bson:"comment_id"`
	PostID    string `json:"post_id" bson:"post_id"`
	Author    any    `json:"author" bson:"author"`
	Body      any    `json:"body" bson:"body"`
	Score     any    `json:"score" bson:"score"`
	CreatedAt any    `json:"created_at" bson:"created_at"`
}

// Values returns the fields in CommentColumns order.
func (c CanonicalComment) Values() []any {
	return []any{c.CommentID, c.PostID, c.Author, c.Body, c.Score, c.CreatedAt}
}

func (c CanonicalComment) Row() []string {
	return formatRow(c.Values())
}

// FormatValue renders a decoded JSON value as it appeared on the wire.
// Strings are returned unquoted, nil as "", objects and arrays as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool, int, int64, float64:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// StoreValue converts a decoded JSON value into something a database driver
// accepts: json.Number becomes int64 or float64, containers become JSON text.
func StoreValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return FormatValue(val)
	}
}

func formatRow(values []any) []string {
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = FormatValue(v)
	}
	return row
}

// RunRequest describes one pipeline invocation.
type RunRequest struct {
	RequestID       string `json:"requestId"`
	Subreddit       string `json:"subreddit"`
	Limit           int    `json:"limit"`
	FileName        string `json:"fileName"`
	IncludeComments bool   `json:"includeComments"`
	CommentLimit    int    `json:"commentLimit"`
}

// RunResult summarises one pipeline invocation.
type RunResult struct {
	RequestID       string    `json:"requestId"`
	Subreddit       string    `json:"subreddit"`
	FileName        string    `json:"fileName"`
	OutputPath      string    `json:"outputPath,omitempty"`
	Sinks           []string  `json:"sinks"`
	ItemsFetched    int       `json:"itemsFetched"`
	PostsWritten    int       `json:"postsWritten"`
	CommentsWritten int       `json:"commentsWritten"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}

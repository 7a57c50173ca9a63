package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit-pipeline/model"
)

func samplePosts() []model.CanonicalPost {
	return []model.CanonicalPost{
		{
			PostID:       "abc",
			Title:        `Quote "this", please`,
			Author:       "someone",
			Score:        json.Number("100"),
			CreatedAt:    json.Number("1234567890"),
			CommentCount: json.Number("50"),
			URL:          "https://test.com",
		},
		{
			PostID:       "def",
			Title:        "Second",
			Author:       "other",
			Score:        json.Number("-2"),
			CreatedAt:    json.Number("1234567891.0"),
			CommentCount: json.Number("0"),
			URL:          "https://example.com/2",
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVSinkSavePosts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	sink := NewCSVSink(dir)

	require.NoError(t, sink.SavePosts(context.Background(), "golang_20240101", samplePosts()))

	path := sink.PostsPath("golang_20240101")
	assert.Equal(t, filepath.Join(dir, "golang_20240101.csv"), path)

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"post_id", "title", "author", "score", "created_at", "comment_count", "url"}, records[0])
	assert.Equal(t, []string{"abc", `Quote "this", please`, "someone", "100", "1234567890", "50", "https://test.com"}, records[1])
	assert.Equal(t, "1234567891.0", records[2][4])
}

func TestCSVSinkEmptyWritesHeaderOnly(t *testing.T) {
	sink := NewCSVSink(t.TempDir())

	require.NoError(t, sink.SavePosts(context.Background(), "empty", nil))

	records := readCSV(t, sink.PostsPath("empty"))
	require.Len(t, records, 1)
	assert.Equal(t, model.PostColumns, records[0])
}

func TestCSVSinkOverwritesPreviousRun(t *testing.T) {
	sink := NewCSVSink(t.TempDir())
	ctx := context.Background()

	require.NoError(t, sink.SavePosts(ctx, "run", samplePosts()))
	require.NoError(t, sink.SavePosts(ctx, "run", samplePosts()[:1]))

	assert.Len(t, readCSV(t, sink.PostsPath("run")), 2)

	entries, err := os.ReadDir(filepath.Dir(sink.PostsPath("run")))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestCSVSinkSaveComments(t *testing.T) {
	sink := NewCSVSink(t.TempDir())
	comments := []model.CanonicalComment{{
		CommentID: "c1",
		PostID:    "abc",
		Author:    "commenter",
		Body:      "multi\nline",
		Score:     json.Number("3"),
		CreatedAt: json.Number("1234567890"),
	}}

	require.NoError(t, sink.SaveComments(context.Background(), "run", comments))

	records := readCSV(t, sink.CommentsPath("run"))
	require.Len(t, records, 2)
	assert.Equal(t, model.CommentColumns, records[0])
	assert.Equal(t, []string{"c1", "abc", "commenter", "multi\nline", "3", "1234567890"}, records[1])
}

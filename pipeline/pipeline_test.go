package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddit-pipeline/config"
	"reddit-pipeline/fetcher"
	"reddit-pipeline/logging"
	"reddit-pipeline/model"
	"reddit-pipeline/storage"
)

type fakeSource struct {
	posts        []model.RawItem
	comments     map[string][]model.RawItem
	commentCalls []string
}

func (f *fakeSource) FetchListing(ctx context.Context, subreddit string, limit int) []model.RawItem {
	return f.posts
}

func (f *fakeSource) FetchComments(ctx context.Context, subreddit, postID string, limit int) []model.RawItem {
	f.commentCalls = append(f.commentCalls, postID)
	return f.comments[postID]
}

type memorySink struct {
	runs     []string
	posts    []model.CanonicalPost
	comments []model.CanonicalComment
	err      error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) SavePosts(ctx context.Context, run string, posts []model.CanonicalPost) error {
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	m.posts = append(m.posts, posts...)
	return nil
}

func (m *memorySink) SaveComments(ctx context.Context, run string, comments []model.CanonicalComment) error {
	m.comments = append(m.comments, comments...)
	return nil
}

func (m *memorySink) Close() error { return nil }

type recordingPublisher struct {
	results []model.RunResult
}

func (r *recordingPublisher) PublishResult(ctx context.Context, result model.RunResult) error {
	r.results = append(r.results, result)
	return nil
}

func rawPost(id string) model.RawItem {
	return model.RawItem{
		"id": id, "title": "t-" + id, "author": "a", "score": 1,
		"created_utc": 1234567890, "num_comments": 0, "url": "https://x/" + id,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Subreddit:    "dataengineering",
		FetchLimit:   config.DefaultLimit,
		CommentLimit: config.DefaultLimit,
	}
}

func newTestPipeline(src Source, sinks []storage.Sink, pub Publisher) *Pipeline {
	p := New(testConfig(), src, sinks, pub, logging.NewDiscardLogger())
	p.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }
	return p
}

func TestRunWritesValidPosts(t *testing.T) {
	invalid := rawPost("bad")
	delete(invalid, "score")
	src := &fakeSource{posts: []model.RawItem{rawPost("p1"), invalid, rawPost("p2")}}
	sink := &memorySink{}
	pub := &recordingPublisher{}

	result, err := newTestPipeline(src, []storage.Sink{sink}, pub).Run(context.Background(), model.RunRequest{Subreddit: "golang"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ItemsFetched)
	assert.Equal(t, 2, result.PostsWritten)
	assert.Equal(t, "golang_20240309", result.FileName)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, []string{"memory"}, result.Sinks)

	require.Len(t, sink.posts, 2)
	assert.Equal(t, "p1", sink.posts[0].PostID)
	assert.Equal(t, "p2", sink.posts[1].PostID)
	assert.Empty(t, src.commentCalls)

	require.Len(t, pub.results, 1)
	assert.Equal(t, result.RequestID, pub.results[0].RequestID)
}

func TestRunWithComments(t *testing.T) {
	src := &fakeSource{
		posts: []model.RawItem{rawPost("p1"), rawPost("p2")},
		comments: map[string][]model.RawItem{
			"p1": {{"id": "c1", "author": "x", "body": "hi", "score": 1, "created_utc": 2}},
			"p2": {{"id": "c2", "author": "y", "score": 1, "created_utc": 2}},
		},
	}
	sink := &memorySink{}

	result, err := newTestPipeline(src, []storage.Sink{sink}, nil).Run(context.Background(), model.RunRequest{
		Subreddit:       "golang",
		IncludeComments: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"p1", "p2"}, src.commentCalls)
	assert.Equal(t, 1, result.CommentsWritten)
	require.Len(t, sink.comments, 1)
	assert.Equal(t, "p1", sink.comments[0].PostID)
}

func TestRunEmptyFetchStillWrites(t *testing.T) {
	sink := &memorySink{}

	result, err := newTestPipeline(&fakeSource{}, []storage.Sink{sink}, nil).Run(context.Background(), model.RunRequest{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "dataengineering", result.Subreddit)
	assert.Equal(t, []string{"dataengineering_20240309"}, sink.runs)
	assert.Zero(t, result.PostsWritten)
}

func TestRunSinkFailure(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	pub := &recordingPublisher{}

	result, err := newTestPipeline(&fakeSource{posts: []model.RawItem{rawPost("p1")}}, []storage.Sink{sink}, pub).
		Run(context.Background(), model.RunRequest{Subreddit: "golang"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory sink")
	assert.False(t, result.Success)
	assert.Equal(t, err.Error(), result.Error)
	require.Len(t, pub.results, 1)
	assert.False(t, pub.results[0].Success)
}

func TestRunRejectsPathInFileName(t *testing.T) {
	for _, name := range []string{"../escape", "a/b", `a\b`, ".."} {
		_, err := newTestPipeline(&fakeSource{}, nil, nil).Run(context.Background(), model.RunRequest{FileName: name})
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}
}

const listingBody = `{"data": {"children": [
	{"kind": "t3", "data": {"id": "abc", "title": "Hello", "author": "me", "score": 10,
		"created_utc": 1700000000, "num_comments": 2, "url": "https://example.com", "ups": 10}},
	{"kind": "t3", "data": {"id": "nope", "title": "Missing url", "author": "me", "score": 1,
		"created_utc": 1700000001, "num_comments": 0}}
]}}`

func TestRunEndToEndCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingBody))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	cfg.UserAgent = config.DefaultUserAgent
	cfg.RequestTimeout = 5 * time.Second
	logger := logging.NewDiscardLogger()

	sink := storage.NewCSVSink(t.TempDir())
	p := New(cfg, fetcher.NewFetcher(cfg, logger), []storage.Sink{sink}, nil, logger)

	result, err := p.Run(context.Background(), model.RunRequest{Subreddit: "golang", FileName: "out"})
	require.NoError(t, err)
	assert.Equal(t, sink.PostsPath("out"), result.OutputPath)

	f, err := os.Open(result.OutputPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "post_id,title,author,score,created_at,comment_count,url", strings.Join(records[0], ","))
	assert.Equal(t, []string{"abc", "Hello", "me", "10", "1700000000", "2", "https://example.com"}, records[1])
}

func TestRunEndToEndTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	cfg := testConfig()
	cfg.BaseURL = srv.URL
	cfg.UserAgent = config.DefaultUserAgent
	cfg.RequestTimeout = time.Second
	logger := logging.NewDiscardLogger()

	sink := storage.NewCSVSink(t.TempDir())
	p := New(cfg, fetcher.NewFetcher(cfg, logger), []storage.Sink{sink}, nil, logger)

	result, err := p.Run(context.Background(), model.RunRequest{Subreddit: "golang", FileName: "down"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.PostsWritten)

	data, err := os.ReadFile(result.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "post_id,title,author,score,created_at,comment_count,url\n", string(data))
}

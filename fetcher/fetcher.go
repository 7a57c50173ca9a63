package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"reddit-pipeline/config"
	"reddit-pipeline/logging"
	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
	"reddit-pipeline/transform"
)

// CommentKind marks actual comments among comment-tree children; "more"
// stubs and other kinds are skipped.
const CommentKind = "t1"

const (
	endpointListing  = "listing"
	endpointComments = "comments"
)

// listingEnvelope is the `{data: {children: [{kind, data}]}}` shape shared by
// listing responses and the comment tree. Pointers tell a missing key apart
// from an empty listing.
type listingEnvelope struct {
	Data *struct {
		Children *[]listingChild `json:"children"`
	} `json:"data"`
}

// children returns the listing entries, or an error when data or children
// is missing.
func (e *listingEnvelope) children() ([]listingChild, error) {
	if e.Data == nil {
		return nil, errors.New("malformed response: missing data")
	}
	if e.Data.Children == nil {
		return nil, errors.New("malformed response: missing data.children")
	}
	return *e.Data.Children, nil
}

type listingChild struct {
	Kind string        `json:"kind"`
	Data model.RawItem `json:"data"`
}

// Fetcher reads listings and comment trees from the Reddit JSON API.
// Every call makes exactly one request. Failures are logged and reported to
// the caller as an empty result.
type Fetcher struct {
	baseURL   string
	userAgent string
	token     string
	headers   map[string]string
	client    *http.Client
	logger    logging.Logger
}

// NewFetcher builds a fetcher from the configured API identity.
func NewFetcher(cfg *config.Config, logger logging.Logger) *Fetcher {
	return NewFetcherWithClient(cfg, &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: DefaultTransport(),
	}, logger)
}

// NewFetcherWithClient uses the given client as-is.
func NewFetcherWithClient(cfg *config.Config, client *http.Client, logger logging.Logger) *Fetcher {
	return &Fetcher{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		token:     cfg.AccessToken,
		headers:   cfg.Headers,
		client:    client,
		logger:    logger,
	}
}

// FetchListing returns the valid items of the subreddit's "hot" listing in API
// order. Items missing a required field are left out.
func (f *Fetcher) FetchListing(ctx context.Context, subreddit string, limit int) []model.RawItem {
	log := f.logger.WithField("subreddit", subreddit)
	if subreddit == "" {
		log.Error("Error fetching posts: empty subreddit name")
		return []model.RawItem{}
	}

	endpoint := fmt.Sprintf("%s/r/%s/hot.json", f.baseURL, url.PathEscape(subreddit))
	body, err := f.get(ctx, endpointListing, endpoint, limit)
	if err != nil {
		log.WithError(err).Errorf("Error fetching posts from %s", subreddit)
		return []model.RawItem{}
	}

	var listing listingEnvelope
	if err := decode(body, &listing); err != nil {
		log.WithError(err).Errorf("Error fetching posts from %s", subreddit)
		return []model.RawItem{}
	}
	children, err := listing.children()
	if err != nil {
		log.WithError(err).Errorf("Error fetching posts from %s", subreddit)
		return []model.RawItem{}
	}

	posts := make([]model.RawItem, 0, len(children))
	for _, child := range children {
		if !transform.ValidatePostData(child.Data) {
			metrics.ItemsDropped.WithLabelValues(endpointListing).Inc()
			continue
		}
		posts = append(posts, child.Data)
	}

	metrics.ItemsFetched.WithLabelValues(endpointListing).Add(float64(len(posts)))
	log.WithField("count", len(posts)).Debug("Fetched posts")
	return posts
}

// FetchComments returns the top-level comment entries of a post. The
// response is a two element array; the second element is the comment tree.
func (f *Fetcher) FetchComments(ctx context.Context, subreddit, postID string, limit int) []model.RawItem {
	log := f.logger.WithFields(logging.Fields{"subreddit": subreddit, "post_id": postID})
	if subreddit == "" || postID == "" {
		log.Error("Error fetching comments: empty subreddit or post id")
		return []model.RawItem{}
	}

	endpoint := fmt.Sprintf("%s/r/%s/comments/%s.json", f.baseURL, url.PathEscape(subreddit), url.PathEscape(postID))
	body, err := f.get(ctx, endpointComments, endpoint, limit)
	if err != nil {
		log.WithError(err).Errorf("Error fetching comments for post %s", postID)
		return []model.RawItem{}
	}

	var parts []json.RawMessage
	if err := decode(body, &parts); err != nil {
		log.WithError(err).Errorf("Error fetching comments for post %s", postID)
		return []model.RawItem{}
	}
	if len(parts) < 2 {
		log.WithField("elements", len(parts)).Errorf("Error fetching comments for post %s: expected 2 response elements", postID)
		return []model.RawItem{}
	}

	var tree listingEnvelope
	if err := decode(parts[1], &tree); err != nil {
		log.WithError(err).Errorf("Error fetching comments for post %s", postID)
		return []model.RawItem{}
	}
	children, err := tree.children()
	if err != nil {
		log.WithError(err).Errorf("Error fetching comments for post %s", postID)
		return []model.RawItem{}
	}

	comments := make([]model.RawItem, 0, len(children))
	for _, child := range children {
		if child.Kind != CommentKind {
			metrics.ItemsDropped.WithLabelValues(endpointComments).Inc()
			continue
		}
		comments = append(comments, child.Data)
	}

	metrics.ItemsFetched.WithLabelValues(endpointComments).Add(float64(len(comments)))
	log.WithField("count", len(comments)).Debug("Fetched comments")
	return comments
}

// get performs one GET with the identity headers and the limit parameter and
// returns the body of a 2xx response.
func (f *Fetcher) get(ctx context.Context, endpoint, rawURL string, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = config.DefaultLimit
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	for name, value := range f.headers {
		req.Header.Set(name, value)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.RedditRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedditRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	metrics.RedditRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// decode unmarshals exactly one JSON value, keeping numbers as json.Number.
// Trailing data after the value is an error.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return errors.New("unmarshal response: trailing data after JSON value")
	}
	return nil
}

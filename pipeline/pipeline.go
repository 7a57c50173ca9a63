package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reddit-pipeline/config"
	"reddit-pipeline/logging"
	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
	"reddit-pipeline/storage"
	"reddit-pipeline/transform"
)

// ErrInvalidRequest is returned for requests that cannot name an output.
var ErrInvalidRequest = errors.New("invalid run request")

// Source is the read side of the pipeline. Fetch failures surface as empty
// results, never as errors.
type Source interface {
	FetchListing(ctx context.Context, subreddit string, limit int) []model.RawItem
	FetchComments(ctx context.Context, subreddit, postID string, limit int) []model.RawItem
}

// Publisher announces finished runs.
type Publisher interface {
	PublishResult(ctx context.Context, result model.RunResult) error
}

// pathSink is implemented by sinks that write to a file per run.
type pathSink interface {
	PostsPath(run string) string
}

// Pipeline runs one extract, transform and load pass per call. Runs are
// sequential; nothing is shared between them.
type Pipeline struct {
	config    *config.Config
	source    Source
	sinks     []storage.Sink
	publisher Publisher
	logger    logging.Logger
	now       func() time.Time
}

// New builds a pipeline. publisher may be nil.
func New(cfg *config.Config, source Source, sinks []storage.Sink, publisher Publisher, logger logging.Logger) *Pipeline {
	return &Pipeline{
		config:    cfg,
		source:    source,
		sinks:     sinks,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Preview fetches and projects posts without writing anything.
func (p *Pipeline) Preview(ctx context.Context, subreddit string, limit int) []model.CanonicalPost {
	return transform.ProcessPosts(p.source.FetchListing(ctx, subreddit, p.limitOrDefault(limit)))
}

// PreviewComments fetches and projects the comments of one post.
func (p *Pipeline) PreviewComments(ctx context.Context, subreddit, postID string, limit int) []model.CanonicalComment {
	raws := p.source.FetchComments(ctx, subreddit, postID, p.commentLimitOrDefault(limit))
	return transform.ProcessComments(postID, raws)
}

// Run executes one pass for req. A failed fetch is not an error: it produces
// an empty output. Sink failures are returned.
func (p *Pipeline) Run(ctx context.Context, req model.RunRequest) (*model.RunResult, error) {
	req = p.normalize(req)
	if err := validateFileName(req.FileName); err != nil {
		return nil, err
	}
	start := p.now()

	result := &model.RunResult{
		RequestID: req.RequestID,
		Subreddit: req.Subreddit,
		FileName:  req.FileName,
		Sinks:     p.sinkNames(),
		StartedAt: start,
	}

	log := p.logger.WithFields(logging.Fields{
		"request_id": req.RequestID,
		"subreddit":  req.Subreddit,
	})
	log.WithField("limit", req.Limit).Info("Starting pipeline run")

	raws := p.source.FetchListing(ctx, req.Subreddit, req.Limit)
	result.ItemsFetched = len(raws)
	posts := transform.ProcessPosts(raws)

	var comments []model.CanonicalComment
	if req.IncludeComments {
		comments = p.collectComments(ctx, req, posts)
	}

	err := p.save(ctx, req.FileName, posts, comments, req.IncludeComments)
	result.FinishedAt = p.now()
	metrics.PipelineRunDuration.Observe(result.FinishedAt.Sub(start).Seconds())

	if err != nil {
		result.Error = err.Error()
		metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Pipeline run failed")
		p.publish(ctx, *result)
		return result, err
	}

	result.Success = true
	result.PostsWritten = len(posts)
	result.CommentsWritten = len(comments)
	result.OutputPath = p.outputPath(req.FileName)
	metrics.PipelineRunsTotal.WithLabelValues("success").Inc()

	log.WithFields(logging.Fields{
		"posts":    result.PostsWritten,
		"comments": result.CommentsWritten,
		"output":   result.OutputPath,
	}).Info("Pipeline run completed")

	p.publish(ctx, *result)
	return result, nil
}

func (p *Pipeline) collectComments(ctx context.Context, req model.RunRequest, posts []model.CanonicalPost) []model.CanonicalComment {
	var comments []model.CanonicalComment
	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}
		postID := model.FormatValue(post.PostID)
		raws := p.source.FetchComments(ctx, req.Subreddit, postID, req.CommentLimit)
		comments = append(comments, transform.ProcessComments(postID, raws)...)
	}
	return comments
}

func (p *Pipeline) save(ctx context.Context, run string, posts []model.CanonicalPost, comments []model.CanonicalComment, withComments bool) error {
	for _, sink := range p.sinks {
		if err := sink.SavePosts(ctx, run, posts); err != nil {
			metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			return fmt.Errorf("%s sink: save posts: %w", sink.Name(), err)
		}
		if !withComments {
			continue
		}
		if err := sink.SaveComments(ctx, run, comments); err != nil {
			metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
			return fmt.Errorf("%s sink: save comments: %w", sink.Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, result model.RunResult) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishResult(ctx, result); err != nil {
		p.logger.WithError(err).WithField("request_id", result.RequestID).Warn("Failed to publish run result")
	}
}

func (p *Pipeline) normalize(req model.RunRequest) model.RunRequest {
	req.Subreddit = strings.TrimSpace(req.Subreddit)
	if req.Subreddit == "" {
		req.Subreddit = p.config.Subreddit
	}
	req.Limit = p.limitOrDefault(req.Limit)
	req.CommentLimit = p.commentLimitOrDefault(req.CommentLimit)
	if req.FileName == "" {
		req.FileName = DefaultFileName(req.Subreddit, p.now())
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return req
}

func (p *Pipeline) limitOrDefault(limit int) int {
	if limit > 0 {
		return limit
	}
	if p.config.FetchLimit > 0 {
		return p.config.FetchLimit
	}
	return config.DefaultLimit
}

func (p *Pipeline) commentLimitOrDefault(limit int) int {
	if limit > 0 {
		return limit
	}
	if p.config.CommentLimit > 0 {
		return p.config.CommentLimit
	}
	return config.DefaultLimit
}

func (p *Pipeline) sinkNames() []string {
	names := make([]string, len(p.sinks))
	for i, s := range p.sinks {
		names[i] = s.Name()
	}
	return names
}

func (p *Pipeline) outputPath(run string) string {
	for _, s := range p.sinks {
		if ps, ok := s.(pathSink); ok {
			return ps.PostsPath(run)
		}
	}
	return ""
}

func validateFileName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: file name %q must be a bare name", ErrInvalidRequest, name)
	}
	return nil
}

// DefaultFileName names a run's output after the subreddit and day.
func DefaultFileName(subreddit string, at time.Time) string {
	return fmt.Sprintf("%s_%s", subreddit, at.Format("20060102"))
}

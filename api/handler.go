package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"reddit-pipeline/logging"
	"reddit-pipeline/model"
	"reddit-pipeline/pipeline"
)

// maxLimit caps preview sizes; the Reddit API itself returns at most 100.
const maxLimit = 100

// Runner is the pipeline as seen by the handlers.
type Runner interface {
	Run(ctx context.Context, req model.RunRequest) (*model.RunResult, error)
	Preview(ctx context.Context, subreddit string, limit int) []model.CanonicalPost
	PreviewComments(ctx context.Context, subreddit, postID string, limit int) []model.CanonicalComment
}

type Handler struct {
	runner Runner
	logger logging.Logger
}

func NewHandler(runner Runner, logger logging.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// RunPipeline runs one pass synchronously and returns its result.
func (h *Handler) RunPipeline(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Limit < 0 || req.CommentLimit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limits must not be negative"})
		return
	}

	result, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Pipeline run via API failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPosts previews the canonical posts of a subreddit without writing them.
func (h *Handler) GetPosts(c *gin.Context) {
	subreddit := strings.TrimSpace(c.Param("subreddit"))
	if subreddit == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subreddit is required"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	posts := h.runner.Preview(c.Request.Context(), subreddit, limit)
	c.JSON(http.StatusOK, gin.H{
		"subreddit": subreddit,
		"count":     len(posts),
		"posts":     posts,
	})
}

func (h *Handler) GetComments(c *gin.Context) {
	subreddit := strings.TrimSpace(c.Param("subreddit"))
	postID := strings.TrimSpace(c.Param("id"))
	if subreddit == "" || postID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subreddit and post id are required"})
		return
	}
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	comments := h.runner.PreviewComments(c.Request.Context(), subreddit, postID, limit)
	c.JSON(http.StatusOK, gin.H{
		"subreddit": subreddit,
		"post_id":   postID,
		"count":     len(comments),
		"comments":  comments,
	})
}

// parseLimit reads ?limit=, writing a 400 when it is not a positive integer.
// Missing means 0, which the pipeline replaces with its default.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return 0, false
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, true
}

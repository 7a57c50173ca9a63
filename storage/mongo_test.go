package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reddit-pipeline/model"
)

func TestPostDocument(t *testing.T) {
	loadedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := PostDocument(samplePosts()[0], "run1", loadedAt)

	assert.Equal(t, "abc", doc["post_id"])
	assert.Equal(t, int64(100), doc["score"])
	assert.Equal(t, int64(1234567890), doc["created_at"])
	assert.Equal(t, int64(50), doc["comment_count"])
	assert.Equal(t, "run1", doc["run"])
	assert.Equal(t, loadedAt, doc["loaded_at"])
	assert.Len(t, doc, len(model.PostColumns)+2)
}

func TestCommentDocument(t *testing.T) {
	doc := CommentDocument(model.CanonicalComment{
		CommentID: "c1", PostID: "abc", Author: "x", Body: "y",
		Score: json.Number("1"), CreatedAt: json.Number("2.5"),
	}, "run1", time.Now())

	assert.Equal(t, "c1", doc["comment_id"])
	assert.Equal(t, "abc", doc["post_id"])
	assert.Equal(t, 2.5, doc["created_at"])
}

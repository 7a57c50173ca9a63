// Package transform validates raw listing entries and projects them into the
// canonical output rows. Everything here is pure: no I/O, no shared state.
package transform

import "reddit-pipeline/model"

// RequiredPostFields must all be present for a listing item to be kept.
var RequiredPostFields = []string{"id", "title", "author", "score", "created_utc", "num_comments", "url"}

// RequiredCommentFields must all be present for a comment to be projected.
var RequiredCommentFields = []string{"id", "author", "body", "score", "created_utc"}

// ValidatePostData reports whether every required post field is present.
// Only presence is checked; a string score still passes.
func ValidatePostData(raw model.RawItem) bool {
	return hasAll(raw, RequiredPostFields)
}

// ProcessPost maps a valid listing item onto a CanonicalPost. It returns
// false when the item fails ValidatePostData.
func ProcessPost(raw model.RawItem) (*model.CanonicalPost, bool) {
	if !ValidatePostData(raw) {
		return nil, false
	}

	return &model.CanonicalPost{
		PostID:       raw["id"],
		Title:        raw["title"],
		Author:       raw["author"],
		Score:        raw["score"],
		CreatedAt:    raw["created_utc"],
		CommentCount: raw["num_comments"],
		URL:          raw["url"],
	}, true
}

// ProcessPosts projects items in order, dropping the invalid ones.
func ProcessPosts(raws []model.RawItem) []model.CanonicalPost {
	posts := make([]model.CanonicalPost, 0, len(raws))
	for _, raw := range raws {
		if post, ok := ProcessPost(raw); ok {
			posts = append(posts, *post)
		}
	}
	return posts
}

func ValidateCommentData(raw model.RawItem) bool {
	return hasAll(raw, RequiredCommentFields)
}

// ProcessComment maps a comment under postID onto a CanonicalComment.
func ProcessComment(postID string, raw model.RawItem) (*model.CanonicalComment, bool) {
	if !ValidateCommentData(raw) {
		return nil, false
	}

	return &model.CanonicalComment{
		CommentID: raw["id"],
		PostID:    postID,
		Author:    raw["author"],
		Body:      raw["body"],
		Score:     raw["score"],
		CreatedAt: raw["created_utc"],
	}, true
}

func ProcessComments(postID string, raws []model.RawItem) []model.CanonicalComment {
	comments := make([]model.CanonicalComment, 0, len(raws))
	for _, raw := range raws {
		if c, ok := ProcessComment(postID, raw); ok {
			comments = append(comments, *c)
		}
	}
	return comments
}

func hasAll(raw model.RawItem, fields []string) bool {
	if raw == nil {
		return false
	}
	for _, field := range fields {
		if !raw.Has(field) {
			return false
		}
	}
	return true
}

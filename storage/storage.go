package storage

import (
	"context"

	"reddit-pipeline/model"
)

// Sink persists the rows produced by one pipeline run. run names the output
// (file stem for CSV, batch tag for databases).
type Sink interface {
	Name() string
	SavePosts(ctx context.Context, run string, posts []model.CanonicalPost) error
	SaveComments(ctx context.Context, run string, comments []model.CanonicalComment) error
	Close() error
}

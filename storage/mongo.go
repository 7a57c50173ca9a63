package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"reddit-pipeline/logging"
	"reddit-pipeline/metrics"
	"reddit-pipeline/model"
)

const (
	postsCollection    = "posts"
	commentsCollection = "comments"
)

// MongoSink upserts rows into MongoDB, keyed on post_id and comment_id.
type MongoSink struct {
	client *mongo.Client
	db     *mongo.Database
	logger logging.Logger
}

// ConnectMongo connects, pings and ensures indexes.
func ConnectMongo(ctx context.Context, uri, database string, logger logging.Logger) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &MongoSink{client: client, db: client.Database(database), logger: logger}
	s.ensureIndexes(ctx)
	return s, nil
}

func (s *MongoSink) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	postIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "post_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "run", Value: 1}, {Key: "loaded_at", Value: -1}},
		},
	}
	if _, err := s.db.Collection(postsCollection).Indexes().CreateMany(ctx, postIndexes); err != nil {
		s.logger.WithError(err).Warn("Failed to create post indexes")
	}

	commentIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "comment_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "post_id", Value: 1}},
		},
	}
	if _, err := s.db.Collection(commentsCollection).Indexes().CreateMany(ctx, commentIndexes); err != nil {
		s.logger.WithError(err).Warn("Failed to create comment indexes")
	}
}

func (s *MongoSink) Name() string { return "mongo" }

func (s *MongoSink) SavePosts(ctx context.Context, run string, posts []model.CanonicalPost) error {
	if len(posts) == 0 {
		return nil
	}
	loadedAt := time.Now().UTC()

	operations := make([]mongo.WriteModel, 0, len(posts))
	for _, p := range posts {
		doc := PostDocument(p, run, loadedAt)
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"post_id": doc["post_id"]}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	return s.bulkWrite(ctx, postsCollection, operations)
}

func (s *MongoSink) SaveComments(ctx context.Context, run string, comments []model.CanonicalComment) error {
	if len(comments) == 0 {
		return nil
	}
	loadedAt := time.Now().UTC()

	operations := make([]mongo.WriteModel, 0, len(comments))
	for _, c := range comments {
		doc := CommentDocument(c, run, loadedAt)
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"comment_id": doc["comment_id"]}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	return s.bulkWrite(ctx, commentsCollection, operations)
}

func (s *MongoSink) bulkWrite(ctx context.Context, collection string, operations []mongo.WriteModel) error {
	opts := options.BulkWrite().SetOrdered(false)

	result, err := s.db.Collection(collection).BulkWrite(ctx, operations, opts)
	if err != nil {
		return fmt.Errorf("bulk write %s: %w", collection, err)
	}

	s.logger.WithFields(logging.Fields{
		"collection": collection,
		"upserted":   result.UpsertedCount,
		"modified":   result.ModifiedCount,
		"matched":    result.MatchedCount,
	}).Info("Bulk operation completed")

	metrics.RowsWritten.WithLabelValues(s.Name(), collection).Add(float64(len(operations)))
	return nil
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// PostDocument builds the stored form of a post.
func PostDocument(p model.CanonicalPost, run string, loadedAt time.Time) bson.M {
	doc := bson.M{"run": run, "loaded_at": loadedAt}
	for i, v := range p.Values() {
		doc[model.PostColumns[i]] = model.StoreValue(v)
	}
	return doc
}

func CommentDocument(c model.CanonicalComment, run string, loadedAt time.Time) bson.M {
	doc := bson.M{"run": run, "loaded_at": loadedAt}
	for i, v := range c.Values() {
		doc[model.CommentColumns[i]] = model.StoreValue(v)
	}
	return doc
}

// Package mongo implements deliberation.Archiver on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/deliberate/deliberation"
)

// Archive records terminated deliberation runs, one document per run.
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ deliberation.Archiver = (*Archive)(nil)

// Config holds MongoDB archive configuration
type Config struct {
	URI        string // Connection URI (e.g., "mongodb://localhost:27017")
	Database   string // Database name (default: deliberate)
	Collection string // Collection name (default: runs)
}

// DefaultConfig returns default MongoDB configuration
func DefaultConfig() *Config {
	return &Config{
		URI:        "mongodb://localhost:27017",
		Database:   "deliberate",
		Collection: "runs",
	}
}

// New creates a MongoDB-backed run archive
func New(ctx context.Context, config *Config) (*Archive, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Database == "" {
		config.Database = "deliberate"
	}
	if config.Collection == "" {
		config.Collection = "runs"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Archive{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}, nil
}

type runDocument struct {
	SessionID  string                      `bson:"session_id,omitempty"`
	ArchivedAt time.Time                   `bson:"archived_at"`
	Outcome    string                      `bson:"outcome"`
	Rounds     int                         `bson:"rounds"`
	State      *deliberation.WorkflowState `bson:"state"`
}

// Archive implements deliberation.Archiver.
func (a *Archive) Archive(ctx context.Context, state *deliberation.WorkflowState) error {
	doc := runDocument{
		SessionID:  state.Query.SessionID,
		ArchivedAt: time.Now(),
		Rounds:     state.Round,
		State:      state,
	}
	if state.Decision != nil {
		doc.Outcome = string(state.Decision.Outcome)
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive run: %w", err)
	}
	return nil
}

// Recent returns the most recent archived runs, newest first.
func (a *Archive) Recent(ctx context.Context, limit int64) ([]*deliberation.WorkflowState, error) {
	opts := options.Find().SetSort(bson.D{{Key: "archived_at", Value: -1}}).SetLimit(limit)
	cursor, err := a.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer cursor.Close(ctx)

	var states []*deliberation.WorkflowState
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode archived run: %w", err)
		}
		states = append(states, doc.State)
	}
	return states, cursor.Err()
}

// Close disconnects from MongoDB.
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

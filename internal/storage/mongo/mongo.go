// Package mongo persists the scheduler's per-connection ingestion
// watermark and submission backoff state durably, so a restarted gateway
// instance does not fall back to scheduler.defaultLookback for every
// connection it already had a watermark for. It is the only mongo-backed
// store in the gateway: one scheduler_state collection, one document per
// connection.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Connect dials uri and pings the deployment to fail fast on a bad DSN.
func Connect(uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client, nil
}

// schedulerState is one connection's persisted tick state.
type schedulerState struct {
	ConnectionID  string    `bson:"_id"`
	Watermark     time.Time `bson:"watermark"`
	BackoffUntil  time.Time `bson:"backoff_until"`
	BackoffCount  int       `bson:"backoff_count"`
}

// SchedulerStateStore persists scheduler.Scheduler's per-connection
// watermark and backoff counters across restarts.
type SchedulerStateStore struct {
	collection *mongo.Collection
}

func NewSchedulerStateStore(db *mongo.Database) *SchedulerStateStore {
	return &SchedulerStateStore{collection: db.Collection("scheduler_state")}
}

// Watermark returns the stored ingestion watermark for connectionID, and
// false if none has been recorded yet.
func (s *SchedulerStateStore) Watermark(ctx context.Context, connectionID string) (time.Time, bool, error) {
	var doc schedulerState
	err := s.collection.FindOne(ctx, bson.M{"_id": connectionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return doc.Watermark, true, nil
}

// SetWatermark records the end of the most recently successful ingestion
// window for connectionID.
func (s *SchedulerStateStore) SetWatermark(ctx context.Context, connectionID string, at time.Time) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": connectionID},
		bson.M{"$set": bson.M{"watermark": at}},
		options.Update().SetUpsert(true))
	return err
}

// Backoff returns the stored backoff deadline and failure count for
// connectionID.
func (s *SchedulerStateStore) Backoff(ctx context.Context, connectionID string) (until time.Time, count int, err error) {
	var doc schedulerState
	derr := s.collection.FindOne(ctx, bson.M{"_id": connectionID}).Decode(&doc)
	if errors.Is(derr, mongo.ErrNoDocuments) {
		return time.Time{}, 0, nil
	}
	if derr != nil {
		return time.Time{}, 0, derr
	}
	return doc.BackoffUntil, doc.BackoffCount, nil
}

// SetBackoff records a new backoff deadline and failure count for
// connectionID, or clears both when until is the zero time.
func (s *SchedulerStateStore) SetBackoff(ctx context.Context, connectionID string, until time.Time, count int) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": connectionID},
		bson.M{"$set": bson.M{"backoff_until": until, "backoff_count": count}},
		options.Update().SetUpsert(true))
	return err
}

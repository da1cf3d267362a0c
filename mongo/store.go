package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AdewaleAdeniji/mailqueue"
)

// ErrDatabaseRequired is returned when a nil database handle is provided.
var ErrDatabaseRequired = errors.New("mailqueue mongo: database is required")

var (
	_ mailqueue.Store  = (*Store)(nil)
	_ mailqueue.Lookup = (*Store)(nil)
)

// Store is a MongoDB implementation of mailqueue.Store.
// The caller owns the client lifecycle; Store never disconnects it.
type Store struct {
	col *mongod.Collection
	cfg Config
}

// NewStore creates a store over a collection of db.
func NewStore(db *mongod.Database, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	return &Store{col: db.Collection(cfg.Collection), cfg: cfg}, nil
}

// Collection returns the underlying collection for advanced usage.
func (s *Store) Collection() *mongod.Collection {
	return s.col
}

// EnsureIndexes creates the indexes used by claims and counts.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.col.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return fmt.Errorf("mailqueue mongo: create indexes: %w", err)
	}

	return nil
}

// Insert implements mailqueue.Store.
func (s *Store) Insert(ctx context.Context, payload mailqueue.Payload) (mailqueue.ID, error) {
	id, err := s.cfg.Generator.New()
	if err != nil {
		return mailqueue.ID{}, fmt.Errorf("mailqueue mongo: generate id: %w", err)
	}

	if _, err := s.col.InsertOne(ctx, toEntryModel(id, payload, s.now())); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return mailqueue.ID{}, mailqueue.ErrDuplicateID
		}

		return mailqueue.ID{}, mailqueue.NewStoreError("mongo insert", err)
	}

	return id, nil
}

// ClaimOneEligible implements mailqueue.Store.
func (s *Store) ClaimOneEligible(ctx context.Context, eligibility mailqueue.Eligibility) (mailqueue.Entry, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	var m entryModel
	err := s.col.FindOneAndUpdate(ctx, eligibleFilter(eligibility), claimUpdate(s.now()), opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return mailqueue.Entry{}, mailqueue.ErrNoEligibleEntries
		}

		return mailqueue.Entry{}, mailqueue.NewStoreError("mongo claim", err)
	}

	return fromEntryModel(&m)
}

// SetSent implements mailqueue.Store.
func (s *Store) SetSent(ctx context.Context, id mailqueue.ID) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id.String()}, sentUpdate(s.now()))
	if err != nil {
		return mailqueue.NewStoreError("mongo set sent", err)
	}
	if res.MatchedCount == 0 {
		return mailqueue.ErrEntryNotFound
	}

	return nil
}

// SetUnclaimed implements mailqueue.Store.
func (s *Store) SetUnclaimed(ctx context.Context, id mailqueue.ID, lastError string) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id.String()}, unclaimUpdate(lastError, s.now()))
	if err != nil {
		return mailqueue.NewStoreError("mongo set unclaimed", err)
	}
	if res.MatchedCount == 0 {
		return mailqueue.ErrEntryNotFound
	}

	return nil
}

// CountEligible implements mailqueue.Store.
func (s *Store) CountEligible(ctx context.Context, eligibility mailqueue.Eligibility) (int, error) {
	n, err := s.col.CountDocuments(ctx, eligibleFilter(eligibility))
	if err != nil {
		return 0, mailqueue.NewStoreError("mongo count eligible", err)
	}

	return int(n), nil
}

// Get implements mailqueue.Lookup.
func (s *Store) Get(ctx context.Context, id mailqueue.ID) (mailqueue.Entry, error) {
	var m entryModel
	if err := s.col.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return mailqueue.Entry{}, mailqueue.ErrEntryNotFound
		}

		return mailqueue.Entry{}, mailqueue.NewStoreError("mongo get", err)
	}

	return fromEntryModel(&m)
}

// DeleteSentBefore removes documents sent before cutoff. Unsent documents are kept.
func (s *Store) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{
		"sent":   true,
		"sentAt": bson.M{"$lte": cutoff.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("mailqueue mongo: delete sent: %w", err)
	}

	return res.DeletedCount, nil
}

func (s *Store) now() time.Time {
	return s.cfg.Clock.Now().UTC()
}

func eligibleFilter(eligibility mailqueue.Eligibility) bson.M {
	return bson.M{
		"sent":       false,
		"claimed":    false,
		"retryCount": bson.M{"$lt": eligibility.MaxRetries},
	}
}

func claimUpdate(now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{"claimed": true, "updatedAt": now},
		"$inc": bson.M{"retryCount": 1},
	}
}

// sentUpdate keeps the first sentAt when an entry is marked sent twice.
func sentUpdate(now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{"sent": true, "updatedAt": now},
		"$min": bson.M{"sentAt": now},
	}
}

func unclaimUpdate(lastError string, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{"claimed": false, "lastError": lastError, "updatedAt": now},
	}
}

func indexModels() []mongod.IndexModel {
	return []mongod.IndexModel{
		{Keys: bson.D{
			{Key: "sent", Value: 1},
			{Key: "claimed", Value: 1},
			{Key: "retryCount", Value: 1},
			{Key: "_id", Value: 1},
		}},
		{Keys: bson.D{
			{Key: "sent", Value: 1},
			{Key: "sentAt", Value: 1},
		}},
	}
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

package helper

import (
	"bid-fetch/internal/bid_fetch/model"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotArchived is returned by Get for an unknown search id.
var ErrNotArchived = errors.New("search not archived")

// Archive keeps finished searches beyond the lifetime of the in-memory cache.
type Archive interface {
	Save(ctx context.Context, r *model.SearchResult) error
	Get(ctx context.Context, searchID string) (*model.SearchResult, error)
	List(ctx context.Context, limit int) ([]model.SearchSummary, error)
}

type Stores struct {
	Client   *mongo.Client
	DB       *mongo.Database
	Searches *mongo.Collection // searches, keyed by search id
}

// ConnectMongo dials and pings the server and makes sure the searches indexes exist.
func ConnectMongo(ctx context.Context, host, dbname, username, password, authSource string) (*Stores, error) {
	clientOpts := options.Client().ApplyURI("mongodb://" + host)
	if username != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   username,
			Password:   password,
			AuthSource: authSource,
		})
	}

	cli, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err = cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := cli.Database(dbname)
	s := &Stores{
		Client:   cli,
		DB:       db,
		Searches: db.Collection("searches"),
	}
	ensureIndexes(ctx, s)
	return s, nil
}

// MustMongo is ConnectMongo for startup code.
func MustMongo(ctx context.Context, host, dbname, username, password, authSource string) *Stores {
	s, err := ConnectMongo(ctx, host, dbname, username, password, authSource)
	if err != nil {
		panic(err)
	}
	return s
}

func ensureIndexes(ctx context.Context, s *Stores) {
	_, _ = s.Searches.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "search_params.keyword", Value: 1}}},
	})
}

// Close disconnects the client.
func (s *Stores) Close(ctx context.Context) error {
	return s.Client.Disconnect(ctx)
}

// MongoArchive stores one document per search in the searches collection.
type MongoArchive struct {
	Stores *Stores
}

func (a *MongoArchive) Save(ctx context.Context, r *model.SearchResult) error {
	_, err := a.Stores.Searches.ReplaceOne(ctx,
		bson.M{"_id": r.SearchID}, r, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive save %s: %w", r.SearchID, err)
	}
	return nil
}

func (a *MongoArchive) Get(ctx context.Context, searchID string) (*model.SearchResult, error) {
	var r model.SearchResult
	err := a.Stores.Searches.FindOne(ctx, bson.M{"_id": searchID}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, fmt.Errorf("archive get %s: %w", searchID, err)
	}
	return &r, nil
}

// List returns the newest summaries first; the items array is reduced to its length on the
// server.
func (a *MongoArchive) List(ctx context.Context, limit int) ([]model.SearchSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
		{{Key: "$limit", Value: int64(clampLimit(limit))}},
		{{Key: "$project", Value: bson.D{
			{Key: "search_params", Value: 1},
			{Key: "total_count", Value: 1},
			{Key: "timestamp", Value: 1},
			{Key: "item_count", Value: bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$items", bson.A{}}}}}}},
		}}},
	}
	cur, err := a.Stores.Searches.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("archive list: %w", err)
	}
	out := []model.SearchSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("archive list decode: %w", err)
	}
	return out, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// NopArchive is the archive used when no MongoDB is configured. Nothing outlives the cache.
type NopArchive struct{}

func (NopArchive) Save(context.Context, *model.SearchResult) error { return nil }

func (NopArchive) Get(context.Context, string) (*model.SearchResult, error) {
	return nil, ErrNotArchived
}

func (NopArchive) List(context.Context, int) ([]model.SearchSummary, error) {
	return nil, ErrNotArchived
}

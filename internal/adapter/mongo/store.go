// Package mongo is the persistence boundary: the facility catalog and the
// daily free-swim schedule records, with idempotent upserts by natural key
// and 2dsphere proximity queries.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/poolhopper/freeswim-etl/internal/domain"
)

const (
	facilitiesCollection = "swimming_pool"
	schedulesCollection  = "daily_swim_schedule"
)

// Store implements the entity record store on MongoDB. No cross-collection
// transactions are used; facility and schedule writes are individually
// idempotent and tolerate eventual consistency between the two.
type Store struct {
	client     *mongo.Client
	facilities *mongo.Collection
	schedules  *mongo.Collection
	logger     *slog.Logger
}

// NewStore connects to MongoDB, verifies the connection, and ensures the
// indexes the query paths rely on.
func NewStore(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:     client,
		facilities: db.Collection(facilitiesCollection),
		schedules:  db.Collection(schedulesCollection),
		logger:     logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates the unique natural-key index, the 2dsphere index
// geo queries require, and the read-path indexes on schedule records.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.facilities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pool_code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "location", Value: "2dsphere"}},
		},
	})
	if err != nil {
		return fmt.Errorf("create facility indexes: %w", err)
	}

	_, err = s.schedules.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pool_code", Value: 1}}},
		{Keys: bson.D{{Key: "day", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create schedule indexes: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// UpsertFacility writes a facility by its natural key. Re-running the same
// upsert is a no-op apart from updated_at; created_at is only set on first
// insertion.
func (s *Store) UpsertFacility(ctx context.Context, f domain.Facility) error {
	if f.PoolCode == "" {
		return &domain.StorageError{Op: "upsert facility", Err: fmt.Errorf("facility has no pool_code")}
	}

	now := domain.Clock().Now()
	update := bson.M{
		"$set": bson.M{
			"title":        f.Title,
			"address":      f.Address,
			"source_id":    f.SourceID,
			"url":          f.URL,
			"source_kind":  f.SourceKind,
			"is_operating": f.IsOperating,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	if f.Location != nil {
		update["$set"].(bson.M)["location"] = f.Location
	}

	_, err := s.facilities.UpdateOne(ctx,
		bson.M{"pool_code": f.PoolCode},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &domain.StorageError{Op: "upsert facility", Err: err}
	}
	return nil
}

// ListFacilities returns the whole catalog in stable pool_code order, which
// fixes the refinement pass's iteration order.
func (s *Store) ListFacilities(ctx context.Context) ([]domain.Facility, error) {
	cur, err := s.facilities.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "pool_code", Value: 1}}))
	if err != nil {
		return nil, &domain.StorageError{Op: "list facilities", Err: err}
	}
	var out []domain.Facility
	if err := cur.All(ctx, &out); err != nil {
		return nil, &domain.StorageError{Op: "list facilities", Err: err}
	}
	return out, nil
}

// FindFacilities returns the facilities for the given pool codes, keyed by
// code. Missing codes are simply absent from the map.
func (s *Store) FindFacilities(ctx context.Context, poolCodes []string) (map[string]domain.Facility, error) {
	if len(poolCodes) == 0 {
		return map[string]domain.Facility{}, nil
	}
	cur, err := s.facilities.Find(ctx, bson.M{"pool_code": bson.M{"$in": poolCodes}})
	if err != nil {
		return nil, &domain.StorageError{Op: "find facilities", Err: err}
	}
	var facilities []domain.Facility
	if err := cur.All(ctx, &facilities); err != nil {
		return nil, &domain.StorageError{Op: "find facilities", Err: err}
	}

	out := make(map[string]domain.Facility, len(facilities))
	for _, f := range facilities {
		out[f.PoolCode] = f
	}
	return out, nil
}

// ReplaceSchedules regenerates a facility's schedule records: delete all
// prior records for the pool, then insert the fresh batch in parser order.
// Replace-not-merge keeps a re-run against unchanged sources idempotent and
// never leaves records from a vanished time slot behind.
func (s *Store) ReplaceSchedules(ctx context.Context, poolCode string, records []domain.ScheduleRecord) error {
	if _, err := s.schedules.DeleteMany(ctx, bson.M{"pool_code": poolCode}); err != nil {
		return &domain.StorageError{Op: "delete schedules", Err: err}
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = r
	}
	if _, err := s.schedules.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return &domain.StorageError{Op: "insert schedules", Err: err}
	}
	return nil
}

// SchedulesByDay returns every record for one day of the week.
func (s *Store) SchedulesByDay(ctx context.Context, day string) ([]domain.ScheduleRecord, error) {
	cur, err := s.schedules.Find(ctx, bson.M{"day": day})
	if err != nil {
		return nil, &domain.StorageError{Op: "schedules by day", Err: err}
	}
	var out []domain.ScheduleRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, &domain.StorageError{Op: "schedules by day", Err: err}
	}
	return out, nil
}

// SchedulesByPool returns a facility's records in insertion order.
func (s *Store) SchedulesByPool(ctx context.Context, poolCode string) ([]domain.ScheduleRecord, error) {
	cur, err := s.schedules.Find(ctx, bson.M{"pool_code": poolCode})
	if err != nil {
		return nil, &domain.StorageError{Op: "schedules by pool", Err: err}
	}
	var out []domain.ScheduleRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, &domain.StorageError{Op: "schedules by pool", Err: err}
	}
	return out, nil
}

// FacilitiesNear returns facilities within maxDistanceMeters of the point,
// nearest first, each annotated with its spherical distance in meters.
func (s *Store) FacilitiesNear(ctx context.Context, lat, lng, maxDistanceMeters float64) ([]domain.NearbyFacility, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$geoNear", Value: bson.M{
			"near":          domain.NewGeoPoint(lat, lng),
			"key":           "location",
			"distanceField": "distance_m",
			"maxDistance":   maxDistanceMeters,
			"spherical":     true,
		}}},
	}

	cur, err := s.facilities.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, &domain.StorageError{Op: "facilities near", Err: err}
	}

	var rows []struct {
		domain.Facility `bson:",inline"`
		DistanceMeters  float64 `bson:"distance_m"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, &domain.StorageError{Op: "facilities near", Err: err}
	}

	out := make([]domain.NearbyFacility, len(rows))
	for i, row := range rows {
		out[i] = domain.NearbyFacility{Facility: row.Facility, DistanceMeters: row.DistanceMeters}
	}
	return out, nil
}

// Package mongo provides a MongoDB-backed store. Commit runs inside a
// multi-document transaction, so the server must be a replica set or a
// sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/imprint"
	"github.com/xraph/imprint/edition"
	"github.com/xraph/imprint/event"
	"github.com/xraph/imprint/holding"
	"github.com/xraph/imprint/id"
	"github.com/xraph/imprint/receipt"
	imprintstore "github.com/xraph/imprint/store"
)

// Collection name constants.
const (
	colState    = "imprint_state"
	colEditions = "imprint_editions"
	colHoldings = "imprint_holdings"
	colEvents   = "imprint_events"
	colReceipts = "imprint_receipts"
)

// compile-time interface check
var _ imprintstore.Store = (*Store)(nil)

// Store implements store.Store using the official MongoDB driver.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to uri and returns a store on the named database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("imprint/mongo: connect: %w", err)
	}
	s := New(client, database)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("imprint/mongo: ping: %w", err)
	}
	return s, nil
}

// New creates a store on an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{
		client: client,
		db:     client.Database(database),
	}
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all imprint collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("imprint/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// ==================== Edition Store ====================

func (s *Store) GetEdition(ctx context.Context, editionID uint64) (*edition.Edition, error) {
	if editionID > math.MaxInt64 {
		return nil, imprint.ErrEditionNotFound
	}
	var m editionModel
	err := s.db.Collection(colEditions).
		FindOne(ctx, bson.M{"_id": int64(editionID)}).
		Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, imprint.ErrEditionNotFound
		}
		return nil, fmt.Errorf("imprint/mongo: get edition: %w", err)
	}
	return fromEditionModel(&m)
}

func (s *Store) ListEditions(ctx context.Context, opts edition.ListOpts) ([]*edition.Edition, error) {
	filter := bson.M{}
	if opts.Author != "" {
		filter["author"] = opts.Author
	}

	var models []editionModel
	if err := s.find(ctx, colEditions, filter, bson.D{{Key: "_id", Value: 1}}, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("imprint/mongo: list editions: %w", err)
	}

	result := make([]*edition.Edition, len(models))
	for i := range models {
		e, err := fromEditionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Holding Store ====================

func (s *Store) GetHolding(ctx context.Context, holder id.ID, editionID uint64) (*holding.Holding, error) {
	var m holdingModel
	err := s.db.Collection(colHoldings).
		FindOne(ctx, bson.M{"_id": holdingDocID(holder, editionID)}).
		Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &holding.Holding{EditionID: editionID, Holder: holder}, nil
		}
		return nil, fmt.Errorf("imprint/mongo: get holding: %w", err)
	}
	return fromHoldingModel(&m)
}

func (s *Store) ListHoldings(ctx context.Context, opts holding.ListOpts) ([]*holding.Holding, error) {
	filter := bson.M{}
	if opts.Holder != "" {
		filter["holder"] = opts.Holder
	}
	if opts.EditionID != 0 {
		filter["edition_id"] = int64(opts.EditionID) //nolint:gosec // edition ids are sequential
	}

	var models []holdingModel
	sort := bson.D{{Key: "edition_id", Value: 1}, {Key: "holder", Value: 1}}
	if err := s.find(ctx, colHoldings, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("imprint/mongo: list holdings: %w", err)
	}

	result := make([]*holding.Holding, len(models))
	for i := range models {
		h, err := fromHoldingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = h
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	filter := bson.M{}
	if opts.AfterSeq > 0 {
		filter["_id"] = bson.M{"$gt": int64(opts.AfterSeq)} //nolint:gosec // event seqs are sequential
	}
	if opts.EditionID != 0 {
		filter["edition_id"] = int64(opts.EditionID) //nolint:gosec // edition ids are sequential
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	var models []eventModel
	if err := s.find(ctx, colEvents, filter, bson.D{{Key: "_id", Value: 1}}, opts.Limit, 0, &models); err != nil {
		return nil, fmt.Errorf("imprint/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Receipt Store ====================

func (s *Store) ListReceipts(ctx context.Context, opts receipt.ListOpts) ([]*receipt.Receipt, error) {
	filter := bson.M{}
	if opts.Buyer != "" {
		filter["buyer"] = opts.Buyer
	}
	if opts.EditionID != 0 {
		filter["edition_id"] = int64(opts.EditionID) //nolint:gosec // edition ids are sequential
	}

	var models []receiptModel
	sort := bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	if err := s.find(ctx, colReceipts, filter, sort, opts.Limit, opts.Offset, &models); err != nil {
		return nil, fmt.Errorf("imprint/mongo: list receipts: %w", err)
	}

	result := make([]*receipt.Receipt, len(models))
	for i := range models {
		r, err := fromReceiptModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Ledger state ====================

func (s *Store) GetState(ctx context.Context) (*imprintstore.State, error) {
	m, err := s.loadState(ctx)
	if err != nil {
		return nil, err
	}
	return fromStateModel(m)
}

func (s *Store) loadState(ctx context.Context) (*stateModel, error) {
	var m stateModel
	err := s.db.Collection(colState).
		FindOne(ctx, bson.M{"_id": stateDocID}).
		Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &stateModel{ID: stateDocID, Retained: "0"}, nil
		}
		return nil, fmt.Errorf("imprint/mongo: get state: %w", err)
	}
	return &m, nil
}

// Commit writes the batch in one transaction. A batch whose event does not
// carry the next sequence number fails with store.ErrSequenceConflict.
func (s *Store) Commit(ctx context.Context, b *imprintstore.Batch) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("imprint/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		cur, err := s.loadState(ctx)
		if err != nil {
			return nil, err
		}
		if b.Event != nil && uint64(cur.LastEventSeq)+1 != b.Event.Seq { //nolint:gosec // never negative
			return nil, fmt.Errorf("%w: have %d, batch carries %d",
				imprintstore.ErrSequenceConflict, cur.LastEventSeq, b.Event.Seq)
		}

		upsert := options.Replace().SetUpsert(true)

		st := toStateModel(b.State)
		if _, err := s.db.Collection(colState).ReplaceOne(ctx, bson.M{"_id": st.ID}, st, upsert); err != nil {
			return nil, fmt.Errorf("imprint/mongo: write state: %w", err)
		}

		if b.Edition != nil {
			m := toEditionModel(b.Edition)
			if _, err := s.db.Collection(colEditions).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, upsert); err != nil {
				return nil, fmt.Errorf("imprint/mongo: write edition %d: %w", b.Edition.ID, err)
			}
		}

		if b.Holding != nil {
			m := toHoldingModel(b.Holding)
			if _, err := s.db.Collection(colHoldings).ReplaceOne(ctx, bson.M{"_id": m.ID}, m, upsert); err != nil {
				return nil, fmt.Errorf("imprint/mongo: write holding: %w", err)
			}
		}

		if b.Receipt != nil {
			if _, err := s.db.Collection(colReceipts).InsertOne(ctx, toReceiptModel(b.Receipt)); err != nil {
				return nil, fmt.Errorf("imprint/mongo: write receipt: %w", err)
			}
		}

		if b.Event != nil {
			if _, err := s.db.Collection(colEvents).InsertOne(ctx, toEventModel(b.Event)); err != nil {
				return nil, fmt.Errorf("imprint/mongo: write event: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

// ==================== Helpers ====================

func (s *Store) find(ctx context.Context, col string, filter bson.M, sort bson.D, limit, offset int, out any) error {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts = opts.SetSkip(int64(offset))
	}

	cursor, err := s.db.Collection(col).Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

// migrationIndexes returns the index definitions for all imprint collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colEditions: {
			{Keys: bson.D{{Key: "author", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colHoldings: {
			{
				Keys:    bson.D{{Key: "holder", Value: 1}, {Key: "edition_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "edition_id", Value: 1}}},
		},
		colEvents: {
			{
				Keys:    bson.D{{Key: "event_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "edition_id", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colReceipts: {
			{Keys: bson.D{{Key: "buyer", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "edition_id", Value: 1}}},
		},
	}
}

// Package mongostore implements port.ExpenseStore on a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// Config holds connection settings
type Config struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// Store implements port.ExpenseStore
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

var listSort = bson.D{{Key: "submissionDate", Value: -1}, {Key: "_id", Value: -1}}

// Connect dials the server, verifies the primary and ensures the listing index exists
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("mongo database and collection are required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, entity.Unavailable("connect mongo", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, entity.Unavailable("ping mongo", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	if _, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    listSort,
		Options: options.Index().SetName("submission_order"),
	}); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, entity.Unavailable("create mongo index", err)
	}

	logger.Info("MongoDB connection established",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))
	return &Store{client: client, collection: collection, logger: logger}, nil
}

func (s *Store) Insert(ctx context.Context, expense *entity.Expense) (string, error) {
	id := primitive.NewObjectID()
	doc, err := toDocument(expense, id)
	if err != nil {
		return "", err
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		s.logger.Error("Failed to insert expense", zap.Error(err))
		return "", entity.Unavailable("insert expense", err)
	}

	expense.ID = id.Hex()
	return expense.ID, nil
}

func (s *Store) List(ctx context.Context) ([]*entity.Expense, error) {
	cursor, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(listSort))
	if err != nil {
		s.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, entity.Unavailable("list expenses", err)
	}
	defer cursor.Close(ctx)

	var docs []expenseDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, entity.Unavailable("list expenses", err)
	}

	expenses := make([]*entity.Expense, 0, len(docs))
	for i := range docs {
		e, err := docs[i].toEntity()
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, entity.ErrNotFound
	}

	var doc expenseDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrNotFound
		}
		return nil, entity.Unavailable("get expense", err)
	}
	return doc.toEntity()
}

func (s *Store) UpdateByID(ctx context.Context, id string, update entity.ExpenseUpdate) (*entity.Expense, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, entity.ErrNotFound
	}

	set := bson.D{}
	if update.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *update.Status})
	}
	if update.ProcessedDate != nil {
		set = append(set, bson.E{Key: "processedDate", Value: update.ProcessedDate.UTC()})
	}
	if update.ProcessedBy != nil {
		set = append(set, bson.E{Key: "processedBy", Value: *update.ProcessedBy})
	}
	if update.AccountingRef != nil {
		set = append(set, bson.E{Key: "accountingRef", Value: *update.AccountingRef})
	}
	if len(set) == 0 {
		return s.GetByID(ctx, id)
	}

	var doc expenseDocument
	err = s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.D{{Key: "$set", Value: set}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrNotFound
		}
		s.logger.Error("Failed to update expense", zap.String("id", id), zap.Error(err))
		return nil, entity.Unavailable("update expense", err)
	}
	return doc.toEntity()
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return entity.ErrNotFound
	}

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		s.logger.Error("Failed to delete expense", zap.String("id", id), zap.Error(err))
		return entity.Unavailable("delete expense", err)
	}
	if result.DeletedCount == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return entity.Unavailable("ping mongo", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("Closing MongoDB connection")
	return s.client.Disconnect(ctx)
}

var _ port.ExpenseStore = (*Store)(nil)

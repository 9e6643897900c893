package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/tile-movement/internal/world"
)

// MongoConfig настройки подключения к MongoDB
type MongoConfig struct {
	URI        string // mongodb://localhost:27017
	Database   string // tile_movement
	Collection string // character_positions
}

// MongoPositionRepo реализует PositionRepo на MongoDB
type MongoPositionRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type positionDoc struct {
	Name      string         `bson:"_id"`
	Position  world.Position `bson:"position"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// NewMongoPositionRepo подключается к MongoDB
func NewMongoPositionRepo(ctx context.Context, cfg MongoConfig) (*MongoPositionRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "tile_movement"
	}
	if cfg.Collection == "" {
		cfg.Collection = "character_positions"
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &MongoPositionRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

func (m *MongoPositionRepo) Save(ctx context.Context, name string, pos world.Position) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	doc := positionDoc{Name: name, Position: pos, UpdatedAt: time.Now().UTC()}
	_, err := m.collection.ReplaceOne(ctx, bson.M{"_id": name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save position of %q: %w", name, err)
	}
	return nil
}

func (m *MongoPositionRepo) Load(ctx context.Context, name string) (world.Position, bool, error) {
	if err := ValidateName(name); err != nil {
		return world.Position{}, false, err
	}
	var doc positionDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return world.Position{}, false, nil
	}
	if err != nil {
		return world.Position{}, false, fmt.Errorf("failed to load position of %q: %w", name, err)
	}
	return doc.Position, true, nil
}

func (m *MongoPositionRepo) Delete(ctx context.Context, name string) error {
	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("failed to delete position of %q: %w", name, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("position of %q: %w", name, ErrNotFound)
	}
	return nil
}

// BatchSave выполняет один BulkWrite с upsert'ами
func (m *MongoPositionRepo) BatchSave(ctx context.Context, positions map[string]world.Position) error {
	if len(positions) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(positions))
	for name, pos := range positions {
		if err := ValidateName(name); err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": name}).
			SetReplacement(positionDoc{Name: name, Position: pos, UpdatedAt: now}).
			SetUpsert(true))
	}
	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to save %d positions: %w", len(positions), err)
	}
	return nil
}

func (m *MongoPositionRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

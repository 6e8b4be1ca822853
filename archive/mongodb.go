package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/structs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBOpener returns an Opener that stores each archive in its own
// MongoDB database, one collection per table.
func MongoDBOpener(uri string) Opener {
	return func(dir, name string) (Archive, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", uri, err)
		}

		b := &mongoBackend{
			client: client,
			db:     client.Database(DatabaseName(name)),
		}

		return newStore(dir, name, b, defaultBatchSize)
	}
}

type mongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
}

// createTable indexes the first column, which is the key of every table.
func (b *mongoBackend) createTable(name string, sample any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := structs.Names(sample)[0]

	_, err := b.db.Collection(name).Indexes().CreateOne(ctx,
		mongo.IndexModel{
			Keys: bson.D{bson.E{Key: key, Value: 1}},
		},
	)

	return err
}

func (b *mongoBackend) insert(name string, rows []any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	docs := make([]any, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, structs.Map(row))
	}

	_, err := b.db.Collection(name).InsertMany(ctx, docs)

	return err
}

func (b *mongoBackend) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return b.client.Disconnect(ctx)
}

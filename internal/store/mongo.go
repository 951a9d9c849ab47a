package store

import (
	"context"
	stderrors "errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
)

// MongoStore keeps one document per layout, keyed by the layout id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to uri and uses database.collection.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if database == "" || collection == "" {
		return nil, errors.Input("mongo database and collection are required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "configure mongo client")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Unavailable(err, "connect to mongo")
	}
	return &MongoStore{client: client, coll: client.Database(database).Collection(collection)}, nil
}

func (s *MongoStore) FindLayout(ctx context.Context, id string) (*layout.Flat, error) {
	var f layout.Flat
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Unavailable(err, "find layout %s", id)
	}
	return &f, nil
}

func (s *MongoStore) SaveLayout(ctx context.Context, f *layout.Flat) error {
	if f.ID == "" {
		return errors.Input("layout id is required")
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": f.ID}, f, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Unavailable(err, "save layout %s", f.ID)
	}
	return nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

var _ Store = (*MongoStore)(nil)

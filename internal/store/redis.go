package store

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
)

// KeyPrefix namespaces layout records in Redis.
const KeyPrefix = "artgrid:layout:"

// encMode writes deterministic CBOR so identical layouts store identical
// bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
}

// RedisStore keeps layout records as CBOR values under KeyPrefix+id.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to url (redis://...) and pings the server.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInput, err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Unavailable(err, "connect to redis at %s", opts.Addr)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) FindLayout(ctx context.Context, id string) (*layout.Flat, error) {
	data, err := s.client.Get(ctx, KeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Unavailable(err, "get layout %s", id)
	}

	var f layout.Flat
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.CodeSerialization, err, "decode layout %s", id)
	}
	return &f, nil
}

func (s *RedisStore) SaveLayout(ctx context.Context, f *layout.Flat) error {
	if f.ID == "" {
		return errors.Input("layout id is required")
	}
	data, err := encMode.Marshal(f)
	if err != nil {
		return errors.Wrap(errors.CodeSerialization, err, "encode layout %s", f.ID)
	}
	if err := s.client.Set(ctx, KeyPrefix+f.ID, data, 0).Err(); err != nil {
		return errors.Unavailable(err, "set layout %s", f.ID)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

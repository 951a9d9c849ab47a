package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/ironsheep/artgrid/internal/art"
	"github.com/ironsheep/artgrid/internal/config"
	"github.com/ironsheep/artgrid/internal/errors"
	"github.com/ironsheep/artgrid/internal/layout"
)

func sampleFlat(id string) *layout.Flat {
	cell := func(src string) art.Flat {
		return art.Flat{
			Source:     src,
			Thumbnails: map[string]string{"64": src + "-64.jpg"},
			Metadata:   art.Metadata{{Key: art.KeyTitle, Value: "Irises"}, {Key: art.KeyCreator, Value: "Van Gogh"}},
		}
	}
	return &layout.Flat{
		ID:             id,
		Name:           "sample",
		NumRows:        2,
		NumCols:        2,
		ThumbnailWidth: 64,
		Array:          [][]art.Flat{{cell("a.png"), cell("b.png")}, {cell("c.png")}},
	}
}

func checkFlat(t *testing.T, got, want *layout.Flat) {
	t.Helper()
	if got == nil {
		t.Fatal("layout not found")
	}
	if got.ID != want.ID || got.Name != want.Name || got.NumRows != want.NumRows || got.NumCols != want.NumCols {
		t.Errorf("header: got %+v", got)
	}
	if len(got.Array) != 2 || len(got.Array[1]) != 1 {
		t.Fatalf("array shape: %+v", got.Array)
	}
	c := got.Array[0][1]
	if c.Source != "b.png" || c.Thumbnails["64"] != "b.png-64.jpg" {
		t.Errorf("cell: %+v", c)
	}
	if len(c.Metadata) != 2 || c.Metadata[0].Key != art.KeyTitle || c.Metadata[1].Key != art.KeyCreator {
		t.Errorf("metadata order lost: %+v", c.Metadata)
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "layouts"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer s.Close()

	got, err := s.FindLayout(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("missing layout: got %v, %v", got, err)
	}

	want := sampleFlat("grid-1")
	if err := s.SaveLayout(ctx, want); err != nil {
		t.Fatalf("SaveLayout failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Path(), "grid-1.json")); err != nil {
		t.Errorf("record file missing: %v", err)
	}
	got, err = s.FindLayout(ctx, "grid-1")
	if err != nil {
		t.Fatalf("FindLayout failed: %v", err)
	}
	checkFlat(t, got, want)
}

func TestFileStore_InvalidID(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	for _, id := range []string{"", "..", "../escape", "a/b"} {
		if _, err := s.FindLayout(context.Background(), id); !errors.Is(err, errors.CodeInput) {
			t.Errorf("FindLayout(%q): expected INPUT, got %v", id, err)
		}
	}
	if err := s.SaveLayout(context.Background(), &layout.Flat{}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("SaveLayout without id: expected INPUT, got %v", err)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0644)
	if _, err := s.FindLayout(context.Background(), "bad"); !errors.Is(err, errors.CodeSerialization) {
		t.Errorf("expected SERIALIZATION, got %v", err)
	}
}

func TestCBOREncoding(t *testing.T) {
	want := sampleFlat("grid-2")
	a, err := encMode.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	b, _ := encMode.Marshal(sampleFlat("grid-2"))
	if string(a) != string(b) {
		t.Error("encoding should be deterministic")
	}
	var got layout.Flat
	if err := cbor.Unmarshal(a, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	checkFlat(t, &got, want)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverFile, Dir: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}
	if _, err := Open(context.Background(), config.StoreConfig{Driver: "etcd"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("unknown driver: expected INPUT, got %v", err)
	}
	if _, err := Open(context.Background(), config.StoreConfig{Driver: config.DriverRedis, URL: "not a url"}); !errors.Is(err, errors.CodeInput) {
		t.Errorf("bad redis url: expected INPUT, got %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("ARTGRID_TEST_REDIS")
	if url == "" {
		t.Skip("ARTGRID_TEST_REDIS not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	want := sampleFlat("redis-test-grid")
	defer s.client.Del(ctx, KeyPrefix+want.ID)
	if err := s.SaveLayout(ctx, want); err != nil {
		t.Fatalf("SaveLayout failed: %v", err)
	}
	got, err := s.FindLayout(ctx, want.ID)
	if err != nil {
		t.Fatalf("FindLayout failed: %v", err)
	}
	checkFlat(t, got, want)

	if got, err := s.FindLayout(ctx, "redis-test-missing"); err != nil || got != nil {
		t.Errorf("missing layout: got %v, %v", got, err)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("ARTGRID_TEST_MONGO")
	if uri == "" {
		t.Skip("ARTGRID_TEST_MONGO not set")
	}
	ctx := context.Background()
	s, err := NewMongoStore(ctx, uri, "artgrid_test", "layouts")
	if err != nil {
		t.Fatalf("NewMongoStore failed: %v", err)
	}
	defer s.Close()
	defer s.coll.Drop(ctx)

	want := sampleFlat("mongo-test-grid")
	if err := s.SaveLayout(ctx, want); err != nil {
		t.Fatalf("SaveLayout failed: %v", err)
	}
	want.Name = "renamed"
	if err := s.SaveLayout(ctx, want); err != nil {
		t.Fatalf("second SaveLayout should upsert: %v", err)
	}
	got, err := s.FindLayout(ctx, want.ID)
	if err != nil {
		t.Fatalf("FindLayout failed: %v", err)
	}
	checkFlat(t, got, want)

	if got, err := s.FindLayout(ctx, "mongo-test-missing"); err != nil || got != nil {
		t.Errorf("missing layout: got %v, %v", got, err)
	}
}

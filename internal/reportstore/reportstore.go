// Package reportstore persists report blobs in the embedded NATS
// JetStream object store, zstd-compressed. Keys follow the layout
// {service}/{timestamp}.md for per-service reports and
// summaries/{date}/{timestamp}.md for run summaries.
package reportstore

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/vigla/internal/natsbus"
	"github.com/nats-io/nats.go"
)

const bucket = "vigla-reports"

type Store struct {
	objects nats.ObjectStore
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func New(client *natsbus.Client) (*Store, error) {
	js, err := client.JetStream()
	if err != nil {
		return nil, err
	}

	objects, err := js.ObjectStore(bucket)
	if err != nil {
		objects, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "error analysis reports",
		})
		if err != nil {
			return nil, fmt.Errorf("create report bucket: %w", err)
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Store{objects: objects, enc: enc, dec: dec}, nil
}

// Put stores content at key, overwriting any previous object.
func (s *Store) Put(ctx context.Context, key, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	compressed := s.enc.EncodeAll([]byte(content), nil)
	if _, err := s.objects.PutBytes(key, compressed); err != nil {
		return fmt.Errorf("put report %s: %w", key, err)
	}
	return nil
}

// Get retrieves and decompresses the content at key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	compressed, err := s.objects.GetBytes(key)
	if err != nil {
		return "", fmt.Errorf("get report %s: %w", key, err)
	}
	raw, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return "", fmt.Errorf("decompress report %s: %w", key, err)
	}
	return string(raw), nil
}

// List returns the keys of all stored reports.
func (s *Store) List(ctx context.Context) ([]string, error) {
	infos, err := s.objects.List(nats.Context(ctx))
	if err != nil {
		if err == nats.ErrNoObjectsFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list reports: %w", err)
	}

	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Name)
	}
	return keys, nil
}

// SummaryKey builds the storage key for a run summary.
func SummaryKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("summaries/%s/%s.md", t.Format("2006-01-02"), t.Format("20060102T150405Z"))
}

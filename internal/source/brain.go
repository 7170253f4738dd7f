// ABOUTME: Reads the bot's brain blob from the key-value store
// ABOUTME: The whole snapshot is materialized since the source stores it as one value
package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harper/brain-migrate/internal/models"
)

// DefaultBrainKey is where the bot persists its brain
const DefaultBrainKey = "hubot:storage"

// BrainReader loads the brain snapshot
type BrainReader struct {
	kv  KeyValueStore
	key string
}

// NewBrainReader creates a reader for the blob stored at key
func NewBrainReader(kv KeyValueStore, key string) *BrainReader {
	if key == "" {
		key = DefaultBrainKey
	}
	return &BrainReader{kv: kv, key: key}
}

// Load fetches and decodes the snapshot. Every value in the blob must itself
// be an object of key -> value.
func (r *BrainReader) Load(ctx context.Context) (models.BrainSnapshot, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w: %w", r.key, models.ErrSourceUnavailable, err)
	}

	var types map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &types); err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %w", r.key, models.ErrSourceUnavailable, err)
	}
	if types == nil {
		return nil, fmt.Errorf("decoding %s: %w: not an object", r.key, models.ErrSourceUnavailable)
	}

	snapshot := make(models.BrainSnapshot, len(types))
	for typ, body := range types {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("decoding %s type %q: %w: %w", r.key, typ, models.ErrSourceUnavailable, err)
		}
		if entries == nil {
			entries = make(map[string]json.RawMessage)
		}
		snapshot[typ] = entries
	}

	return snapshot, nil
}

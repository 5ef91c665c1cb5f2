package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/makeasinger/quizgen/internal/client"
)

// ObjectBackend writes one object per unit under <prefix>/units/
type ObjectBackend struct {
	storage client.ObjectStorage
	prefix  string
}

func NewObjectBackend(storage client.ObjectStorage, prefix string) *ObjectBackend {
	return &ObjectBackend{storage: storage, prefix: strings.TrimSuffix(prefix, "/")}
}

func (o *ObjectBackend) Name() string { return "object" }

func (o *ObjectBackend) Append(ctx context.Context, e Entry) error {
	key := o.unitKey(e.UnitID)
	if _, err := o.storage.Get(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, client.ErrObjectNotFound) {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	return o.storage.Put(ctx, key, data, "application/json")
}

func (o *ObjectBackend) Load(ctx context.Context) ([]Entry, error) {
	keys, err := o.storage.List(ctx, o.prefix+"/units/")
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		data, err := o.storage.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("corrupt checkpoint %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CompletedAt.Before(entries[j].CompletedAt)
	})
	return entries, nil
}

func (o *ObjectBackend) SavePartial(ctx context.Context, key string, snapshot []byte) error {
	return o.storage.Put(ctx, o.partialKey(key), snapshot, "application/json")
}

func (o *ObjectBackend) LoadPartial(ctx context.Context, key string) ([]byte, error) {
	b, err := o.storage.Get(ctx, o.partialKey(key))
	if errors.Is(err, client.ErrObjectNotFound) {
		return nil, ErrPartialNotFound
	}
	return b, err
}

func (o *ObjectBackend) unitKey(unitID string) string {
	return fmt.Sprintf("%s/units/%s.json", o.prefix, unitID)
}

func (o *ObjectBackend) partialKey(key string) string {
	return fmt.Sprintf("%s/partial/%s.json", o.prefix, key)
}

func (o *ObjectBackend) Close() error { return nil }

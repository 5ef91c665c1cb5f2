package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// StatusComplete is the only status a checkpoint entry carries
const StatusComplete = "complete"

// ErrPartialNotFound is returned when no partial snapshot exists for a key
var ErrPartialNotFound = errors.New("partial snapshot not found")

// Entry marks one work unit as done, with the validated questions it produced
type Entry struct {
	UnitID      string          `json:"unit_id"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Backend is the durable append-only log behind a Store. Append must be
// durable when it returns and must ignore an id that is already present.
type Backend interface {
	Name() string
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
	SavePartial(ctx context.Context, key string, snapshot []byte) error
	LoadPartial(ctx context.Context, key string) ([]byte, error)
	Close() error
}

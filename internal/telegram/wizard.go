package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kangsantri/internal/state"
)

const (
	stepKeyLabel  = "label"
	stepKeySecret = "secret"
	stepRename    = "rename"
)

// keyWizardState tracks a multi-message credential dialog. Secrets are only
// ever accepted as a plain message at the secret step, never as command
// arguments, and are never stored here.
type keyWizardState struct {
	Step         string         `json:"step"`
	Provider     state.Provider `json:"provider"`
	Label        string         `json:"label"`
	CredentialID string         `json:"credential_id,omitempty"`
}

type wizardStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func newWizardStore(rdb *redis.Client, ttl time.Duration) *wizardStore {
	return &wizardStore{redis: rdb, ttl: ttl}
}

func (w *wizardStore) key(userID int64) string {
	return fmt.Sprintf("kangsantri:wizard:%d", userID)
}

func (w *wizardStore) Set(ctx context.Context, userID int64, st keyWizardState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return w.redis.Set(ctx, w.key(userID), string(b), w.ttl).Err()
}

func (w *wizardStore) Get(ctx context.Context, userID int64) (*keyWizardState, error) {
	raw, err := w.redis.Get(ctx, w.key(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st keyWizardState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (w *wizardStore) Clear(ctx context.Context, userID int64) error {
	return w.redis.Del(ctx, w.key(userID)).Err()
}

package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"kangsantri/internal/metrics"
)

// KV is the textual key-value store every slice is persisted to.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// KeyLister is implemented by stores that can enumerate their keys.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Result is the outcome of parsing a legacy slice.
type Result[T any] struct {
	value T
	err   error
	skip  bool
}

func Ok[T any](v T) Result[T] { return Result[T]{value: v} }

func ParseError[T any](err error) Result[T] { return Result[T]{err: err} }

// Skip reports a well-formed legacy value with nothing worth migrating. The
// legacy key is left in place.
func Skip[T any]() Result[T] { return Result[T]{skip: true} }

func (r Result[T]) Value() (T, error) { return r.value, r.err }

// Legacy describes a one-shot migration from an older key.
type Legacy[T any] struct {
	Key   string
	Parse func(raw string) Result[T]
}

// Codec loads and saves state slices. Parse failures are recovered here and
// never reach the caller; only backend I/O errors are returned.
type Codec struct {
	kv      KV
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewCodec(kv KV, logger zerolog.Logger, m *metrics.Metrics) *Codec {
	return &Codec{kv: kv, logger: logger, metrics: m}
}

// LoadJSON decodes key into a T. A missing key yields def with found=false; a
// malformed value is logged, deleted and also yields def.
func LoadJSON[T any](ctx context.Context, c *Codec, key string, def T) (T, bool, error) {
	raw, found, err := c.kv.Get(ctx, key)
	if err != nil {
		return def, false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return def, false, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.discard(ctx, key, err)
		return def, false, nil
	}
	return v, true, nil
}

// MigrateLegacy runs a legacy parser. On success the value is written under
// key and the legacy key is deleted; on a parse error only the legacy key is
// deleted. A second run finds no legacy key and does nothing.
func MigrateLegacy[T any](ctx context.Context, c *Codec, key string, legacy Legacy[T]) (T, bool, error) {
	var zero T
	raw, found, err := c.kv.Get(ctx, legacy.Key)
	if err != nil {
		return zero, false, fmt.Errorf("load legacy %s: %w", legacy.Key, err)
	}
	if !found {
		return zero, false, nil
	}

	res := legacy.Parse(raw)
	if res.skip {
		return zero, false, nil
	}
	v, perr := res.Value()
	if perr != nil {
		c.logger.Error().Err(perr).Str("legacy_key", legacy.Key).Msg("legacy migration failed, dropping legacy data")
		if err := c.kv.Delete(ctx, legacy.Key); err != nil {
			c.logger.Error().Err(err).Str("legacy_key", legacy.Key).Msg("failed to delete legacy key")
		}
		return zero, false, nil
	}

	if err := SaveJSON(ctx, c, key, v); err != nil {
		return zero, false, fmt.Errorf("save migrated %s: %w", key, err)
	}
	if err := c.kv.Delete(ctx, legacy.Key); err != nil {
		return zero, false, fmt.Errorf("delete legacy %s: %w", legacy.Key, err)
	}
	if c.metrics != nil {
		c.metrics.Migrations.Inc()
	}
	c.logger.Info().Str("key", key).Str("legacy_key", legacy.Key).Msg("legacy slice migrated")
	return v, true, nil
}

// Load is LoadJSON falling back to a legacy migration when key is absent.
func Load[T any](ctx context.Context, c *Codec, key string, def T, legacy *Legacy[T]) (T, error) {
	v, found, err := LoadJSON(ctx, c, key, def)
	if err != nil || found || legacy == nil {
		return v, err
	}
	// A corrupt current value was deleted by LoadJSON, so absent and corrupt
	// both fall through to the legacy key.
	migrated, ok, err := MigrateLegacy(ctx, c, key, *legacy)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return migrated, nil
}

func SaveJSON[T any](ctx context.Context, c *Codec, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// LoadRaw reads a slice persisted as a bare literal.
func LoadRaw(ctx context.Context, c *Codec, key string) (string, bool, error) {
	raw, found, err := c.kv.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", key, err)
	}
	return raw, found, nil
}

func SaveRaw(ctx context.Context, c *Codec, key, value string) error {
	if err := c.kv.Set(ctx, key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func DeleteKey(ctx context.Context, c *Codec, key string) error {
	if err := c.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (c *Codec) discard(ctx context.Context, key string, cause error) {
	c.logger.Error().Err(cause).Str("key", key).Msg("discarding corrupt state slice")
	if c.metrics != nil {
		c.metrics.CorruptSlices.Inc()
	}
	if err := c.kv.Delete(ctx, key); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("failed to delete corrupt state slice")
	}
}

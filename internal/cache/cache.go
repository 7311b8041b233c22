package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "booking:cache:"

// Entity names a cached table.
type Entity string

const (
	EntityServices     Entity = "services"
	EntityWorkingHours Entity = "working_hours"
	EntityAppointments Entity = "appointments"
)

// Change is published after every successful mutation. Date narrows appointment changes to
// one day's busy intervals; an empty Date drops all of them.
type Change struct {
	Entity Entity `json:"entity"`
	Date   string `json:"date,omitempty"`
}

// Cache is a Redis read-through cache invalidated by Change events. A nil *Cache is valid and
// caches nothing.
type Cache struct {
	rdb     *redis.Client
	ttl     time.Duration
	channel string
	logger  *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, channel string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{rdb: rdb, ttl: ttl, channel: channel, logger: logger}
}

func ServicesKey() string     { return keyPrefix + string(EntityServices) }
func WorkingHoursKey() string { return keyPrefix + string(EntityWorkingHours) }
func BusyKey(date string) string {
	return keyPrefix + "busy:" + date
}

// Generation counters live outside the data namespaces so busy-key scans never see them.
const genPrefix = keyPrefix + "gen:"

// genTTL outlives any load; an expired counter only means the next invalidation starts over.
const genTTL = 24 * time.Hour

func genKey(key string) string {
	return genPrefix + strings.TrimPrefix(key, keyPrefix)
}

// allBusyGenKey is bumped when every busy date is dropped at once.
func allBusyGenKey() string {
	return genPrefix + "busy:*"
}

// guards lists the generation counters an invalidation of key may bump.
func guards(key string) []string {
	g := []string{genKey(key)}
	if strings.HasPrefix(key, BusyKey("")) {
		g = append(g, allBusyGenKey())
	}
	return g
}

// Fetch returns the cached value under key or calls load and stores its result. The result is
// only stored when no invalidation touched key while load ran. Redis failures degrade to
// calling load.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		c.logger.Warn("cache entry undecodable, reloading", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	gens := guards(key)
	before, genErr := c.rdb.MGet(ctx, gens...).Result()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if genErr != nil {
		c.logger.Warn("cache generation read failed, not storing", zap.String("key", key), zap.Error(genErr))
		return v, nil
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.store(ctx, key, raw, gens, before); err != nil {
		if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
			c.logger.Debug("cache entry invalidated during load, not storing", zap.String("key", key))
		} else {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

var errStale = errors.New("cache: generation moved")

// store sets key only if the generation counters still read before. WATCH makes an
// invalidation that lands between the check and the SET abort the transaction.
func (c *Cache) store(ctx context.Context, key string, raw []byte, gens []string, before []any) error {
	return c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		now, err := tx.MGet(ctx, gens...).Result()
		if err != nil {
			return err
		}
		for i := range gens {
			if now[i] != before[i] {
				return errStale
			}
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, c.ttl)
			return nil
		})
		return err
	}, gens...)
}

// Publish invalidates the affected keys and broadcasts the change to other listeners.
func (c *Cache) Publish(ctx context.Context, ch Change) error {
	if c == nil {
		return nil
	}
	if err := c.Invalidate(ctx, ch); err != nil {
		return err
	}
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("cache: encode change: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("cache: publish change: %w", err)
	}
	return nil
}

// Invalidate drops the keys a change makes stale and bumps their generation counters, so a
// load already in flight does not write its result back.
func (c *Cache) Invalidate(ctx context.Context, ch Change) error {
	if c == nil {
		return nil
	}
	switch ch.Entity {
	case EntityServices:
		return c.drop(ctx, []string{genKey(ServicesKey())}, ServicesKey())
	case EntityWorkingHours:
		return c.drop(ctx, []string{genKey(WorkingHoursKey())}, WorkingHoursKey())
	case EntityAppointments:
		if ch.Date != "" {
			return c.drop(ctx, []string{genKey(BusyKey(ch.Date))}, BusyKey(ch.Date))
		}
		// Bump first: anything stored after this fails its WATCH, anything stored before is
		// found by the scan.
		if err := c.drop(ctx, []string{allBusyGenKey()}); err != nil {
			return err
		}
		keys, err := c.scan(ctx, BusyKey("*"))
		if err != nil {
			return err
		}
		return c.drop(ctx, nil, keys...)
	default:
		return fmt.Errorf("cache: unknown entity %q", ch.Entity)
	}
}

func (c *Cache) drop(ctx context.Context, gens []string, keys ...string) error {
	if len(gens) == 0 && len(keys) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, g := range gens {
			p.Incr(ctx, g)
			p.Expire(ctx, g, genTTL)
		}
		if len(keys) > 0 {
			p.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache: invalidate %v: %w", keys, err)
	}
	return nil
}

func (c *Cache) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Listen applies changes published by any instance until ctx is done.
func (c *Cache) Listen(ctx context.Context) error {
	if c == nil {
		<-ctx.Done()
		return nil
	}
	sub := c.rdb.Subscribe(ctx, c.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("cache: subscribe %s: %w", c.channel, err)
	}
	c.logger.Info("listening for change events", zap.String("channel", c.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var ch Change
			if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
				c.logger.Warn("dropping malformed change event", zap.String("payload", msg.Payload))
				continue
			}
			if err := c.Invalidate(ctx, ch); err != nil {
				c.logger.Error("invalidate failed", zap.String("entity", string(ch.Entity)), zap.Error(err))
			}
		}
	}
}

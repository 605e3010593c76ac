package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/coursegen/internal/platform/logger"
)

const DefaultRedisChannel = "coursegen.notifications"

// Redis publishes notifications as JSON on a pub/sub channel so other
// processes (a desktop tray, a team dashboard) can mirror them.
type Redis struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewRedis(ctx context.Context, log *logger.Logger, addr, channel string) (*Redis, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultRedisChannel
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(log, rdb, channel), nil
}

func NewRedisWithClient(log *logger.Logger, rdb *goredis.Client, channel string) *Redis {
	if log == nil {
		log = logger.NewNop()
	}
	if strings.TrimSpace(channel) == "" {
		channel = DefaultRedisChannel
	}
	return &Redis{log: log.With("component", "RedisNotifier"), rdb: rdb, channel: channel}
}

func (r *Redis) Notify(ctx context.Context, n Notification) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, raw).Err()
}

// Subscribe forwards notifications published on the channel to onMsg until ctx
// is done.
func (r *Redis) Subscribe(ctx context.Context, onMsg func(Notification)) error {
	if r == nil || r.rdb == nil {
		return fmt.Errorf("redis notifier not initialized")
	}
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					r.log.Warn("bad notification payload", "error", err)
					continue
				}
				onMsg(n)
			}
		}
	}()
	return nil
}

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

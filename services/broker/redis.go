package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/theme"
)

// RedisThemeBus distributes theme changes across API instances over a redis
// pub/sub channel. Local subscribers (the SSE handlers of this instance) hang
// off an embedded in-process bus fed by the forwarder goroutine, so a change
// published on any instance reaches every connected display.
type RedisThemeBus struct {
	logger  core.Logger
	rdb     *goredis.Client
	channel string
	local   *theme.LocalBus
}

var _ theme.Bus = (*RedisThemeBus)(nil)

func NewRedisThemeBus(conf *core.Config, logger core.Logger) (*RedisThemeBus, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Redis.Address,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisThemeBus{
		logger:  logger,
		rdb:     rdb,
		channel: conf.Redis.ThemeChannel,
		local:   theme.NewLocalBus(),
	}, nil
}

func (b *RedisThemeBus) PublishTheme(ctx context.Context, st theme.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisThemeBus) SubscribeTheme() (<-chan theme.State, func()) {
	return b.local.SubscribeTheme()
}

// StartForwarder subscribes to the redis channel and feeds incoming states to
// the local subscribers until ctx is cancelled.
func (b *RedisThemeBus) StartForwarder(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var st theme.State
				if err := json.Unmarshal([]byte(m.Payload), &st); err != nil {
					b.logger.Warn(fmt.Sprintf("bad theme payload on %q: %v", b.channel, err))
					continue
				}
				_ = b.local.PublishTheme(ctx, st)
			}
		}
	}()

	return nil
}

func (b *RedisThemeBus) Close() error {
	return b.rdb.Close()
}

package channel_sdk

import (
	"context"
	"fmt"

	"github.com/cydxin/channel-sdk/cons"
	"github.com/go-redis/redis/v8"
)

// RedisRelay 基于 Redis pub/sub 的跨实例广播
// 所有实例订阅同一个频道，帧内自带 topic，各实例只下发给本地订阅者。
type RedisRelay struct {
	rdb     *redis.Client
	channel string
}

func NewRedisRelay(rdb *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = cons.RelayChannel
	}
	return &RedisRelay{rdb: rdb, channel: channel}
}

func (r *RedisRelay) Publish(ctx context.Context, frame []byte) error {
	return r.rdb.Publish(ctx, r.channel, frame).Err()
}

// Subscribe 阻塞直到 ctx 结束；订阅确认后调用 ready
func (r *RedisRelay) Subscribe(ctx context.Context, ready func(), fn func(frame []byte)) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		ready()
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}

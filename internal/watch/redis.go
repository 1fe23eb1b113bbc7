package watch

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel carries reconfiguration notices published by the control plane.
const DefaultChannel = "rasp:modules:reload"

// RedisListener reloads module configuration whenever a message arrives on
// its channel. The payload is informational; every notice triggers a full
// re-read of the configuration source.
type RedisListener struct {
	rdb     redis.UniversalClient
	channel string
	reload  ReloadFunc
	logger  *zap.Logger
}

// NewRedisListener subscribes to channel, or DefaultChannel when empty.
func NewRedisListener(rdb redis.UniversalClient, channel string, reload ReloadFunc, logger *zap.Logger) *RedisListener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisListener{
		rdb:     rdb,
		channel: channel,
		reload:  reload,
		logger:  logger.Named("redis_listener"),
	}
}

// Run blocks until ctx is cancelled or the subscription channel closes.
func (l *RedisListener) Run(ctx context.Context) error {
	pubsub := l.rdb.Subscribe(ctx, l.channel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	l.logger.Info("reconfiguration listener started", zap.String("channel", l.channel))

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				l.logger.Info("reconfiguration channel closed")
				return nil
			}
			l.handle(ctx, msg)

		case <-ctx.Done():
			l.logger.Info("reconfiguration listener stopping")
			return nil
		}
	}
}

func (l *RedisListener) handle(ctx context.Context, msg *redis.Message) {
	source := "redis:" + l.channel
	if p := strings.TrimSpace(msg.Payload); p != "" {
		source += ":" + p
	}
	if err := l.reload(ctx, source); err != nil {
		l.logger.Error("remote reconfiguration failed", zap.String("source", source), zap.Error(err))
		return
	}
	l.logger.Info("remote reconfiguration applied", zap.String("source", source))
}

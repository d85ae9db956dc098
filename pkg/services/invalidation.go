package services

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ViewInvalidator signals that cached moderation views for the given locale
// paths must be recomputed. Delivery is best-effort and never fails the caller.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, paths []string)
}

// RedisViewInvalidator publishes each invalidated path on a Redis channel.
type RedisViewInvalidator struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisViewInvalidator creates an invalidator publishing on channel.
func NewRedisViewInvalidator(client *redis.Client, channel string, logger *zap.Logger) *RedisViewInvalidator {
	return &RedisViewInvalidator{
		client:  client,
		channel: channel,
		logger:  logger.Named("view-invalidator"),
	}
}

var _ ViewInvalidator = (*RedisViewInvalidator)(nil)

// Invalidate publishes one message per path. Publish failures are logged.
func (i *RedisViewInvalidator) Invalidate(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := i.client.Publish(ctx, i.channel, path).Err(); err != nil {
			i.logger.Warn("Failed to publish view invalidation",
				zap.String("channel", i.channel),
				zap.String("path", path),
				zap.Error(err))
		}
	}
}

// LoggingViewInvalidator only logs invalidations. It is used when Redis is not configured.
type LoggingViewInvalidator struct {
	logger *zap.Logger
}

// NewLoggingViewInvalidator creates a LoggingViewInvalidator.
func NewLoggingViewInvalidator(logger *zap.Logger) *LoggingViewInvalidator {
	return &LoggingViewInvalidator{logger: logger.Named("view-invalidator")}
}

var _ ViewInvalidator = (*LoggingViewInvalidator)(nil)

func (i *LoggingViewInvalidator) Invalidate(_ context.Context, paths []string) {
	i.logger.Debug("View invalidation requested", zap.Strings("paths", paths))
}

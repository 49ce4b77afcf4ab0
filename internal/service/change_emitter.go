package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ams-api/pkg/realtime"
)

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// changeEmitter announces committed writes to sync clients and drops cached analytics.
// Both side effects are best effort.
type changeEmitter struct {
	publisher realtime.Publisher
	cache     cacheInvalidator
	logger    *zap.Logger
}

func newChangeEmitter(publisher realtime.Publisher, cache cacheInvalidator, logger *zap.Logger) changeEmitter {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return changeEmitter{publisher: publisher, cache: cache, logger: logger}
}

func (e changeEmitter) changed(ctx context.Context, table, action, id string) {
	e.publish(ctx, table, action, id)
	e.invalidate(ctx)
}

func (e changeEmitter) publish(ctx context.Context, table, action, id string) {
	event := realtime.ChangeEvent{Table: table, Action: action, ID: id, At: time.Now().UTC()}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish change", zap.String("table", table), zap.String("action", action), zap.Error(err))
	}
}

func (e changeEmitter) invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, AnalyticsCachePattern); err != nil {
		e.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}

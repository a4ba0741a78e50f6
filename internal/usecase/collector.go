package usecase

import (
	"context"
	"time"

	drepo "DepthWatch/internal/domain/repository"
	"DepthWatch/internal/middleware"
	"DepthWatch/pkg/logger"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// DepthCollector drains the feed and hands validated events to the
// dispatch function. It owns reconnection: on a stream error it backs
// off exponentially and re-establishes the connection, and the
// monitors never notice beyond a gap in snapshots.
type DepthCollector struct {
	stream   drepo.DepthStream
	pipeline *middleware.DepthPipeline
	dispatch func(drepo.DepthEvent)
	metrics  drepo.Metrics
	logger   *logger.Logger
}

func NewDepthCollector(
	stream drepo.DepthStream,
	pipeline *middleware.DepthPipeline,
	dispatch func(drepo.DepthEvent),
	metrics drepo.Metrics,
	l *logger.Logger,
) *DepthCollector {
	return &DepthCollector{
		stream:   stream,
		pipeline: pipeline,
		dispatch: dispatch,
		metrics:  metrics,
		logger:   l,
	}
}

// Run blocks until ctx is canceled.
func (c *DepthCollector) Run(ctx context.Context) {
	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}

		events, errs := c.stream.Read(ctx)
		if c.consume(ctx, events, errs) {
			return
		}

		// Stream broke. Back off and reconnect.
		c.metrics.RecordError("stream_disconnect")
		c.logger.Warn("feed disconnected, reconnecting", logger.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.logger.Error("feed reconnect failed", logger.Error(err))
			delay = min(delay*2, reconnectMaxDelay)
			continue
		}
		delay = reconnectBaseDelay
	}
}

// consume drains one stream session. Returns true when ctx ended.
func (c *DepthCollector) consume(ctx context.Context, events <-chan drepo.DepthEvent, errs <-chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case err, ok := <-errs:
			if !ok {
				return false
			}
			c.logger.Warn("feed error", logger.Error(err))
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if !c.pipeline.Admit(ev) {
				continue
			}
			c.dispatch(ev)
		}
	}
}

package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Hoangbim/streamcast/internal/metrics"
)

// MetricsHook records every redis command into prometheus.
type MetricsHook struct{}

var _ goredis.Hook = (*MetricsHook)(nil)

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RedisConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.record(cmd.Name(), start, err)
		return err
	}
}

// Pipelines count as a single operation.
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.record("pipeline", start, err)
		return err
	}
}

func (h *MetricsHook) record(operation string, start time.Time, err error) {
	// A redis.Nil reply is a miss, not a failure.
	status := "success"
	if err != nil && !errors.Is(err, goredis.Nil) {
		status = "error"
	}
	metrics.RedisOpsTotal.WithLabelValues(operation, status).Inc()
	metrics.RedisOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

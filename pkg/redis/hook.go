package redis

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

// slowCommandHook logs commands and pipelines that exceed threshold. Keys are
// not logged since idempotency keys embed user ids.
type slowCommandHook struct {
	logg      *logger.Logger
	threshold time.Duration
}

var _ redis.Hook = slowCommandHook{}

func (h slowCommandHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h slowCommandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(ctx, cmd.Name(), 1, time.Since(start))
		return err
	}
}

func (h slowCommandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe(ctx, "pipeline", len(cmds), time.Since(start))
		return err
	}
}

func (h slowCommandHook) observe(ctx context.Context, name string, size int, took time.Duration) {
	if took < h.threshold {
		return
	}
	h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
		"redis_command": name,
		"redis_cmds":    size,
		"duration_ms":   took.Milliseconds(),
	}), "slow redis command")
}

package redisholder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jDay-whyT/converterBot-backend/internal/config"
)

// Build connects to redis, preferring a cluster client and falling back to
// the first reachable single node. A background loop pings the client and
// swaps in a fresh one when the ping fails, until ctx is done.
func Build(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*Holder, error) {
	logger = logger.With().Str("component", "redis").Logger()

	var cl redis.UniversalClient
	cl, err := newClusterClient(ctx, cfg)
	if err != nil {
		clusterErr := err
		cl, err = newClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		logger.Info().Err(clusterErr).Msg("cluster client failed; using single-node client")
	}

	h := NewHolder(cl)

	if cfg.HealthCheckIntervalSec > 0 {
		go healthLoop(ctx, h, cfg, logger)
	}

	return h, nil
}

func healthLoop(ctx context.Context, h *Holder, cfg config.RedisConfig, logger zerolog.Logger) {
	interval := time.Duration(cfg.HealthCheckIntervalSec) * time.Second
	logger.Debug().Dur("interval", interval).Msg("health loop started")

	ping := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.Get().Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return
		}
		logger.Warn().Err(err).Msg("ping failed; reconnecting")

		var newCl redis.UniversalClient
		newCl, newErr := newClusterClient(ctx, cfg)
		if newErr != nil {
			newCl, newErr = newClient(ctx, cfg)
		}
		if newErr != nil {
			logger.Error().Err(newErr).Msg("reconnect failed")
			return
		}

		if old := h.swap(newCl); old != nil {
			_ = old.Close()
		}
		logger.Info().Msg("reconnected")
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = h.Close()
			logger.Debug().Err(ctx.Err()).Msg("health loop stopped")
			return
		case <-t.C:
			ping()
		}
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func newClusterClient(ctx context.Context, cfg config.RedisConfig) (*redis.ClusterClient, error) {
	if len(cfg.Nodes) < 2 {
		return nil, errors.New("cluster needs at least two nodes")
	}

	addrs := make([]string, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		addrs = append(addrs, node.Addr())
	}

	cl := redis.NewClusterClient(&redis.ClusterOptions{
		RouteByLatency: true,
		Password:       cfg.Password,
		Addrs:          addrs,
		DialTimeout:    seconds(cfg.DialTimeoutSec),
		ReadTimeout:    seconds(cfg.ReadTimeoutSec),
		WriteTimeout:   seconds(cfg.WriteTimeoutSec),
		PoolSize:       cfg.PoolSize,
		PoolTimeout:    30 * time.Second,
	})

	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis cluster: %w", err)
	}

	return cl, nil
}

func newClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	stickyErr := errors.New("no nodes defined")

	for _, node := range cfg.Nodes {
		cl := redis.NewClient(&redis.Options{
			Addr:         node.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DatabaseID,
			DialTimeout:  seconds(cfg.DialTimeoutSec),
			ReadTimeout:  seconds(cfg.ReadTimeoutSec),
			WriteTimeout: seconds(cfg.WriteTimeoutSec),
			PoolSize:     cfg.PoolSize,
		})

		if err := cl.Ping(ctx).Err(); err != nil {
			_ = cl.Close()
			stickyErr = fmt.Errorf("error pinging redis server %s: %w", node.Addr(), err)
			continue
		}

		return cl, nil
	}

	return nil, stickyErr
}

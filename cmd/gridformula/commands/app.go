package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/rockcut/gridformula/internal/config"
	"github.com/rockcut/gridformula/internal/logging"
	"github.com/rockcut/gridformula/pkg/cache"
	"github.com/rockcut/gridformula/pkg/cache/gormcache"
	"github.com/rockcut/gridformula/pkg/cache/rediscache"
	"github.com/rockcut/gridformula/pkg/evaluator"
	"github.com/rockcut/gridformula/pkg/functions"
	"github.com/rockcut/gridformula/pkg/remote"
	"github.com/rockcut/gridformula/pkg/wasmfn"
)

// app holds everything a command needs, built from the loaded config.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	cache   cache.Strategy
	client  *remote.Client
	remote  functions.Remote
	plugins []*wasmfn.Plugin
	ev      *evaluator.Evaluator

	closers []func()
}

// newApp wires the logger, cache, remote client and WASM plugins. The
// caller must Close the returned app.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	log, cleanup, err := logging.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	a.log = log
	a.closers = append(a.closers, cleanup)

	if a.cache, err = a.buildCache(); err != nil {
		return nil, err
	}

	a.remote = functions.Remote{}
	if cfg.Remote.BaseURL != "" {
		a.client, err = remote.New(cfg.Remote.BaseURL,
			remote.WithToken(cfg.Remote.Token),
			remote.WithTimeout(cfg.Remote.Timeout),
			remote.WithBatching(cfg.Remote.BatchWindow, cfg.Remote.MaxBatch),
			remote.WithBreaker(breakerSettings(cfg.Breaker)),
			remote.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		a.remote = a.remote.Merge(a.client.Functions())
		log.WithField("endpoint", cfg.Remote.BaseURL).Debug("remote functions enabled")
	}

	if len(cfg.Wasm.Modules) > 0 {
		var opts []wasmfn.Option
		if cfg.Wasm.MemoryPages > 0 {
			opts = append(opts, wasmfn.WithMemoryLimit(cfg.Wasm.MemoryPages))
		}
		opts = append(opts, wasmfn.WithWASI(cfg.Wasm.WASI))
		plugins, fns, err := wasmfn.LoadAll(ctx, cfg.Wasm.Modules, opts...)
		if err != nil {
			return nil, err
		}
		a.plugins = plugins
		a.closers = append(a.closers, func() {
			for _, p := range plugins {
				_ = p.Close(context.Background())
			}
		})
		a.remote = a.remote.Merge(fns)
		log.WithField("functions", fns.Names()).Debug("wasm functions loaded")
	}

	evOpts := []evaluator.EvalOption{evaluator.WithRemoteFunctions(a.remote)}
	if a.cache != nil {
		evOpts = append(evOpts, evaluator.WithCache(a.cache))
	}
	a.ev = evaluator.New(evOpts...)
	return a, nil
}

func (a *app) buildCache() (cache.Strategy, error) {
	c := a.cfg.Cache
	switch c.Kind {
	case "memory":
		return cache.NewMemory(c.Size, c.TTL), nil
	case "redis":
		rc := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rc.Close() })
		return rediscache.New(rc, rediscache.WithPrefix(c.Redis.Prefix), rediscache.WithTTL(c.TTL)), nil
	case "sql":
		gc, err := gormcache.Open(c.SQL.Driver, c.SQL.DSN, c.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = gc.Close() })
		return gc, nil
	default:
		return nil, nil
	}
}

// breakerSettings overlays the configured thresholds on the client defaults.
func breakerSettings(b *config.Breaker) gobreaker.Settings {
	s := remote.DefaultBreakerSettings()
	s.MaxRequests = b.MaxRequests
	s.Interval = b.Interval
	s.Timeout = b.Timeout
	minRequests, ratio := b.MinRequests, b.FailureRatio
	s.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
	return s
}

// remoteNames lists every non-builtin function the app can call.
func (a *app) remoteNames() []string {
	return a.remote.Names()
}

// Close releases the cache connections, plugins and log file.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

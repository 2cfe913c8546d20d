// Command notifyd runs the notification engine behind its HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/internal/api"
	emailch "github.com/dmitrymomot/notifykit/pkg/channels/email"
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/realtime"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/dedup"
	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/metrics"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/processor"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/rulefile"
	"github.com/dmitrymomot/notifykit/pkg/scheduler"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "notifyd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		app      appConfig
		procCfg  processor.Config
		httpCfg  httpserver.Config
		schedCfg scheduler.Config
		mailCfg  email.Config
		pushCfg  push.Config
	)
	if err := config.LoadAll(nil, &app, &procCfg, &httpCfg, &schedCfg, &mailCfg, &pushCfg); err != nil {
		return err
	}

	logOpts := []logger.Option{logger.WithEnvironment(app.Env, app.Name)}
	if app.LogLevel != "" {
		level, _ := app.level()
		logOpts = append(logOpts, logger.WithLevel(level))
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	var checks []httpserver.Check

	repo, closeRepo, err := openRepository(ctx, app, log)
	if err != nil {
		return err
	}
	defer closeRepo()
	if c, ok := repo.(interface{ Check() httpserver.Check }); ok {
		checks = append(checks, c.Check())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	procOpts := []processor.Option{
		processor.WithLogger(log),
		processor.WithRecorder(metrics.New(reg, app.MetricsNamespace)),
	}
	if app.Redis {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		procOpts = append(procOpts, processor.WithDedupStore(
			dedup.NewRedisStore(client, dedup.WithKeyPrefix(redisCfg.KeyPrefix+"dedup:")),
		))
		checks = append(checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}
	if app.RulesFile != "" {
		rules, err := rulefile.Load(app.RulesFile)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		procOpts = append(procOpts, processor.WithRules(rules))
	}

	proc, err := processor.New(procCfg, repo, procOpts...)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Processor:    proc,
		Repository:   repo,
		Metrics:      metrics.NewHTTP(reg, app.MetricsNamespace),
		Gatherer:     reg,
		CheckTimeout: httpCfg.CheckTimeout,
		Heartbeat:    app.StreamHeartbeat,
		Logger:       log,
	}
	if err := registerChannels(proc, &deps, app, mailCfg, pushCfg, log); err != nil {
		return err
	}
	deps.Checks = checks

	handler, err := api.New(deps)
	if err != nil {
		return err
	}

	sched, err := scheduler.New(schedCfg, repo, proc, scheduler.WithLogger(log))
	if err != nil {
		return err
	}

	if err := proc.Start(ctx); err != nil {
		return err
	}
	if _, err := sched.RecoverPending(ctx); err != nil {
		log.LogAttrs(ctx, slog.LevelWarn, "pending recovery incomplete", logger.Error(err))
	}

	srvOpts := []httpserver.Option{httpserver.WithLogger(log)}
	if rt := deps.Realtime; rt != nil {
		// Open streams would hold shutdown until its timeout.
		srvOpts = append(srvOpts, httpserver.WithStopHook(func() { _ = rt.Close() }))
	}
	srv := httpserver.New(httpCfg, srvOpts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), procCfg.ShutdownTimeout+5*time.Second)
		defer cancel()
		return proc.Stop(stopCtx)
	})
	g.Go(sched.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, handler.Router()) })
	if app.RulesFile != "" {
		w := rulefile.NewWatcher(app.RulesFile, proc.ReplaceRules, rulefile.WithLogger(log))
		g.Go(func() error { return w.Watch(ctx) })
	}

	log.InfoContext(ctx, "notifyd started",
		slog.String("addr", httpCfg.Addr),
		slog.String("storage", app.Storage),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("notifyd stopped")
	return nil
}

// openRepository returns the configured store and a release function.
func openRepository(ctx context.Context, app appConfig, log *slog.Logger) (notifications.Repository, func(), error) {
	if app.Storage != storagePostgres {
		log.Warn("using in-memory storage; notifications are lost on restart")
		return notifications.NewMemoryRepository(), func() {}, nil
	}

	var cfg pg.Config
	if err := config.Load(&cfg); err != nil {
		return nil, nil, err
	}
	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	repo, err := pgstore.New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return checkedRepository{Repository: repo, check: pg.Healthcheck(pool)}, pool.Close, nil
}

// checkedRepository exposes the pool health check to /readyz.
type checkedRepository struct {
	*pgstore.Repository
	check func(context.Context) error
}

func (r checkedRepository) Check() httpserver.Check {
	return httpserver.Check{Name: "postgres", Fn: r.check}
}

func registerChannels(proc *processor.Processor, deps *api.Deps, app appConfig, mailCfg email.Config, pushCfg push.Config, log *slog.Logger) error {
	if app.RealtimeEnabled {
		rt := realtime.New(realtime.WithLogger(log))
		proc.RegisterChannel(rt)
		deps.Realtime = rt
	}

	if app.EmailEnabled {
		sender, err := email.NewSender(mailCfg)
		if err != nil {
			return fmt.Errorf("email sender: %w", err)
		}
		ch := emailch.New(sender, emailch.WithLogger(log))
		proc.RegisterChannel(ch, dispatcher.WithProviderLimits(emailch.ProviderLimits(mailCfg)))
		deps.Email = ch
	}

	if app.PushEnabled {
		ch, err := push.NewFromConfig(pushCfg, push.WithLogger(log))
		if err != nil {
			return fmt.Errorf("push channel: %w", err)
		}
		proc.RegisterChannel(ch, dispatcher.WithProviderLimits(pushCfg.ProviderLimits()))
		deps.Push = ch
	}
	return nil
}

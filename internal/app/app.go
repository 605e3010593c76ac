// Package app wires the coursegen client from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/yungbote/coursegen/internal/account"
	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/auth"
	"github.com/yungbote/coursegen/internal/catalog"
	"github.com/yungbote/coursegen/internal/config"
	"github.com/yungbote/coursegen/internal/generation"
	"github.com/yungbote/coursegen/internal/notify"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/progress"
)

type App struct {
	Log    *logger.Logger
	Config *config.Config

	Tokens    *auth.Holder
	Client    *apiclient.Client
	Account   *account.Service
	Courses   *catalog.Courses
	Contents  *catalog.Contents
	Structure *catalog.Structure
	UnitView  *catalog.UnitView
	Generator *generation.Generator
	Batch     *generation.BatchGenerator
	Notifier  notify.Notifier
	// Redis is nil unless REDIS_ADDR is configured and reachable.
	Redis *notify.Redis

	closers []func(context.Context) error
}

// New loads configuration and builds every client component. Notifications go
// to out, the log, and Redis when REDIS_ADDR is set.
func New(ctx context.Context, out io.Writer) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "coursegen",
		Environment: cfg.Env,
	})
	a, err := Build(ctx, cfg, log, out)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	a.closers = append([]func(context.Context) error{shutdown}, a.closers...)
	return a, nil
}

// Build wires the client components from an already loaded configuration.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, out io.Writer) (*App, error) {
	a := &App{Log: log, Config: cfg}

	var err error
	var store auth.TokenStore = auth.NewMemoryStore("")
	if cfg.Auth.TokenFile != "" {
		fs, err := auth.NewFileStore(cfg.Auth.TokenFile)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	a.Tokens = auth.NewHolder(store)

	a.Client, err = apiclient.New(apiclient.Options{
		BaseURL: cfg.API.BaseURL,
		Tokens:  a.Tokens,
		Timeout: cfg.API.RequestTimeout.Duration,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}

	sinks := notify.Multi{notify.NewConsole(out), notify.NewLog(log)}
	if cfg.Notify.RedisAddr != "" {
		r, err := notify.NewRedis(ctx, log, cfg.Notify.RedisAddr, cfg.Notify.RedisChannel)
		if err != nil {
			log.Warn("redis notifications disabled", "addr", cfg.Notify.RedisAddr, "error", err)
		} else {
			sinks = append(sinks, r)
			a.Redis = r
			a.closers = append(a.closers, func(context.Context) error { return r.Close() })
		}
	}
	a.Notifier = sinks

	wsBase := cfg.API.WSURL
	if wsBase == "" {
		wsBase = cfg.API.BaseURL
	}
	dialer, err := progress.NewWSDialer(wsBase, log)
	if err != nil {
		return nil, err
	}

	a.Account = account.NewService(a.Client, a.Tokens)
	a.Courses = catalog.NewCourses(a.Client)
	a.Contents = catalog.NewContents(a.Client)
	a.Structure = catalog.NewStructure(a.Client)
	a.UnitView = catalog.NewUnitView(a.Contents, catalog.Query{})
	a.Tokens.OnClear(a.UnitView.Reset)
	a.Generator = generation.NewGenerator(a.Client, a.UnitView, a.Notifier, log)
	a.Batch = generation.NewBatchGenerator(a.Client, dialer, a.Notifier, log, generation.WithOnUpdate(progressPrinter(out)))
	return a, nil
}

// Close tears down the batch channel, flushes tracing and closes sinks.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Batch != nil {
		errs = append(errs, a.Batch.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.Log.Sync()
	return errors.Join(errs...)
}

// progressPrinter writes one line per progress change while a job streams.
func progressPrinter(out io.Writer) func(generation.BatchState) {
	var (
		mu   sync.Mutex
		last string
	)
	return func(s generation.BatchState) {
		if s.BatchID == "" || s.Message == "" {
			return
		}
		line := fmt.Sprintf("[%5.1f%%] %s", s.Progress, s.Message)
		mu.Lock()
		defer mu.Unlock()
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(out, line)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/sheepd/internal/bus"
	"github.com/desertthunder/sheepd/internal/formatter"
	"github.com/desertthunder/sheepd/internal/server"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/desertthunder/sheepd/internal/tasks"
	"github.com/desertthunder/sheepd/internal/ui"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Run starts the agent: the sync engine, the bus listener, the config watcher and,
// when enabled, the status server. It returns when interrupted.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	b, transport, err := a.openBus(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect event bus: %w", err)
	}
	defer transport.Close()
	defer b.Close()

	if err := b.Subscribe(ctx); err != nil {
		return err
	}

	engine, err := a.newEngine(b, nil, nil)
	if err != nil {
		return err
	}
	votes, err := a.newVoteSubmitter(b)
	if err != nil {
		return err
	}

	r.logger.Info("starting agent",
		"client_id", a.clientID,
		"root", a.store.Root(),
		"budget", formatter.FormatBytes(config.Cache.BudgetBytes()),
		"transport", config.Bus.Transport,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error {
		if err := b.Listen(ctx); err != nil && !(bus.IsClosed(err) && ctx.Err() != nil) {
			return fmt.Errorf("event bus stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		result, err := votes.FlushOfflineQueue(ctx, nil)
		if err != nil {
			r.logger.Warn("offline vote flush failed", "err", err)
			return nil
		}
		if result.Attempted > 0 {
			r.logger.Info("flushed offline votes", "submitted", result.Submitted, "remaining", result.Remaining)
		}
		return nil
	})

	if path := r.configFile(cmd); path != "" {
		if _, err := os.Stat(path); err == nil {
			watcher := shared.NewConfigWatcher(path, r.logger, func(c *shared.Config) {
				engine.SetBudget(c.Cache.BudgetBytes())
				shared.SetLogLevel(r.logger, shared.ParseLogLevel(c.Log.Level))
			})
			if err := watcher.Start(ctx); err != nil {
				r.logger.Warn("config reload disabled", "err", err)
			}
		}
	}

	if config.Server.Enabled {
		srv := server.NewHTTPServer(config.Server.Host, config.Server.Port, server.NewStatusServer(engine, r.logger), r.logger)
		g.Go(func() error { return srv.ListenAndServe(ctx) })
	}

	if err := b.BroadcastCompanionLaunched(ctx); err != nil {
		r.logger.Warn("failed to announce launch", "err", err)
	}
	engine.Start()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info("agent stopped")
	return nil
}

// Sync runs one catalog cycle in the foreground and prints its progress.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("budget-gb") {
		config.Cache.BudgetGB = cmd.Float64("budget-gb")
	}

	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	var b *bus.Bus
	if cmd.Bool("notify") {
		bb, transport, err := a.openBus(ctx)
		if err != nil {
			r.logger.Warn("renderer will not be notified", "err", err)
		} else {
			defer transport.Close()
			b = bb
		}
	}

	progress := make(chan tasks.ProgressUpdate, 256)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	engine, err := a.newEngine(b, progress, nil)
	if err != nil {
		close(progress)
		<-done
		return err
	}

	result, err := engine.RunOnce(ctx)
	close(progress)
	<-done

	if cmd.Bool("json") {
		if jerr := r.writeJSON(result, true); jerr != nil {
			return jerr
		}
	} else {
		r.writePlainHeader("Sync Complete")
		r.writePlain("Catalog:     %d items\n", result.Catalog)
		r.writePlain("Queued:      %d\n", result.Queued)
		r.writePlain("Downloaded:  %d\n", result.Downloaded)
		r.writePlain("Failed:      %d\n", result.Failed)
		r.writePlain("Evicted:     %d\n", result.Evicted)
	}

	if err != nil {
		r.writePlain("%s\n", ui.RenderError(err))
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/sheepd/internal/formatter"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/services"
	"github.com/desertthunder/sheepd/internal/ui"
	"github.com/urfave/cli/v3"
)

const restartTimeout = 2 * time.Second

// CacheStatus prints the size of the local cache against its budget.
func (r *Runner) CacheStatus(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.snapshot()
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(snap, cmd.Bool("pretty"))
	}

	entries, err := a.store.ListEntries()
	if err != nil {
		return err
	}
	r.writePlain("%s\n", ui.RenderStatus(snap, entries))
	return nil
}

// CacheEvict deletes least recently played entries until the cache fits its budget.
func (r *Runner) CacheEvict(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	budget := config.Cache.BudgetBytes()
	if cmd.IsSet("budget-gb") {
		budget = int64(cmd.Float64("budget-gb") * (1 << 30))
	}

	removed, err := a.store.Evict(budget)
	if err != nil {
		return fmt.Errorf("failed to evict: %w", err)
	}

	ids := make([]string, 0, len(removed))
	for _, e := range removed {
		if e.FullID != "" {
			ids = append(ids, e.FullID)
		}
		r.logger.Debug("evicted", "id", e.FullID, "size", e.Size)
	}
	if err := a.stats.Delete(ids...); err != nil {
		r.logger.Warn("failed to delete statistics", "err", err)
	}

	if len(removed) == 0 {
		r.writePlain("Cache is within its budget of %s\n", formatter.FormatBytes(budget))
		return nil
	}
	r.writePlain("✓ Evicted %d entries\n", len(removed))
	return nil
}

// CacheReset deletes every cached item, the access map and all statistics.
func (r *Runner) CacheReset(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("refusing to delete the cache without --yes")
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Reset(); err != nil {
		return fmt.Errorf("failed to reset cache: %w", err)
	}
	if err := a.stats.DeleteAll(); err != nil {
		return fmt.Errorf("failed to reset statistics: %w", err)
	}

	r.logger.Info("cache reset", "root", a.store.Root())
	r.writePlain("✓ Cache reset\n")

	if config.Server.Enabled {
		r.restartSync(ctx, statusURL(cmd, config))
	}
	return nil
}

// restartSync asks a running agent to refill the cache. An agent that is not
// running is not an error.
func (r *Runner) restartSync(ctx context.Context, baseURL string) {
	ctx, cancel := context.WithTimeout(ctx, restartTimeout)
	defer cancel()

	if err := services.NewStatusClient(baseURL, r.httpClient).Control(ctx, "now"); err != nil {
		r.logger.Debug("no running agent to restart", "url", baseURL, "err", err)
		return
	}
	r.writePlain("✓ Restarted sync on %s\n", baseURL)
}

// CacheExport writes the cache listing in the requested format.
//
// Without --output the listing goes to stdout.
func (r *Runner) CacheExport(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.entries()
	if err != nil {
		return err
	}
	if tier := cmd.String("tier"); tier != "" {
		entries = filterTier(entries, models.Tier(tier))
	}

	format := cmd.String("format")
	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(entries, format, path)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d entries to %s\n", len(entries), written)
		return nil
	}

	data, err := formatter.Export(entries, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

func filterTier(entries []models.CacheEntry, tier models.Tier) []models.CacheEntry {
	out := make([]models.CacheEntry, 0, len(entries))
	for _, e := range entries {
		if e.Tier == tier {
			out = append(out, e)
		}
	}
	return out
}

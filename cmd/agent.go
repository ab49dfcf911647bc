package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/bus"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/repositories"
	"github.com/desertthunder/sheepd/internal/services"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/desertthunder/sheepd/internal/store"
	"github.com/desertthunder/sheepd/internal/tasks"
)

const installationIDFile = "installation_id"

// agent bundles the components built from one configuration.
//
// Commands open one, use the parts they need and close it.
type agent struct {
	config   *shared.Config
	clientID string
	db       *sql.DB
	store    *store.Store
	stats    *repositories.EntryStatsRepository
	failures *repositories.DownloadFailureRepository
	logger   *log.Logger
}

func (r *Runner) openAgent(config *shared.Config) (*agent, error) {
	root := config.Cache.ExpandedRoot()

	st, err := store.New(store.Options{
		Root:         root,
		MinFreeBytes: config.Cache.MinFreeBytes(),
		Logger:       r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	clientID, err := shared.LoadOrCreateInstallationID(filepath.Join(root, installationIDFile))
	if err != nil {
		return nil, err
	}

	db, err := shared.OpenDatabase(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &agent{
		config:   config,
		clientID: clientID,
		db:       db,
		store:    st,
		stats:    repositories.NewEntryStatsRepository(db),
		failures: repositories.NewDownloadFailureRepository(db),
		logger:   r.logger,
	}, nil
}

func (a *agent) Close() error {
	return a.db.Close()
}

func (a *agent) queuePath() string {
	return filepath.Join(a.store.Root(), tasks.OfflineVotesFile)
}

// openBus connects the configured transport. The caller closes the returned transport.
func (a *agent) openBus(ctx context.Context) (*bus.Bus, bus.Transport, error) {
	var transport bus.Transport
	switch a.config.Bus.Transport {
	case "memory":
		transport = bus.NewMemoryTransport()
	default:
		t, err := bus.NewRedisTransport(ctx, bus.RedisConfig{Addr: a.config.Bus.RedisAddr})
		if err != nil {
			return nil, nil, err
		}
		transport = t
	}

	b, err := bus.New(bus.Options{
		Transport:         transport,
		Prefix:            a.config.Bus.Prefix,
		QueryTimeout:      a.config.Bus.QueryTimeout.Duration,
		Logger:            a.logger,
		OnPlaybackStarted: a.recordPlay,
	})
	if err != nil {
		transport.Close()
		return nil, nil, err
	}
	return b, transport, nil
}

// recordPlay stamps the access map used by eviction and bumps play statistics.
func (a *agent) recordPlay(fullID string) {
	now := time.Now()
	if err := a.store.RecordAccess(fullID, now); err != nil {
		a.logger.Warn("failed to record access", "id", fullID, "err", err)
	}
	if err := a.stats.RecordPlay(fullID, now); err != nil {
		a.logger.Debug("failed to record play", "id", fullID, "err", err)
	}
}

// newEngine builds the sync engine. b may be nil when no bus is connected.
func (a *agent) newEngine(b *bus.Bus, progress chan<- tasks.ProgressUpdate, onState func(models.SyncState)) (*tasks.Engine, error) {
	catalogOpts := services.CatalogOptions{
		RedirectURL:   a.config.Sync.RedirectURL,
		ClientVersion: a.config.Sync.ClientVersion,
		Logger:        a.logger,
	}
	if a.config.Sync.SaveLists {
		catalogOpts.SaveList = a.store.SaveList
	}

	opts := tasks.EngineOptions{
		Catalog:      services.NewCatalogClient(catalogOpts),
		Fetcher:      services.NewDownloader(nil, a.logger),
		Store:        a.store,
		Stats:        a.stats,
		Failures:     a.failures,
		ClientID:     a.clientID,
		Budget:       a.config.Cache.BudgetBytes(),
		Interval:     a.config.Sync.Interval.Duration,
		LowDiskRetry: a.config.Sync.LowDiskRetry.Duration,
		BackoffBase:  a.config.Sync.BackoffBase.Duration,
		BackoffMax:   a.config.Sync.BackoffMax.Duration,
		Logger:       a.logger,
		Progress:     progress,
		OnState:      onState,
	}
	if b != nil {
		opts.Bus = b
	}
	return tasks.NewEngine(opts)
}

// newVoteSubmitter builds the vote submitter. b may be nil when no bus is connected.
func (a *agent) newVoteSubmitter(b *bus.Bus) (*tasks.VoteSubmitter, error) {
	opts := tasks.VoteOptions{
		Voter:     services.NewVoteClient(a.config.Votes.URL, nil),
		Ratings:   a.stats,
		ClientID:  a.clientID,
		QueuePath: a.queuePath(),
		Workers:   a.config.Votes.Workers,
		RateLimit: a.config.Votes.RateLimit,
		Logger:    a.logger,
	}
	if b != nil {
		opts.Bus = b
	}
	return tasks.NewVoteSubmitter(opts)
}

// entries lists the store with statistics attached where the database has them.
func (a *agent) entries() ([]models.CacheEntry, error) {
	entries, err := a.store.ListEntries()
	if err != nil {
		return nil, err
	}

	stats, err := a.stats.List()
	if err != nil {
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}
	byID := make(map[string]*models.EntryStats, len(stats))
	for i := range stats {
		byID[stats[i].FullID] = &stats[i]
	}

	for i := range entries {
		entries[i].Stats = byID[entries[i].FullID]
	}
	return entries, nil
}

// snapshot summarises the local store for `cache status`.
func (a *agent) snapshot() (models.StatusSnapshot, error) {
	size, err := a.store.TotalSize()
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	count, err := a.store.Count()
	if err != nil {
		return models.StatusSnapshot{}, err
	}
	return models.StatusSnapshot{
		State:       models.StatusIdle.String(),
		CacheBytes:  size,
		CacheCount:  count,
		BudgetBytes: a.config.Cache.BudgetBytes(),
	}, nil
}

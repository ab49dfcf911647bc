package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/bus"
	"github.com/desertthunder/sheepd/internal/metrics"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/repositories"
	"github.com/desertthunder/sheepd/internal/services"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/desertthunder/sheepd/internal/store"
)

const (
	DefaultInterval     = time.Hour
	DefaultLowDiskRetry = 5 * time.Minute
)

// Store is the part of the content store the engine writes through.
type Store interface {
	CheckHeadroom() error
	IDs() (map[string]struct{}, error)
	Stage(item models.ContentItem) string
	Commit(tempPath string, item models.ContentItem) error
	Discard(tempPath string)
	Evict(budget int64) ([]models.CacheEntry, error)
	TotalSize() (int64, error)
	Count() (int, error)
}

// StatsRecorder persists per-entry statistics.
type StatsRecorder interface {
	RecordDownload(fullID string, tier models.Tier, at time.Time) error
	Delete(fullIDs ...string) error
}

// FailureRecorder tracks items that keep failing to download.
type FailureRecorder interface {
	Record(fullID string, cause error, at time.Time) error
	Clear(fullID string) error
}

// Broadcaster announces cache changes to the renderer.
type Broadcaster interface {
	BroadcastCacheUpdated(ctx context.Context) error
}

var (
	_ Store           = (*store.Store)(nil)
	_ StatsRecorder   = (*repositories.EntryStatsRepository)(nil)
	_ FailureRecorder = (*repositories.DownloadFailureRepository)(nil)
	_ Broadcaster     = (*bus.Bus)(nil)
)

// errInterrupted marks an operation cancelled by Pause or shutdown rather than failed.
var errInterrupted = errors.New("operation interrupted")

// EngineOptions configures an [Engine].
//
// Stats, Failures, Bus, Progress and OnState are optional.
type EngineOptions struct {
	Catalog  services.Catalog
	Fetcher  services.Fetcher
	Store    Store
	Stats    StatsRecorder
	Failures FailureRecorder
	Bus      Broadcaster
	ClientID string

	Budget       int64         // Store size limit in bytes
	Interval     time.Duration // Delay between successful cycles
	LowDiskRetry time.Duration // Delay before retrying after a headroom failure
	BackoffBase  time.Duration
	BackoffMax   time.Duration

	Logger   *log.Logger
	Progress chan<- ProgressUpdate
	OnState  func(models.SyncState) // Called from the engine goroutine on every transition
	Now      func() time.Time
}

// CycleResult summarises one catalog cycle.
type CycleResult struct {
	Catalog    int // Items listed by the catalog
	Queued     int // Items missing from the store
	Downloaded int
	Failed     int
	Evicted    int
}

type command int

const (
	cmdStart command = iota
	cmdPause
	cmdResume
	cmdSyncNow
	cmdBudget
)

// Engine drives catalog sync: it fetches the catalog, downloads missing items,
// evicts to the budget and reschedules itself.
//
// A single goroutine started by [Engine.Run] owns the queue, timer and backoff.
// Other goroutines talk to it through [Engine.Start], [Engine.Pause],
// [Engine.Resume], [Engine.SyncNow] and [Engine.SetBudget], and read state through
// [Engine.State] and [Engine.Snapshot].
type Engine struct {
	catalog  services.Catalog
	fetcher  services.Fetcher
	store    Store
	stats    StatsRecorder
	failures FailureRecorder
	bus      Broadcaster
	clientID string

	interval     time.Duration
	lowDiskRetry time.Duration
	backoff      *Backoff
	budget       atomic.Int64

	logger   *log.Logger
	progress chan<- ProgressUpdate
	onState  func(models.SyncState)
	now      func() time.Time

	cmds chan command
	done chan struct{}

	// owned by the engine goroutine
	queue   []models.ContentItem
	step    int
	total   int
	running bool
	paused  bool
	timer   *time.Timer
	result  CycleResult

	mu       sync.RWMutex
	state    models.SyncState
	queued   int
	nextSync time.Time
	cancelOp context.CancelFunc
}

// NewEngine creates an engine in the Idle state.
func NewEngine(opts EngineOptions) (*Engine, error) {
	switch {
	case opts.Catalog == nil:
		return nil, fmt.Errorf("%w: catalog", shared.ErrMissingArgument)
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher", shared.ErrMissingArgument)
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: store", shared.ErrMissingArgument)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.LowDiskRetry <= 0 {
		opts.LowDiskRetry = DefaultLowDiskRetry
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		catalog:      opts.Catalog,
		fetcher:      opts.Fetcher,
		store:        opts.Store,
		stats:        opts.Stats,
		failures:     opts.Failures,
		bus:          opts.Bus,
		clientID:     opts.ClientID,
		interval:     opts.Interval,
		lowDiskRetry: opts.LowDiskRetry,
		backoff:      NewBackoff(opts.BackoffBase, opts.BackoffMax),
		logger:       shared.WithLogger(opts.Logger, "component", "engine"),
		progress:     opts.Progress,
		onState:      opts.OnState,
		now:          opts.Now,
		cmds:         make(chan command, 16),
		done:         make(chan struct{}),
		state:        models.Idle(),
	}
	e.budget.Store(opts.Budget)
	metrics.SetState(e.state.Status.String())
	return e, nil
}

// State returns a snapshot of the current state.
func (e *Engine) State() models.SyncState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Snapshot returns the state together with queue and store figures.
func (e *Engine) Snapshot() models.StatusSnapshot {
	e.mu.RLock()
	snap := models.StatusSnapshot{
		State:       e.state.Status.String(),
		Current:     e.state.Current,
		Total:       e.state.Total,
		Message:     e.state.Message,
		BudgetBytes: e.budget.Load(),
		Queued:      e.queued,
		NextSyncAt:  e.nextSync,
	}
	e.mu.RUnlock()

	if size, err := e.store.TotalSize(); err == nil {
		snap.CacheBytes = size
	}
	if n, err := e.store.Count(); err == nil {
		snap.CacheCount = n
	}
	return snap
}

// Budget returns the current store size limit in bytes.
func (e *Engine) Budget() int64 { return e.budget.Load() }

// Start begins a catalog cycle unless the engine is paused.
func (e *Engine) Start() { e.post(cmdStart) }

// SyncNow starts a cycle immediately, replacing any scheduled one.
//
// It does nothing while paused or while a queue is being downloaded.
func (e *Engine) SyncNow() { e.post(cmdSyncNow) }

// Pause cancels the in-flight download and keeps the rest of the queue.
func (e *Engine) Pause() {
	e.post(cmdPause)

	e.mu.Lock()
	if e.cancelOp != nil {
		e.cancelOp()
	}
	e.mu.Unlock()
}

// Resume continues the kept queue, or starts a fresh cycle if it is empty.
func (e *Engine) Resume() { e.post(cmdResume) }

// SetBudget replaces the store size limit. An idle engine evicts right away.
func (e *Engine) SetBudget(bytes int64) {
	if e.budget.Swap(bytes) == bytes {
		return
	}
	e.logger.Info("budget updated", "bytes", bytes)
	e.post(cmdBudget)
}

func (e *Engine) post(c command) {
	select {
	case e.cmds <- c:
	case <-e.done:
	}
}

// Run processes commands, timers and the download queue until ctx is done.
//
// Run must be called at most once. It never runs concurrently with [Engine.RunOnce].
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)
	defer e.stopTimer()

	e.logger.Info("sync engine started", "interval", e.interval, "budget", e.budget.Load())
	for {
		if e.active() {
			select {
			case <-ctx.Done():
				return nil
			case c := <-e.cmds:
				e.handle(ctx, c)
			default:
				e.process(ctx)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case c := <-e.cmds:
			e.handle(ctx, c)
		case <-e.timerC():
			e.timer = nil
			e.wake(ctx)
		}
	}
}

// RunOnce performs a single cycle in the calling goroutine and returns its result.
//
// Nothing is scheduled. A cycle stopped by low disk space returns
// [shared.ErrInsufficientStorage] with the remaining items still queued.
func (e *Engine) RunOnce(ctx context.Context) (CycleResult, error) {
	defer e.stopTimer()

	e.setState(models.Idle())
	if err := e.cycle(ctx); err != nil {
		return e.result, err
	}
	for e.active() {
		if err := ctx.Err(); err != nil {
			return e.result, err
		}
		e.process(ctx)
	}
	if len(e.queue) > 0 {
		return e.result, fmt.Errorf("%w: %d items left in queue", shared.ErrInsufficientStorage, len(e.queue))
	}
	return e.result, nil
}

func (e *Engine) active() bool {
	return e.running && !e.paused && len(e.queue) > 0
}

func (e *Engine) handle(ctx context.Context, c command) {
	switch c {
	case cmdStart, cmdSyncNow:
		if e.paused || e.active() {
			e.logger.Debug("sync request ignored", "paused", e.paused, "queued", len(e.queue))
			return
		}
		if c == cmdStart {
			e.setState(models.Idle())
		}
		e.cycle(ctx)

	case cmdPause:
		if e.paused {
			return
		}
		e.paused = true
		e.stopTimer()
		e.setState(models.Paused())
		e.logger.Info("paused", "queued", len(e.queue))

	case cmdResume:
		if !e.paused {
			return
		}
		e.paused = false
		e.logger.Info("resumed", "queued", len(e.queue))
		if len(e.queue) > 0 {
			e.running = true
			return
		}
		e.setState(models.Idle())
		e.cycle(ctx)

	case cmdBudget:
		if e.active() {
			return
		}
		if n := e.evict(); n > 0 {
			e.broadcast(ctx)
		}
	}
}

// wake runs when the reschedule timer fires.
func (e *Engine) wake(ctx context.Context) {
	if e.paused {
		return
	}
	if len(e.queue) > 0 {
		e.running = true
		return
	}
	e.cycle(ctx)
}

// cycle fetches the catalog and queues the items missing from the store.
func (e *Engine) cycle(ctx context.Context) error {
	e.stopTimer()
	e.result = CycleResult{}

	sendProgress(e.progress, fetchUpdate())
	items, err := e.fetchCatalog(ctx)
	if err != nil {
		if errors.Is(err, errInterrupted) {
			e.logger.Info("catalog fetch interrupted")
			return err
		}
		return e.fail(err)
	}

	have, err := e.store.IDs()
	if err != nil {
		return e.fail(err)
	}
	delta := services.Diff(items, have)
	e.result.Catalog = len(items)
	e.result.Queued = len(delta)
	sendProgress(e.progress, diffUpdate(len(items), len(delta)))
	e.logger.Info("catalog diffed", "items", len(items), "missing", len(delta))

	if len(delta) == 0 {
		e.backoff.Reset()
		metrics.RecordCycle("empty")
		e.setState(models.Idle())
		e.schedule(e.interval)
		return nil
	}

	e.queue = delta
	e.step = 0
	e.total = len(delta)
	e.running = true
	e.setQueued(len(delta))
	return nil
}

func (e *Engine) fetchCatalog(ctx context.Context) ([]models.ContentItem, error) {
	opCtx, done := e.operation(ctx)
	defer done()

	items, err := e.catalog.Fetch(opCtx, e.clientID)
	if err != nil && opCtx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", errInterrupted, err)
	}
	return items, err
}

// process downloads the item at the head of the queue.
func (e *Engine) process(ctx context.Context) {
	item := e.queue[0]

	if err := e.store.CheckHeadroom(); err != nil {
		e.logger.Warn("suspending downloads", "err", err, "retry_in", e.lowDiskRetry)
		e.running = false
		metrics.RecordCycle("low_disk")
		e.setState(models.Failed("low disk space"))
		e.schedule(e.lowDiskRetry)
		return
	}

	e.step++
	e.setState(models.Downloading(e.step, e.total))
	sendProgress(e.progress, downloadUpdate(e.step, e.total, item))

	size, err := e.download(ctx, item)
	if errors.Is(err, errInterrupted) {
		e.step--
		metrics.RecordDownload("cancelled", 0)
		e.logger.Info("download interrupted, item requeued", "id", item.FullID())
		return
	}

	e.queue = e.queue[1:]
	e.setQueued(len(e.queue))

	if err != nil {
		e.result.Failed++
		metrics.RecordDownload("failed", 0)
		e.logger.Error("download failed", "id", item.FullID(), "err", err)
		sendProgress(e.progress, failedUpdate(e.step, e.total, item, err))
		if e.failures != nil {
			if ferr := e.failures.Record(item.FullID(), err, e.now()); ferr != nil {
				e.logger.Warn("failed to record download failure", "id", item.FullID(), "err", ferr)
			}
		}
	} else {
		e.result.Downloaded++
		e.backoff.Reset()
		metrics.RecordDownload("ok", size)
		sendProgress(e.progress, committedUpdate(e.step, e.total, item, size))
		e.recordSuccess(item)
	}

	if len(e.queue) == 0 {
		e.finish(ctx)
	}
}

func (e *Engine) download(ctx context.Context, item models.ContentItem) (int64, error) {
	opCtx, done := e.operation(ctx)
	defer done()

	tmp := e.store.Stage(item)
	n, err := e.fetcher.DownloadFile(opCtx, item.URL, tmp)
	if err != nil {
		e.store.Discard(tmp)
		if opCtx.Err() != nil {
			return 0, fmt.Errorf("%w: %v", errInterrupted, err)
		}
		return 0, err
	}

	if item.Size != nil && n != *item.Size {
		e.store.Discard(tmp)
		return 0, fmt.Errorf("%w: %s is %d bytes, catalog lists %d", shared.ErrDownloadFailed, item.FullID(), n, *item.Size)
	}

	if err := e.store.Commit(tmp, item); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *Engine) recordSuccess(item models.ContentItem) {
	if e.stats != nil {
		if err := e.stats.RecordDownload(item.FullID(), item.Tier(), e.now()); err != nil {
			e.logger.Warn("failed to record statistics", "id", item.FullID(), "err", err)
		}
	}
	if e.failures != nil {
		if err := e.failures.Clear(item.FullID()); err != nil {
			e.logger.Warn("failed to clear download failure", "id", item.FullID(), "err", err)
		}
	}
}

// finish closes a cycle whose queue has drained.
func (e *Engine) finish(ctx context.Context) {
	e.running = false
	e.result.Evicted = e.evict()
	e.broadcast(ctx)
	e.backoff.Reset()
	metrics.RecordCycle("ok")
	e.logger.Info("sync cycle complete",
		"downloaded", e.result.Downloaded, "failed", e.result.Failed, "evicted", e.result.Evicted)
	e.setState(models.Idle())
	e.schedule(e.interval)
}

func (e *Engine) evict() int {
	removed, err := e.store.Evict(e.budget.Load())
	if err != nil {
		e.logger.Error("eviction failed", "err", err)
		return 0
	}

	if len(removed) > 0 {
		ids := make([]string, 0, len(removed))
		for _, r := range removed {
			ids = append(ids, r.FullID)
			metrics.RecordEviction(string(r.Tier))
		}
		if e.stats != nil {
			if err := e.stats.Delete(ids...); err != nil {
				e.logger.Warn("failed to delete statistics", "err", err)
			}
		}
		sendProgress(e.progress, evictUpdate(removed))
	}

	if size, err := e.store.TotalSize(); err == nil {
		metrics.CacheBytes.Set(float64(size))
	}
	return len(removed)
}

func (e *Engine) broadcast(ctx context.Context) {
	if e.bus == nil {
		return
	}
	if err := e.bus.BroadcastCacheUpdated(ctx); err != nil {
		e.logger.Warn("failed to broadcast cache update", "err", err)
	}
}

// fail records a cycle-level failure and schedules the next attempt after the backoff delay.
func (e *Engine) fail(err error) error {
	delay := e.backoff.Next()
	e.running = false
	e.logger.Error("sync cycle failed", "err", err, "retry_in", delay)
	metrics.RecordCycle("error")
	e.setState(models.Failed(err.Error()))
	e.schedule(delay)
	return err
}

// operation derives a context that [Engine.Pause] can cancel.
func (e *Engine) operation(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelOp = cancel
	e.mu.Unlock()

	return opCtx, func() {
		e.mu.Lock()
		e.cancelOp = nil
		e.mu.Unlock()
		cancel()
	}
}

func (e *Engine) setState(s models.SyncState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()

	metrics.SetState(s.Status.String())
	e.logger.Debug("state changed", "state", s)
	sendProgress(e.progress, stateUpdate(s))
	if e.onState != nil {
		e.onState(s)
	}
}

func (e *Engine) setQueued(n int) {
	e.mu.Lock()
	e.queued = n
	e.mu.Unlock()
	metrics.QueueLength.Set(float64(n))
}

func (e *Engine) schedule(d time.Duration) {
	e.stopTimer()
	e.timer = time.NewTimer(d)

	e.mu.Lock()
	e.nextSync = e.now().Add(d)
	e.mu.Unlock()
}

func (e *Engine) stopTimer() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Lock()
	e.nextSync = time.Time{}
	e.mu.Unlock()
}

func (e *Engine) timerC() <-chan time.Time {
	if e.timer == nil {
		return nil
	}
	return e.timer.C
}

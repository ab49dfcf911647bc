package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sheepd/internal/bus"
	"github.com/desertthunder/sheepd/internal/metrics"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/repositories"
	"github.com/desertthunder/sheepd/internal/services"
	"github.com/desertthunder/sheepd/internal/shared"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	OfflineVotesFile = "offline_votes.json"

	defaultVoteWorkers = 4
	maxVoteWorkers     = 10
	defaultVoteRate    = 2.0
)

// PlaybackBus asks the renderer what is playing and reports vote outcomes back to it.
type PlaybackBus interface {
	QueryCurrentlyPlaying(ctx context.Context) (string, bool)
	SendVoteFeedback(ctx context.Context, d models.Direction) error
}

// RatingRecorder stores the user's rating for a cached entry.
type RatingRecorder interface {
	SetRating(fullID string, rating int) error
}

var (
	_ PlaybackBus    = (*bus.Bus)(nil)
	_ RatingRecorder = (*repositories.EntryStatsRepository)(nil)
)

// VoteOptions configures a [VoteSubmitter].
type VoteOptions struct {
	Voter     services.Voter
	Bus       PlaybackBus
	Ratings   RatingRecorder // Optional
	ClientID  string
	QueuePath string  // Offline queue file
	Workers   int     // Concurrent submissions during a flush (default: 4)
	RateLimit float64 // Submissions per second during a flush (default: 2)
	Logger    *log.Logger
	Now       func() time.Time
}

// VoteOutcome reports what happened to a vote.
type VoteOutcome int

const (
	VoteSubmitted VoteOutcome = iota
	VoteQueued
)

func (o VoteOutcome) String() string {
	if o == VoteQueued {
		return "queued"
	}
	return "submitted"
}

// FlushResult contains the results of an offline queue flush.
type FlushResult struct {
	Attempted int
	Submitted int
	Remaining int
}

// VoteSubmitter sends votes for the item the renderer is playing and keeps an
// offline queue of votes that could not be delivered.
//
// Every read-modify-write of the queue file happens under mu and the queue's
// file lock, so submitters in other processes never interleave with it.
type VoteSubmitter struct {
	voter     services.Voter
	bus       PlaybackBus
	ratings   RatingRecorder
	clientID  string
	queuePath string
	workers   int
	rateLimit float64
	logger    *log.Logger
	now       func() time.Time

	mu sync.Mutex
}

// NewVoteSubmitter creates a vote submitter.
func NewVoteSubmitter(opts VoteOptions) (*VoteSubmitter, error) {
	switch {
	case opts.Voter == nil:
		return nil, fmt.Errorf("%w: voter", shared.ErrMissingArgument)
	case opts.QueuePath == "":
		return nil, fmt.Errorf("%w: offline queue path", shared.ErrMissingArgument)
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultVoteWorkers
	}
	if opts.Workers > maxVoteWorkers {
		opts.Workers = maxVoteWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultVoteRate
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &VoteSubmitter{
		voter:     opts.Voter,
		bus:       opts.Bus,
		ratings:   opts.Ratings,
		clientID:  opts.ClientID,
		queuePath: opts.QueuePath,
		workers:   opts.Workers,
		rateLimit: opts.RateLimit,
		logger:    shared.WithLogger(opts.Logger, "component", "votes"),
		now:       opts.Now,
	}, nil
}

// Vote votes on whatever the renderer reports as playing.
//
// With nothing playing it returns [shared.ErrNothingPlaying]. A failed
// submission is appended to the offline queue and reported as [VoteQueued].
func (v *VoteSubmitter) Vote(ctx context.Context, d models.Direction) (VoteOutcome, error) {
	if v.bus == nil {
		return 0, fmt.Errorf("%w: no event bus", shared.ErrNothingPlaying)
	}

	playing, ok := v.bus.QueryCurrentlyPlaying(ctx)
	if !ok {
		v.logger.Info("vote ignored, nothing playing", "direction", d)
		return 0, shared.ErrNothingPlaying
	}
	return v.VoteFor(ctx, playing, d)
}

// VoteFor votes on a specific item. playing is sent to the voting endpoint as
// received, either a composite key or a bare sheep id.
func (v *VoteSubmitter) VoteFor(ctx context.Context, playing string, d models.Direction) (VoteOutcome, error) {
	if err := v.voter.Submit(ctx, playing, d, v.clientID); err != nil {
		v.logger.Warn("vote submission failed, queueing", "sheep", playing, "direction", d, "err", err)
		if qerr := v.enqueue(models.NewVoteRecord(playing, d, v.now())); qerr != nil {
			return 0, qerr
		}
		metrics.RecordVote("queued")
		return VoteQueued, nil
	}

	metrics.RecordVote("submitted")
	v.logger.Info("vote submitted", "sheep", playing, "direction", d)

	if v.bus != nil {
		if err := v.bus.SendVoteFeedback(ctx, d); err != nil {
			v.logger.Warn("failed to send vote feedback", "err", err)
		}
	}
	if v.ratings != nil && isFullID(playing) {
		if err := v.ratings.SetRating(playing, d.Value()); err != nil {
			v.logger.Debug("rating not stored", "id", playing, "err", err)
		}
	}
	return VoteSubmitted, nil
}

func isFullID(s string) bool {
	_, err := models.ParseFullID(s)
	return err == nil
}

// lock takes the in-process mutex and then the queue's file lock.
func (v *VoteSubmitter) lock() (func(), error) {
	v.mu.Lock()
	fl, err := shared.LockFile(v.queuePath)
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			v.logger.Warn("failed to release offline queue lock", "err", err)
		}
		v.mu.Unlock()
	}, nil
}

// Pending returns the unsubmitted votes in the offline queue.
func (v *VoteSubmitter) Pending() ([]models.VoteRecord, error) {
	unlock, err := v.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := v.load()
	if err != nil {
		return nil, err
	}
	return unsubmitted(records), nil
}

// FlushOfflineQueue resubmits every unsubmitted vote in the offline queue.
//
// Submissions run concurrently, paced by a rate limiter. The queue is rewritten
// only after all of them have settled and then holds exactly the votes that
// still failed. A cancelled ctx leaves the unattempted votes in the queue.
func (v *VoteSubmitter) FlushOfflineQueue(ctx context.Context, progress chan<- ProgressUpdate) (FlushResult, error) {
	unlock, err := v.lock()
	if err != nil {
		return FlushResult{}, err
	}
	defer unlock()

	records, err := v.load()
	if err != nil {
		return FlushResult{}, err
	}
	pending := unsubmitted(records)
	if len(pending) == 0 {
		metrics.OfflineVotes.Set(0)
		return FlushResult{}, nil
	}

	limiter := rate.NewLimiter(rate.Limit(v.rateLimit), 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	var (
		mu        sync.Mutex
		completed int
	)
	for i := range pending {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return nil
			}
			rec := pending[i]
			err := v.voter.Submit(gctx, rec.SheepID, models.DirectionOf(rec.Vote), v.clientID)

			mu.Lock()
			completed++
			if err == nil {
				pending[i].Submitted = true
			}
			step := completed
			mu.Unlock()

			sendProgress(progress, flushUpdate(step, len(pending), rec, err))
			return nil
		})
	}
	g.Wait()

	result := FlushResult{Attempted: completed}
	remaining := unsubmitted(pending)
	result.Submitted = len(pending) - len(remaining)
	result.Remaining = len(remaining)

	if err := shared.WriteJSONAtomic(v.queuePath, remaining); err != nil {
		return result, fmt.Errorf("failed to rewrite offline queue: %w", err)
	}

	for range result.Submitted {
		metrics.RecordVote("flushed")
	}
	metrics.OfflineVotes.Set(float64(result.Remaining))
	v.logger.Info("offline queue flushed", "submitted", result.Submitted, "remaining", result.Remaining)
	return result, nil
}

func (v *VoteSubmitter) enqueue(rec models.VoteRecord) error {
	unlock, err := v.lock()
	if err != nil {
		return err
	}
	defer unlock()

	records, err := v.load()
	if err != nil {
		return err
	}
	records = append(unsubmitted(records), rec)
	if err := shared.WriteJSONAtomic(v.queuePath, records); err != nil {
		return fmt.Errorf("failed to write offline queue: %w", err)
	}
	metrics.OfflineVotes.Set(float64(len(records)))
	return nil
}

func (v *VoteSubmitter) load() ([]models.VoteRecord, error) {
	var records []models.VoteRecord
	if err := shared.ReadJSON(v.queuePath, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func unsubmitted(records []models.VoteRecord) []models.VoteRecord {
	out := make([]models.VoteRecord, 0, len(records))
	for _, r := range records {
		if !r.Submitted {
			out = append(out, r)
		}
	}
	return out
}

package tasks

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
	tu "github.com/desertthunder/sheepd/internal/testing"
	"github.com/google/go-cmp/cmp"
)

type fakePlaybackBus struct {
	mu       sync.Mutex
	playing  string
	feedback []models.Direction
}

func (b *fakePlaybackBus) QueryCurrentlyPlaying(ctx context.Context) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing, b.playing != ""
}

func (b *fakePlaybackBus) SendVoteFeedback(ctx context.Context, d models.Direction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedback = append(b.feedback, d)
	return nil
}

type fakeRatings struct {
	ratings map[string]int
}

func (f *fakeRatings) SetRating(fullID string, rating int) error {
	if f.ratings == nil {
		f.ratings = make(map[string]int)
	}
	f.ratings[fullID] = rating
	return nil
}

// gatedVoter accepts every vote but holds each submission until release is closed.
type gatedVoter struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedVoter() *gatedVoter {
	return &gatedVoter{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedVoter) Submit(ctx context.Context, sheepID string, d models.Direction, clientID string) error {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var voteTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSubmitter(t *testing.T, voter *tu.MockVoter, b PlaybackBus, ratings RatingRecorder) (*VoteSubmitter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), OfflineVotesFile)
	v, err := NewVoteSubmitter(VoteOptions{
		Voter:     voter,
		Bus:       b,
		Ratings:   ratings,
		ClientID:  "0123456789abcdef0123456789abcdef",
		QueuePath: path,
		Workers:   3,
		RateLimit: 1000,
		Logger:    shared.NewLogger(io.Discard),
		Now:       func() time.Time { return voteTime },
	})
	if err != nil {
		t.Fatalf("failed to create submitter: %v", err)
	}
	return v, path
}

func TestNewVoteSubmitter(t *testing.T) {
	tests := []struct {
		name string
		opts VoteOptions
	}{
		{"missing voter", VoteOptions{QueuePath: "votes.json"}},
		{"missing queue path", VoteOptions{Voter: tu.NewMockVoter()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVoteSubmitter(tt.opts); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
		})
	}

	t.Run("Worker Bounds", func(t *testing.T) {
		v, err := NewVoteSubmitter(VoteOptions{Voter: tu.NewMockVoter(), QueuePath: "q.json", Workers: 50})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.workers != maxVoteWorkers || v.rateLimit != defaultVoteRate {
			t.Errorf("unexpected limits: workers %d, rate %v", v.workers, v.rateLimit)
		}
	})
}

func TestVote(t *testing.T) {
	t.Run("Submits Playing Item", func(t *testing.T) {
		voter := tu.NewMockVoter()
		b := &fakePlaybackBus{playing: "248=1234=0=240"}
		ratings := &fakeRatings{}
		v, _ := newTestSubmitter(t, voter, b, ratings)

		outcome, err := v.Vote(context.Background(), models.VoteUp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome != VoteSubmitted {
			t.Errorf("expected submitted, got %v", outcome)
		}
		if diff := cmp.Diff([]string{"248=1234=0=240:1"}, voter.Submitted()); diff != "" {
			t.Errorf("submissions mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]models.Direction{models.VoteUp}, b.feedback); diff != "" {
			t.Errorf("feedback mismatch (-want +got):\n%s", diff)
		}
		if got := ratings.ratings["248=1234=0=240"]; got != 1 {
			t.Errorf("expected rating 1, got %d", got)
		}
	})

	t.Run("Bare Sheep ID", func(t *testing.T) {
		voter := tu.NewMockVoter()
		ratings := &fakeRatings{}
		v, _ := newTestSubmitter(t, voter, &fakePlaybackBus{playing: "1234"}, ratings)

		if _, err := v.Vote(context.Background(), models.VoteDown); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]string{"1234:-1"}, voter.Submitted()); diff != "" {
			t.Errorf("submissions mismatch (-want +got):\n%s", diff)
		}
		if len(ratings.ratings) != 0 {
			t.Errorf("bare ids cannot be rated, got %v", ratings.ratings)
		}
	})

	t.Run("Nothing Playing", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, path := newTestSubmitter(t, voter, &fakePlaybackBus{}, nil)

		if _, err := v.Vote(context.Background(), models.VoteUp); !errors.Is(err, shared.ErrNothingPlaying) {
			t.Errorf("expected ErrNothingPlaying, got %v", err)
		}
		if voter.Attempts() != 0 {
			t.Error("nothing should be submitted")
		}
		tu.AssertNoFile(t, path)
	})

	t.Run("No Bus", func(t *testing.T) {
		v, _ := newTestSubmitter(t, tu.NewMockVoter(), nil, nil)
		if _, err := v.Vote(context.Background(), models.VoteUp); !errors.Is(err, shared.ErrNothingPlaying) {
			t.Errorf("expected ErrNothingPlaying, got %v", err)
		}
	})

	t.Run("Offline Queues Vote", func(t *testing.T) {
		voter := tu.NewMockVoter()
		voter.SetOffline(true)
		b := &fakePlaybackBus{playing: "248=1234=0=240"}
		v, _ := newTestSubmitter(t, voter, b, nil)

		outcome, err := v.Vote(context.Background(), models.VoteDown)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome != VoteQueued {
			t.Errorf("expected queued, got %v", outcome)
		}
		if len(b.feedback) != 0 {
			t.Error("failed votes should not send feedback")
		}

		pending, err := v.Pending()
		if err != nil {
			t.Fatalf("failed to read queue: %v", err)
		}
		want := []models.VoteRecord{{SheepID: "248=1234=0=240", Vote: -1, Timestamp: voteTime}}
		if diff := cmp.Diff(want, pending); diff != "" {
			t.Errorf("queue mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestOfflineQueue(t *testing.T) {
	queue := func(t *testing.T, v *VoteSubmitter, voter *tu.MockVoter, ids ...string) {
		t.Helper()
		voter.SetOffline(true)
		for _, id := range ids {
			if _, err := v.VoteFor(context.Background(), id, models.VoteUp); err != nil {
				t.Fatalf("failed to queue %s: %v", id, err)
			}
		}
		voter.SetOffline(false)
	}

	t.Run("Round Trip", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, path := newTestSubmitter(t, voter, nil, nil)
		queue(t, v, voter, "a", "b")

		var onDisk []models.VoteRecord
		if err := shared.ReadJSON(path, &onDisk); err != nil {
			t.Fatalf("failed to read queue file: %v", err)
		}
		pending, _ := v.Pending()
		if diff := cmp.Diff(onDisk, pending); diff != "" {
			t.Errorf("round trip mismatch (-file +pending):\n%s", diff)
		}
		if len(pending) != 2 || !pending[0].Timestamp.Equal(voteTime) {
			t.Errorf("unexpected records %+v", pending)
		}
	})

	t.Run("Flush Keeps Only Failures", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, path := newTestSubmitter(t, voter, nil, nil)
		queue(t, v, voter, "a", "b", "c")
		voter.Reject("b")

		progress := make(chan ProgressUpdate, 16)
		result, err := v.FlushOfflineQueue(context.Background(), progress)
		if err != nil {
			t.Fatalf("flush failed: %v", err)
		}

		if diff := cmp.Diff(FlushResult{Attempted: 3, Submitted: 2, Remaining: 1}, result); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}

		submitted := voter.Submitted()
		sort.Strings(submitted)
		if diff := cmp.Diff([]string{"a:1", "c:1"}, submitted); diff != "" {
			t.Errorf("submissions mismatch (-want +got):\n%s", diff)
		}

		var onDisk []models.VoteRecord
		shared.ReadJSON(path, &onDisk)
		if len(onDisk) != 1 || onDisk[0].SheepID != "b" || onDisk[0].Submitted {
			t.Errorf("expected only b to remain, got %+v", onDisk)
		}
		if len(progress) != 3 {
			t.Errorf("expected 3 progress updates, got %d", len(progress))
		}
	})

	t.Run("Submitted Records Never Resubmitted", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, path := newTestSubmitter(t, voter, nil, nil)
		records := []models.VoteRecord{
			{SheepID: "x", Vote: 1, Timestamp: voteTime, Submitted: true},
			{SheepID: "y", Vote: -1, Timestamp: voteTime},
		}
		if err := shared.WriteJSONAtomic(path, records); err != nil {
			t.Fatalf("failed to seed queue: %v", err)
		}

		result, err := v.FlushOfflineQueue(context.Background(), nil)
		if err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if result.Attempted != 1 || result.Remaining != 0 {
			t.Errorf("unexpected result %+v", result)
		}
		if diff := cmp.Diff([]string{"y:-1"}, voter.Submitted()); diff != "" {
			t.Errorf("submissions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Empty Queue", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, _ := newTestSubmitter(t, voter, nil, nil)

		result, err := v.FlushOfflineQueue(context.Background(), nil)
		if err != nil || result != (FlushResult{}) {
			t.Errorf("expected empty result, got %+v, %v", result, err)
		}
	})

	t.Run("Concurrent Flushes Do Not Interleave", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, path := newTestSubmitter(t, voter, nil, nil)
		queue(t, v, voter, "a", "b", "c", "d", "e")
		queued := voter.Attempts()

		var wg sync.WaitGroup
		results := make([]FlushResult, 2)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], _ = v.FlushOfflineQueue(context.Background(), nil)
			}()
		}
		wg.Wait()

		if got := results[0].Submitted + results[1].Submitted; got != 5 {
			t.Errorf("expected 5 submissions across flushes, got %d", got)
		}
		if got := voter.Attempts() - queued; got != 5 {
			t.Errorf("expected each vote attempted once, got %d attempts", got)
		}

		var onDisk []models.VoteRecord
		shared.ReadJSON(path, &onDisk)
		if len(onDisk) != 0 {
			t.Errorf("expected empty queue, got %+v", onDisk)
		}
	})

	t.Run("Separate Submitters Share Queue", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), OfflineVotesFile)
		seed := []models.VoteRecord{{SheepID: "1", Vote: 1, Timestamp: voteTime}}
		if err := shared.WriteJSONAtomic(path, seed); err != nil {
			t.Fatalf("failed to seed queue: %v", err)
		}

		gated := newGatedVoter()
		flusher, err := NewVoteSubmitter(VoteOptions{
			Voter:     gated,
			QueuePath: path,
			RateLimit: 1000,
			Logger:    shared.NewLogger(io.Discard),
		})
		if err != nil {
			t.Fatalf("failed to create flusher: %v", err)
		}

		offline := tu.NewMockVoter()
		offline.SetOffline(true)
		voter, err := NewVoteSubmitter(VoteOptions{
			Voter:     offline,
			QueuePath: path,
			Logger:    shared.NewLogger(io.Discard),
			Now:       func() time.Time { return voteTime },
		})
		if err != nil {
			t.Fatalf("failed to create voter: %v", err)
		}

		flushed := make(chan FlushResult, 1)
		go func() {
			result, _ := flusher.FlushOfflineQueue(context.Background(), nil)
			flushed <- result
		}()
		<-gated.started

		queued := make(chan error, 1)
		go func() {
			_, err := voter.VoteFor(context.Background(), "2", models.VoteDown)
			queued <- err
		}()

		time.Sleep(50 * time.Millisecond)
		close(gated.release)

		if result := <-flushed; result.Submitted != 1 {
			t.Errorf("expected 1 flushed vote, got %+v", result)
		}
		if err := <-queued; err != nil {
			t.Fatalf("failed to queue vote: %v", err)
		}

		var onDisk []models.VoteRecord
		if err := shared.ReadJSON(path, &onDisk); err != nil {
			t.Fatalf("failed to read queue: %v", err)
		}
		want := []models.VoteRecord{{SheepID: "2", Vote: -1, Timestamp: voteTime}}
		if diff := cmp.Diff(want, onDisk); diff != "" {
			t.Errorf("queue mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Cancelled Flush Keeps Queue", func(t *testing.T) {
		voter := tu.NewMockVoter()
		v, _ := newTestSubmitter(t, voter, nil, nil)
		queue(t, v, voter, "a", "b", "c")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := v.FlushOfflineQueue(ctx, nil)
		if err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if result.Attempted != 0 || result.Remaining != 3 {
			t.Errorf("unexpected result %+v", result)
		}
		pending, _ := v.Pending()
		if len(pending) != 3 {
			t.Errorf("expected all votes kept, got %d", len(pending))
		}
	})
}

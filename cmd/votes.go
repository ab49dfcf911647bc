package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/sheepd/internal/bus"
	"github.com/desertthunder/sheepd/internal/models"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/desertthunder/sheepd/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Vote votes on the item the renderer is playing, or on --id when given.
//
// A vote that cannot be delivered is kept in the offline queue.
func (r *Runner) Vote(ctx context.Context, cmd *cli.Command) error {
	d, err := models.ParseDirection(cmd.StringArg("direction"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
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

	var b *bus.Bus
	id := cmd.String("id")
	if id == "" {
		bb, transport, err := a.openBus(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect event bus: %w", err)
		}
		defer transport.Close()
		defer bb.Close()
		if err := bb.Subscribe(ctx); err != nil {
			return err
		}
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go bb.Listen(listenCtx)
		b = bb
	}

	votes, err := a.newVoteSubmitter(b)
	if err != nil {
		return err
	}

	var outcome tasks.VoteOutcome
	if id != "" {
		outcome, err = votes.VoteFor(ctx, id, d)
	} else {
		outcome, err = votes.Vote(ctx, d)
	}
	if errors.Is(err, shared.ErrNothingPlaying) {
		r.logger.Warn("nothing playing, vote ignored")
		return nil
	}
	if err != nil {
		return err
	}

	switch outcome {
	case tasks.VoteQueued:
		r.writePlain("Vote %s queued for later delivery\n", d)
	default:
		r.writePlain("✓ Vote %s submitted\n", d)
	}
	return nil
}

// VotesFlush resubmits every queued vote and rewrites the queue with the ones still failing.
func (r *Runner) VotesFlush(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	votes, err := a.newVoteSubmitter(nil)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 256)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	result, err := votes.FlushOfflineQueue(ctx, progress)
	close(progress)
	<-done
	if err != nil {
		return fmt.Errorf("failed to flush offline votes: %w", err)
	}

	if result.Attempted == 0 {
		r.writePlain("No queued votes\n")
		return nil
	}
	r.writePlainln("Submitted %d of %d queued votes, %d remaining", result.Submitted, result.Attempted, result.Remaining)
	return nil
}

// VotesList prints the offline vote queue.
func (r *Runner) VotesList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := r.openAgent(config)
	if err != nil {
		return err
	}
	defer a.Close()

	votes, err := a.newVoteSubmitter(nil)
	if err != nil {
		return err
	}
	pending, err := votes.Pending()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(pending, cmd.Bool("pretty"))
	}

	if len(pending) == 0 {
		r.writePlain("No queued votes\n")
		return nil
	}
	r.writePlainHeader(fmt.Sprintf("Queued votes (%d)", len(pending)))
	for i, rec := range pending {
		r.writePlain("%d. %s %s (%s)\n", i+1, rec.SheepID, models.DirectionOf(rec.Vote), rec.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/desertthunder/sheepd/internal/services"
	"github.com/desertthunder/sheepd/internal/shared"
	"github.com/desertthunder/sheepd/internal/ui"
	"github.com/urfave/cli/v3"
)

// Status reads /status from a running agent.
//
// The address defaults to the [server] section of the config.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	baseURL := statusURL(cmd, config)
	client := services.NewStatusClient(baseURL, r.httpClient)
	snap, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("agent at %s is not reachable (is server.enabled set?): %w", baseURL, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(snap, cmd.Bool("pretty"))
	}
	r.writePlain("%s\n", ui.RenderStatus(*snap, nil))
	return nil
}

// Control pauses, resumes or triggers a sync on a running agent.
func (r *Runner) Control(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	action := cmd.StringArg("action")
	if action == "" {
		return fmt.Errorf("%w: expected one of %v", shared.ErrMissingArgument, services.SyncActions)
	}

	baseURL := statusURL(cmd, config)
	if err := services.NewStatusClient(baseURL, r.httpClient).Control(ctx, action); err != nil {
		return fmt.Errorf("agent at %s did not accept %q: %w", baseURL, action, err)
	}
	r.writePlain("✓ Sent %s to %s\n", action, baseURL)
	return nil
}

// statusURL returns --url, or the agent address from the [server] section.
func statusURL(cmd *cli.Command, config *shared.Config) string {
	if u := cmd.String("url"); u != "" {
		return u
	}
	return "http://" + net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port))
}

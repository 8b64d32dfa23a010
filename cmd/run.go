package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/parley/internal/adapters/render/status"
	scenariotoml "github.com/bnema/parley/internal/adapters/scenario/toml"
	"github.com/bnema/parley/internal/application"
	"github.com/bnema/parley/internal/domain"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		scenarioPath string
		transport    string
		ticks        int
		every        int
		realtime     bool
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "run --scenario <file>",
		Short: "Run a scenario and print the resulting conversations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ticks < 0 {
				return fmt.Errorf("--ticks must not be negative")
			}
			if every < 0 {
				return fmt.Errorf("--every must not be negative")
			}

			scn, err := scenariotoml.Load(scenarioPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			sess, err := a.newSession(ctx, scn, domain.LLMType(transport))
			if err != nil {
				return err
			}

			opts := runOptions{ticks: ticks, realtime: realtime, every: every}
			if opts.ticks == 0 {
				opts.ticks = sess.defaultTicks()
			}

			emit := func(snap application.Snapshot) error {
				return writeSnapshot(cmd, a, sess, snap, asJSON)
			}

			a.logger.Info("scenario started", "name", scn.Name, "agents", len(scn.Agents), "ticks", opts.ticks, "transports", sess.router.Types())

			var last time.Time
			runErr := func() error {
				if realtime && every == 0 && !asJSON {
					return runWithProgress(ctx, cmd.ErrOrStderr(), scn.Name, opts.ticks, func(ctx context.Context, report func(tick, conversations int)) error {
						withProgress := opts
						withProgress.progress = report
						var err error
						last, err = sess.run(ctx, withProgress, nil)
						return err
					})
				}
				var err error
				last, err = sess.run(ctx, opts, emit)
				return err
			}()
			if runErr != nil && ctx.Err() == nil {
				return runErr
			}

			if every > 0 && opts.ticks%every == 0 {
				return nil
			}
			return emit(sess.sim.Snapshot(last))
		},
	}

	cmd.Flags().StringVar(&scenarioPath, "scenario", "", "scenario TOML file")
	cmd.Flags().StringVar(&transport, "transport", "", "answer every agent with this transport (scripted, openai, anthropic, gemini)")
	cmd.Flags().IntVar(&ticks, "ticks", 0, "number of ticks to run (default: scenario duration)")
	cmd.Flags().IntVar(&every, "every", 0, "print a snapshot every N ticks")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "tick on the wall clock instead of a virtual one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print snapshots as JSON")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

func writeSnapshot(cmd *cobra.Command, a *app, sess *session, snap application.Snapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	rendered, err := a.render(snap, statusadapter.RenderOptions{
		Start: sess.start,
		Name:  sess.world.Name,
	})
	if err != nil {
		return fmt.Errorf("render snapshot: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

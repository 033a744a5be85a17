package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/curator/internal/experiment"
	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/judge"
	"github.com/fyrsmithlabs/curator/internal/scoring"
)

var runInput string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Score one batch of candidate items",
	Long: `Score a batch of candidate items with the configured control
strategy and print the items that clear their effective threshold.

When an experiment is enabled, the challenger strategy shadow-scores
every item against the identical input and the pair is recorded for
later analysis. The challenger never affects what is delivered.

Examples:
  # Score items from a JSON file
  curatord run --input items.json

  # Score items from stdin
  cat items.json | curatord run --input -`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "JSON file of candidate items ('-' for stdin)")
	_ = runCmd.MarkFlagRequired("input")
}

// fileSource reads one batch of candidates from a JSON file or stdin.
type fileSource struct {
	path string
}

func (s fileSource) Fetch(ctx context.Context, window time.Duration) ([]feed.Item, error) {
	var data []byte
	var err error
	if s.path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading items: %w", err)
	}

	var items []feed.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing items: %w", err)
	}
	return items, nil
}

// consoleDelivery prints delivered items to the command output.
type consoleDelivery struct {
	out io.Writer
}

func (d consoleDelivery) Deliver(ctx context.Context, item feed.Item, score float64) error {
	fmt.Fprintf(d.out, "[%.0f] @%s: %s\n", score, item.Author, item.Text)
	if item.URL != "" {
		fmt.Fprintf(d.out, "      %s\n", item.URL)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	var source feed.Source = fileSource{path: runInput}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	j, err := judge.NewAnthropicJudge(a.config.Judge, a.logger)
	if err != nil {
		return err
	}

	recorder := experiment.NewRecorder(a.store, a.logger)
	engine, err := scoring.NewEngine(
		a.config.Scoring,
		a.config.ActiveExperiment(),
		a.registry,
		j,
		a.retrieval,
		a.store,
		recorder,
		a.logger,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items, err := source.Fetch(ctx, 0)
	if err != nil {
		return err
	}

	decisions, err := engine.ScoreBatch(ctx, items)
	if err != nil {
		return err
	}

	var delivery feed.Delivery = consoleDelivery{out: cmd.OutOrStdout()}
	sent, skipped, failed := 0, 0, 0
	for _, d := range decisions {
		switch {
		case d.Err != nil:
			failed++
			a.logger.Error("item not scored", zap.String("item_id", d.Item.ID), zap.Error(d.Err))
		case d.Send:
			sent++
			if err := delivery.Deliver(ctx, d.Item, d.ControlScore); err != nil {
				return err
			}
		default:
			skipped++
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d scored: %d sent, %d skipped, %d failed\n",
		len(decisions), sent, skipped, failed)
	return nil
}

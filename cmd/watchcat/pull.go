// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/watchcat/internal/checkpoint"
	"github.com/pdiddy/watchcat/internal/config"
	"github.com/pdiddy/watchcat/internal/pull"
	"github.com/pdiddy/watchcat/pkg/types"
)

var pullCmd = &cobra.Command{
	Use:   "pull [source-id...]",
	Short: "Pull new records from configured sources",
	Long: `Pull runs one incremental cycle for each enabled source, or for the
named sources. Sources are pulled concurrently; a failing source does not
stop the others. New records are stored in the checkpoint database and
printed, one per line.

The cursor of a source only moves after its records are committed, so an
interrupted or failed pull is safe to repeat.`,
	RunE: runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	srcs, err := cfg.Build(config.BuildOptions{}, args...)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return fmt.Errorf("no enabled sources in config")
	}

	store, err := checkpoint.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	coord := pull.New(store, pull.Options{Sink: recordPrinter(os.Stdout, jsonOutput)})
	results, err := coord.PullAll(ctx, srcs)

	for _, r := range results {
		if r.RunID == "" {
			continue
		}
		fmt.Fprintf(os.Stderr, "%-16s fetched: %d, new: %d, duplicates: %d, filtered: %d, skipped: %d, cursor: %s\n",
			r.SourceID, r.Fetched, len(r.Records), r.Duplicates, r.Filtered, r.Skipped, r.NewCursor)
	}
	return err
}

// recordPrinter returns a sink that prints each delivered record. Sources
// deliver concurrently, so writes are serialized.
func recordPrinter(w io.Writer, jsonOutput bool) pull.Sink {
	var mu sync.Mutex
	return pull.SinkFunc(func(_ context.Context, sourceID string, records []types.Record) error {
		mu.Lock()
		defer mu.Unlock()
		if jsonOutput {
			enc := json.NewEncoder(w)
			for _, r := range records {
				if err := enc.Encode(r.Flatten()); err != nil {
					return err
				}
			}
			return nil
		}
		for _, r := range records {
			fmt.Fprintf(w, "%-16s %-24s %-10s %s\n", sourceID, truncate(r.ID(), 24), formatDate(r.PublishedAt()), truncate(r.Heading(), 70))
		}
		return nil
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	pullCmd.Flags().Duration("timeout", 0, "abort the pull after this duration (0 for no limit)")
	pullCmd.Flags().Bool("json", false, "print new records as JSON lines")

	rootCmd.AddCommand(pullCmd)
}

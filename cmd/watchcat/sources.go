// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/watchcat/internal/checkpoint"
	"github.com/pdiddy/watchcat/internal/config"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their checkpoints",
	Long: `Sources lists every source in the config with its kind, cursor, and the
number of remembered and stored records.

With --plan, each source's filter is compiled and the part sent to the
upstream is shown next to the part evaluated after fetching.`,
	RunE: runSources,
}

func runSources(cmd *cobra.Command, args []string) error {
	showPlan, _ := cmd.Flags().GetBool("plan")

	store, err := checkpoint.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := store.Status(context.Background())
	if err != nil {
		return err
	}
	byID := make(map[string]checkpoint.SourceStatus, len(status))
	for _, st := range status {
		byID[st.SourceID] = st
	}

	fmt.Fprintf(os.Stdout, "%-16s  %-8s  %-8s  %-32s  %6s  %7s\n", "Source", "Kind", "State", "Cursor", "Seen", "Records")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 88))
	for _, sc := range cfg.Sources {
		st := byID[sc.ID]
		state := "enabled"
		if sc.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(os.Stdout, "%-16s  %-8s  %-8s  %-32s  %6d  %7d\n", sc.ID, sc.Kind, state, st.Cursor, st.Seen, st.Records)
	}

	if !showPlan {
		return nil
	}
	ids := make([]string, len(cfg.Sources))
	for i, sc := range cfg.Sources {
		ids[i] = sc.ID
	}
	srcs, err := cfg.Build(config.BuildOptions{}, ids...)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	for _, s := range srcs {
		plan := s.Adapter.Compile(s.Filter)
		fmt.Fprintf(os.Stdout, "%s\n", s.ID())
		fmt.Fprintf(os.Stdout, "  filter:   %s\n", exprString(plan.Expr))
		query := plan.Query
		if query == "" {
			query = "(none)"
		}
		fmt.Fprintf(os.Stdout, "  native:   %s\n", query)
		fmt.Fprintf(os.Stdout, "  residual: %s\n", exprString(plan.Residual))
	}
	return nil
}

func exprString(e fmt.Stringer) string {
	if e == nil {
		return "(all)"
	}
	return e.String()
}

func init() {
	sourcesCmd.Flags().Bool("plan", false, "show how each filter is split between upstream and local evaluation")

	rootCmd.AddCommand(sourcesCmd)
}

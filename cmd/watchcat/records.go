// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/watchcat/internal/checkpoint"
)

var recordsCmd = &cobra.Command{
	Use:   "records <source-id>",
	Short: "List or export the records stored for a source",
	Long: `Records reads the records a source has delivered from the checkpoint
database. The default output is a table; --format yaml or json exports the
full records, and --prompt prints each record as prompt-ready text.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecords,
}

func runRecords(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	prompt, _ := cmd.Flags().GetBool("prompt")
	sourceID := args[0]
	ctx := context.Background()

	store, err := checkpoint.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	switch format {
	case "yaml":
		return checkpoint.ExportYAML(ctx, store, sourceID, os.Stdout)
	case "json":
		return checkpoint.ExportJSON(ctx, store, sourceID, os.Stdout)
	case "table":
	default:
		return fmt.Errorf("unknown format %q (want table, yaml, or json)", format)
	}

	records, err := store.Records(ctx, sourceID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	if prompt {
		for i, r := range records {
			if i > 0 {
				fmt.Fprintln(os.Stdout, "\n---")
			}
			fmt.Fprintln(os.Stdout, r.Prompt())
		}
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-24s  %-10s  %-30s  %s\n", "ID", "Published", "By", "Heading")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range records {
		by := strings.Join(r.People(), ", ")
		fmt.Fprintf(os.Stdout, "%-24s  %-10s  %-30s  %s\n",
			truncate(r.ID(), 24), formatDate(r.PublishedAt()), truncate(by, 30), truncate(r.Heading(), 60))
	}
	fmt.Fprintf(os.Stdout, "\n%d records\n", len(records))
	return nil
}

func init() {
	recordsCmd.Flags().String("format", "table", "output format: table, yaml, or json")
	recordsCmd.Flags().Bool("prompt", false, "print records as prompt-ready text")

	rootCmd.AddCommand(recordsCmd)
}

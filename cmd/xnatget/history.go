// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/xnatget/internal/manifest"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently retrieved scans",
	Long: `History lists the most recent entries of the local retrieval manifest:
which scans were downloaded, from which server, where they landed, and
whether conversion succeeded.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to show")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := manifestConfig(false)
	if cfg.Disabled {
		return fmt.Errorf("manifest recording is disabled")
	}

	store, err := manifest.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.Recent(limit)
	if err != nil {
		return err
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %s %s (%s) -> %s",
			rec.RetrievedAt.Local().Format(time.DateTime),
			rec.Session, rec.ScanLabel, rec.Format, rec.Path)
		if rec.Status != "retrieved" {
			line += "  [" + rec.Status + "]"
		}
		fmt.Println(line)
	}
	return nil
}

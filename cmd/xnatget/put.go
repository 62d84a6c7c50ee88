// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/xnatget/internal/retrieve"
)

var putCmd = &cobra.Command{
	Use:   "put SESSION SCAN FILE...",
	Short: "Upload files as a scan resource",
	Long: `Put uploads local files to a scan of an existing session. The data
format is inferred from the file extensions (for example .bvec uploads
as FSL_BVECS) and must be the same for every file in one invocation.
With --overwrite an existing resource of that format is replaced.`,
	Args: cobra.MinimumNArgs(3),
	RunE: runPut,
}

func init() {
	putCmd.Flags().Bool("overwrite", false, "replace an existing resource of the same format")

	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	client, _, err := newClient(cmd)
	if err != nil {
		return err
	}
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	return retrieve.Put(cmd.Context(), client, args[0], args[1], args[2:], overwrite, os.Stdout)
}

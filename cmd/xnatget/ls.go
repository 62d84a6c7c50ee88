// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/xnatget/internal/identify"
	"github.com/pdiddy/xnatget/internal/resolve"
	"github.com/pdiddy/xnatget/pkg/types"
)

var lsCmd = &cobra.Command{
	Use:   "ls [identifiers...]",
	Short: "List projects, subjects, sessions, or scans",
	Long: `Ls resolves identifiers against the archive hierarchy and lists the
entities underneath them. Without identifiers it lists every project you
have access to. A bare project id lists its subjects, a subject label
({project}_{subject}) lists its sessions, and a full session label lists
its scans. Identifiers containing non-word characters are treated as
regular expressions anchored at the start; those need an explicit
--datatype.`,
	RunE: runLs,
}

func init() {
	lsCmd.Flags().String("datatype", "", "hierarchy level to list: project, subject, session, or scan")
	lsCmd.Flags().String("output", "text", "output format: text or yaml")

	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	datatype, _ := cmd.Flags().GetString("datatype")
	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "yaml" {
		return types.Usagef("unknown output format %q (expected text or yaml)", output)
	}

	var hint types.Level
	if datatype != "" {
		var err error
		if hint, err = types.ParseLevel(datatype); err != nil {
			return err
		}
	}

	set, err := identify.Classify(args)
	if err != nil {
		return err
	}
	level, err := identify.InferLevel(args, set, hint)
	if err != nil {
		return err
	}

	client, _, err := newClient(cmd)
	if err != nil {
		return err
	}

	labels, err := resolve.Entities(cmd.Context(), client, level, set)
	if err != nil {
		return err
	}

	if output == "yaml" {
		return yaml.NewEncoder(os.Stdout).Encode(labels)
	}
	for _, label := range labels {
		fmt.Println(label)
	}
	return nil
}

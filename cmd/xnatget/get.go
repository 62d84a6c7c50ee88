// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/xnatget/internal/convert"
	"github.com/pdiddy/xnatget/internal/identify"
	"github.com/pdiddy/xnatget/internal/manifest"
	"github.com/pdiddy/xnatget/internal/retrieve"
	"github.com/pdiddy/xnatget/pkg/types"
)

var getCmd = &cobra.Command{
	Use:   "get [identifiers...]",
	Short: "Download scans into a deterministic local layout",
	Long: `Get resolves identifiers to sessions, downloads the matched scans, and
places each one at {target-dir}/{session}/{scanID}-{scanType}{ext} (or
{target-dir}/{project}_{subject}/{suffix}/... with --subject-dirs).
Downloads are staged next to the target and only moved into place once
complete. With --convert-to the scan is converted via dcm2niix or
mrconvert; a failed conversion keeps the raw data and prints a warning
instead of aborting the run.`,
	RunE: runGet,
}

func init() {
	getCmd.Flags().String("target-dir", ".", "root directory for retrieved scans")
	getCmd.Flags().StringSlice("scan-type", nil, "scan type pattern(s) to retrieve (default: all scans)")
	getCmd.Flags().String("format", "", "source data format (default: inferred from the scan's resources)")
	getCmd.Flags().String("convert-to", "", "convert scans to this data format, e.g. nifti_gz")
	getCmd.Flags().String("converter", "", "force a converter tool: dcm2niix or mrconvert")
	getCmd.Flags().Bool("subject-dirs", false, "group sessions as {project}_{subject}/{suffix} directories")
	getCmd.Flags().Bool("strip-name", false, "renumber DICOM files to 0001.dcm, 0002.dcm, ...")
	getCmd.Flags().Bool("no-manifest", false, "skip recording this run in the local manifest")

	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return types.Usagef("provide one or more identifiers (project ids, subject labels, session labels, or patterns)")
	}

	set, err := identify.Classify(args)
	if err != nil {
		return err
	}

	opts := retrieve.Options{}
	opts.TargetDir, _ = cmd.Flags().GetString("target-dir")
	opts.ScanTypes, _ = cmd.Flags().GetStringSlice("scan-type")
	opts.Format, _ = cmd.Flags().GetString("format")
	opts.ConvertTo, _ = cmd.Flags().GetString("convert-to")
	opts.Converter, _ = cmd.Flags().GetString("converter")
	opts.SubjectDirs, _ = cmd.Flags().GetBool("subject-dirs")
	opts.StripName, _ = cmd.Flags().GetBool("strip-name")

	client, cfg, err := newClient(cmd)
	if err != nil {
		return err
	}

	var rec retrieve.Recorder
	noManifest, _ := cmd.Flags().GetBool("no-manifest")
	if mcfg := manifestConfig(noManifest); !mcfg.Disabled {
		store, err := manifest.Open(mcfg)
		if err != nil {
			return err
		}
		defer store.Close()
		run, err := store.BeginRun(cfg.BaseURL)
		if err != nil {
			return err
		}
		rec = run
	}

	// Conversion fallbacks are warnings, not failures: the raw data is on
	// disk either way.
	_, err = retrieve.Run(cmd.Context(), client, set, opts, convert.Discover(), rec, os.Stdout)
	return err
}

// manifestConfig resolves where the retrieval manifest lives. The config
// file can relocate or disable it.
func manifestConfig(noManifest bool) types.ManifestConfig {
	cfg := types.ManifestConfig{
		Dir:      viper.GetString("manifest.dir"),
		Disabled: noManifest || viper.GetBool("manifest.disabled"),
	}
	if cfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			cfg.Disabled = true
			return cfg
		}
		cfg.Dir = filepath.Join(home, ".local", "share", "xnatget")
	}
	return cfg
}

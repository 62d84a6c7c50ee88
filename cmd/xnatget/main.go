// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the xnatget CLI: list, retrieve,
// upload, and annotate neuroimaging data held in a remote XNAT archive.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/xnatget/internal/archive"
	"github.com/pdiddy/xnatget/internal/credentials"
	"github.com/pdiddy/xnatget/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	defaultTimeout   = 5 * time.Minute
	defaultUserAgent = "xnatget/0.1"
)

// rootCmd is the base command for the xnatget CLI.
var rootCmd = &cobra.Command{
	Use:   "xnatget",
	Short: "Retrieve neuroimaging data from an XNAT archive",
	Long: `xnatget talks to an XNAT neuroimaging archive. It resolves project,
subject, session, and scan identifiers (literal labels or regular
expressions), lists the hierarchy, downloads scan data with optional
format conversion, and uploads supplementary files.

Credentials come from the --user flag, the XNATGET_USER and
XNATGET_PASSWORD environment variables, or a per-host section in
~/.config/xnatget/credentials.ini.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./xnatget.yaml or ~/.config/xnatget/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "archive base URL, e.g. https://xnat.example.edu")
	rootCmd.PersistentFlags().String("user", "", "archive user (overrides environment and credentials file)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "HTTP request timeout (default 5m)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("xnatget")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "xnatget"))
		}
	}

	viper.SetEnvPrefix("XNATGET")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// serverConfig assembles the server settings from flags with config-file
// fallbacks.
func serverConfig(cmd *cobra.Command) (types.ServerConfig, error) {
	baseURL, _ := cmd.Flags().GetString("server")
	if baseURL == "" {
		baseURL = viper.GetString("server.base_url")
	}
	if baseURL == "" {
		return types.ServerConfig{}, errors.New("no archive server configured (pass --server or set server.base_url in the config file)")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("server.timeout")
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = viper.GetString("server.user")
	}

	return types.ServerConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		BaseURL: baseURL,
		User:    user,
	}, nil
}

// newClient resolves credentials for the configured server and returns a
// ready archive client.
func newClient(cmd *cobra.Command) (*archive.REST, types.ServerConfig, error) {
	cfg, err := serverConfig(cmd)
	if err != nil {
		return nil, types.ServerConfig{}, err
	}
	login, err := credentials.Resolve(cfg.BaseURL, cfg.User, credentials.DefaultPath())
	if err != nil {
		return nil, types.ServerConfig{}, err
	}
	return archive.NewREST(cfg, login.User, login.Password), cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// ccr copies references to Git commits, as "abc1234 (Subject, 2024-01-02)"
// with a linked HTML twin, from the web pages of Git hostings.
package main

import (
	"os"

	"ccr/config"
	"ccr/fetcher"
	"ccr/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ccr",
	Short: "Copy commit references from Git hosting pages",
	Long: `ccr recognizes the commit page of a Git hosting (GitHub, GitLab,
Bitbucket, GitWeb, cgit, Gitiles, Gitea, Gogs, SourceHut, Phorge) and
copies a reference to the commit in plain text and HTML:

  1f0fc1d (Fix the frobnicator, 2024-01-03)`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/ccr/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level")

	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func setup(*cobra.Command, []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger, err = logging.New(cfg.Log, debug)
	if err != nil {
		return err
	}

	fetcher.Configure(fetcher.Options{
		UserAgent:      cfg.Fetcher.UserAgent,
		TimeoutSeconds: cfg.Fetcher.TimeoutSeconds,
		ChromePath:     cfg.Fetcher.ChromePath,
		ReadySelector:  newRegistry().ReadySelector(),
	})
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}


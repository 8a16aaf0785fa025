package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatsync/config"
	"chatsync/database"
)

var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Realtime conversation sync engine",
	Long: `chatsync keeps direct chats, group chats and unread counters in sync
with a chat server over its push channels and REST history API, and exposes
them through a local control API.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func openStore(cfg *config.Config) (*database.Store, error) {
	return database.Open(cfg.Store.Path, cfg.Store.Secret)
}

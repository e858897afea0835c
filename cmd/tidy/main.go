// Command tidy reviews and executes the cleanup plans created by
// tidy-daemon, teaches the classifier from rejections and keeps the
// Obsidian vault organized.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/knight-systems/productivity-service/tidy"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "tidy",
	Short: "Review and execute filesystem cleanup plans",
	Long: `tidy works through the plans created by tidy-daemon: list what is
pending, approve or reject, then execute. Rejecting a plan with a
destination teaches the classifier for next time.

Nothing is moved until a plan is approved, and deletions go to the
trash folder, so every action can be undone.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.tidy.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.AddCommand(initCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("TIDY_CONFIG"); env != "" {
		return env
	}
	return tidy.DefaultConfigPath()
}

func loadConfig() (tidy.Config, error) {
	return tidy.LoadConfig(resolveConfigPath())
}

func openStore() (tidy.Config, *tidy.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, err
	}
	store, err := tidy.NewStore(cfg.DBPath)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, store, nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config and create the plan database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath()
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("config already exists at %s\n", path)
		} else {
			if err := tidy.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
		}

		cfg, err := tidy.LoadConfig(path)
		if err != nil {
			return err
		}
		store, err := tidy.NewStore(cfg.DBPath)
		if err != nil {
			return err
		}
		store.Close()
		for _, dir := range []string{cfg.OrganizedDir, cfg.TrashDir, cfg.ArchiveDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		fmt.Printf("plan database at %s\n", cfg.DBPath)
		fmt.Printf("watching %d folders once tidy-daemon runs\n", len(cfg.WatchDirs))
		return nil
	},
}

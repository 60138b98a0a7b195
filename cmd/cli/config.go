package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sridip-de/yt-dlp-gui/internal/app"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

var forceConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Long: `Write the default settings as YAML. The path defaults to --config, or
$HOME/.ytdlw/config.yaml, one of the places the config is looked up.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath(args)
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !forceConfig {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceConfig, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

func configPath(args []string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case configFile != "":
		return configFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, ".ytdlw", "config.yaml"), nil
}

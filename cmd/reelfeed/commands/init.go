package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reelfeed/reelfeed/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file populated with defaults to the path given
by --config, or the default location.

Examples:
  reelfeed init
  reelfeed init --config /etc/reelfeed/config.yaml
  reelfeed init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	cfg := config.GetDefaultConfig()
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

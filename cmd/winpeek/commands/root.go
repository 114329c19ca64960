package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/WinPeek/internal/config"
	"github.com/bryanchriswhite/WinPeek/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "winpeek",
		Short: "WinPeek - live window previews for Wayland desktops",
		Long: `WinPeek talks to the Wayland compositor directly to list toplevel
windows, capture live thumbnails of them and control them.

Features:
  • Track windows and the active workspace in real-time
  • Capture selected windows through ext-image-copy-capture
  • Write per-window PNG thumbnails
  • Activate, minimize and close windows
  • Launch applications with an activation token`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}

	configMgr *config.Manager
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/winpeek/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.SetEnvPrefix("winpeek")
	viper.AutomaticEnv()
}

// setup loads the config and initializes logging; flags and WINPEEK_*
// environment variables override the file
func setup(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	configMgr = mgr
	cfg := mgr.Get()

	level := cfg.LogLevel
	if v := viper.GetString("log_level"); v != "" {
		level = v
	}
	file := cfg.LogFile
	if v := viper.GetString("log_file"); v != "" {
		file = v
	}
	return logger.InitWithFile(level, cfg.LogPretty, file)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

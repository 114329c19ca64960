package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/WinPeek/internal/config"
	"github.com/bryanchriswhite/WinPeek/internal/window"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage WinPeek configuration",
	Long:  `View and manage WinPeek configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current WinPeek configuration.`,
	Example: `  # Show configuration as YAML (default)
  winpeek config show

  # Show configuration as JSON
  winpeek config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long:  "Set a specific configuration value.\n\nKeys: " + strings.Join(config.Keys(), ", "),
	Example: `  # Negotiate shared memory buffers before dmabuf ones
  winpeek config set capture.prefer_dmabuf false

  # Set log level
  winpeek config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a configuration value",
	Long:  `Get a specific configuration value.`,
	Example: `  # Get thumbnail width
  winpeek config get thumbnail.width`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Manage capture patterns",
	Long: `Add or remove the window patterns 'watch' captures by default.

Patterns are matched against both app id and window title.`,
}

var patternAddCmd = &cobra.Command{
	Use:   "add PATTERN",
	Short: "Add a capture pattern",
	Example: `  # Capture all terminal windows
  winpeek config pattern add ".*[Tt]erminal.*"

  # Capture Firefox specifically
  winpeek config pattern add "^firefox$"`,
	Args: cobra.ExactArgs(1),
	RunE: runPatternAdd,
}

var patternRemoveCmd = &cobra.Command{
	Use:   "remove PATTERN",
	Short: "Remove a capture pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternRemove,
}

var patternListCmd = &cobra.Command{
	Use:   "list",
	Short: "List capture patterns",
	RunE:  runPatternList,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(patternCmd)
	patternCmd.AddCommand(patternAddCmd)
	patternCmd.AddCommand(patternRemoveCmd)
	patternCmd.AddCommand(patternListCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := configMgr.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := configMgr.Set(key, value); err != nil {
		return err
	}
	fmt.Printf("✅ Configuration updated: %s = %s\n", key, value)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	v, err := configMgr.Value(args[0])
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(configMgr.GetConfigPath())
	return nil
}

func runPatternAdd(cmd *cobra.Command, args []string) error {
	pattern := args[0]
	if _, err := window.NewMatcher(pattern); err != nil {
		return err
	}
	if err := configMgr.AddCapturePattern(pattern); err != nil {
		return fmt.Errorf("failed to add pattern: %w", err)
	}
	fmt.Printf("✅ Added pattern: %s\n", pattern)
	return nil
}

func runPatternRemove(cmd *cobra.Command, args []string) error {
	pattern := args[0]
	if err := configMgr.RemoveCapturePattern(pattern); err != nil {
		return fmt.Errorf("failed to remove pattern: %w", err)
	}
	fmt.Printf("✅ Removed pattern: %s\n", pattern)
	return nil
}

func runPatternList(cmd *cobra.Command, args []string) error {
	cfg := configMgr.Get()

	fmt.Println("Capture Patterns:")
	if len(cfg.CapturePatterns) == 0 {
		fmt.Println("  (none)")
		return nil
	}
	for i, pattern := range cfg.CapturePatterns {
		fmt.Printf("  %d. %s\n", i+1, pattern)
	}
	return nil
}

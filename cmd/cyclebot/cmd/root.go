package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"cyclebot/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "cyclebot",
	Short: "Single-position spot trading bot: buy, wait for fill, sell at target",
	Long: `cyclebot runs limit-order trade cycles on one pair:
buy below market, wait for the fill, sell at the profit target, repeat.

Commands:
  serve    HTTP API, WebSocket stream and metrics around one engine
  run      headless run in the terminal until the cycle ends or Ctrl+C
  stats    print ledger statistics
  version  print build information`,
	SilenceUsage: true,
}

// Execute запускает корневую команду
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(newServeCmd(), newRunCmd(), newStatsCmd(), newVersionCmd())
}

// loadConfig - файл из флага, иначе из CONFIG_FILE
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	return config.LoadFile(path)
}

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"lotusgift/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "lotusgift",
	Short: "A CLI for cross-chain trades through the Zircuit trading engine",
	Long: `lotusgift quotes and executes cross-chain token trades through the Zircuit
trading engine. Gasless trades are signed by your wallet (EIP-712) and
broadcast by a separate relayer account that pays the gas.

Examples:
  lotusgift quote --amount 1
  lotusgift trade --amount 1 --src-chain base --dest-chain zircuit
  lotusgift trade --amount 1 --mode direct --yes
  lotusgift status 0x5f...c3 --watch
  lotusgift history
  lotusgift serve --addr :3001`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		config.Set(cfg)

		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(cfg.LogLevel, verbose)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $HOME/.lotusgift.yaml)")
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	return config.Load()
}

func setupLogging(level string, verbose bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

func printJSON(v interface{}) {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

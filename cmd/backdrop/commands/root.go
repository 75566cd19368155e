package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bryanchriswhite/Backdrop/internal/config"
	"github.com/bryanchriswhite/Backdrop/internal/logger"
	"github.com/bryanchriswhite/Backdrop/internal/report"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "backdrop",
		Short: "Backdrop - wallpapers behind application windows",
		Long: `Backdrop draws a picture, video or web page behind the windows of a
chosen application, with adjustable opacity.

Wallpapers are edited live: every change can be tried on the running
renderer, saved as the new configuration, or discarded, which puts the
renderer back exactly as it was.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/backdrop/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", true, "human-readable log output")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("pretty"))

	// BACKDROP_SERVER_PORT, BACKDROP_LOG_LEVEL, ...
	viper.SetEnvPrefix("backdrop")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// printError shows reported errors with their detail, as the editor does
func printError(w io.Writer, err error) {
	var re *report.Error
	if errors.As(err, &re) {
		fmt.Fprintln(w, report.Format(err))
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig opens the config file and sets up logging from the flag,
// environment or file setting, in that order
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := viper.GetString("log_level")
	if level == "" {
		level = configMgr.GetLogLevel()
	}
	logger.Init(level, viper.GetBool("log_pretty"))
	return configMgr, nil
}

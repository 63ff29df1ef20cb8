package cmd

import (
	"strings"

	"github.com/bonzai-ai/grove/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "grove",
	Short: "Batch orchestrator for an external generative tool",
	Long: `Grove runs large batches of short-lived text-generation tasks against an
external command-line tool, organized into staged executions with a
concurrency cap, per-stage completion gates, and markdown reports. A
workflow mode machine and a project assessment heuristic decide what kind
of work each run should do.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/grove/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/grove")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GROVE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., GROVE_ORCHESTRATOR_MAX_CONCURRENT for orchestrator.max_concurrent
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

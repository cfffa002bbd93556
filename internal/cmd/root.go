// Package cmd wires the CLI: the root command, the default run command
// and the session management subcommands.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ralph-agent/ralph/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "ralph",
	Short: "Autonomous multi-step coding workflows",
	Long: `Ralph drives an agent CLI through an autonomous workflow: it
decomposes a prompt into tasks, implements them with worker sub-agents
in dependency order, and loops through code review until the work is
accepted. Every run is persisted as a resumable session.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/ralph/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RALPH")
	// RALPH_WORKFLOW_MAX_ITERATIONS overrides workflow.max_iterations.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}

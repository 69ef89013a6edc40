package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/callgate/config"
	"github.com/yoockh/callgate/internal/logger"
)

var (
	settings *config.Settings
	log      *logrus.Logger
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "callctl",
	Short: "Operator tooling for the call gateway",
	Long: `callctl prepares the databases, manages customer records and
replays recorded audio through the segmenter.

Settings are read from the environment (and .env), like the server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		settings = config.Load()
		level := settings.App.LogLevel
		if verbose {
			level = "debug"
		}
		log = logger.New(level)
		log.SetOutput(cmd.ErrOrStderr())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(customerCmd)
	rootCmd.AddCommand(segmentCmd)
}

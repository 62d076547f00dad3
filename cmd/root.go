package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "ukigen",
		// flags are only parsed once a command runs, so the level has to be
		// set here rather than at construction time
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = viper.BindPFlags(cmd.Root().PersistentFlags())
			if viper.GetBool("debug") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
	}
	cmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	cmd.CompletionOptions = cobra.CompletionOptions{
		DisableDefaultCmd: true,
	}
	return cmd
}

var rootCmd = NewRootCmd()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

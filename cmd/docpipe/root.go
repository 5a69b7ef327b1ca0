package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docpipe/internal/config"
	"docpipe/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		outputName string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "docpipe",
		Short:         "Content-addressed blob store with cached text analysis and word clouds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := format.ForName(outputName)
			if err != nil {
				return err
			}
			outputFormatter = formatter

			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&outputName, "output", "text", "output format: text, json or yaml")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newBlobdCmd(cfg),
		newAnalyzerdCmd(cfg),
		newUploadCmd(cfg),
		newDownloadCmd(cfg),
		newMetaCmd(cfg),
		newAnalyzeCmd(cfg),
		newResultCmd(cfg),
		newCloudCmd(cfg),
		newConfigCmd(cfg),
	)

	return cmd
}

package main

import (
	"io"

	"github.com/spf13/cobra"

	"docpipe/internal/api"
	"docpipe/internal/config"
)

func newAnalyzeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <source-id>",
		Short: "Analyze a stored file, reusing any cached analysis of identical content",
		Args:  requireID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalysisClient(cfg, func(client *api.Client) error {
				rec, err := client.Analyze(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeAnalysis(rec)
			})
		},
	}
}

func newResultCmd(cfg *config.Config) *cobra.Command {
	var (
		out    string
		source bool
	)

	cmd := &cobra.Command{
		Use:   "result <analysis-id>",
		Short: "Fetch the analysis text file",
		Long: "Fetch the analysis text file by analysis id or result blob id. With --source the id is a\n" +
			"source blob id and the source is analyzed first when no cached analysis exists.",
		Args: requireID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAnalysisClient(cfg, func(client *api.Client) error {
				return saveDownload(out, func(w io.Writer) (api.Download, error) {
					if source {
						return client.AnalyzeText(cmd.Context(), args[0], w)
					}
					return client.AnalysisResult(cmd.Context(), args[0], w)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&source, "source", false, "treat the id as a source blob id")
	return cmd
}

func newCloudCmd(cfg *config.Config) *cobra.Command {
	var (
		out    string
		source bool
	)

	cmd := &cobra.Command{
		Use:   "cloud <analysis-id>",
		Short: "Fetch the word-cloud image",
		Long: "Fetch the word-cloud PNG by analysis id or cloud blob id. With --source the id is a source\n" +
			"blob id; the source must already be analyzed.",
		Args: requireID,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" || out == "-" {
				return errMissingOut("word cloud")
			}
			return withAnalysisClient(cfg, func(client *api.Client) error {
				return saveDownload(out, func(w io.Writer) (api.Download, error) {
					if source {
						return client.SourceCloud(cmd.Context(), args[0], w)
					}
					return client.AnalysisCloud(cmd.Context(), args[0], w)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the image to this file")
	cmd.Flags().BoolVar(&source, "source", false, "treat the id as a source blob id")
	return cmd
}

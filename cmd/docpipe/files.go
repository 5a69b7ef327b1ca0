package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docpipe/internal/api"
	"docpipe/internal/config"
)

func newUploadCmd(cfg *config.Config) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Store a file in the blob store",
		Args:  requireExactlyArgs(1, "file path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			logicalName := strings.TrimSpace(name)
			if logicalName == "" {
				logicalName = filepath.Base(path)
			}

			return withBlobClient(cfg, func(client *api.Client) error {
				resp, err := client.Upload(cmd.Context(), logicalName, f)
				if err != nil {
					return err
				}
				return writeUpload(resp)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "logical name to store (defaults to the file's base name)")
	return cmd
}

func newDownloadCmd(cfg *config.Config) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Fetch a stored file",
		Args:  requireID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlobClient(cfg, func(client *api.Client) error {
				return saveDownload(out, func(w io.Writer) (api.Download, error) {
					return client.Download(cmd.Context(), args[0], w)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of stdout")
	return cmd
}

func newMetaCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "meta <id>",
		Short: "Show stored file metadata",
		Args:  requireID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBlobClient(cfg, func(client *api.Client) error {
				meta, err := client.GetMetadata(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeBlobMetadata(meta)
			})
		},
	}
}

type fetchFunc func(w io.Writer) (api.Download, error)

// saveDownload streams fetch into path, or stdout when path is empty or
// "-". A failed fetch removes the partial file.
func saveDownload(path string, fetch fetchFunc) error {
	if path == "" || path == "-" {
		_, err := fetch(stdout)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	dl, err := fetch(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return writeSaved(path, dl)
}

func errMissingOut(what string) error {
	return fmt.Errorf("%s is binary; pass --out <file>", what)
}

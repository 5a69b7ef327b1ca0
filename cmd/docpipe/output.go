package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"docpipe/internal/api"
	"docpipe/internal/format"
)

var (
	outputFormatter format.Formatter
	stdout          io.Writer = os.Stdout
)

// writeOutput renders payload with the selected structured formatter, or
// falls back to the command's text rendering.
func writeOutput(payload any, text func() error) error {
	if outputFormatter != nil {
		return outputFormatter.Write(stdout, payload)
	}
	return text()
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeLines(lines []string) error {
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeUpload(resp api.UploadResponse) error {
	return writeOutput(resp, func() error {
		return writeLines([]string{
			fmt.Sprintf("id: %s", resp.ID),
			fmt.Sprintf("content_hash: %s", resp.ContentHash),
		})
	})
}

func writeBlobMetadata(meta api.BlobMetadataResponse) error {
	return writeOutput(meta, func() error {
		lines := []string{
			fmt.Sprintf("id: %s", meta.ID),
			fmt.Sprintf("logical_name: %s", meta.LogicalName),
			fmt.Sprintf("content_hash: %s", meta.ContentHash),
			fmt.Sprintf("size_bytes: %d", meta.SizeBytes),
		}
		if meta.MediaType != "" {
			lines = append(lines, fmt.Sprintf("media_type: %s", meta.MediaType))
		}
		lines = append(lines, fmt.Sprintf("created_at: %s", formatTime(meta.CreatedAt)))
		return writeLines(lines)
	})
}

func writeAnalysis(rec api.AnalysisResponse) error {
	return writeOutput(rec, func() error {
		lines := []string{
			fmt.Sprintf("id: %s", rec.ID),
			fmt.Sprintf("original_content_hash: %s", rec.OriginalContentHash),
			fmt.Sprintf("result_blob_id: %s", rec.ResultBlobID),
			fmt.Sprintf("cloud_blob_id: %s", rec.CloudBlobID),
			fmt.Sprintf("created_at: %s", formatTime(rec.CreatedAt)),
			"",
			strings.TrimRight(rec.AnalysisText, "\n"),
		}
		return writeLines(lines)
	})
}

// savedFile describes a download written to disk.
type savedFile struct {
	Path        string `json:"path" yaml:"path"`
	Filename    string `json:"filename,omitempty" yaml:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes" yaml:"size_bytes"`
}

func writeSaved(path string, dl api.Download) error {
	saved := savedFile{Path: path, Filename: dl.Filename, ContentType: dl.ContentType, SizeBytes: dl.SizeBytes}
	return writeOutput(saved, func() error {
		return writePlain("saved %s (%d bytes, %s)\n", saved.Path, saved.SizeBytes, saved.ContentType)
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

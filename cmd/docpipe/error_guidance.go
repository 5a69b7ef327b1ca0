package main

import (
	"context"
	"errors"
	"net"

	"docpipe/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "source_not_found":
			lines = append(lines, "hint: the source id is unknown to the blob daemon; upload it with: docpipe upload <path>")
		case "source_content_unavailable":
			lines = append(lines, "hint: the blob daemon could not serve the source bytes; check analysis.source_url and blobd logs.")
		case "render_failed":
			lines = append(lines, "hint: the word-cloud renderer rejected the request; check renderer.url.")
		case "upstream_timeout":
			lines = append(lines, "hint: an upstream call timed out; raise renderer.timeout or analysis.source_timeout.")
		case "storage_corruption":
			lines = append(lines, "hint: the index references a missing file; check the daemon's storage_dir.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify DOCPIPE_BLOBS_URL and DOCPIPE_ANALYSIS_URL point to docpipe daemons.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check daemon health or increase DOCPIPE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure the daemons are running at DOCPIPE_BLOBS_URL and DOCPIPE_ANALYSIS_URL.",
			"hint: start them manually with: docpipe blobd and docpipe analyzerd",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

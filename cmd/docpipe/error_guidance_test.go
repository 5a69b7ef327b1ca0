package main

import (
	"context"
	"fmt"
	"net"
	"testing"

	"docpipe/internal/api"
)

func TestFormatCLIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "network",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")},
			want: "hint: start them manually with: docpipe blobd and docpipe analyzerd",
		},
		{
			name: "unknown service",
			err:  &api.APIError{Status: 404, Message: "api error: 404 Not Found"},
			want: "hint: verify DOCPIPE_BLOBS_URL and DOCPIPE_ANALYSIS_URL point to docpipe daemons.",
		},
		{
			name: "unknown source",
			err:  &api.APIError{Status: 404, Code: "source_not_found", Message: "Not Found"},
			want: "hint: the source id is unknown to the blob daemon; upload it with: docpipe upload <path>",
		},
		{
			name: "renderer",
			err:  &api.APIError{Status: 502, Code: "render_failed", Message: "Bad Gateway"},
			want: "hint: the word-cloud renderer rejected the request; check renderer.url.",
		},
		{
			name: "internal",
			err:  &api.APIError{Status: 500, Code: "internal", Message: "Internal Server Error"},
			want: "hint: server returned an internal error; check server logs for details.",
		},
		{
			name: "timeout",
			err:  fmt.Errorf("analyze: %w", context.DeadlineExceeded),
			want: "hint: request timed out; check daemon health or increase DOCPIPE_HTTP_TIMEOUT.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := formatCLIError(tt.err)
			if len(lines) == 0 || lines[0] != tt.err.Error() {
				t.Fatalf("expected error text first, got %v", lines)
			}
			if !containsLine(lines, tt.want) {
				t.Fatalf("expected %q in %v", tt.want, lines)
			}
		})
	}
}

func TestFormatCLIErrorPlain(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("file path is required"))
	if len(lines) != 1 {
		t.Fatalf("expected no hints for plain errors, got %v", lines)
	}
	if formatCLIError(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}

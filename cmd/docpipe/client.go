package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"docpipe/internal/api"
	"docpipe/internal/config"
)

const (
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
)

// daemonSpec names a daemon subcommand and the env that pins it to the
// caller's configuration.
type daemonSpec struct {
	command string
	url     string
	env     []string
}

func blobDaemon(cfg *config.Config) daemonSpec {
	return daemonSpec{
		command: "blobd",
		url:     cfg.Blobs.APIURL,
		env: []string{
			"DOCPIPE_BLOBS_URL=" + cfg.Blobs.APIURL,
			"DOCPIPE_BLOBS_DB=" + cfg.Blobs.DBPath,
		},
	}
}

func analysisDaemon(cfg *config.Config) daemonSpec {
	return daemonSpec{
		command: "analyzerd",
		url:     cfg.Analysis.APIURL,
		env: []string{
			"DOCPIPE_ANALYSIS_URL=" + cfg.Analysis.APIURL,
			"DOCPIPE_ANALYSIS_DB=" + cfg.Analysis.DBPath,
			"DOCPIPE_SOURCE_URL=" + cfg.Analysis.SourceURL,
		},
	}
}

func withBlobClient(cfg *config.Config, fn func(*api.Client) error) error {
	cleanup, err := ensureServer(blobDaemon(cfg))
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(api.NewClient(cfg.Blobs.APIURL))
}

// withAnalysisClient also ensures the blob daemon, since the analysis
// daemon reads sources through it.
func withAnalysisClient(cfg *config.Config, fn func(*api.Client) error) error {
	blobCleanup, err := ensureServer(blobDaemon(cfg))
	if err != nil {
		return err
	}
	defer blobCleanup()

	cleanup, err := ensureServer(analysisDaemon(cfg))
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(api.NewClient(cfg.Analysis.APIURL))
}

func ensureServer(spec daemonSpec) (func(), error) {
	client := api.NewClient(spec.url)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := client.Ping(ctx); err == nil {
		return func() {}, nil
	}

	cmd, err := startServerProcess(spec)
	if err != nil {
		return nil, err
	}

	if err := waitForServer(client, serverStartTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	cleanup := func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}

	return cleanup, nil
}

func startServerProcess(spec daemonSpec) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exe, spec.command)
	cmd.Env = append(os.Environ(), spec.env...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func waitForServer(client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		err := client.Ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if !isConnRefused(err) {
			// Port in use by something that is not a docpipe daemon.
			return err
		}
		time.Sleep(serverPollInterval)
	}
	return errors.New("server did not start in time")
}

func isConnRefused(err error) bool {
	var netErr *net.OpError
	return errors.As(err, &netErr)
}

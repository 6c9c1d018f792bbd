package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
)

// DockerContainerDriver stops and starts the generation-backend container
// via the docker CLI and polls its HTTP health endpoint, adapted from the
// teacher's internal/process/docker.go DockerExecutor: container-level
// stop/start is used instead of in-process sleep/wake because the
// generation runtime's pluggable allocator may not fully release weights
// on the target hardware (spec §4.5 design rationale).
type DockerContainerDriver struct {
	StopTimeoutSeconds int
}

// NewDockerContainerDriver constructs a DockerContainerDriver with the
// teacher's 5s graceful-stop timeout.
func NewDockerContainerDriver() *DockerContainerDriver {
	return &DockerContainerDriver{StopTimeoutSeconds: 5}
}

// Stop runs `docker stop -t <timeout> <container>`.
func (d *DockerContainerDriver) Stop(ctx context.Context, container string) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH — install Docker to use container-driven handoff")
	}
	timeout := d.StopTimeoutSeconds
	if timeout <= 0 {
		timeout = 5
	}
	cmd := exec.CommandContext(ctx, "docker", "stop", "-t", fmt.Sprint(timeout), container)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Info().Str("container", container).Msg("orchestrator: stopping generation backend container")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker stop %s: %s: %w", container, stderr.String(), err)
	}
	return nil
}

// Start runs `docker start <container>`.
func (d *DockerContainerDriver) Start(ctx context.Context, container string) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker not found in PATH — install Docker to use container-driven handoff")
	}
	cmd := exec.CommandContext(ctx, "docker", "start", container)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Info().Str("container", container).Msg("orchestrator: starting generation backend container")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker start %s: %s: %w", container, stderr.String(), err)
	}
	return nil
}

// WaitHealthy polls endpoint + "/health" every 3s until it returns 200 or
// timeout elapses (spec §4.5: "poll health (<=120s, 3s interval)").
func (d *DockerContainerDriver) WaitHealthy(ctx context.Context, endpoint string, timeout time.Duration) error {
	client := &http.Client{Timeout: 5 * time.Second}
	deadline := time.Now().Add(timeout)
	healthURL := endpoint + "/health"

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("generation backend health check timed out after %s", timeout)
}

package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/models"
	"github.com/imyashkale/previewserver/internal/stream"
)

// ErrContainerNotFound is returned when a log stream targets a container
// that does not exist
var ErrContainerNotFound = errors.New("container not found")

// logBufferSize bounds how many lines may sit between the Docker daemon and
// a slow log consumer
const logBufferSize = 100

// DockerService inspects and streams logs from containers on the local
// Docker daemon
type DockerService struct {
	cli *client.Client
}

// NewDockerService connects to the Docker daemon. host overrides the
// environment-derived endpoint when non-empty.
func NewDockerService(host string) (*DockerService, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerService{cli: cli}, nil
}

// Close releases the underlying client
func (s *DockerService) Close() error {
	return s.cli.Close()
}

// ListContainers returns containers in every state, optionally filtered by
// a name substring
func (s *DockerService) ListContainers(ctx context.Context, nameFilter string) ([]models.ContainerInfo, error) {
	opts := container.ListOptions{All: true}
	if nameFilter != "" {
		opts.Filters = filters.NewArgs(filters.Arg("name", nameFilter))
	}

	containers, err := s.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	infos := make([]models.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		infos = append(infos, models.ContainerInfo{
			Id:     c.ID,
			Names:  c.Names,
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		})
	}
	return infos, nil
}

// StreamLogs opens a log stream for the named container and bridges it to
// the returned Bridge. The producer goroutine stops as soon as the bridge
// is closed or ctx is cancelled; closing the bridge is the caller's way to
// hang up.
func (s *DockerService) StreamLogs(ctx context.Context, containerName, tail string, follow bool) (*stream.Bridge, error) {
	if _, err := s.cli.ContainerInspect(ctx, containerName); err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, containerName)
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", containerName, err)
	}

	logs, err := s.cli.ContainerLogs(ctx, containerName, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       normalizeTail(tail),
		Timestamps: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open logs for container %s: %w", containerName, err)
	}

	bridge := stream.NewBridge(logBufferSize)
	go func() {
		defer logs.Close()
		stream.Pump(ctx, newDemuxReader(logs), bridge)
		logger.WithField("container", containerName).Debug("Log stream closed")
	}()
	return bridge, nil
}

// normalizeTail maps the caller's tail parameter onto Docker's: zero
// requests the full history, empty falls back to a recent window
func normalizeTail(tail string) string {
	switch tail {
	case "":
		return "100"
	case "0":
		return "all"
	}
	return tail
}

// demuxReader turns the multiplexed stdout/stderr log payload into plain
// text lines
type demuxReader struct {
	scanner *bufio.Scanner
	pipe    *io.PipeReader
}

func newDemuxReader(logs io.Reader) *demuxReader {
	pr, pw := io.Pipe()
	go func() {
		// stdcopy strips the 8-byte frame headers Docker prefixes each
		// chunk with
		_, err := stdcopy.StdCopy(pw, pw, logs)
		pw.CloseWithError(err)
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 512*1024)
	return &demuxReader{scanner: scanner, pipe: pr}
}

func (r *demuxReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

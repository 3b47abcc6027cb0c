package docker

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// LogLineCallback receives one log line without its trailing newline.
type LogLineCallback func(string)

// FollowLogs streams a container's stdout and stderr until the context
// is cancelled or the container stops. Both streams are demultiplexed
// into the same callback.
func (c *Client) FollowLogs(ctx context.Context, containerID string, onLine LogLineCallback) error {
	if strings.TrimSpace(containerID) == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	reader, err := c.inner.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("container logs: %w", err)
	}
	defer reader.Close()

	out := &lineWriter{onLine: onLine}
	if _, err := stdcopy.StdCopy(out, out, reader); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("copy container logs: %w", err)
	}
	out.flush()
	return nil
}

// lineWriter splits a byte stream into lines for the callback. Partial
// lines are buffered until the next write or flush.
type lineWriter struct {
	onLine LogLineCallback
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// put the partial line back
			w.buf.WriteString(line)
			break
		}
		if trimmed := strings.TrimRight(line, "\r\n"); trimmed != "" {
			w.onLine(trimmed)
		}
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if rest := strings.TrimRight(w.buf.String(), "\r\n"); rest != "" {
		w.onLine(rest)
	}
	w.buf.Reset()
}

package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// appPort is the fixed container port every deployed app must listen on.
const appPort nat.Port = "8080/tcp"

// ContainerInfo captures runtime details about a started container.
type ContainerInfo struct {
	ID       string
	HostPort int
}

// RunContainer creates and starts a container for a deployed app. The
// app's port 8080 is published on a daemon-assigned host port, and the
// restart policy keeps the container alive across daemon restarts until
// an explicit stop.
func (c *Client) RunContainer(ctx context.Context, name, image string, env []string, labels map[string]string) (ContainerInfo, error) {
	if strings.TrimSpace(name) == "" {
		return ContainerInfo{}, fmt.Errorf("container name cannot be empty")
	}
	if strings.TrimSpace(image) == "" {
		return ContainerInfo{}, fmt.Errorf("image name cannot be empty")
	}

	config := &container.Config{
		Image:        image,
		Env:          env,
		Labels:       labels,
		ExposedPorts: nat.PortSet{appPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		// empty binding lets the daemon pick a free host port
		PortBindings: nat.PortMap{appPort: []nat.PortBinding{{}}},
		RestartPolicy: container.RestartPolicy{
			Name: "unless-stopped",
		},
	}

	r, err := c.inner.ContainerCreate(ctx, config, hostCfg, nil, nil, name)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("container create: %w", err)
	}

	if err := c.inner.ContainerStart(ctx, r.ID, container.StartOptions{}); err != nil {
		return ContainerInfo{}, fmt.Errorf("container start: %w", err)
	}

	hostPort, err := c.waitHostPort(ctx, r.ID)
	if err != nil {
		return ContainerInfo{}, err
	}
	return ContainerInfo{ID: r.ID, HostPort: hostPort}, nil
}

// waitHostPort polls inspect until the daemon reports the assigned host
// port. The assignment is not always visible immediately after start.
func (c *Client) waitHostPort(ctx context.Context, containerID string) (int, error) {
	var inspect types.ContainerJSON
	var err error
	for attempt := 0; attempt < 10; attempt++ {
		inspect, err = c.inner.ContainerInspect(ctx, containerID)
		if err != nil {
			return 0, fmt.Errorf("container inspect: %w", err)
		}
		if port, ok := hostPort(inspect.NetworkSettings); ok {
			return port, nil
		}
		if attempt == 9 {
			break
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("wait for host port: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return 0, fmt.Errorf("container %s has no published host port", containerID)
}

func hostPort(settings *types.NetworkSettings) (int, bool) {
	if settings == nil || settings.Ports == nil {
		return 0, false
	}
	for _, binding := range settings.Ports[appPort] {
		if strings.TrimSpace(binding.HostPort) == "" {
			continue
		}
		port, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			continue
		}
		return port, true
	}
	return 0, false
}

// StopContainer stops a running container within the grace period.
func (c *Client) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	if strings.TrimSpace(containerID) == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	seconds := int(grace.Seconds())
	if err := c.inner.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		if client.IsErrNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stop container: %w", err)
	}
	return nil
}

// RestartContainer restarts a container in place.
func (c *Client) RestartContainer(ctx context.Context, containerID string, grace time.Duration) error {
	if strings.TrimSpace(containerID) == "" {
		return fmt.Errorf("container id cannot be empty")
	}
	seconds := int(grace.Seconds())
	if err := c.inner.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		if client.IsErrNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("restart container: %w", err)
	}
	return nil
}

// RemoveContainer removes a container by id or name if it exists.
func (c *Client) RemoveContainer(ctx context.Context, nameOrID string) error {
	if strings.TrimSpace(nameOrID) == "" {
		return fmt.Errorf("container name cannot be empty")
	}
	if err := c.inner.ContainerRemove(ctx, nameOrID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

// WaitForStop blocks until the container stops and returns the exit code.
func (c *Client) WaitForStop(ctx context.Context, containerID string) (int64, error) {
	if strings.TrimSpace(containerID) == "" {
		return 0, fmt.Errorf("container id cannot be empty")
	}
	statusCh, errCh := c.inner.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	for {
		select {
		case err := <-errCh:
			if err == nil {
				continue
			}
			if client.IsErrNotFound(err) {
				return 0, nil
			}
			return 0, fmt.Errorf("wait for container stop: %w", err)
		case status := <-statusCh:
			return status.StatusCode, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

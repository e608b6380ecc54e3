// Package docker wraps the docker CLI commands the engine needs: listing
// and stopping containers, creating the shared network, bringing compose
// stacks up, and running throwaway helper containers against the host.
package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/stackops/stackops/internal/runner"
)

// Client issues docker CLI commands through a runner.Runner.
type Client struct {
	run runner.Runner
	bin string
}

// New creates a Client invoking bin (usually "docker").
func New(r runner.Runner, bin string) *Client {
	return &Client{run: r, bin: bin}
}

// Bin returns the docker binary the client invokes.
func (c *Client) Bin() string { return c.bin }

// Running returns the names of all running containers.
func (c *Client) Running(ctx context.Context) ([]string, error) {
	out, res := c.run.Output(ctx, []string{c.bin, "ps", "--format", "{{.Names}}"})
	if !res.OK() {
		return nil, fmt.Errorf("docker ps: %s", res)
	}
	return runner.Lines(out), nil
}

// Stop stops every named container with a single docker stop invocation.
func (c *Client) Stop(ctx context.Context, names []string, out io.Writer) runner.Result {
	argv := append([]string{c.bin, "stop"}, names...)
	return c.run.Run(ctx, argv, out)
}

// CreateNetwork creates a network. The output is discarded: the common
// failure is "already exists", which callers treat as success.
func (c *Client) CreateNetwork(ctx context.Context, name string) runner.Result {
	return c.run.Run(ctx, []string{c.bin, "network", "create", name}, nil)
}

// ComposeUp runs docker compose -f composeFile up -d.
func (c *Client) ComposeUp(ctx context.Context, composeFile string, out io.Writer) runner.Result {
	return c.run.Run(ctx, []string{c.bin, "compose", "-f", composeFile, "up", "-d"}, out)
}

// RunInHost runs command in the host namespaces via a privileged helper
// container built from image.
func (c *Client) RunInHost(ctx context.Context, image string, out io.Writer, command ...string) runner.Result {
	return c.run.Run(ctx, runner.HostCommand(c.bin, image, command...), out)
}

// RunWithVolume runs command in a helper container that bind-mounts
// hostPath at the same path.
func (c *Client) RunWithVolume(ctx context.Context, image, hostPath string, out io.Writer, command ...string) runner.Result {
	return c.run.Run(ctx, runner.VolumeCommand(c.bin, image, hostPath, command...), out)
}

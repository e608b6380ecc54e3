package stacks

import (
	"context"

	"github.com/stackops/stackops/internal/docker"
	"github.com/stackops/stackops/internal/logsink"
)

// Controller brings discovered stacks up through docker compose.
type Controller struct {
	docker        *docker.Client
	discovery     Discovery
	sharedNetwork string
}

// NewController creates a Controller. sharedNetwork may be empty to skip
// the network step.
func NewController(d *docker.Client, discovery Discovery, sharedNetwork string) *Controller {
	return &Controller{docker: d, discovery: discovery, sharedNetwork: sharedNetwork}
}

// BringUpAll starts every stack except self, infrastructure first. It is
// best effort: a stack that fails to come up is logged and the next one is
// still attempted. It returns the names it attempted, in order.
func (c *Controller) BringUpAll(ctx context.Context, self string, log logsink.Progress) []string {
	// Stacks declare the shared network as external, so it has to exist
	// before the first compose up. "already exists" is the normal case.
	if c.sharedNetwork != "" {
		c.docker.CreateNetwork(ctx, c.sharedNetwork)
	}

	all, err := c.discovery.Discover()
	if err != nil {
		log.Printf("WARNING: could not discover stacks: %v", err)
		return nil
	}

	var started []string
	for _, s := range all {
		if s.Name == self {
			continue
		}
		log.Printf("Starting %s...", s.Name)
		if res := c.docker.ComposeUp(ctx, s.ComposeFile, log); !res.OK() {
			log.Printf("WARNING: %s compose up %s", s.Name, res)
		}
		started = append(started, s.Name)
	}
	return started
}

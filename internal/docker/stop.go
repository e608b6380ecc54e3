package docker

import (
	"context"
	"strings"

	"github.com/stackops/stackops/internal/logsink"
)

// StopAllExcept stops every running container except self, so files can be
// restored underneath stopped services.
//
// All targets go to one docker stop call. docker stop attempts every name
// it is given and exits non-zero if any of them failed, so one bad name
// does not leave the rest running; the failure is logged and the restore
// carries on.
func (c *Client) StopAllExcept(ctx context.Context, self string, log logsink.Progress) []string {
	running, err := c.Running(ctx)
	if err != nil {
		log.Printf("WARNING: could not list running containers: %v", err)
		return nil
	}

	toStop := Except(running, self)
	if len(toStop) == 0 {
		log.Printf("No other containers to stop")
		return nil
	}

	log.Printf("Stopping containers: %s", strings.Join(toStop, ", "))
	if res := c.Stop(ctx, toStop, log); !res.OK() {
		log.Printf("WARNING: docker stop %s", res)
	}
	return toStop
}

// Except returns names without self, preserving order.
func Except(names []string, self string) []string {
	var out []string
	for _, n := range names {
		if n != self {
			out = append(out, n)
		}
	}
	return out
}

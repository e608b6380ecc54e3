package fstab

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/stackops/stackops/internal/docker"
	"github.com/stackops/stackops/internal/logsink"
	"github.com/stackops/stackops/internal/runner"
)

// Host execution modes.
const (
	// ModeDocker reaches the host through throwaway helper containers. Used
	// when the engine itself runs in a container with the host fstab
	// bind-mounted.
	ModeDocker = "docker"
	// ModeLocal runs mkdir and mount directly.
	ModeLocal = "local"
)

// hostFstab is how the target is named in the job log; inside the container
// it is usually a bind mount of this path.
const hostFstab = "/etc/fstab"

// Options configures a Merger.
type Options struct {
	MarkerStart string
	MarkerEnd   string
	Mode        string
	HelperImage string
	MountRoot   string
}

// Merger applies a template to the host fstab and mounts the result.
type Merger struct {
	docker *docker.Client
	run    runner.Runner
	opts   Options
}

// New creates a Merger. d is used in ModeDocker and r in ModeLocal.
func New(d *docker.Client, r runner.Runner, opts Options) *Merger {
	if opts.Mode == "" {
		opts.Mode = ModeDocker
	}
	return &Merger{docker: d, run: r, opts: opts}
}

// Apply merges templatePath into targetPath, creates every mount point and
// runs mount -a once. Precondition failures (missing template, unreadable
// target, unterminated block) are logged and returned before the target is
// touched. Failures of mkdir and mount are logged but not returned.
func (m *Merger) Apply(ctx context.Context, templatePath, targetPath string, log logsink.Progress) error {
	tmpl, err := os.ReadFile(templatePath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("ERROR: %s not found", filepath.Base(templatePath))
		return fmt.Errorf("%s: %w", templatePath, ErrTemplateMissing)
	}
	if err != nil {
		log.Printf("ERROR: reading %s: %v", templatePath, err)
		return fmt.Errorf("reading template: %w", err)
	}

	current, err := os.ReadFile(targetPath)
	if err != nil {
		log.Printf("ERROR: reading %s: %v", targetPath, err)
		return fmt.Errorf("reading target: %w", err)
	}

	merged, replaced, err := Merge(string(current), string(tmpl), m.opts.MarkerStart, m.opts.MarkerEnd)
	if err != nil {
		log.Printf("ERROR: %s: %v", targetPath, err)
		return fmt.Errorf("%s: %w", targetPath, err)
	}

	// Written in place: a bind-mounted file cannot be replaced by rename.
	if err := os.WriteFile(targetPath, []byte(merged), 0o644); err != nil {
		log.Printf("ERROR: writing %s: %v", targetPath, err)
		return fmt.Errorf("writing target: %w", err)
	}
	if replaced {
		log.Printf("Updated existing NFS mount block in %s", hostFstab)
	} else {
		log.Printf("Added NFS mount block to %s", hostFstab)
	}

	entries := MountEntries(string(tmpl))
	for _, e := range entries {
		log.Printf("  %s <- %s", e.MountPoint, e.Source)
	}

	if len(entries) > 0 {
		log.Printf("Creating mount directories on host...")
		m.mkdirs(ctx, MountPoints(entries), log)
	}

	log.Printf("Mounting all fstab entries on host...")
	m.mountAll(ctx, log)
	return nil
}

func (m *Merger) mkdirs(ctx context.Context, dirs []string, log logsink.Progress) {
	if m.opts.Mode == ModeLocal {
		for _, d := range dirs {
			if err := os.MkdirAll(d, 0o755); err != nil {
				log.Printf("WARNING: mkdir %s: %v", d, err)
			}
		}
		return
	}
	cmd := append([]string{"mkdir", "-p"}, dirs...)
	if res := m.docker.RunWithVolume(ctx, m.opts.HelperImage, m.opts.MountRoot, log, cmd...); !res.OK() {
		log.Printf("WARNING: mkdir %s", res)
	}
}

func (m *Merger) mountAll(ctx context.Context, log logsink.Progress) {
	var res runner.Result
	if m.opts.Mode == ModeLocal {
		res = m.run.Run(ctx, []string{"mount", "-a"}, log)
	} else {
		res = m.docker.RunInHost(ctx, m.opts.HelperImage, log, "mount", "-a")
	}
	if !res.OK() {
		log.Printf("WARNING: mount -a %s", res)
	}
}

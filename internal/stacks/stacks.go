// Package stacks discovers the compose stacks under the source tree and
// brings them up in dependency order after a restore.
package stacks

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Descriptor is one deployable stack: a directory holding a compose file.
type Descriptor struct {
	Name        string `json:"name"`
	ComposeFile string `json:"compose_file"`
	Priority    int    `json:"priority"`
}

// Discovery holds the rules for finding and ordering stacks.
type Discovery struct {
	Root            string
	Pattern         string         // glob on the directory basename, e.g. "stack-*"
	ComposeFiles    []string       // candidate compose file names, first match wins
	Priorities      map[string]int // explicit priorities by stack name
	DefaultPriority int
}

// Priority returns the explicit priority for name, or the default.
func (d Discovery) Priority(name string) int {
	if p, ok := d.Priorities[name]; ok {
		return p
	}
	return d.DefaultPriority
}

// Discover scans the immediate subdirectories of Root and returns every
// stack, sorted ascending by (priority, name).
func (d Discovery) Discover() ([]Descriptor, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.Root, err)
	}

	var out []Descriptor
	for _, e := range entries {
		if !isDir(d.Root, e) {
			continue
		}
		ok, err := filepath.Match(d.Pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("stack pattern %q: %w", d.Pattern, err)
		}
		if !ok {
			continue
		}
		compose := d.composeFile(filepath.Join(d.Root, e.Name()))
		if compose == "" {
			continue
		}
		out = append(out, Descriptor{
			Name:        e.Name(),
			ComposeFile: compose,
			Priority:    d.Priority(e.Name()),
		})
	}

	Sort(out)
	return out, nil
}

func (d Discovery) composeFile(dir string) string {
	for _, name := range d.ComposeFiles {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

// isDir follows symlinks, since restored trees may link stack directories.
func isDir(root string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, e.Name()))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Sort orders stacks ascending by (Priority, Name).
func Sort(s []Descriptor) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Priority != s[j].Priority {
			return s[i].Priority < s[j].Priority
		}
		return s[i].Name < s[j].Name
	})
}

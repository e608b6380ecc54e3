// Package fstab maintains a managed block of mount entries inside the host
// fstab and activates it.
package fstab

import (
	"errors"
	"strings"
)

var (
	// ErrTemplateMissing is returned when the template file does not exist.
	ErrTemplateMissing = errors.New("template not found")
	// ErrUnterminatedBlock is returned when the target holds a start marker
	// with no end marker after it.
	ErrUnterminatedBlock = errors.New("managed block has no end marker")
)

// Entry is one mount line from the template.
type Entry struct {
	Source     string
	MountPoint string
}

// Block renders the managed block for template, without a trailing newline.
func Block(template, start, end string) string {
	return start + "\n" + strings.TrimRight(template, " \t\r\n") + "\n" + end
}

// Merge returns current with the managed block set to template. The target
// is split into prefix, managed span and suffix: the span runs from the
// first start marker through the first end marker after it, and only that
// span is replaced. With no start marker the block is appended after a
// blank line. replaced reports which of the two happened.
//
// Bytes outside the span are never modified, so merging the same template
// twice yields the same output as merging it once.
func Merge(current, template, start, end string) (merged string, replaced bool, err error) {
	block := Block(template, start, end)

	i := strings.Index(current, start)
	if i < 0 {
		head := strings.TrimRight(current, "\n")
		if head == "" {
			return block + "\n", false, nil
		}
		return head + "\n\n" + block + "\n", false, nil
	}

	rest := current[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return "", false, ErrUnterminatedBlock
	}
	suffix := rest[j+len(end):]
	return current[:i] + block + suffix, true, nil
}

// MountEntries returns the non-comment, non-blank template lines that have
// at least a source and a mount point field.
func MountEntries(template string) []Entry {
	var out []Entry
	for _, line := range strings.Split(template, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		out = append(out, Entry{Source: fields[0], MountPoint: fields[1]})
	}
	return out
}

// MountPoints returns the mount point of every entry, in order.
func MountPoints(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.MountPoint)
	}
	return out
}

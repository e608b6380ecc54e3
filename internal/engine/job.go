package engine

import "time"

// Operation is a kind of job the engine can run.
type Operation int

const (
	OpBackup Operation = iota
	OpRestore
	OpFstab
)

func (op Operation) String() string {
	switch op {
	case OpBackup:
		return "backup"
	case OpRestore:
		return "restore"
	case OpFstab:
		return "fstab"
	}
	return "unknown"
}

// Action is the in-flight job as reported by Status. The empty Action
// means idle.
type Action string

const (
	ActionNone       Action = ""
	ActionBackup     Action = "backup"
	ActionBackupDry  Action = "backup-dry"
	ActionRestore    Action = "restore"
	ActionRestoreDry Action = "restore-dry"
	ActionFstab      Action = "fstab"
)

// action maps an operation and dry-run flag to its Action. Fstab setup has
// no dry-run variant.
func (op Operation) action(dryRun bool) Action {
	switch op {
	case OpBackup:
		if dryRun {
			return ActionBackupDry
		}
		return ActionBackup
	case OpRestore:
		if dryRun {
			return ActionRestoreDry
		}
		return ActionRestore
	}
	return ActionFstab
}

// label is the name used in the job's log markers. The recovery scan
// depends on "Backup" exactly.
func (a Action) label() string {
	switch a {
	case ActionBackup:
		return "Backup"
	case ActionBackupDry:
		return "Backup dry-run"
	case ActionRestore:
		return "Restore"
	case ActionRestoreDry:
		return "Restore dry-run"
	case ActionFstab:
		return "Setup fstab"
	}
	return ""
}

// DryRun reports whether a is a dry-run variant.
func (a Action) DryRun() bool {
	return a == ActionBackupDry || a == ActionRestoreDry
}

// Describe returns the short status line shown to operators.
func (a Action) Describe() string {
	switch a {
	case ActionBackup:
		return "Backing up..."
	case ActionBackupDry:
		return "Backup dry-run..."
	case ActionRestore:
		return "Restoring..."
	case ActionRestoreDry:
		return "Restore dry-run..."
	case ActionFstab:
		return "Setting up fstab..."
	}
	return "Idle"
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running    bool       `json:"running"`
	Action     Action     `json:"action"`
	Log        string     `json:"log"`
	LastBackup *string    `json:"last_backup"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// TimestampLayout is the marker timestamp format: local time, second
// precision, numeric offset.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

package store

import (
	"time"
)

// Trigger describes why a backup was created
type Trigger string

const (
	// TriggerDangerThreshold marks backups taken when a watched save file's
	// size crossed the configured danger threshold.
	TriggerDangerThreshold Trigger = "danger-threshold"
	// TriggerPeriodic marks backups taken by the periodic automatic sweep.
	TriggerPeriodic Trigger = "periodic"
	// TriggerManualSingle marks a user-initiated backup of one file.
	TriggerManualSingle Trigger = "manual"
	// TriggerManualBulk marks a user-initiated backup of several files.
	TriggerManualBulk Trigger = "manual-bulk"
	// TriggerPreRestore marks the safety copy taken before a restore
	// overwrites an existing target.
	TriggerPreRestore Trigger = "pre-restore"
)

// Automatic reports whether the trigger was machine-initiated. Only
// automatic triggers are subject to the backup cooldown.
func (t Trigger) Automatic() bool {
	switch t {
	case TriggerManualSingle, TriggerManualBulk:
		return false
	default:
		return true
	}
}

// String implements fmt.Stringer
func (t Trigger) String() string {
	return string(t)
}

// BackupRecord describes one stored backup. Every field except Trigger and
// SizeBytes is derived from the backup filename; nothing else is persisted.
type BackupRecord struct {
	// OriginalName is the logical save-file identity, e.g. "Amazon.d2s".
	OriginalName string `json:"original_name"`
	// BackupName is the physical stored-file name inside the backup directory.
	BackupName string `json:"backup_name"`
	// Timestamp is the creation time encoded in the filename.
	Timestamp time.Time `json:"timestamp"`
	// SizeBytes is the size of the logical (uncompressed) content.
	SizeBytes int64 `json:"size_bytes"`
	// Compressed is true when the physical file is a single-entry zip archive.
	Compressed bool `json:"compressed"`
	// Trigger is known only for records returned from Create; records
	// decoded from a directory listing leave it empty.
	Trigger Trigger `json:"trigger,omitempty"`
}

// Result is the definite outcome of a store operation. Exactly one of
// Success/Err carries meaning; the store never returns a partial state.
type Result struct {
	OperationID string        `json:"operation_id"`
	Success     bool          `json:"success"`
	Record      *BackupRecord `json:"record,omitempty"`
	// PreRestore holds the safety backup taken before a restore, when one
	// was requested and the target existed.
	PreRestore *BackupRecord `json:"pre_restore,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// RetentionResult summarizes one retention pass for a single original file
type RetentionResult struct {
	OriginalName string   `json:"original_name"`
	Processed    int      `json:"processed"`
	Evicted      int      `json:"evicted"`
	Kept         int      `json:"kept"`
	Errors       []string `json:"errors,omitempty"`
}

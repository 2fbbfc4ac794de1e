package store

import (
	"fmt"

	"d2r-save-guard/internal/logging"
)

// retentionStore is the slice of Store the retention policy needs. Removal
// goes through the unlocked helper because Apply always runs inside the
// critical section of the create that triggered it.
type retentionStore interface {
	ListFor(originalName string) []BackupRecord
	removeBackupFile(rec BackupRecord) (bool, error)
}

// retentionPolicy caps the number of stored backups per original file,
// evicting the oldest excess. Cleanup is best-effort: eviction failures are
// logged and swallowed, never failing the create that triggered the pass.
type retentionPolicy struct {
	store      retentionStore
	maxPerFile int
	logger     *logging.Logger
	metrics    *Metrics
}

func newRetentionPolicy(store retentionStore, maxPerFile int, logger *logging.Logger, metrics *Metrics) *retentionPolicy {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &retentionPolicy{
		store:      store,
		maxPerFile: maxPerFile,
		logger:     logger,
		metrics:    metrics,
	}
}

// Apply enforces the cap for one original file. Records arrive newest
// first, so everything past maxPerFile is evicted oldest-last. A non-empty
// protect names a backup that must survive the pass even when it falls past
// the cap; the pre-restore safety copy runs retention while the backup being
// restored may be the oldest record, and evicting it would destroy the very
// content the restore is about to read.
func (rp *retentionPolicy) Apply(originalName, protect string) *RetentionResult {
	result := &RetentionResult{OriginalName: originalName}

	if rp.maxPerFile <= 0 {
		return result
	}

	records := rp.store.ListFor(originalName)
	result.Processed = len(records)

	if len(records) <= rp.maxPerFile {
		result.Kept = len(records)
		rp.logger.LogRetentionCleanup(originalName, 0, result.Kept)
		return result
	}

	excess := records[rp.maxPerFile:]

	// Evict oldest first.
	for i := len(excess) - 1; i >= 0; i-- {
		rec := excess[i]
		if protect != "" && rec.BackupName == protect {
			continue
		}
		removed, err := rp.store.removeBackupFile(rec)
		if err != nil {
			msg := fmt.Sprintf("failed to evict backup %s: %v", rec.BackupName, err)
			result.Errors = append(result.Errors, msg)
			rp.logger.Warn(msg)
			continue
		}
		if removed {
			result.Evicted++
			rp.metrics.observeRetentionEviction()
			rp.logger.WithFields(map[string]interface{}{
				"file":   originalName,
				"backup": rec.BackupName,
			}).Debug("Evicted backup beyond retention cap")
		}
	}

	result.Kept = result.Processed - result.Evicted
	rp.logger.LogRetentionCleanup(originalName, result.Evicted, result.Kept)
	return result
}

// Package store provides backup and restore functionality for Diablo II:
// Resurrected save files.
//
// Backups live in a single flat directory and the filename is the only
// index: every record is decoded from the name grammar in codec.go, so the
// store needs no database or sidecar metadata and survives users moving or
// deleting backup files by hand. The system is designed around a few key
// principles:
//
// 1. Safety First: restores take a pre-restore backup of the current target
// 2. Tolerance: file operations retry through transient sharing violations
// 3. Isolation: operations on distinct save files proceed in parallel
// 4. Bounded Growth: a per-file retention cap evicts the oldest backups
// 5. Observability: lifecycle events, structured logging, and metrics
//
// Core Components:
//
// - Store: orchestrates create, list, restore, delete, and retention
// - fileIO: copy and zip operations with sharing-violation retry
// - keyedLocks: per-save-file mutual exclusion with idle reclamation
// - retentionPolicy: best-effort eviction beyond the per-file cap
//
// Example usage:
//
//	st, err := store.New(store.Options{
//		BackupDir:         backupDir,
//		Compress:          true,
//		MaxBackupsPerFile: 10,
//		Cooldown:          30 * time.Second,
//	}, logger, metrics)
//	if err != nil {
//		return err
//	}
//
//	// Back up a save file.
//	result := st.Create(ctx, savePath, store.TriggerManualSingle)
//	if !result.Success {
//		return result.Err
//	}
//
//	// Restore the newest backup, with a safety copy of the current file.
//	backups := st.ListFor("Amazon.d2s")
//	result = st.Restore(ctx, backups[0], savePath, true)
package store

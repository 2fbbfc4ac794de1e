package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"d2r-save-guard/internal/logging"
)

// Options configures a Store
type Options struct {
	// BackupDir is the flat directory holding all backups.
	BackupDir string
	// Compress stores new backups as single-entry zip archives.
	Compress bool
	// MaxBackupsPerFile caps the stored backups per original file.
	MaxBackupsPerFile int
	// Cooldown is the minimum interval between automatic backups of the
	// same source file. Manual triggers are never gated.
	Cooldown time.Duration
	// RetryBaseDelay overrides the first retry delay for locked files.
	// Zero keeps the default.
	RetryBaseDelay time.Duration
}

// Store orchestrates backup creation, listing, restore, and deletion over a
// single flat backup directory. Filenames are the only index; see codec.go.
type Store struct {
	dir      string
	compress bool
	cooldown time.Duration

	fio       *fileIO
	locks     *keyedLocks
	retention *retentionPolicy
	notifier  *eventNotifier
	metrics   *Metrics
	logger    *logging.Logger

	mu         sync.Mutex
	lastBackup map[string]time.Time

	now func() time.Time
}

// New creates a Store over opts.BackupDir, creating the directory if needed
func New(opts Options, logger *logging.Logger, metrics *Metrics) (*Store, error) {
	if opts.BackupDir == "" {
		return nil, NewConfigurationError("backup directory is required", nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	if err := os.MkdirAll(opts.BackupDir, 0o755); err != nil {
		return nil, NewIOError(fmt.Sprintf("failed to create backup directory %s", opts.BackupDir), err)
	}

	fio := newFileIO(logger, metrics)
	if opts.RetryBaseDelay > 0 {
		fio.baseDelay = opts.RetryBaseDelay
	}

	s := &Store{
		dir:        opts.BackupDir,
		compress:   opts.Compress,
		cooldown:   opts.Cooldown,
		fio:        fio,
		locks:      newKeyedLocks(),
		notifier:   newEventNotifier(),
		metrics:    metrics,
		logger:     logger,
		lastBackup: make(map[string]time.Time),
		now:        time.Now,
	}
	s.retention = newRetentionPolicy(s, opts.MaxBackupsPerFile, logger, metrics)

	return s, nil
}

// Subscribe registers a handler for lifecycle events. Events are delivered
// synchronously from the goroutine running the operation.
func (s *Store) Subscribe(h EventHandler) {
	s.notifier.Subscribe(h)
}

// BackupDir returns the directory backups are stored in
func (s *Store) BackupDir() string {
	return s.dir
}

// CanCreate reports whether a backup of targetPath is currently allowed for
// the given trigger. Manual triggers always pass; automatic triggers are
// rejected inside the cooldown window after the last successful backup.
func (s *Store) CanCreate(targetPath string, trigger Trigger) bool {
	if !trigger.Automatic() {
		return true
	}

	s.mu.Lock()
	last, ok := s.lastBackup[targetPath]
	s.mu.Unlock()

	if !ok {
		return true
	}
	return s.now().Sub(last) >= s.cooldown
}

// Create takes a backup of sourcePath. The lock for the source's logical
// name is held for the whole operation, and retention runs for that file
// before the result is returned, so a caller that creates and then lists
// always sees the cap already applied.
func (s *Store) Create(ctx context.Context, sourcePath string, trigger Trigger) Result {
	opID := uuid.NewString()
	start := s.now()
	fileName := filepath.Base(sourcePath)

	release := s.locks.Acquire(lockKey(sourcePath))
	defer release()

	s.notifier.publish(Event{
		Type:        EventBackupStarted,
		OperationID: opID,
		FileName:    fileName,
		Trigger:     trigger,
		Timestamp:   s.now(),
	})

	rec, err := s.createLocked(ctx, sourcePath, trigger, "")
	duration := s.now().Sub(start)

	s.metrics.observeBackup(trigger, err == nil, duration)
	s.logger.LogBackupOperation(fileName, trigger.String(), err == nil, duration, err)

	if err != nil {
		s.notifier.publish(Event{
			Type:        EventBackupFailed,
			OperationID: opID,
			FileName:    fileName,
			Trigger:     trigger,
			Err:         err,
			Timestamp:   s.now(),
		})
		return Result{OperationID: opID, Success: false, Err: err, Duration: duration}
	}

	s.notifier.publish(Event{
		Type:        EventBackupCompleted,
		OperationID: opID,
		FileName:    fileName,
		Trigger:     trigger,
		Timestamp:   s.now(),
	})
	return Result{OperationID: opID, Success: true, Record: rec, Duration: duration}
}

// createLocked performs the backup while the caller holds the key lock.
// Restore reuses it for the pre-restore safety copy without re-acquiring;
// protect is the backup the in-flight restore is reading, which the
// retention pass must not evict.
func (s *Store) createLocked(ctx context.Context, sourcePath string, trigger Trigger, protect string) (*BackupRecord, error) {
	originalName := filepath.Base(sourcePath)
	if !strings.HasSuffix(originalName, SaveExt) {
		return nil, NewValidationError(fmt.Sprintf("%s is not a %s save file", originalName, SaveExt), nil)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewNotFoundError(fmt.Sprintf("source file %s not found", sourcePath), err)
		}
		return nil, NewIOError(fmt.Sprintf("failed to stat source file %s", sourcePath), err)
	}

	ts := s.now()
	backupName, dst, err := s.freeBackupPath(originalName, ts)
	if err != nil {
		return nil, err
	}

	rec, ok := DecodeBackupName(backupName)
	if !ok || rec.OriginalName != originalName {
		return nil, NewDecodeError(fmt.Sprintf("generated backup name %s does not round-trip", backupName), nil)
	}

	if s.compress {
		err = s.fio.CompressInto(ctx, sourcePath, originalName, dst)
	} else {
		err = s.fio.Copy(ctx, sourcePath, dst)
	}
	if err != nil {
		return nil, err
	}

	rec.SizeBytes = info.Size()
	rec.Trigger = trigger

	s.mu.Lock()
	s.lastBackup[sourcePath] = s.now()
	s.mu.Unlock()

	// Retention runs inside the critical section so the cap is visible
	// before the result reaches the caller. Idle-lock reclamation rides
	// along on the same cleanup pass.
	s.retention.Apply(originalName, protect)
	s.locks.reclaimIdle()

	return rec, nil
}

// freeBackupPath picks a backup name that does not collide with an existing
// file. Backups are immutable, so a same-second collision is resolved by
// bumping into the millisecond form rather than overwriting.
func (s *Store) freeBackupPath(originalName string, ts time.Time) (string, string, error) {
	for i := 0; i < 1000; i++ {
		name := EncodeBackupName(originalName, ts, s.compress)
		path := filepath.Join(s.dir, name)
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return name, path, nil
		}
		ts = ts.Add(time.Millisecond)
	}
	return "", "", NewIOError(fmt.Sprintf("could not find a free backup name for %s", originalName), nil)
}

// CreateBulk backs up each source sequentially so progress notifications
// are deterministic; per-file locking would allow parallelism across
// distinct targets, but ordering is worth more here than throughput.
func (s *Store) CreateBulk(ctx context.Context, sourcePaths []string, trigger Trigger) []Result {
	results := make([]Result, 0, len(sourcePaths))
	total := len(sourcePaths)

	for i, path := range sourcePaths {
		s.notifier.publish(Event{
			Type:        EventBackupProgress,
			OperationID: uuid.NewString(),
			Current:     i + 1,
			Total:       total,
			CurrentFile: filepath.Base(path),
			Trigger:     trigger,
			Timestamp:   s.now(),
		})
		results = append(results, s.Create(ctx, path, trigger))
	}

	return results
}

// ListAll scans the backup directory and returns every decodable record,
// newest first. Undecodable names are skipped; a directory-access failure
// yields an empty list, never an error.
func (s *Store) ListAll() []BackupRecord {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.WithFields(map[string]interface{}{
			"dir":   s.dir,
			"error": err.Error(),
		}).Warn("Failed to read backup directory")
		return nil
	}

	var records []BackupRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rec, ok := DecodeBackupName(entry.Name())
		if !ok {
			continue
		}
		rec.SizeBytes = s.logicalSize(entry, rec)
		records = append(records, *rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].BackupName > records[j].BackupName
	})

	return records
}

// ListFor returns all records for one original file, newest first
func (s *Store) ListFor(originalName string) []BackupRecord {
	all := s.ListAll()
	records := make([]BackupRecord, 0, len(all))
	for _, rec := range all {
		if rec.OriginalName == originalName {
			records = append(records, rec)
		}
	}
	return records
}

// logicalSize resolves the uncompressed content size for a listed record.
// Best-effort: unreadable archives report zero rather than failing the scan.
func (s *Store) logicalSize(entry os.DirEntry, rec *BackupRecord) int64 {
	if !rec.Compressed {
		if info, err := entry.Info(); err == nil {
			return info.Size()
		}
		return 0
	}

	zr, err := zip.OpenReader(filepath.Join(s.dir, rec.BackupName))
	if err != nil {
		return 0
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return 0
	}
	return int64(zr.File[0].UncompressedSize64)
}

// Restore writes the backup's content to targetPath, decompressing when the
// record is compressed. When takePreRestoreBackup is set and the target
// exists, a safety copy of the current target is taken first; its failure
// is logged but never aborts the restore. Restores never delete backups.
func (s *Store) Restore(ctx context.Context, rec BackupRecord, targetPath string, takePreRestoreBackup bool) Result {
	opID := uuid.NewString()
	start := s.now()

	release := s.locks.Acquire(lockKey(targetPath))
	defer release()

	backupPath := filepath.Join(s.dir, rec.BackupName)
	if _, err := os.Stat(backupPath); err != nil {
		failure := NewNotFoundError(fmt.Sprintf("backup file %s not found", rec.BackupName), err)
		duration := s.now().Sub(start)
		s.metrics.observeRestore(false, duration)
		s.logger.LogRestoreOperation(rec.BackupName, targetPath, false, duration, failure)
		return Result{OperationID: opID, Success: false, Err: failure, Duration: duration}
	}

	var preRestore *BackupRecord
	if takePreRestoreBackup {
		if _, err := os.Stat(targetPath); err == nil {
			preRestore = s.preRestoreBackup(ctx, targetPath, rec.BackupName)
		}
	}

	var err error
	if rec.Compressed {
		err = s.fio.DecompressFrom(ctx, backupPath, targetPath)
	} else {
		err = s.fio.Copy(ctx, backupPath, targetPath)
	}

	duration := s.now().Sub(start)
	s.metrics.observeRestore(err == nil, duration)
	s.logger.LogRestoreOperation(rec.BackupName, targetPath, err == nil, duration, err)

	return Result{
		OperationID: opID,
		Success:     err == nil,
		PreRestore:  preRestore,
		Err:         err,
		Duration:    duration,
	}
}

// preRestoreBackup takes the safety copy of the current target while the
// restore already holds the target's lock. Best-effort by contract. The
// backup being restored is passed through to retention as protected so the
// safety copy cannot evict it.
func (s *Store) preRestoreBackup(ctx context.Context, targetPath, restoring string) *BackupRecord {
	opID := uuid.NewString()
	fileName := filepath.Base(targetPath)
	start := s.now()

	s.notifier.publish(Event{
		Type:        EventBackupStarted,
		OperationID: opID,
		FileName:    fileName,
		Trigger:     TriggerPreRestore,
		Timestamp:   s.now(),
	})

	rec, err := s.createLocked(ctx, targetPath, TriggerPreRestore, restoring)
	duration := s.now().Sub(start)
	s.metrics.observeBackup(TriggerPreRestore, err == nil, duration)
	s.logger.LogBackupOperation(fileName, TriggerPreRestore.String(), err == nil, duration, err)

	if err != nil {
		s.notifier.publish(Event{
			Type:        EventBackupFailed,
			OperationID: opID,
			FileName:    fileName,
			Trigger:     TriggerPreRestore,
			Err:         err,
			Timestamp:   s.now(),
		})
		s.logger.Warnf("Pre-restore backup of %s failed, continuing with restore: %v", fileName, err)
		return nil
	}

	s.notifier.publish(Event{
		Type:        EventBackupCompleted,
		OperationID: opID,
		FileName:    fileName,
		Trigger:     TriggerPreRestore,
		Timestamp:   s.now(),
	})
	return rec
}

// Delete removes the physical backup file for rec. The lock is keyed by the
// record's original name so a concurrent backup or restore of that save
// file cannot race the deletion. Returns whether a file was actually
// removed.
func (s *Store) Delete(rec BackupRecord) (bool, error) {
	release := s.locks.Acquire(lockKey(rec.OriginalName))
	defer release()

	removed, err := s.removeBackupFile(rec)
	if removed {
		s.metrics.observeDelete()
		s.logger.WithFields(map[string]interface{}{
			"backup": rec.BackupName,
			"file":   rec.OriginalName,
		}).Info("Backup deleted")
	}
	return removed, err
}

// removeBackupFile deletes the physical file without taking the key lock;
// callers hold it already (Delete) or run inside a create (retention).
func (s *Store) removeBackupFile(rec BackupRecord) (bool, error) {
	path := filepath.Join(s.dir, rec.BackupName)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, NewIOError(fmt.Sprintf("failed to delete backup %s", rec.BackupName), err)
	}
	return true, nil
}

// ApplyRetention enforces the retention cap for one original file outside
// of a create, holding that file's lock. Used by the prune command.
func (s *Store) ApplyRetention(originalName string) *RetentionResult {
	release := s.locks.Acquire(lockKey(originalName))
	defer release()

	result := s.retention.Apply(originalName, "")
	s.locks.reclaimIdle()
	return result
}

// lockKey normalizes a target path to the logical save-file name so create,
// restore, and delete of the same original always contend on one lock.
func lockKey(path string) string {
	return filepath.Base(path)
}

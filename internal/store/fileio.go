package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/klauspost/compress/zip"

	"d2r-save-guard/internal/logging"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 250 * time.Millisecond

	// tmpSuffix marks in-flight destination writes. The codec never
	// decodes such names, so stray temp files are invisible to listings.
	tmpSuffix = ".tmp"
)

// fileIO moves bytes between file paths, or into/out of a single-entry zip
// archive, tolerating transient sharing violations from a game client that
// still holds the save file open. Only sharing violations are retried; every
// other failure is terminal on the first attempt.
type fileIO struct {
	attempts  int
	baseDelay time.Duration
	logger    *logging.Logger
	metrics   *Metrics
}

func newFileIO(logger *logging.Logger, metrics *Metrics) *fileIO {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &fileIO{
		attempts:  defaultRetryAttempts,
		baseDelay: defaultRetryBaseDelay,
		logger:    logger,
		metrics:   metrics,
	}
}

// Copy copies src to dst, replacing dst. A partially written dst is removed
// before a terminal failure is returned.
func (f *fileIO) Copy(ctx context.Context, src, dst string) error {
	return f.withRetry(ctx, "copy", src, func() error {
		return f.copyOnce(src, dst)
	})
}

// CompressInto writes src into archivePath as a zip archive holding exactly
// one entry named entryName.
func (f *fileIO) CompressInto(ctx context.Context, src, entryName, archivePath string) error {
	return f.withRetry(ctx, "compress", src, func() error {
		return f.compressOnce(src, entryName, archivePath)
	})
}

// DecompressFrom extracts the first entry of archivePath into dst. An
// archive with zero entries is a terminal corruption failure, not a retry
// case.
func (f *fileIO) DecompressFrom(ctx context.Context, archivePath, dst string) error {
	return f.withRetry(ctx, "decompress", archivePath, func() error {
		return f.decompressOnce(archivePath, dst)
	})
}

// withRetry runs fn up to f.attempts times, sleeping base * 2^attempt
// between attempts, but only when the failure is a sharing violation.
func (f *fileIO) withRetry(ctx context.Context, op, path string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < f.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewIOError(fmt.Sprintf("%s canceled for %s", op, path), err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isSharingViolation(err) {
			return err
		}

		if attempt == f.attempts-1 {
			break
		}

		delay := f.baseDelay * (1 << attempt)
		f.metrics.observeRetry(op)
		f.logger.WithFields(map[string]interface{}{
			"operation": op,
			"path":      path,
			"attempt":   attempt + 1,
			"delay":     delay.String(),
		}).Debug("File is locked by another process, retrying")

		select {
		case <-ctx.Done():
			return NewIOError(fmt.Sprintf("%s canceled during retry for %s", op, path), ctx.Err())
		case <-time.After(delay):
		}
	}

	return NewLockContentionError(
		fmt.Sprintf("%s of %s failed after %d attempts: file is locked by another process", op, path, f.attempts),
		lastErr)
}

// copyOnce writes through a temp file renamed into place. Restores copy
// over the live save file, so a mid-copy failure must leave any existing
// destination exactly as it was, never truncated or deleted.
func (f *fileIO) copyOnce(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return classifyOpenError("source", src, err)
	}
	defer in.Close()

	tmp := dst + tmpSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return classifyOpenError("destination", tmp, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return NewIOError(fmt.Sprintf("failed to copy %s to %s", src, dst), err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return NewIOError(fmt.Sprintf("failed to finalize %s", dst), err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return NewIOError(fmt.Sprintf("failed to replace %s", dst), err)
	}

	return nil
}

func (f *fileIO) compressOnce(src, entryName, archivePath string) error {
	in, err := os.Open(src)
	if err != nil {
		return classifyOpenError("source", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return NewIOError(fmt.Sprintf("failed to stat %s", src), err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return classifyOpenError("archive", archivePath, err)
	}

	zw := zip.NewWriter(out)
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	})
	if err == nil {
		_, err = io.Copy(entry, in)
	}
	if err == nil {
		err = zw.Close()
	}
	if err != nil {
		out.Close()
		os.Remove(archivePath)
		return NewIOError(fmt.Sprintf("failed to write archive %s", archivePath), err)
	}

	if err := out.Close(); err != nil {
		os.Remove(archivePath)
		return NewIOError(fmt.Sprintf("failed to finalize archive %s", archivePath), err)
	}

	return nil
}

func (f *fileIO) decompressOnce(archivePath, dst string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewNotFoundError(fmt.Sprintf("archive %s not found", archivePath), err)
		}
		if isSharingViolation(err) {
			return err
		}
		return NewCorruptionError(fmt.Sprintf("archive %s is unreadable", archivePath), err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return NewCorruptionError(fmt.Sprintf("archive %s contains no entries", archivePath), nil)
	}

	// A backup archive holds exactly one entry; anything after the first
	// is ignored rather than rejected. Extraction goes through a temp
	// file like copyOnce so a corrupt archive cannot damage an existing
	// destination.
	entry, err := zr.File[0].Open()
	if err != nil {
		return NewCorruptionError(fmt.Sprintf("failed to open entry in %s", archivePath), err)
	}
	defer entry.Close()

	tmp := dst + tmpSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return classifyOpenError("destination", tmp, err)
	}

	if _, err := io.Copy(out, entry); err != nil {
		out.Close()
		os.Remove(tmp)
		return NewCorruptionError(fmt.Sprintf("failed to extract entry from %s", archivePath), err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return NewIOError(fmt.Sprintf("failed to finalize %s", dst), err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return NewIOError(fmt.Sprintf("failed to replace %s", dst), err)
	}

	return nil
}

func classifyOpenError(role, path string, err error) error {
	if os.IsNotExist(err) {
		return NewNotFoundError(fmt.Sprintf("%s file %s not found", role, path), err)
	}
	if isSharingViolation(err) {
		// Left unwrapped so withRetry recognizes it as retryable.
		return err
	}
	return NewIOError(fmt.Sprintf("failed to open %s file %s", role, path), err)
}

// Windows sharing/lock violation codes reported when another process holds
// the file open without share access.
const (
	windowsSharingViolation = 32
	windowsLockViolation    = 33
)

// isSharingViolation reports whether err indicates the file is transiently
// held by another process. These are the only failures worth retrying.
func isSharingViolation(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EBUSY, syscall.EAGAIN, syscall.ETXTBSY:
			return true
		}
		if runtime.GOOS == "windows" &&
			(uintptr(errno) == windowsSharingViolation || uintptr(errno) == windowsLockViolation) {
			return true
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "sharing violation")
}

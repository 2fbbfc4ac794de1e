package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileIO() *fileIO {
	f := newFileIO(nil, nil)
	f.baseDelay = time.Millisecond
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileIOCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Amazon.d2s")
	dst := filepath.Join(dir, "copy.d2s")
	writeFile(t, src, "save data")

	f := newTestFileIO()
	require.NoError(t, f.Copy(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "save data", string(data))
}

func TestFileIOCopyMissingSource(t *testing.T) {
	dir := t.TempDir()
	f := newTestFileIO()

	err := f.Copy(context.Background(), filepath.Join(dir, "absent.d2s"), filepath.Join(dir, "out.d2s"))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	_, statErr := os.Stat(filepath.Join(dir, "out.d2s"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileIOCompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Amazon.d2s")
	archive := filepath.Join(dir, "Amazon.d2s_20251002_082801.d2s.zip")
	restored := filepath.Join(dir, "restored.d2s")
	writeFile(t, src, "compressed save data")

	f := newTestFileIO()
	require.NoError(t, f.CompressInto(context.Background(), src, "Amazon.d2s", archive))

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "Amazon.d2s", zr.File[0].Name)
	require.NoError(t, zr.Close())

	require.NoError(t, f.DecompressFrom(context.Background(), archive, restored))
	data, err := os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, "compressed save data", string(data))
}

func TestFileIOCopyReplacesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Amazon.d2s")
	dst := filepath.Join(dir, "target.d2s")
	writeFile(t, src, "new content")
	writeFile(t, dst, "old content")

	f := newTestFileIO()
	require.NoError(t, f.Copy(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(data))

	_, statErr := os.Stat(dst + tmpSuffix)
	assert.True(t, os.IsNotExist(statErr), "temp file left behind")
}

func TestFileIOCopyFailureKeepsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "target.d2s")
	writeFile(t, dst, "precious save")

	f := newTestFileIO()
	err := f.Copy(context.Background(), filepath.Join(dir, "absent.d2s"), dst)
	require.Error(t, err)

	data, readErr := os.ReadFile(dst)
	require.NoError(t, readErr)
	assert.Equal(t, "precious save", string(data))
}

func TestFileIODecompressChecksumFailureKeepsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "Amazon.d2s_20251002_082801.d2s.zip")
	dst := filepath.Join(dir, "Amazon.d2s")
	writeFile(t, dst, "precious save")

	// An archive whose entry decompresses but fails its CRC check, so the
	// failure happens only after bytes have been written out.
	content := []byte("tampered content")
	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	out, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	raw, err := zw.CreateRaw(&zip.FileHeader{
		Name:               "Amazon.d2s",
		Method:             zip.Deflate,
		CRC32:              0xdeadbeef,
		CompressedSize64:   uint64(compressed.Len()),
		UncompressedSize64: uint64(len(content)),
	})
	require.NoError(t, err)
	_, err = raw.Write(compressed.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	f := newTestFileIO()
	err = f.DecompressFrom(context.Background(), archive, dst)
	require.Error(t, err)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, StoreErrorTypeCorruption, storeErr.Type)

	data, readErr := os.ReadFile(dst)
	require.NoError(t, readErr)
	assert.Equal(t, "precious save", string(data))

	_, statErr := os.Stat(dst + tmpSuffix)
	assert.True(t, os.IsNotExist(statErr), "temp file left behind")
}

func TestFileIODecompressEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "empty.d2s.zip")

	out, err := os.Create(archive)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(out).Close())
	require.NoError(t, out.Close())

	f := newTestFileIO()
	dst := filepath.Join(dir, "out.d2s")
	err = f.DecompressFrom(context.Background(), archive, dst)
	require.Error(t, err)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, StoreErrorTypeCorruption, storeErr.Type)
}

func TestFileIODecompressGarbageArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "garbage.d2s.zip")
	writeFile(t, archive, "this is not a zip file")

	f := newTestFileIO()
	err := f.DecompressFrom(context.Background(), archive, filepath.Join(dir, "out.d2s"))
	require.Error(t, err)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, StoreErrorTypeCorruption, storeErr.Type)
}

func TestWithRetrySharingViolation(t *testing.T) {
	f := newTestFileIO()

	calls := 0
	err := f.withRetry(context.Background(), "copy", "Amazon.d2s", func() error {
		calls++
		return &os.PathError{Op: "open", Path: "Amazon.d2s", Err: syscall.EBUSY}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, StoreErrorTypeLockContention, storeErr.Type)
}

func TestWithRetryRecoversAfterTransientFailure(t *testing.T) {
	f := newTestFileIO()

	calls := 0
	err := f.withRetry(context.Background(), "copy", "Amazon.d2s", func() error {
		calls++
		if calls < 3 {
			return &os.PathError{Op: "open", Path: "Amazon.d2s", Err: syscall.EBUSY}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryTerminalErrorNotRetried(t *testing.T) {
	f := newTestFileIO()

	calls := 0
	terminal := NewIOError("disk is on fire", nil)
	err := f.withRetry(context.Background(), "copy", "Amazon.d2s", func() error {
		calls++
		return terminal
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, terminal, err)
}

func TestWithRetryCanceledContext(t *testing.T) {
	f := newTestFileIO()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := f.withRetry(ctx, "copy", "Amazon.d2s", func() error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestIsSharingViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"ebusy", syscall.EBUSY, true},
		{"eagain", syscall.EAGAIN, true},
		{"etxtbsy", syscall.ETXTBSY, true},
		{"wrapped ebusy", &os.PathError{Op: "open", Path: "x", Err: syscall.EBUSY}, true},
		{"plain not-exist", os.ErrNotExist, false},
		{"message match", errors.New("open failed: Sharing Violation on file"), true},
		{"unrelated", errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isSharingViolation(tt.err))
		})
	}
}

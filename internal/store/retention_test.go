package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetentionStore struct {
	records []BackupRecord
	removed []string
	failOn  map[string]error
}

func (f *fakeRetentionStore) ListFor(originalName string) []BackupRecord {
	return f.records
}

func (f *fakeRetentionStore) removeBackupFile(rec BackupRecord) (bool, error) {
	if err, ok := f.failOn[rec.BackupName]; ok {
		return false, err
	}
	f.removed = append(f.removed, rec.BackupName)
	return true, nil
}

func retentionRecords(n int) []BackupRecord {
	base := time.Date(2025, 10, 2, 8, 0, 0, 0, time.Local)
	records := make([]BackupRecord, n)
	// Newest first, matching ListFor ordering.
	for i := 0; i < n; i++ {
		ts := base.Add(-time.Duration(i) * time.Minute)
		records[i] = BackupRecord{
			OriginalName: "Amazon.d2s",
			BackupName:   EncodeBackupName("Amazon.d2s", ts, false),
			Timestamp:    ts,
		}
	}
	return records
}

func TestRetentionPolicyUnderCap(t *testing.T) {
	fake := &fakeRetentionStore{records: retentionRecords(3)}
	rp := newRetentionPolicy(fake, 5, nil, nil)

	result := rp.Apply("Amazon.d2s", "")

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Evicted)
	assert.Equal(t, 3, result.Kept)
	assert.Empty(t, fake.removed)
}

func TestRetentionPolicyEvictsOldestFirst(t *testing.T) {
	records := retentionRecords(5)
	fake := &fakeRetentionStore{records: records}
	rp := newRetentionPolicy(fake, 3, nil, nil)

	result := rp.Apply("Amazon.d2s", "")

	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 2, result.Evicted)
	assert.Equal(t, 3, result.Kept)

	// records[4] is the oldest and must be removed before records[3].
	require.Len(t, fake.removed, 2)
	assert.Equal(t, records[4].BackupName, fake.removed[0])
	assert.Equal(t, records[3].BackupName, fake.removed[1])
}

func TestRetentionPolicyEvictionFailureIsSwallowed(t *testing.T) {
	records := retentionRecords(5)
	fake := &fakeRetentionStore{
		records: records,
		failOn:  map[string]error{records[4].BackupName: NewIOError("file is busy", nil)},
	}
	rp := newRetentionPolicy(fake, 3, nil, nil)

	result := rp.Apply("Amazon.d2s", "")

	assert.Equal(t, 1, result.Evicted)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, []string{records[3].BackupName}, fake.removed)
}

func TestRetentionPolicyProtectedRecordSurvives(t *testing.T) {
	records := retentionRecords(3)
	fake := &fakeRetentionStore{records: records}
	rp := newRetentionPolicy(fake, 1, nil, nil)

	// records[2] is the oldest and would normally go first; protecting it
	// must leave it on disk while the other excess record is evicted.
	result := rp.Apply("Amazon.d2s", records[2].BackupName)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Evicted)
	assert.Equal(t, 2, result.Kept)
	assert.Equal(t, []string{records[1].BackupName}, fake.removed)
}

func TestRetentionPolicyDisabled(t *testing.T) {
	fake := &fakeRetentionStore{records: retentionRecords(10)}
	rp := newRetentionPolicy(fake, 0, nil, nil)

	result := rp.Apply("Amazon.d2s", "")

	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, fake.removed)
}

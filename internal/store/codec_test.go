package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBackupName(t *testing.T) {
	ts := time.Date(2025, 10, 2, 8, 28, 1, 0, time.Local)

	tests := []struct {
		name         string
		originalName string
		ts           time.Time
		compressed   bool
		expected     string
	}{
		{
			name:         "plain backup",
			originalName: "Amazon.d2s",
			ts:           ts,
			compressed:   false,
			expected:     "Amazon.d2s_20251002_082801.d2s",
		},
		{
			name:         "compressed backup",
			originalName: "Amazon.d2s",
			ts:           ts,
			compressed:   true,
			expected:     "Amazon.d2s_20251002_082801.d2s.zip",
		},
		{
			name:         "sub-second precision uses millisecond form",
			originalName: "Sorc.d2s",
			ts:           ts.Add(42 * time.Millisecond),
			compressed:   false,
			expected:     "Sorc.d2s_20251002_082801042.d2s",
		},
		{
			name:         "name with underscores and digits",
			originalName: "my_hero_2.d2s",
			ts:           ts,
			compressed:   false,
			expected:     "my_hero_2.d2s_20251002_082801.d2s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EncodeBackupName(tt.originalName, tt.ts, tt.compressed))
		})
	}
}

func TestDecodeBackupName(t *testing.T) {
	tests := []struct {
		name             string
		backupName       string
		expectedOriginal string
		expectedTime     time.Time
		compressed       bool
	}{
		{
			name:             "plain backup",
			backupName:       "Amazon.d2s_20251002_082801.d2s",
			expectedOriginal: "Amazon.d2s",
			expectedTime:     time.Date(2025, 10, 2, 8, 28, 1, 0, time.Local),
		},
		{
			name:             "compressed backup",
			backupName:       "Amazon.d2s_20251002_082801.d2s.zip",
			expectedOriginal: "Amazon.d2s",
			expectedTime:     time.Date(2025, 10, 2, 8, 28, 1, 0, time.Local),
			compressed:       true,
		},
		{
			name:             "millisecond time segment",
			backupName:       "Amazon.d2s_20251002_082801042.d2s",
			expectedOriginal: "Amazon.d2s",
			expectedTime:     time.Date(2025, 10, 2, 8, 28, 1, 42e6, time.Local),
		},
		{
			name:             "underscores and digits in original name",
			backupName:       "my_hero_2.d2s_20240115_235959.d2s",
			expectedOriginal: "my_hero_2.d2s",
			expectedTime:     time.Date(2024, 1, 15, 23, 59, 59, 0, time.Local),
		},
		{
			name:             "original name without extension gets it back",
			backupName:       "Paladin_20251002_082801.d2s",
			expectedOriginal: "Paladin.d2s",
			expectedTime:     time.Date(2025, 10, 2, 8, 28, 1, 0, time.Local),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := DecodeBackupName(tt.backupName)
			require.True(t, ok)
			assert.Equal(t, tt.expectedOriginal, rec.OriginalName)
			assert.Equal(t, tt.backupName, rec.BackupName)
			assert.True(t, tt.expectedTime.Equal(rec.Timestamp))
			assert.Equal(t, tt.compressed, rec.Compressed)
		})
	}
}

func TestDecodeBackupNameRejectsMalformed(t *testing.T) {
	tests := []struct {
		name       string
		backupName string
	}{
		{"wrong extension", "Amazon.d2s_20251002_082801.sav"},
		{"missing time segment", "Amazon.d2s_20251002.d2s"},
		{"no separators", "Amazon.d2s"},
		{"empty original name", "_20251002_082801.d2s"},
		{"short date segment", "Amazon.d2s_2025102_082801.d2s"},
		{"long date segment", "Amazon.d2s_202510020_082801.d2s"},
		{"seven digit time segment", "Amazon.d2s_20251002_0828011.d2s"},
		{"non-numeric date", "Amazon.d2s_2025AB02_082801.d2s"},
		{"non-numeric time", "Amazon.d2s_20251002_08XX01.d2s"},
		{"month thirteen", "Amazon.d2s_20251302_082801.d2s"},
		{"day zero", "Amazon.d2s_20251000_082801.d2s"},
		{"hour twenty-four", "Amazon.d2s_20251002_242801.d2s"},
		{"minute sixty", "Amazon.d2s_20251002_086001.d2s"},
		{"second sixty", "Amazon.d2s_20251002_082860.d2s"},
		{"zip without save extension", "Amazon_20251002_082801.zip"},
		{"empty string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := DecodeBackupName(tt.backupName)
			assert.False(t, ok)
			assert.Nil(t, rec)
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 10, 2, 8, 28, 1, 0, time.Local),
		time.Date(2024, 2, 29, 0, 0, 0, 0, time.Local),
		time.Date(2025, 12, 31, 23, 59, 59, 999e6, time.Local),
		time.Date(2025, 1, 1, 1, 2, 3, 7e6, time.Local),
	}

	for _, original := range []string{"Amazon.d2s", "my_hero_2.d2s", "x.d2s"} {
		for _, compressed := range []bool{false, true} {
			for _, ts := range times {
				name := EncodeBackupName(original, ts, compressed)
				rec, ok := DecodeBackupName(name)
				require.True(t, ok, "decode %s", name)
				assert.Equal(t, original, rec.OriginalName)
				assert.Equal(t, name, rec.BackupName)
				assert.True(t, ts.Equal(rec.Timestamp), "timestamp mismatch for %s", name)
				assert.Equal(t, compressed, rec.Compressed)
			}
		}
	}
}

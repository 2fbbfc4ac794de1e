package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Backup filename grammar:
//
//	backup-name   = original-name "_" YYYYMMDD "_" (HHMMSS | HHMMSSmmm) ".d2s"
//	archived-name = backup-name ".zip"
//
// The filename is the only persistence mechanism for backup identity, so
// encoding and decoding must be exact inverses of each other.

const (
	// SaveExt is the recognized save-file extension, including the dot.
	SaveExt = ".d2s"
	// ArchiveExt is the suffix appended to compressed backups.
	ArchiveExt = ".zip"

	dateSegmentLen = 8
	timeSegmentLen = 6
	millisTimeLen  = 9
)

// EncodeBackupName builds the physical filename for a backup of originalName
// taken at ts. The millisecond form is used only when ts carries sub-second
// precision, so encode/decode round-trip exactly.
func EncodeBackupName(originalName string, ts time.Time, compressed bool) string {
	name := fmt.Sprintf("%s_%s_%s%s", originalName, ts.Format("20060102"), timeSegment(ts), SaveExt)
	if compressed {
		name += ArchiveExt
	}
	return name
}

func timeSegment(ts time.Time) string {
	base := ts.Format("150405")
	if ms := ts.Nanosecond() / int(time.Millisecond); ms > 0 {
		return fmt.Sprintf("%s%03d", base, ms)
	}
	return base
}

// DecodeBackupName parses a backup filename back into a record. Malformed
// names yield (nil, false) so directory scans can silently skip foreign
// files; decode failures are never surfaced as errors.
func DecodeBackupName(name string) (*BackupRecord, bool) {
	base := name
	compressed := false

	if strings.HasSuffix(base, SaveExt+ArchiveExt) {
		compressed = true
		base = strings.TrimSuffix(base, ArchiveExt)
	} else if !strings.HasSuffix(base, SaveExt) {
		return nil, false
	}

	stem := strings.TrimSuffix(base, SaveExt)

	// Split from the right: time segment, then date segment, then the
	// original name (which may itself contain underscores and digits).
	i := strings.LastIndexByte(stem, '_')
	if i < 0 {
		return nil, false
	}
	timeSeg := stem[i+1:]

	rest := stem[:i]
	j := strings.LastIndexByte(rest, '_')
	if j < 0 {
		return nil, false
	}
	dateSeg := rest[j+1:]
	original := rest[:j]

	if original == "" {
		return nil, false
	}

	ts, ok := parseTimestamp(dateSeg, timeSeg)
	if !ok {
		return nil, false
	}

	if !strings.HasSuffix(original, SaveExt) {
		original += SaveExt
	}

	return &BackupRecord{
		OriginalName: original,
		BackupName:   name,
		Timestamp:    ts,
		Compressed:   compressed,
	}, true
}

// parseTimestamp strictly parses the fixed-width date and time segments.
// Wrong digit counts, non-numeric content, or out-of-range components
// (month 13, hour 24, ...) are decode failures.
func parseTimestamp(dateSeg, timeSeg string) (time.Time, bool) {
	if len(dateSeg) != dateSegmentLen || !allDigits(dateSeg) {
		return time.Time{}, false
	}
	if (len(timeSeg) != timeSegmentLen && len(timeSeg) != millisTimeLen) || !allDigits(timeSeg) {
		return time.Time{}, false
	}

	year, _ := strconv.Atoi(dateSeg[0:4])
	month, _ := strconv.Atoi(dateSeg[4:6])
	day, _ := strconv.Atoi(dateSeg[6:8])
	hour, _ := strconv.Atoi(timeSeg[0:2])
	minute, _ := strconv.Atoi(timeSeg[2:4])
	second, _ := strconv.Atoi(timeSeg[4:6])

	millis := 0
	if len(timeSeg) == millisTimeLen {
		millis, _ = strconv.Atoi(timeSeg[6:9])
	}

	ts := time.Date(year, time.Month(month), day, hour, minute, second,
		millis*int(time.Millisecond), time.Local)

	// time.Date normalizes overflowing components, so reject anything
	// that does not survive the round trip unchanged.
	if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day ||
		ts.Hour() != hour || ts.Minute() != minute || ts.Second() != second {
		return time.Time{}, false
	}

	return ts, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

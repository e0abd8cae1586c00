package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

const (
	snapshotPrefix    = "training-"
	snapshotExtension = ".parquet"
	latestSnapshot    = "latest" + snapshotExtension
	// microseconds keep snapshots taken within the same second apart
	snapshotTimeFmt = "20060102T150405.000000Z"
	// keys written before microsecond precision was added
	legacySnapshotTimeFmt = "20060102T150405Z"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildSnapshotPath returns the key of a timestamped training snapshot for model.
func BuildSnapshotPath(model string, takenAt time.Time) (string, error) {
	if err := validatePathComponent(model, "model name"); err != nil {
		return "", err
	}
	return path.Join(model, snapshotPrefix+takenAt.UTC().Format(snapshotTimeFmt)+snapshotExtension), nil
}

// BuildLatestSnapshotPath returns the key that always holds the newest snapshot for model.
func BuildLatestSnapshotPath(model string) (string, error) {
	if err := validatePathComponent(model, "model name"); err != nil {
		return "", err
	}
	return path.Join(model, latestSnapshot), nil
}

// ParseSnapshotTime extracts the timestamp from a key built by BuildSnapshotPath.
func ParseSnapshotTime(key string) (time.Time, bool) {
	base := path.Base(key)
	if !strings.HasPrefix(base, snapshotPrefix) || !strings.HasSuffix(base, snapshotExtension) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(base, snapshotPrefix), snapshotExtension)
	for _, layout := range []string{snapshotTimeFmt, legacySnapshotTimeFmt} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

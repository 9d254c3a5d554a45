package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PurgeExpired removes batch files under dir whose newest point is older
// than now minus retention. Files are matched in every container directory
// directly below dir. Files written by keepRun are never removed, so a run
// that ingests an old log keeps its own output. It returns the number of
// files removed.
func PurgeExpired(dir string, retention time.Duration, now time.Time, keepRun string, logger *slog.Logger) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	files, err := filepath.Glob(filepath.Join(dir, "*", "*"+FileExt))
	if err != nil {
		return 0, err
	}

	threshold := now.Add(-retention).UnixMilli()
	removed := 0
	for _, path := range files {
		run, maxTs, err := parseBatchName(filepath.Base(path))
		if err != nil {
			continue // Skip files with unexpected names
		}
		if maxTs >= threshold || (keepRun != "" && run == keepRun) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to delete expired batch file", "path", path, "error", err)
			continue
		}
		logger.Info("expired batch file deleted", "path", path)
		removed++
	}
	return removed, nil
}

// parseBatchName returns the run ID and newest timestamp encoded in a batch
// file name.
func parseBatchName(filename string) (string, int64, error) {
	// points_{run}_{seq}_{minTs}_{maxTs}.dlts
	base := strings.TrimSuffix(filename, FileExt)
	parts := strings.Split(base, "_")
	if len(parts) != 5 || parts[0] != "points" {
		return "", 0, fmt.Errorf("invalid format")
	}
	maxTs, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return "", 0, err
	}
	return parts[1], maxTs, nil
}

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Rotate enforces the retention window at file granularity. Entries are
// never rewritten (the chain stays verifiable); instead, when the
// oldest entry in the active log falls outside the window, the whole
// file is renamed with its rotation timestamp and the next Record
// starts a fresh chain from genesis.
//
// Returns the archived path, or "" when no rotation was needed.
func (l *Log) Rotate(retention time.Duration) (string, error) {
	if retention <= 0 {
		return "", nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	oldest, err := oldestTimestamp(l.path)
	if err != nil || oldest.IsZero() {
		return "", err
	}
	if time.Since(oldest) < retention {
		return "", nil
	}

	archived := fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102T150405Z"))
	if err := l.file.Close(); err != nil {
		return "", fmt.Errorf("audit: close before rotate: %w", err)
	}
	if err := os.Rename(l.path, archived); err != nil {
		return "", fmt.Errorf("audit: rotate: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return "", fmt.Errorf("audit: reopen after rotate: %w", err)
	}
	l.file = file
	l.prevHash = GenesisHash
	return archived, nil
}

// oldestTimestamp reads the first line's timestamp from a JSONL log.
func oldestTimestamp(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return time.Time{}, nil
	}
	var first Record
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil {
		return time.Time{}, nil // unreadable first line: nothing to rotate
	}
	ts, err := time.Parse("2006-01-02T15:04:05.000Z", first.Timestamp)
	if err != nil {
		return time.Time{}, nil
	}
	return ts, nil
}

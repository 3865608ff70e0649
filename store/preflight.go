package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PreflightResult reports the outcome of the SQLite preflight check.
type PreflightResult struct {
	Healthy         bool   // No issues detected; safe to proceed.
	Quarantined     bool   // The database was renamed to avoid startup stalls.
	QuarantinePath  string // Path of the quarantined main file.
	Elapsed         time.Duration
	CheckpointError error
	CheckError      error
}

// Preflight runs a bounded WAL checkpoint plus quick_check before Open. A
// corrupt or stalled spot database is renamed to a timestamped quarantine path
// so the pipeline starts with a fresh file instead of hanging on open. Spots
// are append-only telemetry; losing a damaged file beats refusing to start.
func Preflight(path string, timeout time.Duration) (PreflightResult, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	start := time.Now().UTC()
	res := PreflightResult{}

	if strings.TrimSpace(path) == "" {
		return res, errors.New("store: preflight: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return res, fmt.Errorf("store: preflight: ensure dir: %w", err)
	}
	existing := collectExisting(path)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("store: preflight: open: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds())); err != nil {
		return res, fmt.Errorf("store: preflight: busy_timeout: %w", err)
	}

	_, checkpointErr := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)")
	checkErr := quickCheck(ctx, db)
	res.Elapsed = time.Since(start)
	res.CheckpointError = checkpointErr
	res.CheckError = checkErr

	if checkpointErr == nil && checkErr == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("store: preflight timed out after %s", timeout)
	}

	_ = db.Close()
	quarantinePath, qErr := quarantine(path, existing)
	if qErr != nil {
		return res, fmt.Errorf("store: preflight quarantine failed: %w (checkpoint=%v, quick_check=%v)",
			qErr, checkpointErr, checkErr)
	}
	res.Quarantined = true
	res.QuarantinePath = quarantinePath
	log.Printf("store: preflight failed (checkpoint=%v, quick_check=%v); quarantined to %s",
		checkpointErr, checkErr, quarantinePath)
	return res, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func collectExisting(path string) []string {
	targets := []string{path, path + "-wal", path + "-shm", path + "-journal"}
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if _, err := os.Stat(t); err == nil {
			out = append(out, t)
		}
	}
	return out
}

func quarantine(path string, existing []string) (string, error) {
	ts := time.Now().UTC().Format("20060102T150405Z")
	quarantinePath := fmt.Sprintf("%s.bad-%s", path, ts)
	for _, p := range existing {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue // sidecars can disappear after the checkpoint attempt
			}
			return "", err
		}
		if err := os.Rename(p, p+".bad-"+ts); err != nil {
			return "", err
		}
	}
	return quarantinePath, nil
}

package main

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"bandwatch/config"
)

// setupLogging mirrors log output to the configured file in addition to
// stderr. Returns a close function for shutdown; failures fall back to
// stderr-only logging rather than aborting startup.
func setupLogging(cfg config.LoggingConfig) func() {
	if cfg.File == "" {
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		log.Printf("Warning: log directory: %v", err)
		return func() {}
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("Warning: log file: %v", err)
		return func() {}
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}
}

package internal

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SetupLogging opens a per-run log file under ~/.tweetsearch/logs and returns
// a logger writing to it and to stderr. The returned func closes the file.
func SetupLogging(subcommand, storePath string, verbose bool) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }, err
	}

	logDir := filepath.Join(homeDir, ".tweetsearch", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }, err
	}

	logPath := filepath.Join(logDir, LogFileName(subcommand, storePath, time.Now()))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), func() error { return nil }, err
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, logFile), opts))
	logger.Debug("log file", "path", logPath)
	return logger, logFile.Close, nil
}

// LogFileName names a log file after the subcommand and the store it touched.
func LogFileName(subcommand, storePath string, now time.Time) string {
	name := sanitizeName(filepath.Base(storePath))
	hash := sha1.Sum([]byte(storePath))
	suffix := hex.EncodeToString(hash[:])[:8]
	return fmt.Sprintf("tweetsearch-%s-%s-%s-%s.log", subcommand, name, now.Format("20060102-150405"), suffix)
}

func sanitizeName(name string) string {
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "store"
	}
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

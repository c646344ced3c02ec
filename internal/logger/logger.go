// Package logger wraps logrus with kosmokopy's domain-specific logging
// helpers, one method per significant pipeline event.
package logger

import (
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with our custom functionality.
type Logger struct {
	*logrus.Logger
}

// New creates a new logger at the given level. Log output goes to
// stderr — stdout is reserved for the CLI's single JSON report line.
func New(level string) *Logger {
	l := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	l.SetLevel(logLevel)

	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	l.SetOutput(os.Stderr)

	return &Logger{Logger: l}
}

// LogTransferStarted logs the beginning of a single file's transfer.
func (l *Logger) LogTransferStarted(sourcePath, destPath string, sizeBytes int64) {
	l.WithFields(logrus.Fields{
		"event":       "transfer_started",
		"source_path": sourcePath,
		"dest_path":   destPath,
		"size_bytes":  sizeBytes,
	}).Debug("File transfer started")
}

// LogTransferCompleted logs a completed transfer with its effective rate.
func (l *Logger) LogTransferCompleted(sourcePath, destPath string, sizeBytes int64, duration time.Duration) {
	sizeMB := float64(sizeBytes) / (1024 * 1024)
	seconds := duration.Seconds()
	var rate float64
	if seconds > 0 {
		rate = math.Round(sizeMB/seconds*10) / 10
	}
	l.WithFields(logrus.Fields{
		"event":       "transfer_completed",
		"source_path": sourcePath,
		"dest_path":   destPath,
		"size_mb":     math.Round(sizeMB*10) / 10,
		"rate_mbps":   rate,
		"duration_ms": duration.Milliseconds(),
	}).Info("File transfer completed")
}

// LogTransferSkipped logs a file that the conflict resolver decided not
// to copy.
func (l *Logger) LogTransferSkipped(relPath, reason string) {
	l.WithFields(logrus.Fields{
		"event":    "transfer_skipped",
		"rel_path": relPath,
		"reason":   reason,
	}).Debug("File transfer skipped")
}

// LogControlMasterOpened logs the (lazy) first use of an SSH
// control-master socket for a host.
func (l *Logger) LogControlMasterOpened(host, controlPath string) {
	l.WithFields(logrus.Fields{
		"event":        "control_master_opened",
		"host":         host,
		"control_path": controlPath,
	}).Info("SSH control-master socket opened")
}

// LogControlMasterClosed logs the teardown of a control-master socket.
func (l *Logger) LogControlMasterClosed(host string) {
	l.WithFields(logrus.Fields{
		"event": "control_master_closed",
		"host":  host,
	}).Debug("SSH control-master socket closed")
}

// LogRemoteCommand logs a command issued over the remote channel.
func (l *Logger) LogRemoteCommand(host, command string, err error) {
	fields := logrus.Fields{
		"event":   "remote_command",
		"host":    host,
		"command": command,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Debug("Remote command failed")
		return
	}
	l.WithFields(fields).Debug("Remote command executed")
}

// LogCancelRequested logs the first cancellation signal received.
func (l *Logger) LogCancelRequested(signal string) {
	l.WithFields(logrus.Fields{
		"event":  "cancel_requested",
		"signal": signal,
	}).Info("Cancellation requested, stopping before the next file")
}

// LogVerifyMismatch logs a post-move hash mismatch that blocks source
// deletion.
func (l *Logger) LogVerifyMismatch(relPath, sourceHash, destHash string) {
	l.WithFields(logrus.Fields{
		"event":       "verify_mismatch",
		"rel_path":    relPath,
		"source_hash": sourceHash,
		"dest_hash":   destHash,
	}).Error("Integrity verification failed, source retained")
}

// LogRunSummary logs the final report at the end of a run.
func (l *Logger) LogRunSummary(status string, copied, excludedFiles, excludedDirs uint64, errCount int, duration time.Duration) {
	l.WithFields(logrus.Fields{
		"event":          "run_complete",
		"status":         status,
		"copied":         copied,
		"excluded_files": excludedFiles,
		"excluded_dirs":  excludedDirs,
		"errors":         errCount,
		"duration_ms":    duration.Milliseconds(),
	}).Info("Transfer run complete")
}

// Package logging builds the two named structured-logging sinks the rest of
// the service is handed at startup: an application log for operational
// detail, and a transaction log carrying exactly one record per study
// lifecycle transition. Both sit on log/slog, the logging idiom already
// used throughout the DICOM transport layers.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Sinks groups the two loggers every component above the wire layer is
// constructed with.
type Sinks struct {
	Application *slog.Logger
	Transaction *slog.Logger
}

// Open creates (or appends to) the application and transaction log files
// under dir, parses level, and returns the resulting sinks.
func Open(dir, applicationFile, transactionFile, level string) (Sinks, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Sinks{}, fmt.Errorf("logging: create log directory: %w", err)
	}

	appLevel := parseLevel(level)

	appFile, err := openAppend(filepath.Join(dir, applicationFile))
	if err != nil {
		return Sinks{}, err
	}
	txFile, err := openAppend(filepath.Join(dir, transactionFile))
	if err != nil {
		return Sinks{}, err
	}

	app := slog.New(slog.NewJSONHandler(appFile, &slog.HandlerOptions{Level: appLevel}))
	tx := slog.New(slog.NewJSONHandler(txFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	return Sinks{Application: app, Transaction: tx}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	return f, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TransactionRecord is the one-record-per-transition shape the error
// handling design mandates: timestamp (added by slog), study key, peer
// endpoint, outcome, and on failure an error kind. No patient-identifying
// attributes are ever logged here.
type TransactionRecord struct {
	Study     string
	Peer      string
	Outcome   string
	ErrorKind string
}

// Log writes one transaction record.
func (s Sinks) Log(r TransactionRecord) {
	attrs := []any{"study", r.Study, "peer", r.Peer, "outcome", r.Outcome}
	if r.ErrorKind != "" {
		attrs = append(attrs, "error_kind", r.ErrorKind)
	}
	s.Transaction.Info("lifecycle_transition", attrs...)
}

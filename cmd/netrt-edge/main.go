// Command netrt-edge runs the DICOM edge service: it receives image series
// and RT structure sets, rasterises surviving ROI contours into an overlay
// mask, synthesises a derived series carrying that mask, and forwards it to
// a downstream archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/caio-sobreiro/netrt/anonymize"
	"github.com/caio-sobreiro/netrt/config"
	"github.com/caio-sobreiro/netrt/listener"
	"github.com/caio-sobreiro/netrt/logging"
	"github.com/caio-sobreiro/netrt/orchestrator"
	"github.com/caio-sobreiro/netrt/server"
	"github.com/caio-sobreiro/netrt/services"
	"github.com/caio-sobreiro/netrt/spool"
	"github.com/caio-sobreiro/netrt/watcher"

	"github.com/caio-sobreiro/netrt/dimse"
)

const shutdownGrace = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "./config.yaml", "path to the service configuration document")
	debug := flag.Bool("debug", false, "force debug-level application logging, overriding configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netrt-edge: configuration: %v\n", err)
		return 1
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}

	logs, err := logging.Open(cfg.Directories.Logs, cfg.Logging.ApplicationFile, cfg.Logging.TransactionFile, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netrt-edge: logging: %v\n", err)
		return 1
	}

	logs.Application.Info("starting", "config", *configPath, "ae_title", cfg.DICOMListener.AETitle)

	fs := afero.NewOsFs()
	sp := spool.New(fs, cfg.Directories.Working, cfg.Directories.QuarantineSubdir)

	anon, err := anonymize.New(cfg.Anonymization.Rules)
	if err != nil {
		logs.Application.Error("invalid anonymization rules", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var w *watcher.Watcher
	var orch *orchestrator.Orchestrator

	// The Watcher needs the Orchestrator as its Dispatcher and the
	// Orchestrator needs the Watcher for DispatchComplete — construct the
	// Watcher first with a forwarding shim, then bind it to the real
	// Orchestrator once built.
	dispatchShim := &dispatcherShim{}
	w = watcher.New(
		time.Duration(cfg.Watcher.DebounceIntervalSeconds)*time.Second,
		cfg.Watcher.MinFileCountForProcessing,
		dispatchShim,
		logs.Application,
	)
	orch = orchestrator.New(sp, cfg, logs, w, anon, 1)
	dispatchShim.target = orch

	if err := watcher.RecoverOnStartup(fs, sp, w); err != nil {
		logs.Application.Warn("startup recovery scan failed", "error", err)
	}

	// The Listener's direct file-activity channel is the primary input; arm
	// an fsnotify watch on the working directory too, as defense-in-depth
	// for instances ever deposited by some process other than the Listener.
	if err := w.WatchFilesystem(cfg.Directories.Working, keyFromWorkingPath(cfg.Directories.Working)); err != nil {
		logs.Application.Warn("fsnotify watch on working directory failed, relying on the Listener's own events", "error", err)
	}

	go w.Run()
	defer w.Stop()

	storeHandler := listener.NewStoreHandler(sp, w.Events(), logs.Application, 0)

	registry := services.NewRegistry()
	registry.RegisterHandler(dimse.CEchoRQ, services.NewEchoService())
	registry.RegisterHandler(dimse.CStoreRQ, storeHandler)

	address := fmt.Sprintf("%s:%d", cfg.DICOMListener.Host, cfg.DICOMListener.Port)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe(ctx, address, cfg.DICOMListener.AETitle, registry,
			server.WithLogger(logs.Application))
	}()

	select {
	case err := <-serveErr:
		return classifyShutdown(logs, err)
	case <-ctx.Done():
		logs.Application.Info("shutdown signal received, waiting for in-flight studies", "grace", shutdownGrace)
		select {
		case err := <-serveErr:
			return classifyShutdown(logs, err)
		case <-time.After(shutdownGrace):
			logs.Application.Warn("shutdown grace period elapsed, exiting")
			return 0
		}
	}
}

func classifyShutdown(logs logging.Sinks, err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logs.Application.Info("shutdown complete")
		return 0
	default:
		logs.Application.Error("listener terminated unexpectedly", "error", err)
		return 1
	}
}

// keyFromWorkingPath derives a study-directory callback for
// watcher.WatchFilesystem, recovering the study key from the first path
// segment below root (the study's UID_-prefixed directory).
func keyFromWorkingPath(root string) func(path string) (spool.StudyKey, bool) {
	return func(path string) (spool.StudyKey, bool) {
		rel, err := filepath.Rel(root, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", false
		}
		first := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		return spool.KeyFromDirName(first)
	}
}

// dispatcherShim exists so the Watcher can be constructed before the
// Orchestrator it will dispatch into — both need a reference to the other.
type dispatcherShim struct {
	target *orchestrator.Orchestrator
}

func (d *dispatcherShim) Dispatch(key spool.StudyKey) {
	d.target.Dispatch(key)
}

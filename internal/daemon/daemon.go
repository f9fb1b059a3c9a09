package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/machug/woofalytics-v2-sub000/internal/config"
	"github.com/machug/woofalytics-v2-sub000/internal/deps"
	"github.com/machug/woofalytics-v2-sub000/internal/logging"
	"github.com/machug/woofalytics-v2-sub000/internal/pipeline"
)

// Daemon owns the barkd process lifecycle: single-instance locking,
// pre-flight dependency checks, and starting/stopping the pipeline
// supervisor.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor *pipeline.Supervisor
	logPath    string
	logHub     *logging.StreamHub
	logArchive *logging.EventArchive

	lockPath string
	lock     *flock.Flock

	running atomic.Bool

	depsMu       sync.RWMutex
	dependencies []DependencyStatus

	onnxLibraryPath string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	Dependencies []DependencyStatus
	PID          int
	Pipeline     pipeline.Status
}

// DependencyStatus reports the availability of an external requirement.
type DependencyStatus struct {
	Name      string
	Command   string
	Available bool
	Detail    string
}

// New constructs a daemon wrapping an already-wired pipeline supervisor.
func New(cfg *config.Config, supervisor *pipeline.Supervisor, logger *slog.Logger, logPath string, hub *logging.StreamHub, archive *logging.EventArchive, onnxLibraryPath string) (*Daemon, error) {
	if cfg == nil || supervisor == nil || logger == nil {
		return nil, errors.New("daemon requires config, supervisor, and logger")
	}

	lockPath := filepath.Join(cfg.LogDir, "barkd.lock")
	return &Daemon{
		cfg:             cfg,
		logger:          logging.NewComponentLogger(logger, "daemon"),
		supervisor:      supervisor,
		logPath:         logPath,
		logHub:          hub,
		logArchive:      archive,
		lockPath:        lockPath,
		lock:            flock.New(lockPath),
		onnxLibraryPath: onnxLibraryPath,
	}, nil
}

// Start acquires the single-instance lock, runs dependency checks, and
// starts the pipeline supervisor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another barkd instance is already running")
	}

	if err := d.runDependencyChecks(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	if err := d.supervisor.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("barkd started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops the pipeline supervisor and releases the daemon lock.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	d.supervisor.Stop()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldImpact, "stale lock may block future daemon starts"),
			logging.String(logging.FieldErrorHint, "run barkdctl stop again or remove the lock file manually"),
		)
	}
	d.running.Store(false)
	d.logger.Info("barkd stopped",
		logging.String(logging.FieldEventType, "daemon_stop"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop(context.Background())
	if d.logArchive != nil {
		return d.logArchive.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	if d == nil {
		return ""
	}
	return d.logPath
}

// LogStream exposes the live log event hub.
func (d *Daemon) LogStream() *logging.StreamHub {
	if d == nil {
		return nil
	}
	return d.logHub
}

// LogArchive exposes the on-disk event archive used for history replay.
func (d *Daemon) LogArchive() *logging.EventArchive {
	if d == nil {
		return nil
	}
	return d.logArchive
}

// Supervisor exposes the underlying pipeline supervisor for subscription
// and status queries.
func (d *Daemon) Supervisor() *pipeline.Supervisor {
	return d.supervisor
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.depsMu.RLock()
	dependencies := make([]DependencyStatus, len(d.dependencies))
	copy(dependencies, d.dependencies)
	d.depsMu.RUnlock()

	return Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Dependencies: dependencies,
		PID:          os.Getpid(),
		Pipeline:     d.supervisor.Status(),
	}
}

func (d *Daemon) runDependencyChecks() error {
	results := []deps.Status{
		deps.CheckSharedLibrary("ONNX Runtime", d.onnxLibraryPath),
		deps.CheckAudioDevice(d.cfg.Audio.DeviceName),
	}

	d.depsMu.Lock()
	d.dependencies = make([]DependencyStatus, len(results))
	for i, result := range results {
		d.dependencies[i] = DependencyStatus{
			Name:      result.Name,
			Command:   result.Command,
			Available: result.Available,
			Detail:    result.Detail,
		}
	}
	d.depsMu.Unlock()

	missing := make([]string, 0)
	for _, status := range results {
		if status.Available {
			continue
		}
		d.logger.Error("required dependency unavailable; daemon startup blocked",
			logging.String("dependency", status.Name),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldEventType, "dependency_unavailable"),
			logging.String(logging.FieldErrorHint, "install the dependency or update the configured path"),
		)
		missing = append(missing, status.Name)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required dependencies: %v", missing)
	}
	return nil
}

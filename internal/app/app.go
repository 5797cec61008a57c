package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/lucasew/dircap/internal/errutil"
	"github.com/lucasew/dircap/internal/eviction"
	_ "github.com/lucasew/dircap/internal/eviction/oldest"
	"github.com/lucasew/dircap/internal/eviction/policy"
	"github.com/lucasew/dircap/internal/eviction/policy/maxfiles"
	"github.com/lucasew/dircap/internal/eviction/policy/minfree"
	"github.com/lucasew/dircap/internal/journal"
	"github.com/lucasew/dircap/internal/repository"
	"github.com/spf13/afero"
)

// ErrAlreadyRunning is returned when another process holds the state directory lock.
var ErrAlreadyRunning = errors.New("another dircap instance is already running")

const (
	lockFileName    = "dircap.lock"
	journalFileName = "journal.db"
)

type Config struct {
	// HomeDir is the directory the watched "test" directory lives in.
	HomeDir      string
	Limit        uint32
	Interval     time.Duration
	Strategy     string
	MinFreeSpace int64
	// StateDir holds the lock file and the journal. Empty disables both.
	StateDir string
	Journal  bool
	// Fs overrides the filesystem the watched directory lives on. Nil means the OS.
	Fs afero.Fs
}

// Handle controls a running watchdog.
type Handle struct {
	mgr     *eviction.Manager
	journal *journal.Journal
	lock    *flock.Flock
	cancel  context.CancelFunc
	done    chan struct{}
	stop    sync.Once
}

// StartMonitoring ensures the watched directory exists and starts the capacity loop
// in the background. Nothing is started if the directory cannot be created.
func StartMonitoring(ctx context.Context, cfg Config) (*Handle, error) {
	if cfg.HomeDir == "" {
		return nil, errors.New("home directory is required")
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "oldest"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = eviction.DefaultInterval
	}

	strat, err := eviction.GetStrategy(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize eviction strategy: %w", err)
	}

	store := repository.NewLocalDirectory(repository.WatchedPath(cfg.HomeDir), cfg.Fs)
	if err := store.Ensure(ctx); err != nil {
		return nil, err
	}

	h := &Handle{done: make(chan struct{})}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state dir %s: %w", cfg.StateDir, err)
		}
		lockPath := filepath.Join(cfg.StateDir, lockFileName)
		h.lock = flock.New(lockPath)
		ok, err := h.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", lockPath, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: lock %s is held", ErrAlreadyRunning, lockPath)
		}
	} else if cfg.Journal {
		return nil, errors.New("journal requires a state directory")
	}

	if cfg.Journal {
		journalPath := filepath.Join(cfg.StateDir, journalFileName)
		h.journal, err = journal.Open(journalPath)
		if err != nil {
			h.release()
			return nil, fmt.Errorf("failed to open journal at %s: %w", journalPath, err)
		}
		slog.Info("Journal opened", "path", journalPath, "run_id", h.journal.RunID())
	}

	limit := eviction.NewLimit(cfg.Limit)
	policies := []policy.Policy{&maxfiles.Policy{}}
	if cfg.MinFreeSpace > 0 {
		slog.Info("Adding MinFreeSpace policy", "min_free", cfg.MinFreeSpace)
		policies = append(policies, &minfree.Policy{
			Path:         store.Path(),
			MinFreeBytes: cfg.MinFreeSpace,
		})
	}

	h.mgr = eviction.NewManager(store, limit, policies, cfg.Interval, strat)
	if h.journal != nil {
		h.mgr.SetRecorder(h.journal)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	go func() {
		defer close(h.done)
		h.mgr.Start(loopCtx)
	}()

	return h, nil
}

// SetLimit changes the file-count limit. It applies from the next cycle on.
func (h *Handle) SetLimit(n uint32) {
	old := h.mgr.Limit().Load()
	h.mgr.Limit().Store(n)
	slog.Info("File limit updated", "old", old, "new", n)
}

// Status returns a snapshot of the watchdog.
func (h *Handle) Status() eviction.Status {
	return h.mgr.Status()
}

// Recent returns the newest journal entries, or nothing when the journal is disabled.
func (h *Handle) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	if h.journal == nil {
		return nil, nil
	}
	return h.journal.Recent(ctx, n)
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop cancels the loop, waits for it to exit and releases held resources.
// It is safe to call more than once.
func (h *Handle) Stop() {
	h.stop.Do(func() {
		h.cancel()
		<-h.done
		h.release()
	})
}

func (h *Handle) release() {
	if h.journal != nil {
		errutil.Close(h.journal, "Failed to close journal")
	}
	if h.lock != nil {
		errutil.LogMsg(h.lock.Unlock(), "Failed to release lock", "path", h.lock.Path())
	}
}

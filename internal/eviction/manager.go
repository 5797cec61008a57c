package eviction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucasew/dircap/internal/eviction/policy"
)

// DefaultInterval is the wait between two cycles.
const DefaultInterval = 10 * time.Second

// Manager enforces the capacity of a single directory.
type Manager struct {
	store    Store
	limit    *Limit
	policies []policy.Policy
	strategy Strategy
	interval time.Duration
	recorder Recorder
	now      func() time.Time

	cycles           atomic.Int64
	evictions        atomic.Int64
	metadataFailures atomic.Int64

	mu   sync.RWMutex
	last Summary
}

// NewManager creates a new Manager.
func NewManager(store Store, limit *Limit, policies []policy.Policy, interval time.Duration, strategy Strategy) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Manager{
		store:    store,
		limit:    limit,
		policies: policies,
		strategy: strategy,
		interval: interval,
		now:      time.Now,
		last:     Summary{Action: ActionWaiting},
	}
}

// SetRecorder sets where eviction attempts are recorded.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// Limit returns the shared limit the manager reads every cycle.
func (m *Manager) Limit() *Limit {
	return m.limit
}

// Start runs the background eviction loop until ctx is done.
// The first cycle runs one interval after Start is called, and every
// following cycle waits a full interval after the previous one returns.
func (m *Manager) Start(ctx context.Context) {
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	slog.Info("Directory watch started", "path", m.store.Path(), "interval", m.interval, "limit", m.limit.Load())
	for {
		select {
		case <-ctx.Done():
			slog.Info("Directory watch stopped", "path", m.store.Path(), "cycles", m.cycles.Load())
			return
		case <-timer.C:
			m.RunCycle(ctx)
			timer.Reset(m.interval)
		}
	}
}

// RunCycle checks the directory once and evicts at most one file.
// Every failure is logged and reflected in the returned summary.
func (m *Manager) RunCycle(ctx context.Context) (sum Summary) {
	sum = Summary{
		Seq:       m.cycles.Add(1),
		StartedAt: m.now(),
		Limit:     m.limit.Load(),
	}
	path := m.store.Path()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Eviction cycle panicked", "path", path, "panic", r)
			sum.Err = fmt.Sprintf("panic: %v", r)
			switch {
			case sum.Action != "":
				// the recorder panicked after the outcome was known
			case sum.Target.Path != "":
				sum.Action = ActionEvictFailed
				m.record(ctx, sum)
			default:
				sum.Action = ActionPanicked
			}
		}
		sum.FinishedAt = m.now()
		m.mu.Lock()
		m.last = sum
		m.mu.Unlock()
	}()

	slog.Debug("Directory check started", "path", path, "cycle", sum.Seq)

	writable, err := m.store.Writable(ctx)
	if err != nil {
		slog.Error("Failed to check directory permission", "path", path, "error", err)
		sum.Action = ActionSkippedPermission
		sum.Err = err.Error()
		return sum
	}
	if !writable {
		slog.Warn("No write permission for directory", "path", path)
		sum.Action = ActionSkippedReadOnly
		return sum
	}

	candidates, stats, err := m.store.Scan(ctx)
	sum.Stats = stats
	m.metadataFailures.Add(int64(stats.MetadataFailures))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			sum.Action = ActionCancelled
			return sum
		}
		slog.Error("Failed to read directory", "path", path, "error", err)
		sum.Action = ActionSkippedEnumerate
		sum.Err = err.Error()
		return sum
	}
	sum.Eligible = len(candidates)
	slog.Info("Found files in directory", "path", path, "count", sum.Eligible, "limit", sum.Limit)

	if !m.exceeded(sum.Eligible, sum.Limit) {
		sum.Action = ActionNone
		return sum
	}

	victim, ok := m.strategy.Victim(candidates)
	if !ok {
		sum.Action = ActionNone
		return sum
	}
	sum.Target = victim

	if ctx.Err() != nil {
		sum.Action = ActionCancelled
		return sum
	}

	slog.Info("Too many files, removing oldest", "path", victim.Path, "mod_time", victim.ModTime, "count", sum.Eligible, "limit", sum.Limit)
	if err := m.store.Delete(ctx, victim.Path); err != nil {
		slog.Error("Failed to remove file", "path", victim.Path, "error", err)
		sum.Action = ActionEvictFailed
		sum.Err = err.Error()
	} else {
		slog.Info("Removed file", "path", victim.Path)
		sum.Action = ActionEvicted
		m.evictions.Add(1)
	}

	m.record(ctx, sum)
	return sum
}

func (m *Manager) exceeded(count int, limit uint32) bool {
	for _, p := range m.policies {
		over, err := p.Exceeded(count, limit)
		if err != nil {
			slog.Error("Failed to check capacity policy", "error", err)
			continue
		}
		if over {
			return true
		}
	}
	return false
}

func (m *Manager) record(ctx context.Context, sum Summary) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(context.WithoutCancel(ctx), sum); err != nil {
		slog.Warn("Failed to record eviction", "path", sum.Target.Path, "error", err)
	}
}

// Status returns a snapshot for display.
func (m *Manager) Status() Status {
	m.mu.RLock()
	last := m.last
	m.mu.RUnlock()

	return Status{
		WatchedPath:      m.store.Path(),
		Limit:            m.limit.Load(),
		Interval:         m.interval,
		Cycles:           m.cycles.Load(),
		Evictions:        m.evictions.Load(),
		MetadataFailures: m.metadataFailures.Load(),
		Last:             last,
	}
}

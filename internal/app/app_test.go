package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lucasew/dircap/internal/eviction"
	"github.com/lucasew/dircap/internal/repository"
)

func TestStartMonitoring(t *testing.T) {
	home := t.TempDir()
	watched := repository.WatchedPath(home)

	h, err := StartMonitoring(context.Background(), Config{
		HomeDir:  home,
		Limit:    3,
		Interval: 10 * time.Millisecond,
		StateDir: filepath.Join(t.TempDir(), "state"),
		Journal:  true,
	})
	if err != nil {
		t.Fatalf("StartMonitoring failed: %v", err)
	}
	defer h.Stop()

	if info, err := os.Stat(watched); err != nil || !info.IsDir() {
		t.Fatalf("expected watched directory to be created: %v", err)
	}

	now := time.Now()
	for i, name := range []string{"a", "b", "c", "d"} {
		path := filepath.Join(watched, name)
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		mt := now.Add(time.Duration(i-10) * time.Minute)
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, func() bool { return h.Status().Evictions >= 1 })

	if _, err := os.Stat(filepath.Join(watched, "a")); !os.IsNotExist(err) {
		t.Error("expected the oldest file to be evicted")
	}
	for _, name := range []string{"b", "c", "d"} {
		if _, err := os.Stat(filepath.Join(watched, name)); err != nil {
			t.Errorf("expected %s to survive: %v", name, err)
		}
	}

	entries, err := h.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != filepath.Join(watched, "a") {
		t.Errorf("expected one journal entry for a, got %+v", entries)
	}

	h.SetLimit(1)
	waitFor(t, func() bool { return h.Status().Evictions >= 3 })
	if got := h.Status().Limit; got != 1 {
		t.Errorf("expected limit 1, got %d", got)
	}

	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Error("expected loop to be done after Stop")
	}
	h.Stop()
}

func TestStartMonitoring_MissingParent(t *testing.T) {
	home := filepath.Join(t.TempDir(), "no-such-home")

	h, err := StartMonitoring(context.Background(), Config{HomeDir: home, Limit: 3})
	if !errors.Is(err, repository.ErrEnsure) {
		t.Fatalf("expected ErrEnsure, got %v", err)
	}
	if h != nil {
		t.Error("expected no handle on failure")
	}
}

func TestStartMonitoring_SingleInstance(t *testing.T) {
	stateDir := t.TempDir()
	cfg := Config{HomeDir: t.TempDir(), Limit: 3, Interval: time.Hour, StateDir: stateDir}

	first, err := StartMonitoring(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first StartMonitoring failed: %v", err)
	}

	if _, err := StartMonitoring(context.Background(), cfg); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()

	second, err := StartMonitoring(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartMonitoring after Stop failed: %v", err)
	}
	second.Stop()
}

func TestStartMonitoring_UnknownStrategy(t *testing.T) {
	_, err := StartMonitoring(context.Background(), Config{HomeDir: t.TempDir(), Strategy: "newest"})
	if !errors.Is(err, eviction.ErrStrategyNotFound) {
		t.Errorf("expected ErrStrategyNotFound, got %v", err)
	}
}

func TestStartMonitoring_JournalNeedsStateDir(t *testing.T) {
	if _, err := StartMonitoring(context.Background(), Config{HomeDir: t.TempDir(), Journal: true}); err == nil {
		t.Error("expected an error when journal has no state dir")
	}
}

func TestStartMonitoring_ParentContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := StartMonitoring(ctx, Config{HomeDir: t.TempDir(), Limit: 3, Interval: time.Hour})
	if err != nil {
		t.Fatalf("StartMonitoring failed: %v", err)
	}
	defer h.Stop()

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit when the parent context was cancelled")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartMonitoring_MinFreeSpace(t *testing.T) {
	tests := []struct {
		name    string
		minFree int64
		want    eviction.Action
	}{
		{"Disabled Keeps Files Under Limit", 0, eviction.ActionNone},
		{"Enabled Evicts Under Limit", math.MaxInt64, eviction.ActionEvicted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			h, err := StartMonitoring(context.Background(), Config{
				HomeDir:      home,
				Limit:        3,
				Interval:     time.Hour,
				MinFreeSpace: tt.minFree,
			})
			if err != nil {
				t.Fatalf("StartMonitoring failed: %v", err)
			}
			defer h.Stop()

			if err := os.WriteFile(filepath.Join(repository.WatchedPath(home), "only"), []byte("x"), 0o644); err != nil {
				t.Fatal(err)
			}

			sum := h.mgr.RunCycle(context.Background())
			if sum.Eligible != 1 || sum.Limit != 3 {
				t.Fatalf("unexpected cycle: eligible %d limit %d", sum.Eligible, sum.Limit)
			}
			if sum.Action != tt.want {
				t.Errorf("expected %s, got %s (%s)", tt.want, sum.Action, sum.Err)
			}
		})
	}
}

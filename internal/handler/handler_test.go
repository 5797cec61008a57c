package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lucasew/dircap/internal/eviction"
	"github.com/lucasew/dircap/internal/journal"
)

type fakeController struct {
	mu        sync.Mutex
	limit     uint32
	recent    []journal.Entry
	recentErr error
}

func (f *fakeController) Status() eviction.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return eviction.Status{
		WatchedPath: "/home/u/test",
		Limit:       f.limit,
		Interval:    10 * time.Second,
		Cycles:      7,
		Evictions:   2,
		Last: eviction.Summary{
			Seq:      7,
			Eligible: 3,
			Limit:    f.limit,
			Action:   eviction.ActionNone,
		},
	}
}

func (f *fakeController) SetLimit(n uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = n
}

func (f *fakeController) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	return f.recent, f.recentErr
}

func TestControlHandler(t *testing.T) {
	ctl := &fakeController{
		limit:  3,
		recent: []journal.Entry{{ID: 1, Path: "/home/u/test/a", Outcome: "evicted"}},
	}
	quitCalled := false
	h := NewControlHandler(ctl, func() { quitCalled = true })

	t.Run("Status", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/status", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %s", ct)
		}

		var resp StatusResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if resp.WatchedPath != "/home/u/test" || resp.Limit != 3 || resp.Interval != "10s" {
			t.Errorf("unexpected status: %+v", resp)
		}
		if resp.Last.Action != eviction.ActionNone || resp.Last.Eligible != 3 {
			t.Errorf("unexpected last cycle: %+v", resp.Last)
		}
		if len(resp.Recent) != 1 || resp.Recent[0].Path != "/home/u/test/a" {
			t.Errorf("unexpected recent entries: %+v", resp.Recent)
		}
	})

	t.Run("Set Limit", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/limit", strings.NewReader(`{"limit": 0}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d. Body: %s", w.Code, w.Body.String())
		}
		if got := ctl.Status().Limit; got != 0 {
			t.Errorf("expected limit 0, got %d", got)
		}
	})

	t.Run("Set Limit Via POST", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/limit", strings.NewReader(`{"limit": 12}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", w.Code)
		}
		if got := ctl.Status().Limit; got != 12 {
			t.Errorf("expected limit 12, got %d", got)
		}
	})

	invalid := []struct {
		name string
		body string
	}{
		{"Negative", `{"limit": -1}`},
		{"Too Large", `{"limit": 4294967296}`},
		{"Missing", `{}`},
		{"Not JSON", `three`},
		{"Unknown Field", `{"limit": 1, "path": "/etc"}`},
		{"Fractional", `{"limit": 1.5}`},
	}
	for _, tt := range invalid {
		t.Run("Invalid Limit "+tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/limit", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", w.Code)
			}
			if got := ctl.Status().Limit; got != 12 {
				t.Errorf("limit should be unchanged, got %d", got)
			}
		})
	}

	t.Run("Wrong Method", func(t *testing.T) {
		req := httptest.NewRequest("DELETE", "/status", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", w.Code)
		}
	})

	t.Run("Quit", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/quit", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("expected status 202, got %d", w.Code)
		}
		if !quitCalled {
			t.Error("expected quit to be called")
		}
	})
}

func TestControlHandler_JournalError(t *testing.T) {
	ctl := &fakeController{limit: 3, recentErr: errors.New("database is locked")}
	h := NewControlHandler(ctl, nil)

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 despite journal error, got %d", w.Code)
	}
	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.Recent) != 0 {
		t.Errorf("expected no recent entries, got %+v", resp.Recent)
	}
}

package oplog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingMetrics struct {
	mu      sync.Mutex
	shipped int
	errors  int
}

func (m *recordingMetrics) IncShipped(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipped++
}

func (m *recordingMetrics) IncErrors(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}

func TestShipperDeliversAppendedEntries(t *testing.T) {
	var mu sync.Mutex
	var received []Entry

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var entries []Entry
		if err := json.Unmarshal(body, &entries); err != nil {
			t.Errorf("unmarshal replication payload: %v", err)
		}
		mu.Lock()
		received = append(received, entries...)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := NewManager()
	log := manager.For("tenant-a")
	preSeq := log.CurrentSeq()
	log.Append(OpAdd, []map[string]any{{"objectID": "1"}}, nil)
	log.Append(OpAdd, []map[string]any{{"objectID": "2"}}, nil)

	metrics := &recordingMetrics{}
	shipper := NewShipper(manager, []string{server.URL}, nil, testLogger(), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	shipper.Start(ctx)
	shipper.Ship(ShipJob{Tenant: "tenant-a", PreSeq: preSeq})

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for replication, got %d entries", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	shipper.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected exactly the 2 ops appended after pre_seq, got %d", len(received))
	}
	if received[0].Seq != preSeq+1 || received[1].Seq != preSeq+2 {
		t.Fatalf("expected seq order preserved, got %+v", received)
	}

	if metrics.shipped == 0 {
		t.Fatal("expected at least one successful ship to be recorded")
	}
}

func TestShipperNoPeersIsNoOp(t *testing.T) {
	manager := NewManager()
	shipper := NewShipper(manager, nil, nil, testLogger(), nil)
	shipper.Start(context.Background())
	shipper.Ship(ShipJob{Tenant: "t", PreSeq: 0})
	shipper.Close()
}

func TestShipperEmptyDeltaSkipsPeer(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	manager := NewManager()
	log := manager.For("tenant-b")
	log.Append(OpAdd, []map[string]any{{"objectID": "1"}}, nil)
	currentSeq := log.CurrentSeq()

	shipper := NewShipper(manager, []string{server.URL}, nil, testLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	shipper.Start(ctx)
	// pre_seq == current seq: nothing new to ship, ReadSince returns empty.
	shipper.Ship(ShipJob{Tenant: "tenant-b", PreSeq: currentSeq})

	time.Sleep(100 * time.Millisecond)
	cancel()
	shipper.Close()

	if called {
		t.Fatal("expected no HTTP call when ReadSince returns no new entries")
	}
}

package oplog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ShipJob is a request to replicate every oplog entry appended to tenant
// since preSeq to all configured peers.
type ShipJob struct {
	Tenant  string
	PreSeq  uint64
	Grace   time.Duration
}

const (
	shipBufferSize  = 256
	shipFlushEvery  = 2 * time.Second
	shipFlushBatch  = 32
)

// ReplicationMetrics is the subset of the telemetry collectors the shipper
// updates; kept as an interface so oplog does not import the telemetry
// package directly.
type ReplicationMetrics interface {
	IncShipped(peer string)
	IncErrors(peer string)
}

// Shipper is a best-effort replication pipeline: write handlers enqueue a
// ShipJob after snapshotting pre_seq, and a single background goroutine
// drains the queue in batches, POSTing each job's read_since(pre_seq) delta
// to every configured peer. Modeled on the buffered-channel + ticker +
// batch-flush shape used elsewhere in this codebase for async fan-out work.
type Shipper struct {
	manager *Manager
	peers   []string
	client  *http.Client
	logger  *slog.Logger
	metrics ReplicationMetrics

	jobs chan ShipJob
	wg   sync.WaitGroup
}

// NewShipper constructs a Shipper targeting the given peer base URLs.
func NewShipper(manager *Manager, peers []string, client *http.Client, logger *slog.Logger, metrics ReplicationMetrics) *Shipper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Shipper{
		manager: manager,
		peers:   peers,
		client:  client,
		logger:  logger,
		metrics: metrics,
		jobs:    make(chan ShipJob, shipBufferSize),
	}
}

// Start launches the background flush loop in its own goroutine and
// returns at once; with no peers configured it starts nothing. Close waits
// for the loop to exit.
func (s *Shipper) Start(ctx context.Context) {
	if len(s.peers) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Close waits for the background loop to drain and exit.
func (s *Shipper) Close() {
	close(s.jobs)
	s.wg.Wait()
}

// Ship enqueues a replication job after its grace delay elapses. Never
// blocks the caller: if the buffer is full, the job is dropped and a
// warning logged; catch-up replication covers the gap.
func (s *Shipper) Ship(job ShipJob) {
	if len(s.peers) == 0 {
		return
	}
	go func() {
		if job.Grace > 0 {
			time.Sleep(job.Grace)
		}
		select {
		case s.jobs <- job:
		default:
			s.logger.Warn("replication buffer full, dropping ship job",
				"tenant", job.Tenant, "pre_seq", job.PreSeq)
		}
	}()
}

func (s *Shipper) run(ctx context.Context) {
	ticker := time.NewTicker(shipFlushEvery)
	defer ticker.Stop()

	batch := make([]ShipJob, 0, shipFlushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case job, ok := <-s.jobs:
			if !ok {
				flush()
				return
			}
			batch = append(batch, job)
			if len(batch) >= shipFlushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case job, ok := <-s.jobs:
					if !ok {
						flush()
						return
					}
					batch = append(batch, job)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Shipper) flush(jobs []ShipJob) {
	// Collapse duplicate (tenant, lowest pre_seq) pairs so a burst of writes
	// to the same tenant ships once per flush instead of once per write.
	lowest := make(map[string]uint64, len(jobs))
	for _, j := range jobs {
		if cur, ok := lowest[j.Tenant]; !ok || j.PreSeq < cur {
			lowest[j.Tenant] = j.PreSeq
		}
	}

	for tenant, preSeq := range lowest {
		log := s.manager.For(tenant)
		entries := log.ReadSince(preSeq)
		if len(entries) == 0 {
			continue
		}
		for _, peer := range s.peers {
			s.shipTo(peer, tenant, entries)
		}
	}
}

func (s *Shipper) shipTo(peer, tenant string, entries []Entry) {
	body, err := json.Marshal(entries)
	if err != nil {
		s.logger.Error("marshaling replication payload", "error", err, "tenant", tenant)
		return
	}

	url := fmt.Sprintf("%s/internal/replicate/%s", peer, tenant)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.logger.Error("building replication request", "error", err, "peer", peer)
		if s.metrics != nil {
			s.metrics.IncErrors(peer)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("replication request failed", "error", err, "peer", peer, "tenant", tenant)
		if s.metrics != nil {
			s.metrics.IncErrors(peer)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warn("replication peer rejected shipment", "status", resp.StatusCode, "peer", peer, "tenant", tenant)
		if s.metrics != nil {
			s.metrics.IncErrors(peer)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.IncShipped(peer)
	}
}

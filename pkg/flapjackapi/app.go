// Package flapjackapi wires the domain packages (keystore, acl, pause
// registry, filter, document, oplog, embedder, engine) into the
// Algolia-compatible HTTP surface: batch/CRUD
// document endpoints, search/browse, settings/synonyms/rules management,
// and the admin key and secured-key endpoints.
package flapjackapi

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/flapjack/flapjack/internal/engine"
	"github.com/flapjack/flapjack/internal/ratelimit"
	"github.com/flapjack/flapjack/pkg/embedder"
	"github.com/flapjack/flapjack/pkg/keystore"
	"github.com/flapjack/flapjack/pkg/oplog"
	"github.com/flapjack/flapjack/pkg/pauseregistry"
)

// WriteMetrics is the subset of the telemetry collectors write handlers
// update directly (as opposed to the replication shipper's own metrics,
// which oplog.Shipper updates through oplog.ReplicationMetrics).
type WriteMetrics interface {
	IncDocumentsIndexed(index string, n int)
	IncDocumentsDeleted(index string, n int)
}

// RateLimiter checks an API key's max_queries_per_ip_per_hour budget.
// Implemented by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, keyHash, ip string, maxPerHour int64) (ratelimit.Result, error)
}

// App bundles every shared dependency the HTTP handlers need: the
// process-wide KeyStore and PauseRegistry, the per-tenant oplog manager and
// replication shipper, the in-memory engine standing in for the opaque
// segmented inverted index, the embedder registry, and operational
// concerns (batch size limit, logger, metrics).
type App struct {
	Keys      *keystore.KeyStore
	Paused    *pauseregistry.PausedIndexes
	Oplogs    *oplog.Manager
	Shipper   *oplog.Shipper
	Engine    *engine.Engine
	Embedders *embedder.Registry
	RateLimit RateLimiter
	Metrics   WriteMetrics
	Logger    *slog.Logger

	MaxBatchSize       int
	ReplicationGraceMs int64
	NoAuth             bool
	AnalyticsDataDir   string

	taskSeq uint64
}

// NextTaskID hands out the monotonic numeric taskID every write response
// carries. It is independent of any one tenant's oplog sequence: tasks are
// a client-polling concept, not a replication cursor.
func (a *App) NextTaskID() uint64 {
	return atomic.AddUint64(&a.taskSeq, 1)
}

// CurrentTaskID is the highest taskID handed out so far.
func (a *App) CurrentTaskID() uint64 {
	return atomic.LoadUint64(&a.taskSeq)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

package flapjackapi

import (
	"net/http"
	"time"

	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/ferr"
	"github.com/flapjack/flapjack/pkg/oplog"
)

// checkPause enforces the write-path pause guard. Returns false
// and writes the 503 index_paused response if indexName is paused; read
// handlers must never call this.
func (a *App) checkPause(w http.ResponseWriter, indexName string) bool {
	if !a.Paused.IsPaused(indexName) {
		return true
	}
	err := ferr.IndexPaused(indexName)
	httpserver.RespondServiceError(w, err.Status, err.Code, err.Message)
	return false
}

// writeResult is what a write handler returns to recordWrite: the mutation
// to append to the oplog, plus the counts used to bump usage metrics.
type writeResult struct {
	Kind         oplog.OpKind
	Docs         []map[string]any
	IDs          []string
	IndexedCount int
	DeletedCount int
}

// recordWrite finishes a write handler's mutation: given the pre_seq
// snapshotted before the mutation already applied by the caller, append the
// resulting oplog entry, update usage counters, and enqueue a replication
// ship job (immediately for delete-only mutations, after the configured
// grace delay otherwise). Returns the taskID the HTTP response should
// carry.
func (a *App) recordWrite(tenant, indexName string, preSeq uint64, res writeResult) uint64 {
	log := a.Oplogs.For(tenant)

	kind := res.Kind
	if len(res.Docs) == 0 && len(res.IDs) == 0 {
		kind = oplog.OpNoOp
	}
	log.Append(kind, res.Docs, res.IDs)

	if a.Metrics != nil {
		if res.IndexedCount > 0 {
			a.Metrics.IncDocumentsIndexed(indexName, res.IndexedCount)
		}
		if res.DeletedCount > 0 {
			a.Metrics.IncDocumentsDeleted(indexName, res.DeletedCount)
		}
	}

	grace := time.Duration(a.ReplicationGraceMs) * time.Millisecond
	if kind == oplog.OpDelete {
		grace = 0
	}
	if a.Shipper != nil {
		a.Shipper.Ship(oplog.ShipJob{Tenant: tenant, PreSeq: preSeq, Grace: grace})
	}

	return a.NextTaskID()
}

// preSeq snapshots the tenant's oplog sequence before a mutation. Replication
// ships exactly the ops appended after this point, so it must be read before
// the engine is touched, not after.
func (a *App) preSeq(tenant string) uint64 {
	return a.Oplogs.For(tenant).CurrentSeq()
}

package flapjackapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/document"
	"github.com/flapjack/flapjack/pkg/ferr"
	"github.com/flapjack/flapjack/pkg/filter"
	"github.com/flapjack/flapjack/pkg/oplog"
)

// batchOperation is one entry of an Algolia `/batch` request.
type batchOperation struct {
	Action            string         `json:"action" validate:"required,oneof=addObject updateObject deleteObject partialUpdateObject partialUpdateObjectNoCreate"`
	Body              map[string]any `json:"body"`
	CreateIfNotExists *bool          `json:"createIfNotExists,omitempty"`
}

type batchRequest struct {
	// Requests' elements are validated for Action through the dive tag:
	// go-playground/validator does not descend into a slice without one.
	Requests  []batchOperation `json:"requests" validate:"dive"`
	Documents []map[string]any `json:"documents"` // legacy shorthand: implicit addObject per entry
}

type batchResponse struct {
	TaskID    uint64   `json:"taskID"`
	ObjectIDs []string `json:"objectIDs"`
}

// HandleBatch implements POST /1/indexes/{index}/batch.
func (a *App) HandleBatch(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !a.checkPause(w, indexName) {
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid batch body: %v", err))
		return
	}
	if fErr := validateBody(req); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	ops := req.Requests
	for _, doc := range req.Documents {
		ops = append(ops, batchOperation{Action: "addObject", Body: doc})
	}

	if len(ops) > a.MaxBatchSize {
		writeFerr(w, ferr.BatchTooLarge(len(ops), a.MaxBatchSize))
		return
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant

	var deletes []batchOperation
	var rest []batchOperation
	for _, op := range ops {
		if op.Action == "deleteObject" {
			deletes = append(deletes, op)
		} else {
			rest = append(rest, op)
		}
	}

	preSeq := a.preSeq(tenant)

	var objectIDs []string
	var deletedIDs []string
	for _, op := range deletes {
		oid, ok := objectIDFromBody(op.Body)
		if !ok {
			continue
		}
		a.Engine.Delete(tenant, indexName, []string{oid})
		deletedIDs = append(deletedIDs, oid)
		objectIDs = append(objectIDs, oid)
	}

	var upserts []document.Document
	for _, op := range rest {
		oid, err := a.applyBatchOp(tenant, indexName, op)
		if err != nil {
			writeFerr(w, err)
			return
		}
		objectIDs = append(objectIDs, oid)
		if d, ok := a.Engine.Get(tenant, indexName, oid); ok {
			upserts = append(upserts, d)
		}
	}

	res := writeResult{
		Kind:         kindFor(len(upserts) > 0, len(deletedIDs) > 0),
		Docs:         docsToMaps(upserts),
		IDs:          deletedIDs,
		IndexedCount: len(upserts),
		DeletedCount: len(deletedIDs),
	}
	taskID := a.recordWrite(tenant, indexName, preSeq, res)

	httpserver.Respond(w, http.StatusOK, batchResponse{TaskID: taskID, ObjectIDs: objectIDs})
}

func kindFor(hasAdds, hasDeletes bool) oplog.OpKind {
	switch {
	case hasAdds:
		return oplog.OpAdd
	case hasDeletes:
		return oplog.OpDelete
	default:
		return oplog.OpNoOp
	}
}

// applyBatchOp dispatches one non-delete batch action and returns the
// resulting objectID.
func (a *App) applyBatchOp(tenant, indexName string, op batchOperation) (string, *ferr.Error) {
	switch op.Action {
	case "addObject":
		return a.upsertDocument(tenant, indexName, op.Body, true)
	case "updateObject":
		if _, ok := objectIDFromBody(op.Body); !ok {
			return "", ferr.MissingField("objectID")
		}
		return a.upsertDocument(tenant, indexName, op.Body, false)
	case "partialUpdateObject", "partialUpdateObjectNoCreate":
		oid, ok := objectIDFromBody(op.Body)
		if !ok {
			return "", ferr.MissingField("objectID")
		}
		createIfNotExists := op.Action == "partialUpdateObject" && (op.CreateIfNotExists == nil || *op.CreateIfNotExists)
		return a.applyPartialUpdate(tenant, indexName, oid, op.Body, createIfNotExists)
	default:
		return "", ferr.InvalidQuery("unknown batch action %q", op.Action)
	}
}

func objectIDFromBody(body map[string]any) (string, bool) {
	if v, ok := body["objectID"].(string); ok && v != "" {
		return v, true
	}
	if v, ok := body["_id"].(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// upsertDocument converts body into an engine document and stores it,
// minting an objectID when autoID is true and none was supplied.
func (a *App) upsertDocument(tenant, indexName string, body map[string]any, autoID bool) (string, *ferr.Error) {
	fallback := ""
	if autoID {
		if oid, ok := objectIDFromBody(body); ok {
			fallback = oid
		} else {
			fallback = uuid.NewString()
		}
	}
	doc, err := document.FromJSON(body, fallback)
	if err != nil {
		return "", ferr.MissingField("objectID")
	}
	a.Engine.Upsert(tenant, indexName, []document.Document{doc})
	return doc.ID, nil
}

// HandleAddObject implements POST /1/indexes/{index} (auto-id add).
func (a *App) HandleAddObject(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !a.checkPause(w, indexName) {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid document body: %v", err))
		return
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	oid, fErr := a.upsertDocument(tenant, indexName, body, true)
	if fErr != nil {
		writeFerr(w, fErr)
		return
	}
	d, _ := a.Engine.Get(tenant, indexName, oid)

	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{
		Kind: oplog.OpAdd, Docs: docsToMaps([]document.Document{d}), IndexedCount: 1,
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "objectID": oid, "createdAt": nowRFC3339(),
	})
}

// HandlePutObject implements PUT /1/indexes/{index}/{objectID} (full replace).
func (a *App) HandlePutObject(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid document body: %v", err))
		return
	}
	body["objectID"] = objectID

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	doc, err := document.FromJSON(body, objectID)
	if err != nil {
		writeFerr(w, ferr.MissingField("objectID"))
		return
	}
	a.Engine.Upsert(tenant, indexName, []document.Document{doc})

	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{
		Kind: oplog.OpAdd, Docs: docsToMaps([]document.Document{doc}), IndexedCount: 1,
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "objectID": objectID, "updatedAt": nowRFC3339(),
	})
}

// HandleDeleteObject implements DELETE /1/indexes/{index}/{objectID}.
func (a *App) HandleDeleteObject(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	a.Engine.Delete(tenant, indexName, []string{objectID})

	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{
		Kind: oplog.OpDelete, IDs: []string{objectID}, DeletedCount: 1,
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "deletedAt": nowRFC3339(),
	})
}

// HandleGetObject implements GET /1/indexes/{index}/{objectID}.
func (a *App) HandleGetObject(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")

	id, _ := identityFromContext(r.Context())
	d, ok := a.Engine.Get(id.Tenant, indexName, objectID)
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "object not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, d.ToJSON())
}

// partialUpdateRequest is the body of POST .../{objectID}/partial.
type partialUpdateRequest map[string]any

// HandlePartialUpdate implements
// POST /1/indexes/{index}/{objectID}/partial?createIfNotExists=.
func (a *App) HandlePartialUpdate(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	var body partialUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid partial update body: %v", err))
		return
	}

	createIfNotExists := true
	if v := r.URL.Query().Get("createIfNotExists"); v == "false" {
		createIfNotExists = false
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	oid, fErr := a.applyPartialUpdate(tenant, indexName, objectID, body, createIfNotExists)
	if fErr != nil {
		writeFerr(w, fErr)
		return
	}
	if oid == "" {
		// Target didn't exist and createIfNotExists was false: a no-op,
		// but still acknowledged with a task id.
		httpserver.Respond(w, http.StatusOK, map[string]any{
			"taskID": a.NextTaskID(), "objectID": objectID, "updatedAt": nowRFC3339(),
		})
		return
	}

	d, _ := a.Engine.Get(tenant, indexName, oid)
	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{
		Kind: oplog.OpAdd, Docs: docsToMaps([]document.Document{d}), IndexedCount: 1,
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "objectID": oid, "updatedAt": nowRFC3339(),
	})
}

// applyPartialUpdate merges updates into the existing object (or creates it
// when createIfNotExists is set), returning "" when no existing object was
// found and createIfNotExists was false.
func (a *App) applyPartialUpdate(tenant, indexName, objectID string, updates map[string]any, createIfNotExists bool) (string, *ferr.Error) {
	existing, ok := a.Engine.Get(tenant, indexName, objectID)
	var base map[string]any
	if ok {
		base = existing.ToJSON()
	} else if !createIfNotExists {
		return "", nil
	} else {
		base = map[string]any{"objectID": objectID}
	}

	merged := document.ApplyPartialUpdate(base, updates)
	merged["objectID"] = objectID

	doc, err := document.FromJSON(merged, objectID)
	if err != nil {
		return "", ferr.InvalidDocument("%v", err)
	}
	a.Engine.Upsert(tenant, indexName, []document.Document{doc})
	return doc.ID, nil
}

type deleteByQueryRequest struct {
	Filters string `json:"filters" validate:"required"`
}

// HandleDeleteByQuery implements POST /1/indexes/{index}/deleteByQuery.
func (a *App) HandleDeleteByQuery(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !a.checkPause(w, indexName) {
		return
	}

	var req deleteByQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFerr(w, ferr.InvalidQuery("deleteByQuery requires a non-empty `filters`"))
		return
	}
	if fErr := validateBody(req); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	f, err := filter.ParseString(req.Filters)
	if err != nil {
		writeFerr(w, ferr.InvalidQuery("parsing filters: %v", err))
		return
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	deleted := a.Engine.DeleteByFilter(tenant, indexName, f)

	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{
		Kind: oplog.OpDelete, IDs: deleted, DeletedCount: len(deleted),
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "deletedAt": nowRFC3339(),
	})
}

// HandleListIndexes implements GET /1/indexes.
func (a *App) HandleListIndexes(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	names := a.Engine.ListIndexes(id.Tenant)
	items := make([]map[string]any, 0, len(names))
	for _, name := range names {
		items = append(items, map[string]any{
			"name":    name,
			"entries": a.Engine.Count(id.Tenant, name),
		})
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"items": items, "nbPages": 1})
}

// HandleDeleteIndex implements DELETE /1/indexes/{index}.
func (a *App) HandleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !a.checkPause(w, indexName) {
		return
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	a.Engine.DeleteIndex(tenant, indexName)

	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{Kind: oplog.OpDelete})
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "deletedAt": nowRFC3339(),
	})
}

func docsToMaps(docs []document.Document) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ToJSON())
	}
	return out
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeFerr(w http.ResponseWriter, e *ferr.Error) {
	if e.ServiceEnvelope {
		httpserver.RespondServiceError(w, e.Status, e.Code, e.Message)
		return
	}
	httpserver.RespondError(w, e.Status, e.Kind, e.Message)
}

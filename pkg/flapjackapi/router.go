package flapjackapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/ferr"
	"github.com/flapjack/flapjack/pkg/oplog"
)

// Routes assembles the Algolia-compatible route table and mounts
// it under AuthMiddleware. The caller embeds the returned router at the root
// of its http.Handler chain (no path prefix: tenant selection is the
// x-algolia-application-id header, not a URL segment).
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.AuthMiddleware)

	r.Route("/1/indexes", func(r chi.Router) {
		r.Get("/", a.HandleListIndexes)
		r.Post("/generateSecuredApiKey", a.HandleGenerateSecuredApiKey)

		r.Route("/{index}", func(r chi.Router) {
			// The real Algolia client sends POST /1/indexes/*/queries with a
			// literal "*" in the index-name position; it is handled here like
			// any other {index} value and dispatched to the multi-query
			// handler, which ignores the URL segment and reads indexName from
			// each entry of the request body instead.
			r.Post("/queries", a.HandleMultiQueries)

			r.Post("/", a.HandleAddObject)
			r.Delete("/", a.HandleDeleteIndex)

			r.Post("/query", a.HandleQuery)
			r.Post("/browse", a.HandleBrowse)
			r.Post("/batch", a.HandleBatch)
			r.Post("/clear", a.HandleClearObjects)
			r.Post("/deleteByQuery", a.HandleDeleteByQuery)

			r.Get("/settings", a.HandleGetSettings)
			r.Put("/settings", a.HandlePutSettings)

			r.Get("/synonyms", a.HandleGetSynonyms)
			r.Get("/synonyms/{objectID}", a.HandleGetSynonyms)
			r.Put("/synonyms/{objectID}", a.HandlePutSynonym)
			r.Delete("/synonyms/{objectID}", a.HandleDeleteSynonym)

			r.Get("/rules", a.HandleGetRules)
			r.Get("/rules/{objectID}", a.HandleGetRules)
			r.Put("/rules/{objectID}", a.HandlePutRule)
			r.Delete("/rules/{objectID}", a.HandleDeleteRule)

			r.Get("/task/{taskID}", a.HandleGetTask)

			r.Get("/{objectID}", a.HandleGetObject)
			r.Put("/{objectID}", a.HandlePutObject)
			r.Delete("/{objectID}", a.HandleDeleteObject)
			r.Post("/{objectID}/partial", a.HandlePartialUpdate)
		})
	})

	r.Route("/1/keys", func(r chi.Router) {
		r.Get("/", a.HandleListKeys)
		r.Post("/", a.HandleCreateKey)
		r.Get("/{key}", a.HandleGetKey)
		r.Put("/{key}", a.HandleUpdateKey)
		r.Delete("/{key}", a.HandleDeleteKey)
		r.Post("/{key}/restore", a.HandleRestoreKey)
	})

	r.Get("/2/*", a.HandleAnalytics)
	r.Post("/2/*", a.HandleAnalytics)

	return r
}

// HandleGetTask implements GET /1/indexes/{index}/task/{taskID}. Writes are
// acknowledged only after the engine has applied them, so any taskID the
// server has handed out is already published.
func (a *App) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid task id"))
		return
	}
	status := "published"
	if id > a.CurrentTaskID() {
		status = "notPublished"
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"status": status, "pendingTask": false,
	})
}

// HandleClearObjects implements POST /1/indexes/{index}/clear: removes
// every document but keeps the index's settings/synonyms/rules, unlike
// HandleDeleteIndex.
func (a *App) HandleClearObjects(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !a.checkPause(w, indexName) {
		return
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant
	preSeq := a.preSeq(tenant)

	deleted := a.Engine.DeleteByFilter(tenant, indexName, nil)

	taskID := a.recordWrite(tenant, indexName, preSeq, writeResult{
		Kind: oplog.OpDelete, IDs: deleted, DeletedCount: len(deleted),
	})
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": taskID, "updatedAt": nowRFC3339(),
	})
}

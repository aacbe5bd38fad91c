package flapjackapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/ferr"
)

type synonymBody struct {
	ObjectID string   `json:"objectID"`
	Synonyms []string `json:"synonyms" validate:"min=2,dive,required"`
	Type     string   `json:"type,omitempty"`
}

// HandlePutSynonym implements PUT /1/indexes/{index}/synonyms/{objectID}.
func (a *App) HandlePutSynonym(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	var body synonymBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid synonym body: %v", err))
		return
	}
	if fErr := validateBody(body); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	id, _ := identityFromContext(r.Context())
	word := objectID
	if body.ObjectID != "" {
		word = body.ObjectID
	}
	a.Engine.PutSynonym(id.Tenant, indexName, word, body.Synonyms)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": a.NextTaskID(), "objectID": word, "updatedAt": nowRFC3339(),
	})
}

// HandleGetSynonyms implements GET /1/indexes/{index}/synonyms/{objectID}
// (also used, without an objectID, to list every registered synonym set).
func (a *App) HandleGetSynonyms(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	id, _ := identityFromContext(r.Context())
	all := a.Engine.GetSynonyms(id.Tenant, indexName)

	objectID := chi.URLParam(r, "objectID")
	if objectID == "" {
		items := make([]synonymBody, 0, len(all))
		for word, expansions := range all {
			items = append(items, synonymBody{ObjectID: word, Synonyms: expansions, Type: "synonym"})
		}
		httpserver.Respond(w, http.StatusOK, map[string]any{"hits": items, "nbHits": len(items)})
		return
	}

	expansions, ok := all[objectID]
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "synonym not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, synonymBody{ObjectID: objectID, Synonyms: expansions, Type: "synonym"})
}

// HandleDeleteSynonym implements DELETE /1/indexes/{index}/synonyms/{objectID}.
func (a *App) HandleDeleteSynonym(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	id, _ := identityFromContext(r.Context())
	a.Engine.DeleteSynonym(id.Tenant, indexName, objectID)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": a.NextTaskID(), "deletedAt": nowRFC3339(),
	})
}

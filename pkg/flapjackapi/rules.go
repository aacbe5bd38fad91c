package flapjackapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flapjack/flapjack/internal/engine"
	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/ferr"
	"github.com/flapjack/flapjack/pkg/filter"
)

type ruleCondition struct {
	Pattern string `json:"pattern" validate:"omitempty,max=4096"`
}

type ruleConsequenceParams struct {
	Filters string `json:"filters,omitempty" validate:"omitempty,max=8192"`
}

type ruleConsequence struct {
	Params ruleConsequenceParams `json:"params"`
}

type ruleBody struct {
	ObjectID    string          `json:"objectID"`
	Condition   ruleCondition   `json:"condition"`
	Consequence ruleConsequence `json:"consequence"`
}

// HandlePutRule implements PUT /1/indexes/{index}/rules/{objectID}.
func (a *App) HandlePutRule(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	var body ruleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid rule body: %v", err))
		return
	}
	if fErr := validateBody(body); fErr != nil {
		writeFerr(w, fErr)
		return
	}
	if body.ObjectID == "" {
		body.ObjectID = objectID
	}

	var consequence *filter.Filter
	if body.Consequence.Params.Filters != "" {
		f, err := filter.ParseString(body.Consequence.Params.Filters)
		if err != nil {
			writeFerr(w, ferr.InvalidQuery("parsing rule consequence filters: %v", err))
			return
		}
		consequence = f
	}

	id, _ := identityFromContext(r.Context())
	a.Engine.PutRule(id.Tenant, indexName, engine.Rule{
		ObjectID:    body.ObjectID,
		Condition:   body.Condition.Pattern,
		Consequence: consequence,
	})

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": a.NextTaskID(), "objectID": body.ObjectID, "updatedAt": nowRFC3339(),
	})
}

// HandleGetRules lists every query rule registered for the index (the
// Algolia single-rule GET endpoint is handled by filtering on objectID).
func (a *App) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	id, _ := identityFromContext(r.Context())
	rules := a.Engine.ListRules(id.Tenant, indexName)

	if objectID != "" {
		for _, rule := range rules {
			if rule.ObjectID == objectID {
				httpserver.Respond(w, http.StatusOK, ruleToBody(rule))
				return
			}
		}
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "rule not found")
		return
	}

	hits := make([]ruleBody, 0, len(rules))
	for _, rule := range rules {
		hits = append(hits, ruleToBody(rule))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"hits": hits, "nbHits": len(hits)})
}

// HandleDeleteRule implements DELETE /1/indexes/{index}/rules/{objectID}.
func (a *App) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	objectID := chi.URLParam(r, "objectID")
	if !a.checkPause(w, indexName) {
		return
	}

	id, _ := identityFromContext(r.Context())
	a.Engine.DeleteRule(id.Tenant, indexName, objectID)

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": a.NextTaskID(), "deletedAt": nowRFC3339(),
	})
}

func ruleToBody(rule engine.Rule) ruleBody {
	b := ruleBody{ObjectID: rule.ObjectID, Condition: ruleCondition{Pattern: rule.Condition}}
	if rule.Consequence != nil {
		b.Consequence.Params.Filters = rule.Consequence.String()
	}
	return b
}

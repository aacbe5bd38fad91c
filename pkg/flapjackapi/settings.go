package flapjackapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flapjack/flapjack/internal/engine"
	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/embedder"
	"github.com/flapjack/flapjack/pkg/ferr"
)

// settingsBody is the wire shape of GET/PUT /1/indexes/{index}/settings.
type settingsBody struct {
	SearchableAttributes  []string                   `json:"searchableAttributes,omitempty" validate:"omitempty,dive,required"`
	AttributesForFaceting []string                   `json:"attributesForFaceting,omitempty" validate:"omitempty,dive,required"`
	CustomRanking         []string                   `json:"customRanking,omitempty" validate:"omitempty,dive,required"`
	AttributesToRetrieve  []string                   `json:"attributesToRetrieve,omitempty" validate:"omitempty,dive,required"`
	Embedders             map[string]embedder.Config `json:"embedders,omitempty"`
}

// HandleGetSettings implements GET /1/indexes/{index}/settings.
func (a *App) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	id, _ := identityFromContext(r.Context())

	s := a.Engine.GetSettings(id.Tenant, indexName)
	httpserver.Respond(w, http.StatusOK, settingsBody{
		SearchableAttributes:  s.SearchableAttributes,
		AttributesForFaceting: s.AttributesForFaceting,
		CustomRanking:         s.CustomRanking,
		AttributesToRetrieve:  s.AttributesToRetrieve,
		Embedders:             s.Embedders,
	})
}

// HandlePutSettings implements PUT /1/indexes/{index}/settings. Any embedder
// configs in the body are validated, and every settings write drops all of
// the tenant's cached embedder instances so the next query or write
// rebuilds them against the new config.
func (a *App) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")
	if !a.checkPause(w, indexName) {
		return
	}

	var body settingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid settings body: %v", err))
		return
	}
	if fErr := validateBody(body); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	for name, cfg := range body.Embedders {
		if err := cfg.Validate(); err != nil {
			writeFerr(w, ferr.EmbedderError("embedder %q: %v", name, err))
			return
		}
	}

	id, _ := identityFromContext(r.Context())
	tenant := id.Tenant

	a.Engine.PutSettings(tenant, indexName, engine.Settings{
		SearchableAttributes:  body.SearchableAttributes,
		AttributesForFaceting: body.AttributesForFaceting,
		CustomRanking:         body.CustomRanking,
		AttributesToRetrieve:  body.AttributesToRetrieve,
		Embedders:             body.Embedders,
	})

	if a.Embedders != nil {
		a.Embedders.Invalidate(tenant)
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"taskID": a.NextTaskID(), "updatedAt": nowRFC3339(),
	})
}

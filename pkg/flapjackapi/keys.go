package flapjackapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/ferr"
	"github.com/flapjack/flapjack/pkg/keystore"
)

// keyBody is the wire shape for /1/keys requests and responses. Hash, Salt,
// and HMACKey are never serialized to the client.
type keyBody struct {
	Value                  string   `json:"value,omitempty"`
	ACL                    []string `json:"acl" validate:"required,min=1,dive,oneof=search browse addObject deleteObject deleteIndex settings editSettings listIndexes logs analytics admin"`
	Description            string   `json:"description"`
	Indexes                []string `json:"indexes"`
	MaxHitsPerQuery        int64    `json:"maxHitsPerQuery" validate:"gte=0"`
	MaxQueriesPerIPPerHour int64    `json:"maxQueriesPerIPPerHour" validate:"gte=0"`
	QueryParameters        string   `json:"queryParameters"`
	Referers               []string `json:"referers"`
	Validity               int64    `json:"validity" validate:"gte=0"`
	CreatedAt              int64    `json:"createdAt"`
}

func keyToBody(value string, k keystore.ApiKey) keyBody {
	return keyBody{
		Value:                  value,
		ACL:                    k.ACL,
		Description:            k.Description,
		Indexes:                k.Indexes,
		MaxHitsPerQuery:        k.MaxHitsPerQuery,
		MaxQueriesPerIPPerHour: k.MaxQueriesPerIPPerHour,
		QueryParameters:        k.QueryParameters,
		Referers:               k.Referers,
		Validity:               k.Validity,
		CreatedAt:              k.CreatedAt,
	}
}

func (b keyBody) toApiKey() keystore.ApiKey {
	return keystore.ApiKey{
		ACL:                    b.ACL,
		Description:            b.Description,
		Indexes:                b.Indexes,
		MaxHitsPerQuery:        b.MaxHitsPerQuery,
		MaxQueriesPerIPPerHour: b.MaxQueriesPerIPPerHour,
		QueryParameters:        b.QueryParameters,
		Referers:               b.Referers,
		Validity:               b.Validity,
	}
}

// HandleCreateKey implements POST /1/keys.
func (a *App) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	var body keyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid key body: %v", err))
		return
	}
	if fErr := validateBody(body); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	stored, plaintext := a.Keys.CreateKey(body.toApiKey())
	httpserver.Respond(w, http.StatusCreated, map[string]any{
		"key": plaintext, "createdAt": nowRFC3339(), "taskID": a.NextTaskID(),
		"acl": stored.ACL,
	})
}

// HandleListKeys implements GET /1/keys.
func (a *App) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys := a.Keys.ListAll()
	out := make([]keyBody, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyToBody("", k))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"keys": out})
}

// HandleGetKey implements GET /1/keys/{key}.
func (a *App) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	keyValue := chi.URLParam(r, "key")
	k, ok := a.Keys.Lookup(keyValue)
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "key not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, keyToBody(keyValue, k))
}

// HandleUpdateKey implements PUT /1/keys/{key}.
func (a *App) HandleUpdateKey(w http.ResponseWriter, r *http.Request) {
	keyValue := chi.URLParam(r, "key")

	var body keyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid key body: %v", err))
		return
	}
	if fErr := validateBody(body); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	updated, ok := a.Keys.UpdateKey(keyValue, body.toApiKey())
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "key not found")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"key": keyValue, "updatedAt": nowRFC3339(), "taskID": a.NextTaskID(), "acl": updated.ACL,
	})
}

// HandleDeleteKey implements DELETE /1/keys/{key}.
func (a *App) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	keyValue := chi.URLParam(r, "key")
	if !a.Keys.DeleteKey(keyValue) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "key not found or is the admin key")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"deletedAt": nowRFC3339(), "taskID": a.NextTaskID(),
	})
}

// HandleRestoreKey implements POST /1/keys/{key}/restore.
func (a *App) HandleRestoreKey(w http.ResponseWriter, r *http.Request) {
	keyValue := chi.URLParam(r, "key")
	restored, ok := a.Keys.RestoreKey(keyValue)
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "no deleted key matches")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"key": keyValue, "restoredAt": nowRFC3339(), "taskID": a.NextTaskID(), "acl": restored.ACL,
	})
}

type generateSecuredKeyRequest struct {
	Params          string   `json:"params,omitempty"`
	RestrictIndices []string `json:"restrictIndices,omitempty"`
	Filters         string   `json:"filters,omitempty"`
	ValidUntil      *int64   `json:"validUntil,omitempty"`
	UserToken       string   `json:"userToken,omitempty"`
	HitsPerPage     *int     `json:"hitsPerPage,omitempty" validate:"omitempty,gte=0"`
	RestrictSources string   `json:"restrictSources,omitempty"`
}

// HandleGenerateSecuredApiKey implements POST
// /1/indexes/generateSecuredApiKey: builds the URL-encoded restriction
// string from the JSON request body and HMACs it against the caller's own
// key, since a secured key can only narrow the parent's own permissions.
func (a *App) HandleGenerateSecuredApiKey(w http.ResponseWriter, r *http.Request) {
	var req generateSecuredKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid request: %v", err))
		return
	}
	if fErr := validateBody(req); fErr != nil {
		writeFerr(w, fErr)
		return
	}

	id, _ := identityFromContext(r.Context())
	if id.RawKey == "" {
		writeFerr(w, ferr.AuthorizationDenied(ferr.ErrInvalidCredential))
		return
	}

	params := buildRestrictionParams(req)
	securedKey := keystore.GenerateSecuredAPIKey(id.RawKey, params)
	httpserver.Respond(w, http.StatusOK, map[string]any{"securedApiKey": securedKey})
}

// buildRestrictionParams renders a generateSecuredKeyRequest into the
// URL-encoded restriction string keystore.GenerateSecuredAPIKey signs, using
// the same field names keystore.restrictionsFromParams decodes.
func buildRestrictionParams(req generateSecuredKeyRequest) string {
	values := url.Values{}
	if req.Params != "" {
		if parsed, err := url.ParseQuery(req.Params); err == nil {
			values = parsed
		}
	}
	if req.Filters != "" {
		values.Set("filters", req.Filters)
	}
	if req.ValidUntil != nil {
		values.Set("validUntil", strconv.FormatInt(*req.ValidUntil, 10))
	}
	if len(req.RestrictIndices) > 0 {
		if encoded, err := json.Marshal(req.RestrictIndices); err == nil {
			values.Set("restrictIndices", string(encoded))
		}
	}
	if req.UserToken != "" {
		values.Set("userToken", req.UserToken)
	}
	if req.HitsPerPage != nil {
		values.Set("hitsPerPage", strconv.Itoa(*req.HitsPerPage))
	}
	if req.RestrictSources != "" {
		values.Set("restrictSources", req.RestrictSources)
	}
	return values.Encode()
}

package flapjackapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/flapjack/flapjack/internal/engine"
	"github.com/flapjack/flapjack/pkg/keystore"
	"github.com/flapjack/flapjack/pkg/oplog"
	"github.com/flapjack/flapjack/pkg/pauseregistry"
)

func testApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ks := keystore.LoadOrCreate(dir, "admin_secret_123", logger)

	app := &App{
		Keys:         ks,
		Paused:       pauseregistry.New(),
		Oplogs:       oplog.NewManager(),
		Engine:       engine.New(),
		MaxBatchSize: 10000,
		Logger:       logger,
	}
	return app, "admin_secret_123"
}

func doRequest(t *testing.T, handler http.Handler, method, path, appID, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if appID != "" {
		req.Header.Set("x-algolia-application-id", appID)
	}
	if apiKey != "" {
		req.Header.Set("x-algolia-api-key", apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// Batch add 150 identical docs, then search: nbHits reflects the whole
// corpus while the page honors hitsPerPage.
func TestScenarioBatchAddAndSearchNbHits(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	requests := make([]batchOperation, 0, 150)
	for i := 0; i < 150; i++ {
		requests = append(requests, batchOperation{
			Action: "addObject",
			Body:   map[string]any{"objectID": fmt.Sprintf("p%d", i), "name": "Samsung Galaxy Phone"},
		})
	}
	batchBody := batchRequest{Requests: requests}

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products/batch", "tenant1", admin, batchBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("batch add: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPost, "/1/indexes/products/query", "tenant1", admin,
		map[string]any{"query": "samsung", "hitsPerPage": 20})
	if rec.Code != http.StatusOK {
		t.Fatalf("search: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	nbHits, _ := resp["nbHits"].(float64)
	if nbHits < 150 {
		t.Fatalf("want nbHits >= 150, got %v", nbHits)
	}
	hits, _ := resp["hits"].([]any)
	if len(hits) != 20 {
		t.Fatalf("want 20 hits on the page, got %d", len(hits))
	}
}

// Partial-update Increment adjusts the target field and preserves the rest.
func TestScenarioPartialUpdateIncrement(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products", "tenant1", admin,
		map[string]any{"objectID": "p1", "stock": 10, "name": "Widget"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPost, "/1/indexes/products/p1/partial", "tenant1", admin,
		map[string]any{"stock": map[string]any{"_operation": "Increment", "value": 5}})
	if rec.Code != http.StatusOK {
		t.Fatalf("partial update: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/p1", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	obj := decodeJSON(t, rec)
	if stock, _ := obj["stock"].(float64); stock != 15 {
		t.Fatalf("want stock=15, got %v", obj["stock"])
	}
	if obj["name"] != "Widget" {
		t.Fatalf("want name preserved, got %v", obj["name"])
	}
}

// Secured mode rejects missing/wrong credentials, accepts the right
// admin key.
func TestScenarioSecuredModeCredentials(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodGet, "/1/indexes", "", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing headers: want 403, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes", "tenant1", "wrong_key_value", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong key: want 403, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("correct admin key: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

// Pausing one index must not affect writes to another.
func TestScenarioPauseIsolatedPerIndex(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	app.Paused.Pause("foo")

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/bar/batch", "tenant1", admin,
		batchRequest{Requests: []batchOperation{{Action: "addObject", Body: map[string]any{"objectID": "1"}}}})
	if rec.Code == http.StatusServiceUnavailable {
		t.Fatalf("write to an unrelated index must not be paused, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPost, "/1/indexes/foo/batch", "tenant1", admin,
		batchRequest{Requests: []batchOperation{{Action: "addObject", Body: map[string]any{"objectID": "1"}}}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("write to the paused index must be rejected with 503, got %d", rec.Code)
	}
}

// Posting a document with no objectID assigns a UUIDv4.
func TestScenarioAutoIDIsUUID(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products", "tenant1", admin,
		map[string]any{"name": "Widget"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	oid, _ := resp["objectID"].(string)
	if _, err := uuid.Parse(oid); err != nil {
		t.Fatalf("expected objectID to be a UUIDv4, got %q: %v", oid, err)
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/"+oid, "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by auto-id: want 200, got %d", rec.Code)
	}
	obj := decodeJSON(t, rec)
	if obj["name"] != "Widget" {
		t.Fatalf("want name=Widget, got %v", obj["name"])
	}
}

func TestNonAdminKeyCannotHitAdminRoutes(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/1/keys", "tenant1", admin,
		map[string]any{"acl": []string{"search"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin creating a key: want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeJSON(t, rec)
	searchKeyValue, _ := created["key"].(string)
	if searchKeyValue == "" {
		t.Fatalf("expected created key value in response, got %v", created)
	}

	rec = doRequest(t, handler, http.MethodPost, "/1/keys", "tenant1", searchKeyValue, map[string]any{})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("a non-admin key must not create keys, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetObjectNotFound(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodGet, "/1/indexes/products/missing", "tenant1", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}

func TestBatchTooLargeRejected(t *testing.T) {
	app, admin := testApp(t)
	app.MaxBatchSize = 2
	handler := app.Routes()

	requests := []batchOperation{
		{Action: "addObject", Body: map[string]any{"objectID": "1"}},
		{Action: "addObject", Body: map[string]any{"objectID": "2"}},
		{Action: "addObject", Body: map[string]any{"objectID": "3"}},
	}
	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products/batch", "tenant1", admin, batchRequest{Requests: requests})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400 batch-too-large, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTaskPollingPublished(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products", "tenant1", admin,
		map[string]any{"name": "Widget"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add object: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	taskID := int64(decodeJSON(t, rec)["taskID"].(float64))

	rec = doRequest(t, handler, http.MethodGet, fmt.Sprintf("/1/indexes/products/task/%d", taskID), "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("task poll: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["status"] != "published" {
		t.Fatalf("want published, got %v", body["status"])
	}

	rec = doRequest(t, handler, http.MethodGet, fmt.Sprintf("/1/indexes/products/task/%d", taskID+100), "tenant1", admin, nil)
	if decodeJSON(t, rec)["status"] != "notPublished" {
		t.Fatal("a never-issued taskID must report notPublished")
	}
}

func TestQueryHighlightResultShape(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products", "tenant1", admin,
		map[string]any{"objectID": "p1", "name": "Samsung Galaxy Phone"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPost, "/1/indexes/products/query", "tenant1", admin,
		map[string]any{"query": "samsung", "attributesToHighlight": []string{"name"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("search: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	hits, _ := decodeJSON(t, rec)["hits"].([]any)
	if len(hits) != 1 {
		t.Fatalf("want 1 hit, got %d", len(hits))
	}
	hl, _ := hits[0].(map[string]any)["_highlightResult"].(map[string]any)
	name, _ := hl["name"].(map[string]any)
	if name["matchLevel"] != "full" {
		t.Fatalf("want matchLevel=full, got %v", name["matchLevel"])
	}
	words, _ := name["matchedWords"].([]any)
	if len(words) != 1 || words[0] != "samsung" {
		t.Fatalf("want matchedWords=[samsung], got %v", name["matchedWords"])
	}
}

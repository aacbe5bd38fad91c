package flapjackapi

import (
	"net/http"
	"testing"
)

func TestSettingsRoundTrip(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPut, "/1/indexes/products/settings", "tenant1", admin,
		map[string]any{
			"searchableAttributes": []string{"name", "brand"},
			"customRanking":        []string{"desc(popularity)"},
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("put settings: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/settings", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get settings: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	attrs, _ := body["searchableAttributes"].([]any)
	if len(attrs) != 2 || attrs[0] != "name" || attrs[1] != "brand" {
		t.Fatalf("expected searchableAttributes to round-trip, got %v", body["searchableAttributes"])
	}
	ranking, _ := body["customRanking"].([]any)
	if len(ranking) != 1 || ranking[0] != "desc(popularity)" {
		t.Fatalf("expected customRanking to round-trip, got %v", body["customRanking"])
	}
}

func TestSettingsRejectInvalidEmbedder(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPut, "/1/indexes/products/settings", "tenant1", admin,
		map[string]any{
			"embedders": map[string]any{
				"default": map[string]any{"source": "openAi"},
			},
		})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected an openAI embedder missing an apiKey to be rejected, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSynonymPutGetDelete(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPut, "/1/indexes/products/synonyms/syn1", "tenant1", admin,
		map[string]any{"synonyms": []string{"tv", "television"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("put synonym: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/synonyms/syn1", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get synonym: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	syns, _ := body["synonyms"].([]any)
	if len(syns) != 2 || syns[0] != "tv" || syns[1] != "television" {
		t.Fatalf("expected synonyms to round-trip, got %v", body["synonyms"])
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/synonyms", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list synonyms: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	list := decodeJSON(t, rec)
	if nb, _ := list["nbHits"].(float64); nb != 1 {
		t.Fatalf("expected exactly one registered synonym set, got %v", list["nbHits"])
	}

	rec = doRequest(t, handler, http.MethodDelete, "/1/indexes/products/synonyms/syn1", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete synonym: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/synonyms/syn1", "tenant1", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted synonym to 404, got %d", rec.Code)
	}
}

func TestSynonymRejectsFewerThanTwoTerms(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPut, "/1/indexes/products/synonyms/syn1", "tenant1", admin,
		map[string]any{"synonyms": []string{"tv"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected a single-term synonym set to be rejected, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRulePutGetDeleteAffectsSearch(t *testing.T) {
	app, admin := testApp(t)
	handler := app.Routes()

	rec := doRequest(t, handler, http.MethodPost, "/1/indexes/products/batch", "tenant1", admin,
		batchRequest{Requests: []batchOperation{
			{Action: "addObject", Body: map[string]any{"objectID": "1", "name": "Phone", "brand": "Acme"}},
			{Action: "addObject", Body: map[string]any{"objectID": "2", "name": "Phone", "brand": "Other"}},
		}})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed batch: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodPut, "/1/indexes/products/rules/rule1", "tenant1", admin,
		map[string]any{
			"condition":   map[string]any{"pattern": "phone"},
			"consequence": map[string]any{"params": map[string]any{"filters": `brand:Acme`}},
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("put rule: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/rules/rule1", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get rule: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	params, _ := body["consequence"].(map[string]any)["params"].(map[string]any)
	if params["filters"] != "brand:Acme" {
		t.Fatalf("expected rule consequence to round-trip, got %v", body)
	}

	rec = doRequest(t, handler, http.MethodPost, "/1/indexes/products/query", "tenant1", admin,
		map[string]any{"query": "phone", "enableRules": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("search: want 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if nb, _ := resp["nbHits"].(float64); nb != 1 {
		t.Fatalf("expected the rule's filter to narrow results to 1 hit, got %v", resp["nbHits"])
	}

	rec = doRequest(t, handler, http.MethodDelete, "/1/indexes/products/rules/rule1", "tenant1", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete rule: want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/1/indexes/products/rules/rule1", "tenant1", admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted rule to 404, got %d", rec.Code)
	}
}

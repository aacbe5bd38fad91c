package flapjackapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flapjack/flapjack/internal/engine"
	"github.com/flapjack/flapjack/internal/httpserver"
	"github.com/flapjack/flapjack/pkg/document"
	"github.com/flapjack/flapjack/pkg/ferr"
	"github.com/flapjack/flapjack/pkg/searchrequest"
)

const (
	defaultHighlightPreTag  = "<em>"
	defaultHighlightPostTag = "</em>"
	defaultSnippetWords     = 10
)

// HandleQuery implements POST /1/indexes/{index}/query.
func (a *App) HandleQuery(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")

	var req searchrequest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid search request: %v", err))
		return
	}
	req.ApplyParamsString()

	id, _ := identityFromContext(r.Context())
	result, fErr := a.runSearch(id, indexName, &req)
	if fErr != nil {
		writeFerr(w, fErr)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

// multiQueryRequest is the body of POST /1/indexes/*/queries.
type multiQueryRequest struct {
	Requests []searchrequest.Request `json:"requests"`
}

// HandleMultiQueries implements POST /1/indexes/*/queries: each entry names
// its own indexName and is evaluated against the authenticated tenant
// independently, then returned in request order.
func (a *App) HandleMultiQueries(w http.ResponseWriter, r *http.Request) {
	var req multiQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid multi-query request: %v", err))
		return
	}

	id, _ := identityFromContext(r.Context())
	results := make([]map[string]any, 0, len(req.Requests))
	for i := range req.Requests {
		sub := &req.Requests[i]
		sub.ApplyParamsString()
		if sub.IndexName == nil || *sub.IndexName == "" {
			writeFerr(w, ferr.MissingField("indexName"))
			return
		}
		result, fErr := a.runSearch(id, *sub.IndexName, sub)
		if fErr != nil {
			writeFerr(w, fErr)
			return
		}
		results = append(results, result)
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"results": results})
}

// HandleBrowse implements POST /1/indexes/{index}/browse: like query, but
// paginates via an opaque cursor instead of page/hitsPerPage, so exports can
// walk an entire index without re-ranking on every call.
func (a *App) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	indexName := chi.URLParam(r, "index")

	var req searchrequest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFerr(w, ferr.InvalidQuery("invalid browse request: %v", err))
		return
	}
	req.ApplyParamsString()

	hitsPerPage := req.EffectiveHitsPerPage()
	if hitsPerPage <= 0 || hitsPerPage > 1000 {
		hitsPerPage = 1000
	}

	offset := 0
	if c := r.URL.Query().Get("cursor"); c != "" {
		cur, err := httpserver.DecodeCursor(c)
		if err != nil {
			writeFerr(w, ferr.InvalidQuery("invalid cursor: %v", err))
			return
		}
		offset = cur.Offset
	}
	req.Page = offset / hitsPerPage
	hp := hitsPerPage
	req.HitsPerPage = &hp

	id, _ := identityFromContext(r.Context())
	result, fErr := a.runSearch(id, indexName, &req)
	if fErr != nil {
		writeFerr(w, fErr)
		return
	}

	nextOffset := offset + hitsPerPage
	hitsArr, _ := result["hits"].([]map[string]any)
	if nbHits, _ := result["nbHits"].(int); nextOffset < nbHits {
		lastID := ""
		if len(hitsArr) > 0 {
			lastID, _ = hitsArr[len(hitsArr)-1]["objectID"].(string)
		}
		result["cursor"] = httpserver.EncodeCursor(httpserver.BrowseCursor{Offset: nextOffset, LastObjectID: lastID})
	}

	httpserver.Respond(w, http.StatusOK, result)
}

// runSearch resolves req against the engine and renders the Algolia-shaped
// response body (hits with _highlightResult/_snippetResult, pagination,
// facets).
func (a *App) runSearch(id identity, indexName string, req *searchrequest.Request) (map[string]any, *ferr.Error) {
	tenant := id.Tenant

	if id.Restrictions != nil && id.Restrictions.Filters != nil && *id.Restrictions.Filters != "" {
		// Secured-key filters are additive restrictions the client cannot
		// override: AND them onto whatever the request already specifies.
		merged := *id.Restrictions.Filters
		if req.Filters == nil || *req.Filters == "" {
			req.Filters = &merged
		} else {
			combined := "(" + *req.Filters + ") AND (" + merged + ")"
			req.Filters = &combined
		}
	}

	combinedFilter, err := req.BuildCombinedFilter()
	if err != nil {
		return nil, ferr.InvalidQuery("parsing filters: %v", err)
	}

	settings := a.Engine.GetSettings(tenant, indexName)

	maxValuesPerFacet := 100
	if req.MaxValuesPerFacet != nil {
		maxValuesPerFacet = *req.MaxValuesPerFacet
	}

	enableRules := true
	if req.EnableRules != nil {
		enableRules = *req.EnableRules
	}

	params := engine.Params{
		Query:             req.Query,
		Filter:            combinedFilter,
		Geo:               req.BuildGeoParams(),
		Page:              req.Page,
		HitsPerPage:       req.EffectiveHitsPerPage(),
		Facets:            req.Facets,
		MaxValuesPerFacet: maxValuesPerFacet,
		EnableRules:       enableRules,
	}

	result := a.Engine.Search(tenant, indexName, params)

	preTag := defaultHighlightPreTag
	if req.HighlightPreTag != nil {
		preTag = *req.HighlightPreTag
	}
	postTag := defaultHighlightPostTag
	if req.HighlightPostTag != nil {
		postTag = *req.HighlightPostTag
	}
	terms := tokenizeQuery(req.Query)
	highlightAttrs := req.AttributesToHighlight
	if highlightAttrs == nil {
		highlightAttrs = settings.SearchableAttributes
	}

	hits := make([]map[string]any, 0, len(result.Hits))
	for _, hit := range result.Hits {
		h := hit.Doc.ToJSON()
		if len(highlightAttrs) > 0 {
			h["_highlightResult"] = buildHighlightResult(hit.Doc, highlightAttrs, terms, preTag, postTag)
		}
		if len(req.AttributesToSnippet) > 0 {
			h["_snippetResult"] = buildSnippetResult(hit.Doc, req.AttributesToSnippet, terms, preTag, postTag)
		}
		hits = append(hits, h)
	}

	resp := map[string]any{
		"hits":             hits,
		"nbHits":           result.NbHits,
		"page":             result.Page,
		"nbPages":          result.NbPages,
		"hitsPerPage":      result.HitsPerPage,
		"exhaustiveNbHits": result.ExhaustiveNbHits,
		"query":            req.Query,
		"params":           "",
		"index":            indexName,
		"processingTimeMS": 0,
	}
	if result.Facets != nil {
		facets := make(map[string]map[string]int, len(result.Facets))
		for field, counts := range result.Facets {
			values := make(map[string]int, len(counts))
			for _, fc := range counts {
				values[fc.Value] = fc.Count
			}
			facets[field] = values
		}
		resp["facets"] = facets
	}
	return resp, nil
}

func tokenizeQuery(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	return strings.Fields(query)
}

// matchLevel classifies how well terms were found in value, Algolia-style:
// "full" when every term is present, "partial" when some are, "none"
// otherwise.
func matchLevelFor(value string, terms []string) string {
	if len(terms) == 0 {
		return "none"
	}
	lower := strings.ToLower(value)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	switch {
	case matched == len(terms):
		return "full"
	case matched > 0:
		return "partial"
	default:
		return "none"
	}
}

// highlightValue wraps every case-insensitive occurrence of each term in
// value with preTag/postTag.
func highlightValue(value string, terms []string, preTag, postTag string) string {
	if len(terms) == 0 {
		return value
	}
	lower := strings.ToLower(value)
	var spans []struct{ start, end int }
	for _, t := range terms {
		if t == "" {
			continue
		}
		start := 0
		for {
			idx := strings.Index(lower[start:], t)
			if idx < 0 {
				break
			}
			abs := start + idx
			spans = append(spans, struct{ start, end int }{abs, abs + len(t)})
			start = abs + len(t)
		}
	}
	if len(spans) == 0 {
		return value
	}
	// Merge overlapping spans so nested/overlapping terms don't double-tag.
	sortSpans(spans)
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(value[prev:s.start])
		b.WriteString(preTag)
		b.WriteString(value[s.start:s.end])
		b.WriteString(postTag)
		prev = s.end
	}
	b.WriteString(value[prev:])
	return b.String()
}

func sortSpans(spans []struct{ start, end int }) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}

func buildHighlightResult(doc document.Document, attrs []string, terms []string, preTag, postTag string) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		fv, ok := doc.Fields[attr]
		if !ok || fv.Kind != document.Text {
			continue
		}
		out[attr] = map[string]any{
			"value":        highlightValue(fv.Str, terms, preTag, postTag),
			"matchLevel":   matchLevelFor(fv.Str, terms),
			"matchedWords": matchedWordsFor(fv.Str, terms),
		}
	}
	return out
}

// matchedWordsFor returns the query terms present in value, using the same
// case-insensitive substring predicate as matchLevelFor.
func matchedWordsFor(value string, terms []string) []string {
	matched := []string{}
	lower := strings.ToLower(value)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

func buildSnippetResult(doc document.Document, attrs []string, terms []string, preTag, postTag string) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		fv, ok := doc.Fields[attr]
		if !ok || fv.Kind != document.Text {
			continue
		}
		out[attr] = map[string]any{
			"value":        highlightValue(snippetAround(fv.Str, terms, defaultSnippetWords), terms, preTag, postTag),
			"matchLevel":   matchLevelFor(fv.Str, terms),
			"matchedWords": matchedWordsFor(fv.Str, terms),
		}
	}
	return out
}

// snippetAround returns up to maxWords words centered on the first matched
// term, ellipsized at either end when text was trimmed.
func snippetAround(value string, terms []string, maxWords int) string {
	words := strings.Fields(value)
	if len(words) <= maxWords {
		return value
	}

	center := 0
	if len(terms) > 0 {
		lowerWords := make([]string, len(words))
		for i, w := range words {
			lowerWords[i] = strings.ToLower(w)
		}
	outer:
		for i, w := range lowerWords {
			for _, t := range terms {
				if strings.Contains(w, t) {
					center = i
					break outer
				}
			}
		}
	}

	half := maxWords / 2
	start := center - half
	if start < 0 {
		start = 0
	}
	end := start + maxWords
	if end > len(words) {
		end = len(words)
		start = end - maxWords
		if start < 0 {
			start = 0
		}
	}

	snippet := strings.Join(words[start:end], " ")
	if start > 0 {
		snippet = "… " + snippet
	}
	if end < len(words) {
		snippet = snippet + " …"
	}
	return snippet
}


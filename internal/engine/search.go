package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/flapjack/flapjack/pkg/document"
	"github.com/flapjack/flapjack/pkg/filter"
	"github.com/flapjack/flapjack/pkg/geo"
)

// Params is the reduced set of query inputs the engine needs, decoupled
// from the HTTP-facing searchrequest.Request so the engine package stays
// free of the request-decoding concern.
type Params struct {
	Query             string
	Filter            *filter.Filter
	Geo               geo.Params
	Page              int
	HitsPerPage       int
	Facets            []string
	MaxValuesPerFacet int
	EnableRules       bool
}

// Hit is one matched document plus its relevance score.
type Hit struct {
	Doc   document.Document
	Score float64
}

// FacetCount is one value/count pair within a facet's value distribution.
type FacetCount struct {
	Value string
	Count int
}

// Result is a fully paginated, faceted search response.
type Result struct {
	Hits             []Hit
	NbHits           int
	Page             int
	NbPages          int
	HitsPerPage      int
	ExhaustiveNbHits bool
	Facets           map[string][]FacetCount
}

// Search runs a filtered, scored, paginated query against tenant/indexName.
func (e *Engine) Search(tenant, indexName string, p Params) Result {
	idx := e.tenantFor(tenant).indexFor(indexName)
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	combinedFilter := p.Filter
	if ruleFilter := idx.matchingRuleFilter(p.Query, p.EnableRules); ruleFilter != nil {
		if combinedFilter == nil {
			combinedFilter = ruleFilter
		} else {
			combinedFilter = filter.And(combinedFilter, ruleFilter)
		}
	}

	terms := tokenize(p.Query)

	var hits []Hit
	for _, doc := range idx.docs {
		if !filter.Matches(combinedFilter, doc) {
			continue
		}
		if !withinGeo(doc, p.Geo) {
			continue
		}
		score, ok := scoreDocument(idx, doc, terms)
		if !ok {
			continue
		}
		hits = append(hits, Hit{Doc: doc, Score: score})
	}

	sortHits(idx, hits)

	nbHits := len(hits)
	hitsPerPage := p.HitsPerPage
	if hitsPerPage <= 0 {
		hitsPerPage = 20
	}
	nbPages := 0
	if hitsPerPage > 0 {
		nbPages = int(math.Ceil(float64(nbHits) / float64(hitsPerPage)))
	}

	start := p.Page * hitsPerPage
	end := start + hitsPerPage
	if start > nbHits {
		start = nbHits
	}
	if end > nbHits {
		end = nbHits
	}
	page := append([]Hit(nil), hits[start:end]...)

	var facets map[string][]FacetCount
	if len(p.Facets) > 0 {
		facets = computeFacets(hits, p.Facets, p.MaxValuesPerFacet)
	}

	return Result{
		Hits:             page,
		NbHits:           nbHits,
		Page:             p.Page,
		NbPages:          nbPages,
		HitsPerPage:      hitsPerPage,
		ExhaustiveNbHits: true,
		Facets:           facets,
	}
}

// tokenize lowercases and splits a query into whitespace-delimited terms.
func tokenize(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	return strings.Fields(query)
}

// scoreDocument returns a word-overlap keyword score plus a small boost for
// exact substring matches, adjusted by any configured custom-ranking
// numeric attributes. An empty query matches every document with score 1.
func scoreDocument(idx *Index, doc document.Document, terms []string) (float64, bool) {
	if len(terms) == 0 {
		return 1.0 + customRankingBoost(idx, doc), true
	}

	text := strings.ToLower(idx.searchableText(doc))
	if text == "" {
		return 0, false
	}

	matched := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			matched++
		}
	}
	if matched == 0 {
		return 0, false
	}

	score := float64(matched) / float64(len(terms))
	if strings.Contains(text, strings.Join(terms, " ")) {
		score += 1.0
	}
	return score + customRankingBoost(idx, doc), true
}

// customRankingBoost sums normalized numeric custom-ranking attributes
// (desc(field) adds the value, asc(field) subtracts it) scaled down so it
// nudges ordering among equally relevant hits without swamping keyword
// relevance.
func customRankingBoost(idx *Index, doc document.Document) float64 {
	var boost float64
	for _, spec := range idx.settings.CustomRanking {
		desc := strings.HasPrefix(spec, "desc(")
		asc := strings.HasPrefix(spec, "asc(")
		if !desc && !asc {
			continue
		}
		field := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(spec, "desc("), "asc("), ")")
		fv, ok := doc.Fields[field]
		if !ok {
			continue
		}
		var v float64
		switch fv.Kind {
		case document.Integer, document.Date:
			v = float64(fv.Int)
		case document.Float:
			v = fv.Flt
		default:
			continue
		}
		normalized := v / (1 + math.Abs(v)) * 0.01
		if asc {
			normalized = -normalized
		}
		boost += normalized
	}
	return boost
}

func sortHits(idx *Index, hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc.ID < hits[j].Doc.ID
	})
}

// withinGeo reports whether doc's lifted geo fields satisfy p (vacuously
// true when p carries no geo constraint; a document without a location
// satisfies no constraint).
func withinGeo(doc document.Document, p geo.Params) bool {
	if p.Around == nil && len(p.BoundingBoxes) == 0 && len(p.Polygons) == 0 {
		return true
	}
	if doc.GeoLat == nil || doc.GeoLng == nil {
		return false
	}
	point := geo.Point{Lat: *doc.GeoLat, Lng: *doc.GeoLng}

	if len(p.BoundingBoxes) > 0 {
		inAny := false
		for _, box := range p.BoundingBoxes {
			if inBoundingBox(point, box) {
				inAny = true
				break
			}
		}
		if !inAny {
			return false
		}
	}

	if len(p.Polygons) > 0 {
		inAny := false
		for _, poly := range p.Polygons {
			if inPolygon(point, poly) {
				inAny = true
				break
			}
		}
		if !inAny {
			return false
		}
	}

	if p.Around != nil && !p.AroundRadiusAll && p.AroundRadius != nil {
		if haversineMeters(*p.Around, point) > float64(*p.AroundRadius) {
			return false
		}
	}

	return true
}

func inBoundingBox(p geo.Point, box geo.BoundingBox) bool {
	minLat, maxLat := box.P1.Lat, box.P2.Lat
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	minLng, maxLng := box.P1.Lng, box.P2.Lng
	if minLng > maxLng {
		minLng, maxLng = maxLng, minLng
	}
	return p.Lat >= minLat && p.Lat <= maxLat && p.Lng >= minLng && p.Lng <= maxLng
}

// inPolygon implements the standard ray-casting point-in-polygon test.
func inPolygon(p geo.Point, poly []geo.Point) bool {
	if len(poly) < 3 {
		return false
	}
	inside := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		intersects := (pi.Lng > p.Lng) != (pj.Lng > p.Lng) &&
			p.Lat < (pj.Lat-pi.Lat)*(p.Lng-pi.Lng)/(pj.Lng-pi.Lng)+pi.Lat
		if intersects {
			inside = !inside
		}
	}
	return inside
}

const earthRadiusMeters = 6371000.0

func haversineMeters(a, b geo.Point) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// computeFacets tallies value counts for each requested facet across hits,
// sorted by descending count and truncated to maxValues (0 = unlimited).
func computeFacets(hits []Hit, facetFields []string, maxValues int) map[string][]FacetCount {
	out := make(map[string][]FacetCount, len(facetFields))
	for _, field := range facetFields {
		counts := make(map[string]int)
		for _, hit := range hits {
			fv, ok := hit.Doc.Fields[field]
			if !ok {
				continue
			}
			for _, path := range document.FacetPaths(field, fv) {
				value := path[strings.LastIndex(path, "/")+1:]
				counts[value]++
			}
		}
		entries := make([]FacetCount, 0, len(counts))
		for value, count := range counts {
			entries = append(entries, FacetCount{Value: value, Count: count})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Count != entries[j].Count {
				return entries[i].Count > entries[j].Count
			}
			return entries[i].Value < entries[j].Value
		})
		if maxValues > 0 && len(entries) > maxValues {
			entries = entries[:maxValues]
		}
		out[field] = entries
	}
	return out
}

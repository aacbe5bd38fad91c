// Package searchrequest decodes and normalizes the Algolia search-parameter
// vocabulary: JSON body fields, the legacy URL-encoded `params` string
// (merged in only where the JSON body left a field unset), and the derived
// geo/filter inputs handed to the query engine.
package searchrequest

import (
	"net/url"
	"strconv"

	"github.com/flapjack/flapjack/pkg/filter"
	"github.com/flapjack/flapjack/pkg/geo"
)

// HybridParams configures keyword/vector blending for a single query.
type HybridParams struct {
	SemanticRatio float64 `json:"semanticRatio"`
	Embedder      string  `json:"embedder"`
}

// ClampRatio restricts SemanticRatio to [0, 1].
func (h *HybridParams) ClampRatio() {
	switch {
	case h.SemanticRatio < 0:
		h.SemanticRatio = 0
	case h.SemanticRatio > 1:
		h.SemanticRatio = 1
	}
}

// Request is the decoded body of a single search query, whether it arrived
// standalone (POST /1/indexes/{index}/query) or as one entry of a
// multi-index search (POST /1/indexes/*/queries).
type Request struct {
	IndexName *string `json:"indexName,omitempty"`
	Query     string  `json:"query"`

	Filters *string `json:"filters,omitempty"`

	HitsPerPage *int `json:"hitsPerPage,omitempty"`
	Page        int  `json:"page"`

	Facets []string `json:"facets,omitempty"`
	Sort   []string `json:"sort,omitempty"`

	Distinct any `json:"distinct,omitempty"`

	HighlightPreTag  *string `json:"highlightPreTag,omitempty"`
	HighlightPostTag *string `json:"highlightPostTag,omitempty"`

	AttributesToRetrieve  []string `json:"attributesToRetrieve,omitempty"`
	AttributesToHighlight []string `json:"attributesToHighlight,omitempty"`
	AttributesToSnippet   []string `json:"attributesToSnippet,omitempty"`

	QueryTypePrefix           *string  `json:"queryType,omitempty"`
	TypoTolerance             any      `json:"typoTolerance,omitempty"`
	AdvancedSyntax            *bool    `json:"advancedSyntax,omitempty"`
	RemoveWordsIfNoResults    *string  `json:"removeWordsIfNoResults,omitempty"`
	OptionalFilters           any      `json:"optionalFilters,omitempty"`
	EnableSynonyms            *bool    `json:"enableSynonyms,omitempty"`
	EnableRules               *bool    `json:"enableRules,omitempty"`
	RuleContexts              []string `json:"ruleContexts,omitempty"`
	RestrictSearchableAttrs   []string `json:"restrictSearchableAttributes,omitempty"`

	FacetFilters   any `json:"facetFilters,omitempty"`
	NumericFilters any `json:"numericFilters,omitempty"`
	TagFilters     any `json:"tagFilters,omitempty"`

	MaxValuesPerFacet *int     `json:"maxValuesPerFacet,omitempty"`
	Analytics         *bool    `json:"analytics,omitempty"`
	ClickAnalytics    *bool    `json:"clickAnalytics,omitempty"`
	AnalyticsTags     []string `json:"analyticsTags,omitempty"`

	// Params is the legacy URL-encoded duplicate used by multi-query
	// requests; merged into the rest of the struct by ApplyParamsString and
	// cleared afterward.
	Params *string `json:"params,omitempty"`

	QueryType  *string `json:"type,omitempty"`
	Facet      *string `json:"facet,omitempty"`
	FacetQuery *string `json:"facetQuery,omitempty"`
	MaxFacetHits *int  `json:"maxFacetHits,omitempty"`

	GetRankingInfo *bool    `json:"getRankingInfo,omitempty"`
	ResponseFields []string `json:"responseFields,omitempty"`

	AroundLatLng       *string `json:"aroundLatLng,omitempty"`
	AroundRadius       any     `json:"aroundRadius,omitempty"`
	InsideBoundingBox  any     `json:"insideBoundingBox,omitempty"`
	InsidePolygon      any     `json:"insidePolygon,omitempty"`
	AroundPrecision    any     `json:"aroundPrecision,omitempty"`
	MinimumAroundRadius *uint64 `json:"minimumAroundRadius,omitempty"`

	UserToken *string `json:"userToken,omitempty"`
	// UserIP is not deserialized from JSON; the handler sets it from
	// request headers / the x-forwarded-for chain.
	UserIP *string `json:"-"`

	AroundLatLngViaIP *bool `json:"aroundLatLngViaIP,omitempty"`

	RemoveStopWords any      `json:"removeStopWords,omitempty"`
	IgnorePlurals   any      `json:"ignorePlurals,omitempty"`
	QueryLanguages  []string `json:"queryLanguages,omitempty"`

	Mode   *string       `json:"mode,omitempty"`
	Hybrid *HybridParams `json:"hybrid,omitempty"`
}

// EffectiveHitsPerPage returns the page size to use, defaulting to 20.
func (r *Request) EffectiveHitsPerPage() int {
	if r.HitsPerPage != nil {
		return *r.HitsPerPage
	}
	return 20
}

// ClampHybridRatio clamps Hybrid.SemanticRatio to [0, 1] if Hybrid is set.
func (r *Request) ClampHybridRatio() {
	if r.Hybrid != nil {
		r.Hybrid.ClampRatio()
	}
}

// ApplyParamsString merges the legacy URL-encoded `params` field into the
// rest of the request, but only for fields the JSON body left unset;
// JSON always wins over params. Params is cleared after merging.
func (r *Request) ApplyParamsString() {
	if r.Params == nil || *r.Params == "" {
		return
	}
	values, err := url.ParseQuery(*r.Params)
	r.Params = nil
	if err != nil {
		return
	}

	str := func(key string) (string, bool) {
		v := values.Get(key)
		return v, v != ""
	}

	if r.Query == "" {
		if v, ok := str("query"); ok {
			r.Query = v
		}
	}
	if r.Filters == nil {
		if v, ok := str("filters"); ok {
			r.Filters = &v
		}
	}
	if r.HitsPerPage == nil {
		if v, ok := str("hitsPerPage"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				r.HitsPerPage = &n
			}
		}
	}
	if v, ok := str("page"); ok && r.Page == 0 {
		if n, err := strconv.Atoi(v); err == nil {
			r.Page = n
		}
	}
	if r.Facets == nil {
		if v, ok := str("facets"); ok {
			r.Facets = splitCSVOrJSONArray(v)
		}
	}
	if r.FacetFilters == nil {
		if v, ok := str("facetFilters"); ok {
			r.FacetFilters = v
		}
	}
	if r.NumericFilters == nil {
		if v, ok := str("numericFilters"); ok {
			r.NumericFilters = v
		}
	}
	if r.TagFilters == nil {
		if v, ok := str("tagFilters"); ok {
			r.TagFilters = v
		}
	}
	if r.MaxValuesPerFacet == nil {
		if v, ok := str("maxValuesPerFacet"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				r.MaxValuesPerFacet = &n
			}
		}
	}
	if r.AttributesToRetrieve == nil {
		if v, ok := str("attributesToRetrieve"); ok {
			r.AttributesToRetrieve = splitCSVOrJSONArray(v)
		}
	}
	if r.AttributesToHighlight == nil {
		if v, ok := str("attributesToHighlight"); ok {
			r.AttributesToHighlight = splitCSVOrJSONArray(v)
		}
	}
	if r.AttributesToSnippet == nil {
		if v, ok := str("attributesToSnippet"); ok {
			r.AttributesToSnippet = splitCSVOrJSONArray(v)
		}
	}
	if r.QueryTypePrefix == nil {
		if v, ok := str("queryType"); ok {
			r.QueryTypePrefix = &v
		}
	}
	if r.TypoTolerance == nil {
		if v, ok := str("typoTolerance"); ok {
			switch v {
			case "true":
				r.TypoTolerance = true
			case "false":
				r.TypoTolerance = false
			default:
				r.TypoTolerance = v
			}
		}
	}
	if r.AdvancedSyntax == nil {
		if v, ok := str("advancedSyntax"); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				r.AdvancedSyntax = &b
			}
		}
	}
	if r.RemoveWordsIfNoResults == nil {
		if v, ok := str("removeWordsIfNoResults"); ok {
			r.RemoveWordsIfNoResults = &v
		}
	}
	if r.OptionalFilters == nil {
		if v, ok := str("optionalFilters"); ok {
			r.OptionalFilters = v
		}
	}
	if r.EnableSynonyms == nil {
		if v, ok := str("enableSynonyms"); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				r.EnableSynonyms = &b
			}
		}
	}
	if r.EnableRules == nil {
		if v, ok := str("enableRules"); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				r.EnableRules = &b
			}
		}
	}
	if r.RuleContexts == nil {
		if v, ok := str("ruleContexts"); ok {
			r.RuleContexts = splitCSVOrJSONArray(v)
		}
	}
	if r.RestrictSearchableAttrs == nil {
		if v, ok := str("restrictSearchableAttributes"); ok {
			r.RestrictSearchableAttrs = splitCSVOrJSONArray(v)
		}
	}
	if r.HighlightPreTag == nil {
		if v, ok := str("highlightPreTag"); ok {
			r.HighlightPreTag = &v
		}
	}
	if r.HighlightPostTag == nil {
		if v, ok := str("highlightPostTag"); ok {
			r.HighlightPostTag = &v
		}
	}
	if v, ok := str("analytics"); ok && r.Analytics == nil {
		if b, err := strconv.ParseBool(v); err == nil {
			r.Analytics = &b
		}
	}
	if v, ok := str("clickAnalytics"); ok && r.ClickAnalytics == nil {
		if b, err := strconv.ParseBool(v); err == nil {
			r.ClickAnalytics = &b
		}
	}
	if r.FacetQuery == nil {
		if v, ok := str("facetQuery"); ok {
			r.FacetQuery = &v
		}
	}
	if r.MaxFacetHits == nil {
		if v, ok := str("maxFacetHits"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				r.MaxFacetHits = &n
			}
		}
	}
	if r.AnalyticsTags == nil {
		if v, ok := str("analyticsTags"); ok {
			r.AnalyticsTags = splitCSVOrJSONArray(v)
		}
	}
	if r.Distinct == nil {
		if v, ok := str("distinct"); ok {
			r.Distinct = v
		}
	}
	if v, ok := str("getRankingInfo"); ok && r.GetRankingInfo == nil {
		if b, err := strconv.ParseBool(v); err == nil {
			r.GetRankingInfo = &b
		}
	}
	if r.ResponseFields == nil {
		if v, ok := str("responseFields"); ok {
			r.ResponseFields = splitCSVOrJSONArray(v)
		}
	}
	if r.AroundLatLng == nil {
		if v, ok := str("aroundLatLng"); ok {
			r.AroundLatLng = &v
		}
	}
	if r.AroundRadius == nil {
		if v, ok := str("aroundRadius"); ok {
			if v == "all" {
				r.AroundRadius = "all"
			} else if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				r.AroundRadius = float64(n)
			}
		}
	}
	if r.InsideBoundingBox == nil {
		if v, ok := str("insideBoundingBox"); ok {
			r.InsideBoundingBox = v
		}
	}
	if r.InsidePolygon == nil {
		if v, ok := str("insidePolygon"); ok {
			r.InsidePolygon = v
		}
	}
	if r.AroundPrecision == nil {
		if v, ok := str("aroundPrecision"); ok {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				r.AroundPrecision = float64(n)
			} else {
				r.AroundPrecision = v
			}
		}
	}
	if r.MinimumAroundRadius == nil {
		if v, ok := str("minimumAroundRadius"); ok {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				r.MinimumAroundRadius = &n
			}
		}
	}
	if r.UserToken == nil {
		if v, ok := str("userToken"); ok {
			r.UserToken = &v
		}
	}
	if v, ok := str("aroundLatLngViaIP"); ok && r.AroundLatLngViaIP == nil {
		if b, err := strconv.ParseBool(v); err == nil {
			r.AroundLatLngViaIP = &b
		}
	}
	if r.RemoveStopWords == nil {
		if v, ok := str("removeStopWords"); ok {
			r.RemoveStopWords = v
		}
	}
	if r.IgnorePlurals == nil {
		if v, ok := str("ignorePlurals"); ok {
			r.IgnorePlurals = v
		}
	}
	if r.QueryLanguages == nil {
		if v, ok := str("queryLanguages"); ok {
			r.QueryLanguages = splitCSVOrJSONArray(v)
		}
	}
	if r.Mode == nil {
		if v, ok := str("mode"); ok {
			switch v {
			case "neuralSearch", "keywordSearch":
				r.Mode = &v
			}
		}
	}
	if r.Hybrid == nil {
		if _, ok := str("hybrid"); ok {
			// The params-string form only carries a bare embedder name in
			// practice; a full JSON object belongs in the request body.
		}
	}
}

// BuildGeoParams resolves the geo-search inputs with the documented
// precedence: a bounding box or polygon present suppresses aroundLatLng;
// aroundRadius is only honored alongside a resolved around point.
func (r *Request) BuildGeoParams() geo.Params {
	hasBBox := r.InsideBoundingBox != nil
	hasPoly := r.InsidePolygon != nil

	var around *geo.Point
	if !hasBBox && !hasPoly {
		if r.AroundLatLng != nil {
			if p, ok := geo.ParseLatLng(*r.AroundLatLng); ok {
				around = &p
			}
		}
		// aroundLatLngViaIP without a geoip database configured is a no-op;
		// the caller logs the warning since it has the logger.
	}

	params := geo.Params{Around: around}
	if hasBBox {
		params.BoundingBoxes = geo.ParseBoundingBoxes(r.InsideBoundingBox)
	}
	if hasPoly {
		params.Polygons = geo.ParsePolygons(r.InsidePolygon)
	}
	if around != nil && r.AroundRadius != nil {
		if radius, all, ok := geo.ParseAroundRadius(r.AroundRadius); ok {
			if all {
				params.AroundRadiusAll = true
			} else {
				params.AroundRadius = &radius
			}
		}
	}
	if r.AroundPrecision != nil {
		params.AroundPrecision = geo.ParseAroundPrecision(r.AroundPrecision)
	}
	if around != nil && params.AroundRadius == nil && !params.AroundRadiusAll {
		if r.MinimumAroundRadius != nil {
			v := int64(*r.MinimumAroundRadius)
			params.MinimumAroundRadius = &v
		}
	}
	return params
}

// BuildCombinedFilter AND's together the `filters` string and the
// facetFilters/numericFilters/tagFilters JSON vocabularies into one AST.
func (r *Request) BuildCombinedFilter() (*filter.Filter, error) {
	in := filter.CombinedInput{
		FacetFilters:   r.FacetFilters,
		NumericFilters: r.NumericFilters,
		TagFilters:     r.TagFilters,
	}
	if r.Filters != nil {
		in.FiltersString = *r.Filters
	}
	return filter.BuildCombined(in)
}

func splitCSVOrJSONArray(v string) []string {
	if arr, ok := tryJSONStringArray(v); ok {
		return arr
	}
	return splitTrim(v)
}

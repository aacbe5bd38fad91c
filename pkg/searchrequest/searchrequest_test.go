package searchrequest

import "testing"

func TestEffectiveHitsPerPageDefault(t *testing.T) {
	r := &Request{}
	if r.EffectiveHitsPerPage() != 20 {
		t.Fatalf("expected default 20, got %d", r.EffectiveHitsPerPage())
	}
}

func TestEffectiveHitsPerPageExplicit(t *testing.T) {
	n := 50
	r := &Request{HitsPerPage: &n}
	if r.EffectiveHitsPerPage() != 50 {
		t.Fatalf("expected 50, got %d", r.EffectiveHitsPerPage())
	}
}

func TestApplyParamsStringDoesNotOverrideJSON(t *testing.T) {
	params := "query=fromparams&page=3"
	r := &Request{Query: "fromjson", Params: &params}
	r.ApplyParamsString()
	if r.Query != "fromjson" {
		t.Fatalf("JSON query should win, got %q", r.Query)
	}
	if r.Page != 3 {
		t.Fatalf("page should be merged from params, got %d", r.Page)
	}
	if r.Params != nil {
		t.Fatal("params should be cleared after merge")
	}
}

func TestApplyParamsStringFillsUnsetFields(t *testing.T) {
	params := "query=hello&hitsPerPage=5&facets=%5B%22brand%22%2C%22color%22%5D"
	r := &Request{Params: &params}
	r.ApplyParamsString()
	if r.Query != "hello" {
		t.Fatalf("expected query merged, got %q", r.Query)
	}
	if r.HitsPerPage == nil || *r.HitsPerPage != 5 {
		t.Fatalf("expected hitsPerPage=5, got %+v", r.HitsPerPage)
	}
	if len(r.Facets) != 2 || r.Facets[0] != "brand" || r.Facets[1] != "color" {
		t.Fatalf("expected facets merged from JSON array, got %+v", r.Facets)
	}
}

func TestApplyParamsStringEmptyIsNoop(t *testing.T) {
	empty := ""
	r := &Request{Query: "foo", Params: &empty}
	r.ApplyParamsString()
	if r.Query != "foo" {
		t.Fatalf("expected unchanged query, got %q", r.Query)
	}
}

func TestBuildGeoParamsBoundingBoxSuppressesAroundLatLng(t *testing.T) {
	ll := "37.7,-122.4"
	r := &Request{
		AroundLatLng:      &ll,
		InsideBoundingBox: []any{float64(40), float64(-120), float64(30), float64(-110)},
	}
	params := r.BuildGeoParams()
	if params.Around != nil {
		t.Fatal("expected aroundLatLng to be suppressed by insideBoundingBox")
	}
	if len(params.BoundingBoxes) != 1 {
		t.Fatalf("expected one bounding box, got %+v", params.BoundingBoxes)
	}
}

func TestBuildGeoParamsAroundRadiusRequiresAroundPoint(t *testing.T) {
	r := &Request{AroundRadius: float64(5000)}
	params := r.BuildGeoParams()
	if params.AroundRadius != nil {
		t.Fatal("aroundRadius should be ignored without an around point")
	}
}

func TestBuildGeoParamsResolvesAroundPointAndRadius(t *testing.T) {
	ll := "37.7,-122.4"
	r := &Request{AroundLatLng: &ll, AroundRadius: float64(5000)}
	params := r.BuildGeoParams()
	if params.Around == nil {
		t.Fatal("expected around point resolved")
	}
	if params.AroundRadius == nil || *params.AroundRadius != 5000 {
		t.Fatalf("expected aroundRadius=5000, got %+v", params.AroundRadius)
	}
}

func TestBuildCombinedFilterMergesFiltersAndFacetFilters(t *testing.T) {
	filters := "price>10"
	r := &Request{Filters: &filters, FacetFilters: "brand:nike"}
	f, err := r.BuildCombinedFilter()
	if err != nil {
		t.Fatal(err)
	}
	if f == nil {
		t.Fatal("expected non-nil combined filter")
	}
}

func TestClampHybridRatio(t *testing.T) {
	r := &Request{Hybrid: &HybridParams{SemanticRatio: 5}}
	r.ClampHybridRatio()
	if r.Hybrid.SemanticRatio != 1 {
		t.Fatalf("expected clamp to 1, got %v", r.Hybrid.SemanticRatio)
	}
}

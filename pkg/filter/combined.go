package filter

// CombinedInput bundles the four Algolia filter channels a search request
// can populate simultaneously; BuildCombined AND's together whichever of
// them are present.
type CombinedInput struct {
	FiltersString string
	FacetFilters  any
	NumericFilters any
	TagFilters    any
}

// BuildCombined parses every populated filter channel in in and AND's the
// results together. Returns (nil, nil) when nothing was supplied. A
// malformed `filters` string is a hard error; malformed entries within the
// structured JSON vocabularies are skipped rather than rejected, matching
// the permissive behavior of the Algolia SDKs.
func BuildCombined(in CombinedInput) (*Filter, error) {
	var parts []*Filter

	if in.FiltersString != "" {
		f, err := ParseString(in.FiltersString)
		if err != nil {
			return nil, err
		}
		if f != nil {
			parts = append(parts, f)
		}
	}
	if in.FacetFilters != nil {
		if f := FacetFiltersToAST(in.FacetFilters); f != nil {
			parts = append(parts, f)
		}
	}
	if in.NumericFilters != nil {
		if f := NumericFiltersToAST(in.NumericFilters); f != nil {
			parts = append(parts, f)
		}
	}
	if in.TagFilters != nil {
		if f := TagFiltersToAST(in.TagFilters); f != nil {
			parts = append(parts, f)
		}
	}

	return Combine(parts), nil
}

package filter

import (
	"strconv"
	"strings"
)

// FacetFiltersToAST converts the Algolia facetFilters JSON vocabulary
// (string | []string | [][]string, AND of OR groups) into a Filter AST.
// Invalid entries are silently dropped.
func FacetFiltersToAST(value any) *Filter {
	switch v := value.(type) {
	case string:
		return parseFacetFilterString(v)
	case []any:
		return andOfGroups(v, parseFacetFilterString)
	default:
		return nil
	}
}

// NumericFiltersToAST converts the numericFilters JSON vocabulary into a
// Filter AST. Invalid entries are silently dropped.
func NumericFiltersToAST(value any) *Filter {
	switch v := value.(type) {
	case string:
		return parseNumericFilterString(v)
	case []any:
		return andOfGroups(v, parseNumericFilterString)
	default:
		return nil
	}
}

// TagFiltersToAST converts the tagFilters JSON vocabulary into a Filter AST
// over the reserved `_tags` field.
func TagFiltersToAST(value any) *Filter {
	tag := func(s string) *Filter { return Equals(TagField, TextValue(s)) }
	switch v := value.(type) {
	case string:
		return tag(v)
	case []any:
		return andOfGroups(v, tag)
	default:
		return nil
	}
}

// andOfGroups walks a JSON array that mixes bare strings (AND'd directly)
// and nested arrays (OR'd internally, then AND'd with the rest), using parse
// to turn each leaf string into a Filter.
func andOfGroups(items []any, parse func(string) *Filter) *Filter {
	var andParts []*Filter
	for _, item := range items {
		switch v := item.(type) {
		case []any:
			var orParts []*Filter
			for _, inner := range v {
				if s, ok := inner.(string); ok {
					if f := parse(s); f != nil {
						orParts = append(orParts, f)
					}
				}
			}
			if f := orCombine(orParts); f != nil {
				andParts = append(andParts, f)
			}
		case string:
			if f := parse(v); f != nil {
				andParts = append(andParts, f)
			}
		}
	}
	return Combine(andParts)
}

func orCombine(parts []*Filter) *Filter {
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		return Or(parts...)
	}
}

// parseFacetFilterString parses "[-]field:value", with value optionally
// single- or double-quoted. A leading '-' negates the equality.
func parseFacetFilterString(s string) *Filter {
	s = strings.TrimSpace(s)
	negated := false
	if strings.HasPrefix(s, "-") {
		negated = true
		s = s[1:]
	}
	idx := strings.Index(s, ":")
	if idx < 0 {
		return nil
	}
	field := s[:idx]
	value := strings.Trim(s[idx+1:], `"'`)
	f := Equals(field, TextValue(value))
	if negated {
		return Not(f)
	}
	return f
}

// numericOps is ordered longest-first so ">=" is matched before ">".
var numericOps = []string{">=", "<=", "!=", ">", "<", "="}

func parseNumericFilterString(s string) *Filter {
	s = strings.TrimSpace(s)
	for _, op := range numericOps {
		pos := strings.Index(s, op)
		if pos < 0 {
			continue
		}
		field := strings.TrimSpace(s[:pos])
		valStr := strings.TrimSpace(s[pos+len(op):])

		var value FieldValue
		if i, err := strconv.ParseInt(valStr, 10, 64); err == nil {
			value = IntValue(i)
		} else if f, err := strconv.ParseFloat(valStr, 64); err == nil {
			value = FloatValue(f)
		} else {
			return nil
		}

		switch op {
		case ">=":
			return GreaterThanOrEqual(field, value)
		case "<=":
			return LessThanOrEqual(field, value)
		case ">":
			return GreaterThan(field, value)
		case "<":
			return LessThan(field, value)
		case "!=":
			return NotEquals(field, value)
		case "=":
			return Equals(field, value)
		}
	}
	return nil
}

// OptionalFilterSpec is one parsed entry of `optionalFilters`: a field/value
// boost with a score weight.
type OptionalFilterSpec struct {
	Field string
	Value string
	Score float32
}

// ParseOptionalFilters parses the Algolia optionalFilters JSON vocabulary
// into (field, value, score) tuples. A trailing "<score=N>" sets the score
// (default 1.0); a leading '-' is stripped and treated as a normal positive
// boost, per the documented (and flagged-as-likely-wrong) current behavior;
// see DESIGN.md's Open Question decision.
func ParseOptionalFilters(value any) []OptionalFilterSpec {
	var specs []OptionalFilterSpec
	switch v := value.(type) {
	case string:
		if spec, ok := parseOneOptionalFilter(v); ok {
			specs = append(specs, spec)
		}
	case []any:
		for _, item := range v {
			switch iv := item.(type) {
			case string:
				if spec, ok := parseOneOptionalFilter(iv); ok {
					specs = append(specs, spec)
				}
			case []any:
				for _, inner := range iv {
					if s, ok := inner.(string); ok {
						if spec, ok := parseOneOptionalFilter(s); ok {
							specs = append(specs, spec)
						}
					}
				}
			}
		}
	}
	return specs
}

func parseOneOptionalFilter(s string) (OptionalFilterSpec, bool) {
	s = strings.TrimSpace(s)
	score := float32(1.0)
	if idx := strings.Index(s, "<score="); idx >= 0 {
		rest := s[idx+len("<score="):]
		end := strings.Index(rest, ">")
		if end < 0 {
			end = len(rest)
		}
		if sc, err := strconv.ParseFloat(rest[:end], 32); err == nil {
			score = float32(sc)
		}
		s = s[:idx]
	}
	s = strings.TrimPrefix(s, "-")

	colon := strings.Index(s, ":")
	if colon < 0 {
		return OptionalFilterSpec{}, false
	}
	field := s[:colon]
	val := strings.Trim(s[colon+1:], `"'`)
	return OptionalFilterSpec{Field: field, Value: val, Score: score}, true
}

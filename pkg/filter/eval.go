package filter

import "github.com/flapjack/flapjack/pkg/document"

// Matches evaluates a FilterAST node against a document's typed fields. A
// nil Filter matches everything (the empty-filter case). Comparisons
// against an Array-valued field match if any element satisfies the
// comparison, mirroring Algolia's facet-array semantics, except NotEquals,
// which matches only when no element equals the value. Comparisons against
// a field the document doesn't carry never match, except NotEquals, which
// matches vacuously.
func Matches(f *Filter, doc document.Document) bool {
	if f == nil {
		return true
	}

	switch f.Op {
	case OpAnd:
		for _, child := range f.Children {
			if !Matches(child, doc) {
				return false
			}
		}
		return true
	case OpOr:
		if len(f.Children) == 0 {
			return true
		}
		for _, child := range f.Children {
			if Matches(child, doc) {
				return true
			}
		}
		return false
	case OpNot:
		return !Matches(f.Inner, doc)
	default:
		return matchesField(f, doc)
	}
}

func matchesField(f *Filter, doc document.Document) bool {
	fv, ok := lookupField(f.Field, doc)
	if !ok {
		// NotEquals against an absent field is vacuously true: the
		// document doesn't carry a conflicting value.
		return f.Op == OpNotEquals
	}

	if fv.Kind == document.Array {
		// NotEquals over an array means "none of the elements equal",
		// the complement of the any-element Equals match.
		if f.Op == OpNotEquals {
			for _, item := range fv.Items {
				if compareOne(OpEquals, item, f.Value) {
					return false
				}
			}
			return true
		}
		for _, item := range fv.Items {
			if compareOne(f.Op, item, f.Value) {
				return true
			}
		}
		return false
	}

	return compareOne(f.Op, fv, f.Value)
}

// lookupField resolves field against a document, special-casing the
// reserved _tags field (the engine stores tags as a plain string array
// field under that same name, so no extra indirection is needed) and the
// lifted geo fields.
func lookupField(field string, doc document.Document) (document.FieldValue, bool) {
	switch field {
	case "_geo_lat":
		if doc.GeoLat != nil {
			return document.FloatValue(*doc.GeoLat), true
		}
		return document.FieldValue{}, false
	case "_geo_lng":
		if doc.GeoLng != nil {
			return document.FloatValue(*doc.GeoLng), true
		}
		return document.FieldValue{}, false
	default:
		v, ok := doc.Fields[field]
		return v, ok
	}
}

func compareOne(op Op, fv document.FieldValue, want FieldValue) bool {
	switch op {
	case OpEquals:
		return equalValues(fv, want)
	case OpNotEquals:
		return !equalValues(fv, want)
	case OpGreaterThan:
		cmp, ok := compareNumericOrText(fv, want)
		return ok && cmp > 0
	case OpGreaterThanOrEqual:
		cmp, ok := compareNumericOrText(fv, want)
		return ok && cmp >= 0
	case OpLessThan:
		cmp, ok := compareNumericOrText(fv, want)
		return ok && cmp < 0
	case OpLessThanOrEqual:
		cmp, ok := compareNumericOrText(fv, want)
		return ok && cmp <= 0
	default:
		return false
	}
}

func equalValues(fv document.FieldValue, want FieldValue) bool {
	switch want.Kind {
	case Text:
		return (fv.Kind == document.Text || fv.Kind == document.Facet) && fv.Str == want.Str
	case Integer:
		return numericEqual(fv, float64(want.Int))
	case Float:
		return numericEqual(fv, want.Flt)
	default:
		return false
	}
}

func numericEqual(fv document.FieldValue, want float64) bool {
	switch fv.Kind {
	case document.Integer, document.Date:
		return float64(fv.Int) == want
	case document.Float:
		return fv.Flt == want
	default:
		return false
	}
}

// compareNumericOrText returns (cmp, ok): cmp < 0/== 0/> 0 as fv
// is less than/equal to/greater than want, ok false if the two operands
// aren't comparable (a numeric comparison against a text field or vice
// versa).
func compareNumericOrText(fv document.FieldValue, want FieldValue) (int, bool) {
	if want.Kind == Text {
		var s string
		switch fv.Kind {
		case document.Text, document.Facet:
			s = fv.Str
		default:
			return 0, false
		}
		switch {
		case s < want.Str:
			return -1, true
		case s > want.Str:
			return 1, true
		default:
			return 0, true
		}
	}

	var have float64
	switch fv.Kind {
	case document.Integer, document.Date:
		have = float64(fv.Int)
	case document.Float:
		have = fv.Flt
	default:
		return 0, false
	}

	var wantF float64
	switch want.Kind {
	case Integer:
		wantF = float64(want.Int)
	case Float:
		wantF = want.Flt
	default:
		return 0, false
	}

	switch {
	case have < wantF:
		return -1, true
	case have > wantF:
		return 1, true
	default:
		return 0, true
	}
}

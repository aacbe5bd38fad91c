// Package document converts between the user-facing JSON object shape and
// the typed Document representation the engine and filter evaluator work
// with: splitting reserved id keys, lifting _geoloc into separate numeric
// fields, and deriving facet paths (including hierarchical facets).
package document

import (
	"fmt"
	"strings"
)

// ValueKind discriminates the FieldValue variants a document field can hold.
type ValueKind int

const (
	Text ValueKind = iota
	Integer
	Float
	Date
	Facet
	Array
	Object
)

// FieldValue is one typed document field value.
type FieldValue struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Flt   float64
	Items []FieldValue
	Props map[string]FieldValue
}

func TextValue(s string) FieldValue   { return FieldValue{Kind: Text, Str: s} }
func IntValue(i int64) FieldValue     { return FieldValue{Kind: Integer, Int: i} }
func FloatValue(f float64) FieldValue { return FieldValue{Kind: Float, Flt: f} }
func DateValue(unix int64) FieldValue { return FieldValue{Kind: Date, Int: unix} }
func FacetValue(s string) FieldValue  { return FieldValue{Kind: Facet, Str: s} }
func ArrayValue(items []FieldValue) FieldValue {
	return FieldValue{Kind: Array, Items: items}
}
func ObjectValue(props map[string]FieldValue) FieldValue {
	return FieldValue{Kind: Object, Props: props}
}

// Document is the engine-level record: an identifier plus a flat map of
// typed fields. objectID/_id are never present as entries of Fields.
type Document struct {
	ID     string
	Fields map[string]FieldValue
	// GeoLat/GeoLng are populated when the source JSON carried a valid
	// _geoloc object, or an array whose first element is one.
	GeoLat *float64
	GeoLng *float64
}

// reservedIDKeys are synonyms for the document identifier and never appear
// as ordinary fields.
var reservedIDKeys = []string{"_id", "objectID"}

// FromJSON converts a decoded JSON object into a Document. objectID is
// required unless idFallback is non-empty, in which case it is used when
// the object carries none (e.g. for auto-generated IDs).
func FromJSON(obj map[string]any, idFallback string) (Document, error) {
	id, ok := extractID(obj)
	if !ok {
		if idFallback == "" {
			return Document{}, fmt.Errorf("document: missing objectID")
		}
		id = idFallback
	}

	fields := make(map[string]FieldValue, len(obj))
	for k, v := range obj {
		if isReservedIDKey(k) {
			continue
		}
		fields[k] = toFieldValue(v)
	}

	doc := Document{ID: id, Fields: fields}

	if raw, ok := obj["_geoloc"]; ok {
		if lat, lng, ok := extractGeoloc(raw); ok {
			doc.GeoLat = &lat
			doc.GeoLng = &lng
		}
	}

	return doc, nil
}

// ToJSON renders a Document back into a plain JSON-ready map, re-inserting
// objectID.
func (d Document) ToJSON() map[string]any {
	out := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		out[k] = fromFieldValue(v)
	}
	out["objectID"] = d.ID
	return out
}

func extractID(obj map[string]any) (string, bool) {
	for _, key := range reservedIDKeys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func isReservedIDKey(k string) bool {
	for _, r := range reservedIDKeys {
		if k == r {
			return true
		}
	}
	return false
}

func toFieldValue(v any) FieldValue {
	switch val := v.(type) {
	case string:
		return TextValue(val)
	case float64:
		if val == float64(int64(val)) {
			return IntValue(int64(val))
		}
		return FloatValue(val)
	case bool:
		return TextValue(fmt.Sprintf("%t", val))
	case []any:
		items := make([]FieldValue, 0, len(val))
		for _, item := range val {
			items = append(items, toFieldValue(item))
		}
		return ArrayValue(items)
	case map[string]any:
		props := make(map[string]FieldValue, len(val))
		for k, item := range val {
			props[k] = toFieldValue(item)
		}
		return ObjectValue(props)
	default:
		return TextValue(fmt.Sprintf("%v", val))
	}
}

func fromFieldValue(v FieldValue) any {
	switch v.Kind {
	case Integer:
		return v.Int
	case Float:
		return v.Flt
	case Date:
		return v.Int
	case Text, Facet:
		return v.Str
	case Array:
		out := make([]any, 0, len(v.Items))
		for _, item := range v.Items {
			out = append(out, fromFieldValue(item))
		}
		return out
	case Object:
		out := make(map[string]any, len(v.Props))
		for k, item := range v.Props {
			out[k] = fromFieldValue(item)
		}
		return out
	default:
		return nil
	}
}

// extractGeoloc pulls (lat, lng) out of a _geoloc value, which may be a
// single {"lat","lng"} object or an array of them, of which only the first
// element is read.
func extractGeoloc(v any) (lat, lng float64, ok bool) {
	switch val := v.(type) {
	case map[string]any:
		latV, latOK := val["lat"].(float64)
		lngV, lngOK := val["lng"].(float64)
		if !latOK || !lngOK {
			return 0, 0, false
		}
		if latV < -90 || latV > 90 || lngV < -180 || lngV > 180 {
			return 0, 0, false
		}
		return latV, lngV, true
	case []any:
		if len(val) == 0 {
			return 0, 0, false
		}
		return extractGeoloc(val[0])
	default:
		return 0, 0, false
	}
}

// FacetPaths derives the hierarchical-facet paths for one field/value pair.
// A plain string value "x" on field "brand" yields "/brand/x"; a
// hierarchical facet value like "Audio > Headphones > Wireless" yields one
// path per level: "/brand/Audio", "/brand/Audio > Headphones", etc.
const hierarchicalSeparator = " > "

func FacetPaths(fieldName string, value FieldValue) []string {
	switch value.Kind {
	case Text, Facet:
		if strings.Contains(value.Str, hierarchicalSeparator) {
			return hierarchicalPaths(fieldName, value.Str)
		}
		return []string{"/" + fieldName + "/" + truncate(value.Str, 1000)}
	case Array:
		var paths []string
		for _, item := range value.Items {
			if item.Kind == Text || item.Kind == Facet {
				paths = append(paths, "/"+fieldName+"/"+truncate(item.Str, 1000))
			}
		}
		return paths
	default:
		return nil
	}
}

func hierarchicalPaths(fieldName, value string) []string {
	levels := strings.Split(value, hierarchicalSeparator)
	paths := make([]string, 0, len(levels))
	prefix := ""
	for i, level := range levels {
		if i == 0 {
			prefix = level
		} else {
			prefix = prefix + hierarchicalSeparator + level
		}
		paths = append(paths, "/"+fieldName+"/"+truncate(prefix, 1000))
	}
	return paths
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// Package geo parses the Algolia geo-search parameters (aroundLatLng,
// aroundRadius, insideBoundingBox, insidePolygon, aroundPrecision) into a
// typed Params struct.
package geo

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// BoundingBox is a (topRight, bottomLeft) rectangle as used by
// insideBoundingBox.
type BoundingBox struct {
	P1, P2 Point
}

// Params is the fully resolved geo-search configuration for one query.
type Params struct {
	Around             *Point
	AroundRadius       *int64 // nil = unset; "all" is carried by AroundRadiusAll
	AroundRadiusAll    bool
	BoundingBoxes      []BoundingBox
	Polygons           [][]Point
	AroundPrecision    []PrecisionStep
	MinimumAroundRadius *int64
}

// PrecisionStep is one entry of a graduated aroundPrecision ramp:
// {"from": N, "value": M} meters.
type PrecisionStep struct {
	From  int64
	Value int64
}

// ParseLatLng parses "lat,lng" into a Point. Returns ok=false on malformed
// input or out-of-range values.
func ParseLatLng(s string) (Point, bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Point{}, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return Point{}, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

// ParseBoundingBoxes accepts either a flat [lat1,lng1,lat2,lng2,...] array or
// a JSON string in that same shape and groups coordinates into boxes of 4.
func ParseBoundingBoxes(value any) []BoundingBox {
	nums := numericArray(value)
	var boxes []BoundingBox
	for i := 0; i+3 < len(nums); i += 4 {
		boxes = append(boxes, BoundingBox{
			P1: Point{Lat: nums[i], Lng: nums[i+1]},
			P2: Point{Lat: nums[i+2], Lng: nums[i+3]},
		})
	}
	return boxes
}

// ParsePolygons accepts one or more flat coordinate arrays (each a closed
// polygon of lat/lng pairs) and groups them into Points.
func ParsePolygons(value any) [][]Point {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	// A single polygon is a flat array of numbers; multiple polygons are an
	// array of such arrays.
	if len(raw) > 0 {
		if _, isNum := toFloat(raw[0]); isNum {
			nums := numericArray(value)
			return [][]Point{pointsFromFlat(nums)}
		}
	}
	var polys [][]Point
	for _, item := range raw {
		nums := numericArray(item)
		if len(nums) >= 6 {
			polys = append(polys, pointsFromFlat(nums))
		}
	}
	return polys
}

func pointsFromFlat(nums []float64) []Point {
	var pts []Point
	for i := 0; i+1 < len(nums); i += 2 {
		pts = append(pts, Point{Lat: nums[i], Lng: nums[i+1]})
	}
	return pts
}

// ParseAroundRadius parses a JSON value that is either the string "all" or a
// number of meters.
func ParseAroundRadius(value any) (radius int64, all bool, ok bool) {
	switch v := value.(type) {
	case string:
		if v == "all" {
			return 0, true, true
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, false
		}
		return n, false, true
	case float64:
		return int64(v), false, true
	default:
		return 0, false, false
	}
}

// ParseAroundPrecision parses either a single number (flat precision) or a
// graduated ramp of {"from","value"} steps.
func ParseAroundPrecision(value any) []PrecisionStep {
	switch v := value.(type) {
	case float64:
		return []PrecisionStep{{From: 0, Value: int64(v)}}
	case []any:
		var steps []PrecisionStep
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			from, _ := toFloat(m["from"])
			val, _ := toFloat(m["value"])
			steps = append(steps, PrecisionStep{From: int64(from), Value: int64(val)})
		}
		return steps
	default:
		return nil
	}
}

func numericArray(value any) []float64 {
	var raw []any
	switch v := value.(type) {
	case []any:
		raw = v
	case string:
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return nil
		}
	default:
		return nil
	}
	nums := make([]float64, 0, len(raw))
	for _, item := range raw {
		if f, ok := toFloat(item); ok {
			nums = append(nums, f)
		}
	}
	return nums
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

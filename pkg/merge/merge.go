// Package merge combines per-node analytics results from the cluster
// coordinator's fan-out into a single response, dispatching to a
// strategy-specific function per endpoint. Every function operates on
// generic JSON (map[string]any / []any) to stay decoupled from the
// analytics reader's typed result shapes, mirroring the opaque-document
// style the rest of the search engine uses at its own boundary.
package merge

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/flapjack/flapjack/pkg/stats"
)

// Strategy selects which merge function handles a given analytics
// endpoint's results.
type Strategy int

const (
	StrategyTopK Strategy = iota
	StrategyCountWithDaily
	StrategyRate
	StrategyWeightedAvg
	StrategyHistogram
	StrategyCategoryCounts
	StrategyUserCountHll
	StrategyOverview
	StrategyNone
)

// strategyByEndpoint is the fixed endpoint → strategy dispatch table.
var strategyByEndpoint = map[string]Strategy{
	"searches":                    StrategyTopK,
	"searches/noResults":          StrategyTopK,
	"searches/noClicks":           StrategyTopK,
	"hits":                        StrategyTopK,
	"filters":                     StrategyTopK,
	"filters/noResults":           StrategyTopK,
	"geo/top-searches":            StrategyTopK,
	"searches/count":              StrategyCountWithDaily,
	"searches/noResultRate":       StrategyRate,
	"searches/noClickRate":        StrategyRate,
	"clicks/clickThroughRate":     StrategyRate,
	"conversions/conversionRate":  StrategyRate,
	"clicks/averageClickPosition": StrategyWeightedAvg,
	"clicks/positions":            StrategyHistogram,
	"devices":                     StrategyCategoryCounts,
	"geo":                         StrategyCategoryCounts,
	"geo/regions":                 StrategyCategoryCounts,
	"users/count":                 StrategyUserCountHll,
	"overview":                    StrategyOverview,
}

// StrategyForEndpoint returns the merge strategy registered for endpoint,
// defaulting to StrategyNone (first-result passthrough) for unknown
// endpoints or status-style responses that can't be meaningfully combined.
func StrategyForEndpoint(endpoint string) Strategy {
	if s, ok := strategyByEndpoint[endpoint]; ok {
		return s
	}
	switch {
	case hasPrefix(endpoint, "filters/"):
		return StrategyTopK
	case hasPrefix(endpoint, "geo/"):
		return StrategyTopK
	}
	return StrategyNone
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asArray(v any) []any {
	a, _ := v.([]any)
	return a
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func sortByDate(dates []map[string]any) {
	sort.Slice(dates, func(i, j int) bool {
		return asString(dates[i]["date"]) < asString(dates[j]["date"])
	})
}

// MergeResults dispatches results to the strategy registered for endpoint.
// Empty input returns an empty object; a single input is returned
// unchanged. limit bounds the TopK strategy's output length.
func MergeResults(logger *slog.Logger, endpoint string, results []map[string]any, limit int) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}
	if len(results) == 1 {
		return results[0]
	}

	switch StrategyForEndpoint(endpoint) {
	case StrategyTopK:
		resultsKey, keyField := topKFields(endpoint)
		return MergeTopK(results, resultsKey, keyField, limit)
	case StrategyCountWithDaily:
		return MergeCountWithDaily(results)
	case StrategyRate:
		num, den, rate := rateFields(endpoint)
		return MergeRates(results, num, den, rate)
	case StrategyWeightedAvg:
		return MergeWeightedAvg(results, "average", "clickCount")
	case StrategyHistogram:
		return MergeHistogram(results, "positions")
	case StrategyCategoryCounts:
		itemsKey, nameField, countField := categoryFields(endpoint)
		return MergeCategoryCounts(results, itemsKey, nameField, countField)
	case StrategyUserCountHll:
		return MergeUserCounts(logger, results)
	case StrategyOverview:
		return MergeOverview(results)
	default:
		return results[0]
	}
}

func topKFields(endpoint string) (resultsKey, keyField string) {
	switch {
	case endpoint == "searches" || endpoint == "searches/noResults" || endpoint == "searches/noClicks":
		return "searches", "search"
	case endpoint == "hits":
		return "hits", "hit"
	case endpoint == "filters" || endpoint == "filters/noResults":
		return "filters", "attribute"
	case hasPrefix(endpoint, "filters/"):
		return "values", "value"
	case hasPrefix(endpoint, "geo/"):
		return "searches", "search"
	default:
		return "results", "key"
	}
}

func rateFields(endpoint string) (num, den, rate string) {
	switch endpoint {
	case "searches/noResultRate":
		return "noResults", "count", "rate"
	case "searches/noClickRate":
		return "noClickCount", "trackedSearchCount", "rate"
	case "clicks/clickThroughRate":
		return "clickCount", "trackedSearchCount", "rate"
	case "conversions/conversionRate":
		return "conversionCount", "trackedSearchCount", "rate"
	default:
		return "numerator", "denominator", "rate"
	}
}

func categoryFields(endpoint string) (itemsKey, nameField, countField string) {
	switch {
	case endpoint == "devices":
		return "platforms", "platform", "count"
	case endpoint == "geo":
		return "countries", "country", "count"
	case hasPrefix(endpoint, "geo/") && endpoint[len(endpoint)-8:] == "/regions":
		return "regions", "region", "count"
	default:
		return "items", "name", "count"
	}
}

// MergeTopK sums counts (and nbHits, when present) per key across nodes,
// sorts descending by count, and truncates to limit. Fields other than
// count/nbHits are carried from the first node that produced each key.
func MergeTopK(results []map[string]any, resultsKey, keyField string, limit int) map[string]any {
	type acc struct {
		count    int64
		nbHits   int64
		hasNb    bool
		template map[string]any
	}
	byKey := make(map[string]*acc)
	order := make([]string, 0)

	for _, result := range results {
		items := asArray(result[resultsKey])
		for _, raw := range items {
			item := asMap(raw)
			key := asString(item[keyField])
			count := asInt64(item["count"])
			_, hasNbHits := item["nbHits"]
			nbHits := asInt64(item["nbHits"])

			entry, ok := byKey[key]
			if !ok {
				entry = &acc{template: item}
				byKey[key] = entry
				order = append(order, key)
			}
			entry.count += count
			entry.nbHits += nbHits
			entry.hasNb = entry.hasNb || hasNbHits
		}
	}

	merged := make([]map[string]any, 0, len(order))
	for _, key := range order {
		entry := byKey[key]
		item := cloneMap(entry.template)
		item["count"] = entry.count
		if entry.hasNb || entry.nbHits > 0 {
			item["nbHits"] = entry.nbHits
		}
		merged = append(merged, item)
	}

	sort.Slice(merged, func(i, j int) bool {
		return asInt64(merged[i]["count"]) > asInt64(merged[j]["count"])
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	base := firstOrEmpty(results)
	out := cloneMap(base)
	out[resultsKey] = toAnySlice(merged)
	return out
}

// MergeCountWithDaily sums the total count and per-date counts across
// nodes.
func MergeCountWithDaily(results []map[string]any) map[string]any {
	var total int64
	daily := make(map[string]int64)

	for _, result := range results {
		total += asInt64(result["count"])
		for _, raw := range asArray(result["dates"]) {
			entry := asMap(raw)
			date := asString(entry["date"])
			daily[date] += asInt64(entry["count"])
		}
	}

	dates := make([]map[string]any, 0, len(daily))
	for date, count := range daily {
		dates = append(dates, map[string]any{"date": date, "count": count})
	}
	sortByDate(dates)

	return map[string]any{"count": total, "dates": toAnySlice(dates)}
}

// MergeRates sums numerator and denominator components separately and then
// divides; it never averages rates, since averaging rates computed over
// different-sized populations is mathematically wrong.
func MergeRates(results []map[string]any, numeratorField, denominatorField, rateField string) map[string]any {
	var totalNum, totalDen int64
	dailyNum := make(map[string]int64)
	dailyDen := make(map[string]int64)

	for _, result := range results {
		totalNum += asInt64(result[numeratorField])
		totalDen += asInt64(result[denominatorField])

		for _, raw := range asArray(result["dates"]) {
			entry := asMap(raw)
			date := asString(entry["date"])
			dailyNum[date] += asInt64(entry[numeratorField])
			dailyDen[date] += asInt64(entry[denominatorField])
		}
	}

	rate := 0.0
	if totalDen > 0 {
		rate = float64(totalNum) / float64(totalDen)
	}

	dates := make([]map[string]any, 0, len(dailyNum))
	for date, num := range dailyNum {
		den := dailyDen[date]
		r := 0.0
		if den > 0 {
			r = float64(num) / float64(den)
		}
		dates = append(dates, map[string]any{
			"date":           date,
			rateField:        r,
			numeratorField:   num,
			denominatorField: den,
		})
	}
	sortByDate(dates)

	return map[string]any{
		rateField:        rate,
		numeratorField:   totalNum,
		denominatorField: totalDen,
		"dates":          toAnySlice(dates),
	}
}

// MergeWeightedAvg computes sum(avg*count)/sum(count), overall and per
// date.
func MergeWeightedAvg(results []map[string]any, avgField, countField string) map[string]any {
	var totalSum float64
	var totalCount int64
	dailySum := make(map[string]float64)
	dailyCount := make(map[string]int64)

	for _, result := range results {
		avg := asFloat64(result[avgField])
		count := asInt64(result[countField])
		totalSum += avg * float64(count)
		totalCount += count

		for _, raw := range asArray(result["dates"]) {
			entry := asMap(raw)
			date := asString(entry["date"])
			a := asFloat64(entry[avgField])
			c := asInt64(entry[countField])
			dailySum[date] += a * float64(c)
			dailyCount[date] += c
		}
	}

	avg := 0.0
	if totalCount > 0 {
		avg = totalSum / float64(totalCount)
	}

	dates := make([]map[string]any, 0, len(dailySum))
	for date, sum := range dailySum {
		count := dailyCount[date]
		a := 0.0
		if count > 0 {
			a = sum / float64(count)
		}
		dates = append(dates, map[string]any{"date": date, avgField: a, countField: count})
	}
	sortByDate(dates)

	return map[string]any{avgField: avg, countField: totalCount, "dates": toAnySlice(dates)}
}

// MergeHistogram sums clickCount per fixed bucket, preserving the
// insertion order of each bucket's first appearance.
func MergeHistogram(results []map[string]any, bucketsKey string) map[string]any {
	counts := make(map[string]int64)
	order := make([]string, 0)
	positions := make(map[string]any)
	seen := make(map[string]bool)

	for _, result := range results {
		for _, raw := range asArray(result[bucketsKey]) {
			bucket := asMap(raw)
			position := bucket["position"]
			key := jsonKey(position)
			count := asInt64(bucket["clickCount"])

			if !seen[key] {
				seen[key] = true
				order = append(order, key)
				positions[key] = position
			}
			counts[key] += count
		}
	}

	buckets := make([]map[string]any, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, map[string]any{
			"position":   positions[key],
			"clickCount": counts[key],
		})
	}

	return map[string]any{bucketsKey: toAnySlice(buckets)}
}

// MergeCategoryCounts sums per-label counts and recomputes the total from
// the summed counts, preserving other top-level base fields (e.g. the
// "country" label on a per-region breakdown).
func MergeCategoryCounts(results []map[string]any, itemsKey, nameField, countField string) map[string]any {
	counts := make(map[string]int64)
	order := make([]string, 0)
	seen := make(map[string]bool)

	for _, result := range results {
		for _, raw := range asArray(result[itemsKey]) {
			item := asMap(raw)
			name := asString(item[nameField])
			if name == "" {
				continue
			}
			if !seen[name] {
				seen[name] = true
				order = append(order, name)
			}
			counts[name] += asInt64(item[countField])
		}
	}

	items := make([]map[string]any, 0, len(order))
	var recomputedTotal int64
	for _, name := range order {
		count := counts[name]
		recomputedTotal += count
		items = append(items, map[string]any{nameField: name, countField: count})
	}
	sort.Slice(items, func(i, j int) bool {
		return asInt64(items[i][countField]) > asInt64(items[j][countField])
	})

	out := cloneMap(firstOrEmpty(results))
	out[itemsKey] = toAnySlice(items)
	if _, ok := out["total"]; ok {
		out["total"] = recomputedTotal
	}
	return out
}

// MergeUserCounts merges unique-user counts using HLL sketches when nodes
// supply them, falling back to additive (possibly double-counted) raw
// counts for nodes that don't, and logs a warning when both are mixed in
// the same response.
func MergeUserCounts(logger *slog.Logger, results []map[string]any) map[string]any {
	sketches := make([]*stats.HllSketch, 0)
	dailySketches := make(map[string][]*stats.HllSketch)
	var fallbackCount int64

	for _, result := range results {
		if b64, ok := result["hll_sketch"].(string); ok {
			if sketch := stats.HllFromBase64(b64); sketch != nil {
				sketches = append(sketches, sketch)
			}
		} else {
			fallbackCount += asInt64(result["count"])
		}

		if daily := asMap(result["daily_sketches"]); daily != nil {
			for date, raw := range daily {
				if b64, ok := raw.(string); ok {
					if sketch := stats.HllFromBase64(b64); sketch != nil {
						dailySketches[date] = append(dailySketches[date], sketch)
					}
				}
			}
		}
	}

	var count int64
	if len(sketches) > 0 {
		merged := stats.MergeAll(sketches)
		hllCount := int64(merged.Cardinality())
		if fallbackCount > 0 {
			if logger != nil {
				logger.Warn("mixed HLL/non-HLL user counts",
					"sketched_nodes", len(sketches), "fallback_count", fallbackCount)
			}
			count = hllCount + fallbackCount
		} else {
			count = hllCount
		}
	} else {
		count = fallbackCount
	}

	dates := make([]map[string]any, 0, len(dailySketches))
	for date, daySketches := range dailySketches {
		merged := stats.MergeAll(daySketches)
		dates = append(dates, map[string]any{"date": date, "count": merged.Cardinality()})
	}
	sortByDate(dates)

	return map[string]any{"count": count, "dates": toAnySlice(dates)}
}

// MergeOverview merges multi-index summaries: sums totals, merges indices
// by name summing searches/noResults, merges dates by summing counts, and
// drops rates since they can't be recomputed from totals alone.
func MergeOverview(results []map[string]any) map[string]any {
	var totalSearches, totalUsers int64
	type idxAcc struct{ searches, noResults int64 }
	indices := make(map[string]*idxAcc)
	order := make([]string, 0)
	daily := make(map[string]int64)

	for _, result := range results {
		totalSearches += asInt64(result["totalSearches"])
		totalUsers += asInt64(result["uniqueUsers"])

		for _, raw := range asArray(result["indices"]) {
			idx := asMap(raw)
			name := asString(idx["index"])
			entry, ok := indices[name]
			if !ok {
				entry = &idxAcc{}
				indices[name] = entry
				order = append(order, name)
			}
			entry.searches += asInt64(idx["searches"])
			entry.noResults += asInt64(idx["noResults"])
		}

		for _, raw := range asArray(result["dates"]) {
			entry := asMap(raw)
			date := asString(entry["date"])
			daily[date] += asInt64(entry["count"])
		}
	}

	mergedIndices := make([]map[string]any, 0, len(order))
	for _, name := range order {
		entry := indices[name]
		mergedIndices = append(mergedIndices, map[string]any{
			"index": name, "searches": entry.searches, "noResults": entry.noResults,
		})
	}
	sort.Slice(mergedIndices, func(i, j int) bool {
		return asInt64(mergedIndices[i]["searches"]) > asInt64(mergedIndices[j]["searches"])
	})

	dates := make([]map[string]any, 0, len(daily))
	for date, count := range daily {
		dates = append(dates, map[string]any{"date": date, "count": count})
	}
	sortByDate(dates)

	return map[string]any{
		"totalSearches":    totalSearches,
		"uniqueUsers":      totalUsers,
		"noResultRate":     nil,
		"clickThroughRate": nil,
		"indices":          toAnySlice(mergedIndices),
		"dates":            toAnySlice(dates),
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func firstOrEmpty(results []map[string]any) map[string]any {
	if len(results) == 0 {
		return map[string]any{}
	}
	return results[0]
}

func toAnySlice(items []map[string]any) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// jsonKey renders an arbitrary JSON value (typically a position range
// array) into a stable map key.
func jsonKey(v any) string {
	switch x := v.(type) {
	case []any:
		out := "["
		for i, e := range x {
			if i > 0 {
				out += ","
			}
			out += jsonKey(e)
		}
		return out + "]"
	case string:
		return "\"" + x + "\""
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", x)
	}
}

package analytics

import (
	"encoding/json"
	"hash/fnv"
	"path/filepath"

	"github.com/flapjack/flapjack/pkg/stats"
)

// PerUserAgg is the intermediate per-(user, variant) aggregation built
// while scanning raw search/event rows, before per-arm rate computation.
type PerUserAgg struct {
	Searches            uint64
	Clicks              uint64
	Conversions         uint64
	Revenue             float64
	ZeroResultSearches  uint64
	AbandonedSearches   uint64
	ClickMinPositions   []uint32
}

// ArmMetrics is the aggregate metric set for one arm (control or variant)
// of an experiment, including the per-user tuples the stats package's
// inference functions need.
type ArmMetrics struct {
	ArmName               string
	Searches              uint64
	Users                 uint64
	Clicks                uint64
	Conversions           uint64
	Revenue               float64
	ZeroResultSearches    uint64
	AbandonedSearches     uint64
	Ctr                   float64
	ConversionRate        float64
	RevenuePerSearch      float64
	ZeroResultRate        float64
	AbandonmentRate       float64
	PerUserCtrs           [][2]float64
	PerUserConversionRate [][2]float64
	PerUserZeroResultRate [][2]float64
	PerUserAbandonment    [][2]float64
	PerUserRevenues       []float64
	PerUserIDs            []string
	// MeanClickRank is the per-user average of minimum click position,
	// then averaged across users (Deng et al.) to avoid heavy-user bias.
	// Lower is better; 0 when the arm has no clicks.
	MeanClickRank float64
}

func emptyArmMetrics(name string) ArmMetrics {
	return ArmMetrics{ArmName: name}
}

// ExperimentMetrics is the combined control/variant metric set returned by
// GetExperimentMetrics.
type ExperimentMetrics struct {
	Control                 ArmMetrics
	Variant                 ArmMetrics
	OutlierUsersExcluded     int
	NoStableIDQueries        uint64
	WinsorizationCapApplied  *float64
}

type userVariantKey struct {
	user    string
	variant string
}

// aggregateExperimentMetrics is the pure computation core: separates
// stable-id from query_id-fallback searches, joins events by query_id,
// aggregates per (user, variant), excludes outlier users, then builds
// per-arm metrics.
func aggregateExperimentMetrics(searches []searchRow, events []eventRow, winsorizationCap *float64) ExperimentMetrics {
	var stableSearches []searchRow
	var noStableIDQueries uint64

	for _, s := range searches {
		if s.AssignmentMethod == "user_token" || s.AssignmentMethod == "session_id" {
			stableSearches = append(stableSearches, s)
		} else {
			noStableIDQueries++
		}
	}

	eventsByQID := make(map[string][]eventRow)
	for _, e := range events {
		eventsByQID[e.QueryID] = append(eventsByQID[e.QueryID], e)
	}

	perUser := make(map[userVariantKey]*PerUserAgg)
	for _, s := range stableSearches {
		key := userVariantKey{user: s.UserToken, variant: s.VariantID}
		agg, ok := perUser[key]
		if !ok {
			agg = &PerUserAgg{}
			perUser[key] = agg
		}
		agg.Searches++
		if s.NbHits == 0 {
			agg.ZeroResultSearches++
		}

		searchGotClick := false
		if s.QueryID != "" {
			for _, ev := range eventsByQID[s.QueryID] {
				switch ev.EventType {
				case "click":
					agg.Clicks++
					searchGotClick = true
					if ev.Positions != "" {
						if minPos, ok := minPositionFromJSON(ev.Positions); ok {
							agg.ClickMinPositions = append(agg.ClickMinPositions, minPos)
						}
					}
				case "conversion":
					agg.Conversions++
					if ev.Value != nil {
						agg.Revenue += *ev.Value
					}
				}
			}
		}

		if s.HasResults && !searchGotClick {
			agg.AbandonedSearches++
		}
	}

	userSearchCounts := make(map[string]uint64)
	for key, agg := range perUser {
		userSearchCounts[key.user] += agg.Searches
	}
	outliers := stats.DetectOutlierUsers(userSearchCounts)

	var controlUsers, variantUsers []struct {
		user string
		agg  *PerUserAgg
	}
	for key, agg := range perUser {
		if outliers[key.user] {
			continue
		}
		entry := struct {
			user string
			agg  *PerUserAgg
		}{key.user, agg}
		if key.variant == "control" {
			controlUsers = append(controlUsers, entry)
		} else {
			variantUsers = append(variantUsers, entry)
		}
	}

	buildArm := func(name string, users []struct {
		user string
		agg  *PerUserAgg
	}) ArmMetrics {
		pairs := make([]userAggPair, len(users))
		for i, u := range users {
			pairs[i] = userAggPair{user: u.user, agg: u.agg}
		}
		return buildArmMetrics(name, pairs, winsorizationCap)
	}

	return ExperimentMetrics{
		Control:                buildArm("control", controlUsers),
		Variant:                buildArm("variant", variantUsers),
		OutlierUsersExcluded:   len(outliers),
		NoStableIDQueries:      noStableIDQueries,
		WinsorizationCapApplied: winsorizationCap,
	}
}

type userAggPair struct {
	user string
	agg  *PerUserAgg
}

func buildArmMetrics(armName string, users []userAggPair, winsorizationCap *float64) ArmMetrics {
	if len(users) == 0 {
		return emptyArmMetrics(armName)
	}

	var totalSearches, totalClicks, totalConversions, totalZeroResult, totalAbandoned uint64
	var totalRevenue float64
	userIDs := make([]string, 0, len(users))
	ctrs := make([][2]float64, 0, len(users))
	conversionRates := make([][2]float64, 0, len(users))
	zeroResultRates := make([][2]float64, 0, len(users))
	abandonmentRates := make([][2]float64, 0, len(users))
	revenues := make([]float64, 0, len(users))

	for _, u := range users {
		agg := u.agg
		userIDs = append(userIDs, u.user)
		totalSearches += agg.Searches
		totalClicks += agg.Clicks
		totalConversions += agg.Conversions
		totalRevenue += agg.Revenue
		totalZeroResult += agg.ZeroResultSearches
		totalAbandoned += agg.AbandonedSearches

		ctrs = append(ctrs, [2]float64{float64(agg.Clicks), float64(agg.Searches)})
		conversionRates = append(conversionRates, [2]float64{float64(agg.Conversions), float64(agg.Searches)})
		zeroResultRates = append(zeroResultRates, [2]float64{float64(agg.ZeroResultSearches), float64(agg.Searches)})
		searchesWithResults := saturatingSub(agg.Searches, agg.ZeroResultSearches)
		abandonmentRates = append(abandonmentRates, [2]float64{float64(agg.AbandonedSearches), float64(searchesWithResults)})
		revenues = append(revenues, agg.Revenue)
	}

	if winsorizationCap != nil {
		var rawCtrs []float64
		idxWithSearches := make([]int, 0, len(ctrs))
		for i, pair := range ctrs {
			if pair[1] > 0 {
				rawCtrs = append(rawCtrs, pair[0]/pair[1])
				idxWithSearches = append(idxWithSearches, i)
			}
		}
		stats.Winsorize(rawCtrs, *winsorizationCap)
		for i, idx := range idxWithSearches {
			ctrs[idx][0] = rawCtrs[i] * ctrs[idx][1]
		}
	}

	searchesWithResults := totalSearches - totalZeroResult

	var ctrSum float64
	for _, pair := range ctrs {
		ctrSum += safeDiv(pair[0], pair[1])
	}
	ctr := safeDiv(ctrSum, float64(len(ctrs)))

	conversionRate := safeDiv(float64(totalConversions), float64(totalSearches))
	revenuePerSearch := safeDiv(totalRevenue, float64(totalSearches))
	zeroResultRate := safeDiv(float64(totalZeroResult), float64(totalSearches))
	abandonmentRate := safeDiv(float64(totalAbandoned), float64(searchesWithResults))

	var userMeans []float64
	for _, u := range users {
		if len(u.agg.ClickMinPositions) == 0 {
			continue
		}
		var sum float64
		for _, p := range u.agg.ClickMinPositions {
			sum += float64(p)
		}
		userMeans = append(userMeans, sum/float64(len(u.agg.ClickMinPositions)))
	}
	var meanSum float64
	for _, m := range userMeans {
		meanSum += m
	}
	meanClickRank := safeDiv(meanSum, float64(len(userMeans)))

	return ArmMetrics{
		ArmName:               armName,
		Searches:              totalSearches,
		Users:                 uint64(len(users)),
		Clicks:                totalClicks,
		Conversions:           totalConversions,
		Revenue:               totalRevenue,
		ZeroResultSearches:    totalZeroResult,
		AbandonedSearches:     totalAbandoned,
		Ctr:                   ctr,
		ConversionRate:        conversionRate,
		RevenuePerSearch:      revenuePerSearch,
		ZeroResultRate:        zeroResultRate,
		AbandonmentRate:       abandonmentRate,
		PerUserCtrs:           ctrs,
		PerUserConversionRate: conversionRates,
		PerUserZeroResultRate: zeroResultRates,
		PerUserAbandonment:    abandonmentRates,
		PerUserRevenues:       revenues,
		PerUserIDs:            userIDs,
		MeanClickRank:         meanClickRank,
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func minPositionFromJSON(positionsJSON string) (uint32, bool) {
	var positions []int64
	if err := json.Unmarshal([]byte(positionsJSON), &positions); err != nil {
		return 0, false
	}
	var min uint32
	found := false
	for _, p := range positions {
		if p <= 0 {
			continue
		}
		if !found || uint32(p) < min {
			min = uint32(p)
			found = true
		}
	}
	return min, found
}

// PrimaryMetric selects which per-user rate CUPED covariates are computed
// over.
type PrimaryMetric int

const (
	MetricCtr PrimaryMetric = iota
	MetricConversionRate
	MetricRevenuePerSearch
	MetricZeroResultRate
	MetricAbandonmentRate
)

// GetExperimentMetrics reads every searches/events Parquet dataset under
// analyticsDataDir for the given indexes and aggregates them into
// experiment metrics for experimentID.
func GetExperimentMetrics(experimentID string, indexNames []string, analyticsDataDir string, winsorizationCap *float64) (ExperimentMetrics, error) {
	var allSearches []searchRow
	var allEvents []eventRow

	for _, indexName := range indexNames {
		searchesDir := filepath.Join(analyticsDataDir, indexName, "searches")
		eventsDir := filepath.Join(analyticsDataDir, indexName, "events")

		if hasParquetFiles(searchesDir) {
			rows, err := readSearchRows(searchesDir, experimentID)
			if err != nil {
				return ExperimentMetrics{}, err
			}
			allSearches = append(allSearches, rows...)
		}
		if hasParquetFiles(eventsDir) {
			rows, err := readEventRows(eventsDir)
			if err != nil {
				return ExperimentMetrics{}, err
			}
			allEvents = append(allEvents, rows...)
		}
	}

	return aggregateExperimentMetrics(allSearches, allEvents, winsorizationCap), nil
}

// GetPreExperimentCovariates reads pre-experiment traffic on indexName for
// the [startedAtMs - lookbackDays, startedAtMs) window and returns
// per-user metric values for CUPED covariate matching.
func GetPreExperimentCovariates(indexName, analyticsDataDir string, metric PrimaryMetric, startedAtMs int64, lookbackDays int) (map[string]float64, error) {
	lookbackMs := int64(lookbackDays) * 24 * 60 * 60 * 1000
	windowStart := startedAtMs - lookbackMs

	searchesDir := filepath.Join(analyticsDataDir, indexName, "searches")
	eventsDir := filepath.Join(analyticsDataDir, indexName, "events")

	var preSearches []preSearchRow
	if hasParquetFiles(searchesDir) {
		rows, err := readPreSearchRows(searchesDir, windowStart, startedAtMs)
		if err != nil {
			return nil, err
		}
		preSearches = rows
	}

	var preEvents []eventRow
	if hasParquetFiles(eventsDir) {
		rows, err := readEventRows(eventsDir)
		if err != nil {
			return nil, err
		}
		preEvents = rows
	}

	return computePreExperimentCovariates(preSearches, preEvents, metric), nil
}

func computePreExperimentCovariates(searches []preSearchRow, events []eventRow, metric PrimaryMetric) map[string]float64 {
	if len(searches) == 0 {
		return map[string]float64{}
	}

	eventsByQID := make(map[string][]eventRow)
	for _, e := range events {
		eventsByQID[e.QueryID] = append(eventsByQID[e.QueryID], e)
	}

	perUser := make(map[string]*PerUserAgg)
	for _, s := range searches {
		agg, ok := perUser[s.UserToken]
		if !ok {
			agg = &PerUserAgg{}
			perUser[s.UserToken] = agg
		}
		agg.Searches++
		if s.NbHits == 0 {
			agg.ZeroResultSearches++
		}

		searchGotClick := false
		if s.QueryID != "" {
			for _, ev := range eventsByQID[s.QueryID] {
				switch ev.EventType {
				case "click":
					agg.Clicks++
					searchGotClick = true
				case "conversion":
					agg.Conversions++
					if ev.Value != nil {
						agg.Revenue += *ev.Value
					}
				}
			}
		}
		if s.HasResults && !searchGotClick {
			agg.AbandonedSearches++
		}
	}

	out := make(map[string]float64)
	for user, agg := range perUser {
		if agg.Searches == 0 {
			continue
		}
		switch metric {
		case MetricCtr:
			out[user] = safeDiv(float64(agg.Clicks), float64(agg.Searches))
		case MetricConversionRate:
			out[user] = safeDiv(float64(agg.Conversions), float64(agg.Searches))
		case MetricRevenuePerSearch:
			out[user] = safeDiv(agg.Revenue, float64(agg.Searches))
		case MetricZeroResultRate:
			out[user] = safeDiv(float64(agg.ZeroResultSearches), float64(agg.Searches))
		case MetricAbandonmentRate:
			withResults := saturatingSub(agg.Searches, agg.ZeroResultSearches)
			out[user] = safeDiv(float64(agg.AbandonedSearches), float64(withResults))
		}
	}
	return out
}

// InterleavingMetrics summarizes team-draft interleaving preference
// results for an experiment.
type InterleavingMetrics struct {
	Preference     stats.PreferenceResult
	TotalQueries   uint32
	FirstTeamARatio float64
}

// GetInterleavingMetrics reads insight events across indexNames and
// computes interleaving preference metrics for experimentID. Returns
// (nil, nil) when no interleaving click events are found.
func GetInterleavingMetrics(indexNames []string, analyticsDataDir, experimentID string) (*InterleavingMetrics, error) {
	var allEvents []eventRow
	for _, indexName := range indexNames {
		eventsDir := filepath.Join(analyticsDataDir, indexName, "events")
		if hasParquetFiles(eventsDir) {
			rows, err := readEventRows(eventsDir)
			if err != nil {
				return nil, err
			}
			allEvents = append(allEvents, rows...)
		}
	}

	metrics := computeInterleavingMetrics(allEvents, experimentID)
	if metrics.TotalQueries == 0 {
		return nil, nil
	}
	return &metrics, nil
}

func computeInterleavingMetrics(events []eventRow, experimentID string) InterleavingMetrics {
	perQuery, queryIDs := aggregateInterleavingClicks(events)
	preference := stats.ComputePreferenceScore(perQuery)

	firstTeamARatio := 0.5
	if len(queryIDs) > 0 {
		var teamAFirst int
		for _, qid := range queryIDs {
			if firstTeamIsA(experimentID, qid) {
				teamAFirst++
			}
		}
		firstTeamARatio = float64(teamAFirst) / float64(len(queryIDs))
	}

	return InterleavingMetrics{
		Preference:      preference,
		TotalQueries:    uint32(len(perQuery)),
		FirstTeamARatio: firstTeamARatio,
	}
}

func aggregateInterleavingClicks(events []eventRow) ([][2]uint32, []string) {
	type counts struct{ control, variant uint32 }
	byQuery := make(map[string]*counts)
	order := make([]string, 0)

	for _, e := range events {
		if e.EventType != "click" {
			continue
		}
		var teamIsControl bool
		switch e.InterleavingTeam {
		case "control":
			teamIsControl = true
		case "variant":
			teamIsControl = false
		default:
			continue
		}
		entry, ok := byQuery[e.QueryID]
		if !ok {
			entry = &counts{}
			byQuery[e.QueryID] = entry
			order = append(order, e.QueryID)
		}
		if teamIsControl {
			entry.control++
		} else {
			entry.variant++
		}
	}

	perQuery := make([][2]uint32, 0, len(order))
	for _, qid := range order {
		c := byQuery[qid]
		perQuery = append(perQuery, [2]uint32{c.control, c.variant})
	}
	return perQuery, order
}

// firstTeamIsA derives a first-team coin flip for a query from the low bit
// of an FNV-1a hash of (experimentID, queryID), so the data-quality check
// can confirm the split stays close to 50/50 without re-reading an
// assignment decision.
func firstTeamIsA(experimentID, queryID string) bool {
	h := fnv.New64a()
	_, _ = h.Write([]byte(experimentID + ":" + queryID))
	return h.Sum64()&1 == 0
}

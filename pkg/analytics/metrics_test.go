package analytics

import "testing"

func TestAggregateExperimentMetricsBasic(t *testing.T) {
	searches := []searchRow{
		{ExperimentID: "exp1", UserToken: "u1", VariantID: "control", QueryID: "q1", NbHits: 10, HasResults: true, AssignmentMethod: "user_token"},
		{ExperimentID: "exp1", UserToken: "u1", VariantID: "control", QueryID: "q2", NbHits: 0, HasResults: false, AssignmentMethod: "user_token"},
		{ExperimentID: "exp1", UserToken: "u2", VariantID: "variant", QueryID: "q3", NbHits: 5, HasResults: true, AssignmentMethod: "session_id"},
		{ExperimentID: "exp1", UserToken: "u3", VariantID: "variant", QueryID: "", NbHits: 3, HasResults: true, AssignmentMethod: "query_id"},
	}
	events := []eventRow{
		{QueryID: "q1", EventType: "click", Positions: "[2,5]"},
		{QueryID: "q3", EventType: "conversion", Value: floatPtr(9.99)},
	}

	out := aggregateExperimentMetrics(searches, events, nil)

	if out.NoStableIDQueries != 1 {
		t.Fatalf("want 1 no-stable-id query, got %d", out.NoStableIDQueries)
	}
	if out.Control.Searches != 2 || out.Control.Clicks != 1 {
		t.Fatalf("want control searches=2 clicks=1, got %+v", out.Control)
	}
	if out.Control.AbandonedSearches != 0 {
		t.Fatalf("want 0 abandoned for control (q1 got a click), got %d", out.Control.AbandonedSearches)
	}
	if out.Variant.Searches != 1 || out.Variant.Conversions != 1 {
		t.Fatalf("want variant searches=1 conversions=1, got %+v", out.Variant)
	}
	if out.Variant.Revenue != 9.99 {
		t.Fatalf("want variant revenue 9.99, got %v", out.Variant.Revenue)
	}
	if out.Control.MeanClickRank != 2.0 {
		t.Fatalf("want mean click rank 2.0 (min of [2,5]), got %v", out.Control.MeanClickRank)
	}
}

func TestAggregateExperimentMetricsAbandonment(t *testing.T) {
	searches := []searchRow{
		{ExperimentID: "exp1", UserToken: "u1", VariantID: "control", QueryID: "q1", NbHits: 10, HasResults: true, AssignmentMethod: "user_token"},
	}
	out := aggregateExperimentMetrics(searches, nil, nil)
	if out.Control.AbandonedSearches != 1 {
		t.Fatalf("want abandoned=1 (has results, no click), got %d", out.Control.AbandonedSearches)
	}
}

func TestAggregateExperimentMetricsEmptyArm(t *testing.T) {
	out := aggregateExperimentMetrics(nil, nil, nil)
	if out.Control.Users != 0 || out.Variant.Users != 0 {
		t.Fatal("want empty arms for no input")
	}
}

func TestComputePreExperimentCovariates(t *testing.T) {
	searches := []preSearchRow{
		{UserToken: "u1", QueryID: "q1", NbHits: 10, HasResults: true},
		{UserToken: "u1", QueryID: "q2", NbHits: 0, HasResults: false},
	}
	events := []eventRow{{QueryID: "q1", EventType: "click"}}

	got := computePreExperimentCovariates(searches, events, MetricCtr)
	if got["u1"] != 0.5 {
		t.Fatalf("want u1 ctr=0.5 (1 click / 2 searches), got %v", got["u1"])
	}
}

func TestAggregateInterleavingClicks(t *testing.T) {
	events := []eventRow{
		{QueryID: "q1", EventType: "click", InterleavingTeam: "control"},
		{QueryID: "q1", EventType: "click", InterleavingTeam: "variant"},
		{QueryID: "q2", EventType: "click", InterleavingTeam: "control"},
		{QueryID: "q2", EventType: "view", InterleavingTeam: "control"},
	}
	perQuery, ids := aggregateInterleavingClicks(events)
	if len(perQuery) != 2 || len(ids) != 2 {
		t.Fatalf("want 2 distinct queries, got %d", len(perQuery))
	}
}

func floatPtr(f float64) *float64 { return &f }

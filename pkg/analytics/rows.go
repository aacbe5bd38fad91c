// Package analytics reads per-tenant search and insight event rows out of
// columnar Parquet analytics files, joins them on query_id, and aggregates
// them into per-arm experiment metrics for the stats package's inference
// functions.
package analytics

// searchRow is one row of an index's searches Parquet dataset, trimmed to
// the columns experiment metrics need.
type searchRow struct {
	ExperimentID      string `parquet:"experiment_id"`
	UserToken         string `parquet:"user_token"`
	VariantID         string `parquet:"variant_id"`
	QueryID           string `parquet:"query_id,optional"`
	NbHits            uint32 `parquet:"nb_hits"`
	HasResults        bool   `parquet:"has_results"`
	AssignmentMethod  string `parquet:"assignment_method"`
	TimestampMs       int64  `parquet:"timestamp_ms"`
}

// preSearchRow is the reduced row shape read for pre-experiment CUPED
// covariate windows, where no experiment/variant assignment exists yet.
type preSearchRow struct {
	UserToken   string `parquet:"user_token"`
	QueryID     string `parquet:"query_id,optional"`
	NbHits      uint32 `parquet:"nb_hits"`
	HasResults  bool   `parquet:"has_results"`
	TimestampMs int64  `parquet:"timestamp_ms"`
}

// eventRow is one row of an index's insight-events Parquet dataset.
type eventRow struct {
	QueryID          string   `parquet:"query_id"`
	EventType        string   `parquet:"event_type"`
	Value            *float64 `parquet:"value,optional"`
	Positions        string   `parquet:"positions,optional"`
	InterleavingTeam string   `parquet:"interleaving_team,optional"`
}

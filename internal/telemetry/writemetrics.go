package telemetry

// WriteCollector adapts the package-level document counters to the narrow
// WriteMetrics interface pkg/flapjackapi depends on, so that package never
// imports prometheus directly.
type WriteCollector struct{}

func (WriteCollector) IncDocumentsIndexed(index string, n int) {
	DocumentsIndexedTotal.WithLabelValues(index).Add(float64(n))
}

func (WriteCollector) IncDocumentsDeleted(index string, n int) {
	DocumentsDeletedTotal.WithLabelValues(index).Add(float64(n))
}

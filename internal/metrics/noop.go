package metrics

// NoopMetrics discards everything; used in tests and when metrics are
// disabled in config.
type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics { return &NoopMetrics{} }

func (NoopMetrics) Increment(string, ...string)      {}
func (NoopMetrics) Gauge(string, float64, ...string) {}

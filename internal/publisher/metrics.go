package publisher

// Metrics is the narrow counter surface the Batcher needs; internal/metrics
// supplies a prometheus-backed implementation, and tests use NoOpMetrics or
// a hand-rolled fake.
type Metrics interface {
	IncRecordTooLarge(n int)
	IncPublished(n int)
	IncPublishFailed(n int)
	IncPublishGaveUp(n int)
}

// NoOpMetrics discards every increment; useful as a Batcher default when no
// metrics registry is wired.
type NoOpMetrics struct{}

func (NoOpMetrics) IncRecordTooLarge(int) {}
func (NoOpMetrics) IncPublished(int)      {}
func (NoOpMetrics) IncPublishFailed(int)  {}
func (NoOpMetrics) IncPublishGaveUp(int)  {}

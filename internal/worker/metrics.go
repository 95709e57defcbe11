package worker

import "github.com/wifi-pipeline/transformer/internal/filter"

// Metrics is the narrow counter surface a Worker needs.
type Metrics interface {
	IncMalformedEvent()
	IncObjectNotFound()
	IncTransientStorageError()
	IncDecodeFailure()
	IncParseFailure()
	IncFilterDropped(reason filter.Reason)
	IncMeasurementsEmitted(n int)
}

// NoOpMetrics discards every increment.
type NoOpMetrics struct{}

func (NoOpMetrics) IncMalformedEvent()                    {}
func (NoOpMetrics) IncObjectNotFound()                    {}
func (NoOpMetrics) IncTransientStorageError()             {}
func (NoOpMetrics) IncDecodeFailure()                     {}
func (NoOpMetrics) IncParseFailure()                      {}
func (NoOpMetrics) IncFilterDropped(reason filter.Reason) {}
func (NoOpMetrics) IncMeasurementsEmitted(n int)          {}

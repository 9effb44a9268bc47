package mockserver

import "sync/atomic"

// Metrics are the per-server request counters.
type Metrics struct {
	Requests  int64 `json:"requests"`
	Matched   int64 `json:"matched"`
	Unmatched int64 `json:"unmatched"`
	Preflight int64 `json:"preflight"`
	IOErrors  int64 `json:"ioErrors"`
}

type metrics struct {
	requests  atomic.Int64
	matched   atomic.Int64
	unmatched atomic.Int64
	preflight atomic.Int64
	ioErrors  atomic.Int64
}

func (m *metrics) snapshot() Metrics {
	return Metrics{
		Requests:  m.requests.Load(),
		Matched:   m.matched.Load(),
		Unmatched: m.unmatched.Load(),
		Preflight: m.preflight.Load(),
		IOErrors:  m.ioErrors.Load(),
	}
}

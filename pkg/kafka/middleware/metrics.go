package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"qrparking/pkg/kafka"
)

// Metrics counts producer outcomes. Safe for concurrent use.
type Metrics struct {
	published     atomic.Int64
	failed        atomic.Int64
	durationTotal atomic.Int64 // nanoseconds
}

type MetricsSnapshot struct {
	Published          int64  `json:"published"`
	Failed             int64  `json:"failed"`
	AvgPublishDuration string `json:"avg_publish_duration"`
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	published := m.published.Load()
	var avg time.Duration
	if published > 0 {
		avg = time.Duration(m.durationTotal.Load() / published)
	}
	return MetricsSnapshot{
		Published:          published,
		Failed:             m.failed.Load(),
		AvgPublishDuration: avg.String(),
	}
}

// Middleware returns a producer middleware feeding m.
func (m *Metrics) Middleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		if err != nil {
			m.failed.Add(1)
			return err
		}
		m.published.Add(1)
		m.durationTotal.Add(int64(time.Since(start)))
		return nil
	}
}

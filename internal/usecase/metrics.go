package usecase

import (
	"context"

	"github.com/example/image-picker/internal/repository"
)

// MetricsSource provides the persisted aggregate.
type MetricsSource interface {
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// MetricsSummary represents aggregated pick request insights.
type MetricsSummary struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	CancelledRequests  int64   `json:"cancelled_requests"`
	SuccessRate        float64 `json:"success_rate"`
	CancelRate         float64 `json:"cancel_rate"`
	AverageDurationMs  float64 `json:"average_duration_ms"`
}

// GetMetricsSummary aggregates request metrics from persisted logs.
func GetMetricsSummary(ctx context.Context, src MetricsSource) (*MetricsSummary, error) {
	aggregation, err := src.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:      aggregation.TotalCount,
		SuccessfulRequests: aggregation.SuccessCount,
		CancelledRequests:  aggregation.CancelledCount,
		AverageDurationMs:  aggregation.AverageDurationMs,
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
		summary.CancelRate = float64(aggregation.CancelledCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PlanMetrics represents aggregated execution metrics for plan runs.
type PlanMetrics struct {
	ReplaceAttempts int64   `json:"replace_attempts"`
	ReplaceMisses   int64   `json:"replace_misses"`
	ToolCalls       int64   `json:"tool_calls"`
	PlansApplied    int64   `json:"plans_applied"`
	PlansInReview   int64   `json:"plans_in_review"`
	AvgRunSeconds   float64 `json:"avg_run_seconds"`
}

// QueryService provides methods to query aggregated metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetPlanMetrics retrieves aggregated editor and plan execution metrics.
func (q *QueryService) GetPlanMetrics(ctx context.Context) (*PlanMetrics, error) {
	metrics := &PlanMetrics{}

	attemptsResult, _, err := q.queryAPI.Query(ctx, `sum(editor_replace_attempts_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query replace attempts: %w", err)
	}
	if vector, ok := attemptsResult.(model.Vector); ok && len(vector) > 0 {
		metrics.ReplaceAttempts = int64(vector[0].Value)
	}

	missesResult, _, err := q.queryAPI.Query(ctx, `sum(editor_replace_attempts_total{found="false"})`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query replace misses: %w", err)
	}
	if vector, ok := missesResult.(model.Vector); ok && len(vector) > 0 {
		metrics.ReplaceMisses = int64(vector[0].Value)
	}

	toolCallsResult, _, err := q.queryAPI.Query(ctx, `sum(plan_tool_calls_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	if vector, ok := toolCallsResult.(model.Vector); ok && len(vector) > 0 {
		metrics.ToolCalls = int64(vector[0].Value)
	}

	appliedResult, _, err := q.queryAPI.Query(ctx, `sum(plan_status_transitions_total{to="applied"})`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query applied plans: %w", err)
	}
	if vector, ok := appliedResult.(model.Vector); ok && len(vector) > 0 {
		metrics.PlansApplied = int64(vector[0].Value)
	}

	reviewResult, _, err := q.queryAPI.Query(ctx, `sum(plan_status_transitions_total{to="review"})`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query plans in review: %w", err)
	}
	if vector, ok := reviewResult.(model.Vector); ok && len(vector) > 0 {
		metrics.PlansInReview = int64(vector[0].Value)
	}

	avgResult, _, err := q.queryAPI.Query(ctx,
		`sum(plan_execution_duration_seconds_sum) / sum(plan_execution_duration_seconds_count)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query average run duration: %w", err)
	}
	if vector, ok := avgResult.(model.Vector); ok && len(vector) > 0 {
		metrics.AvgRunSeconds = float64(vector[0].Value)
	}

	return metrics, nil
}

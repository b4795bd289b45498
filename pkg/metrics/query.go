// Package metrics provides the Prometheus collector set the control loop exports (§6)
// and a query client for reading them back, e.g. from the dashboard or the
// metric-threshold evaluator scheduled job.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RepositorySnapshot is a point-in-time read of one repository's exported counters.
type RepositorySnapshot struct {
	Repository            string
	FailuresDetected      int64
	RemediationsOpened    int64
	RemediationsSucceeded int64
	Rollbacks             int64
}

// QueryService reads back the metrics Exporter publishes, via Prometheus's HTTP query API.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query client against a running Prometheus server that scrapes
// this process's /metrics endpoint.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

func (q *QueryService) scalarFor(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q: %w", query, err)
	}
	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return 0, nil
	}
	return int64(vector[0].Value), nil
}

// GetRepositorySnapshot aggregates the four counter families for one repository, used by
// the dashboard's per-repository stats endpoint and the weekly health report.
func (q *QueryService) GetRepositorySnapshot(ctx context.Context, repository string) (*RepositorySnapshot, error) {
	snap := &RepositorySnapshot{Repository: repository}

	var err error
	if snap.FailuresDetected, err = q.scalarFor(ctx, fmt.Sprintf("failures_detected_total{repository=%q}", repository)); err != nil {
		return nil, err
	}
	if snap.RemediationsOpened, err = q.scalarFor(ctx, fmt.Sprintf("remediations_opened_total{repository=%q}", repository)); err != nil {
		return nil, err
	}
	if snap.RemediationsSucceeded, err = q.scalarFor(ctx, fmt.Sprintf("remediations_succeeded_total{repository=%q}", repository)); err != nil {
		return nil, err
	}
	if snap.Rollbacks, err = q.scalarFor(ctx, fmt.Sprintf("rollbacks_total{repository=%q}", repository)); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetOpenCircuitSignatures returns the failure signatures whose circuits_open gauge is 1.
func (q *QueryService) GetOpenCircuitSignatures(ctx context.Context) ([]string, error) {
	result, _, err := q.queryAPI.Query(ctx, `circuits_open == 1`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("query open circuits: %w", err)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, nil
	}
	var signatures []string
	for _, sample := range vector {
		if sig, ok := sample.Metric["signature"]; ok {
			signatures = append(signatures, string(sig))
		}
	}
	return signatures, nil
}

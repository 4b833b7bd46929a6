package clickhouse

import (
	"context"
	"fmt"
	"time"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/storage"
)

// DistributionStore implements storage.DistributionArchive using
// ClickHouse. The archive is append-only: one row per metric per run,
// all rows of a run sharing a timestamp.
type DistributionStore struct {
	conn *Conn
	now  func() time.Time
}

// NewDistributionStore creates a new DistributionStore.
func NewDistributionStore(conn *Conn) *DistributionStore {
	return &DistributionStore{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Compile-time interface check.
var _ storage.DistributionArchive = (*DistributionStore)(nil)

// InsertRun archives every distribution of one validated run.
func (s *DistributionStore) InsertRun(ctx context.Context, result *domain.SimulationResult) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO distribution_archive (
			fund_id, mode, engine_kind, num_trials, seed, metric,
			p5, p25, p50, p75, p95,
			mean, stddev, min, max, sample_count,
			archived_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare archive batch: %w", err)
	}

	archivedAt := s.now()
	for _, metric := range domain.AllMetricTypes {
		d, ok := result.Distributions[metric]
		if !ok {
			continue
		}
		err = batch.Append(
			result.FundID,
			string(result.Mode),
			result.EngineKind,
			int64(result.NumTrials),
			result.Seed,
			string(metric),
			d.Percentiles.P5,
			d.Percentiles.P25,
			d.Percentiles.P50,
			d.Percentiles.P75,
			d.Percentiles.P95,
			d.Statistics.Mean,
			d.Statistics.StdDev,
			d.Statistics.Min,
			d.Statistics.Max,
			int64(d.Statistics.Count),
			archivedAt,
		)
		if err != nil {
			return fmt.Errorf("append archive row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send archive batch: %w", err)
	}
	return nil
}

// GetByFund retrieves archived distributions for a fund, newest first.
func (s *DistributionStore) GetByFund(ctx context.Context, fundID string) ([]*domain.MetricDistribution, error) {
	query := `
		SELECT metric,
		       p5, p25, p50, p75, p95,
		       mean, stddev, min, max, sample_count
		FROM distribution_archive
		WHERE fund_id = ?
		ORDER BY archived_at DESC, metric ASC
	`

	rows, err := s.conn.Query(ctx, query, fundID)
	if err != nil {
		return nil, fmt.Errorf("query archive by fund: %w", err)
	}
	defer rows.Close()

	var dists []*domain.MetricDistribution
	for rows.Next() {
		var (
			d      domain.MetricDistribution
			metric string
			count  int64
		)
		err := rows.Scan(
			&metric,
			&d.Percentiles.P5,
			&d.Percentiles.P25,
			&d.Percentiles.P50,
			&d.Percentiles.P75,
			&d.Percentiles.P95,
			&d.Statistics.Mean,
			&d.Statistics.StdDev,
			&d.Statistics.Min,
			&d.Statistics.Max,
			&count,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		d.MetricType = domain.MetricType(metric)
		d.Statistics.Count = int(count)
		dists = append(dists, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return dists, nil
}

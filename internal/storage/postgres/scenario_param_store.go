package postgres

import (
	"context"
	"fmt"

	"portfolio-lab/internal/domain"
	"portfolio-lab/internal/storage"
)

// ScenarioParamStore implements storage.ScenarioParamStore using
// PostgreSQL. The scenario_params table is seeded by migration with the
// built-in historical presets; rows edited in the table win over the
// compiled-in defaults.
type ScenarioParamStore struct {
	pool *Pool
}

// NewScenarioParamStore creates a new ScenarioParamStore.
func NewScenarioParamStore(pool *Pool) *ScenarioParamStore {
	return &ScenarioParamStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ScenarioParamStore = (*ScenarioParamStore)(nil)

const scenarioParamColumns = `
	name, vintage,
	exit_multiplier_median, exit_multiplier_p90,
	failure_rate, graduation_rate,
	follow_on_probability, follow_on_fraction,
	hold_period_years
`

// GetByName retrieves a preset. Returns ErrNotFound if absent.
func (s *ScenarioParamStore) GetByName(ctx context.Context, name string) (*domain.HistoricalScenario, error) {
	query := `SELECT ` + scenarioParamColumns + ` FROM scenario_params WHERE name = $1`

	sc, err := scanScenario(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scenario by name: %w", err)
	}
	return sc, nil
}

// List retrieves all presets ordered by name.
func (s *ScenarioParamStore) List(ctx context.Context) ([]*domain.HistoricalScenario, error) {
	query := `SELECT ` + scenarioParamColumns + ` FROM scenario_params ORDER BY name ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	var scenarios []*domain.HistoricalScenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenarios: %w", err)
	}
	return scenarios, nil
}

func scanScenario(row rowScanner) (*domain.HistoricalScenario, error) {
	var sc domain.HistoricalScenario
	err := row.Scan(
		&sc.Name,
		&sc.Vintage,
		&sc.Parameters.ExitMultiplierMedian,
		&sc.Parameters.ExitMultiplierP90,
		&sc.Parameters.FailureRate,
		&sc.Parameters.GraduationRate,
		&sc.Parameters.FollowOnProbability,
		&sc.Parameters.FollowOnFraction,
		&sc.Parameters.HoldPeriodYears,
	)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

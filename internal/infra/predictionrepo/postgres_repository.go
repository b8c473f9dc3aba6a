package predictionrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firesight-in/firesight/internal/domain/prediction"
)

// PostgresRepository persists grid predictions in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the table when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fire_predictions (
			id              BIGSERIAL PRIMARY KEY,
			latitude        DOUBLE PRECISION NOT NULL,
			longitude       DOUBLE PRECISION NOT NULL,
			probability     DOUBLE PRECISION NOT NULL,
			risk_level      TEXT NOT NULL,
			prediction_date TIMESTAMPTZ NOT NULL,
			model_version   TEXT NOT NULL,
			features_used   TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fire_predictions_version ON fire_predictions (model_version);
		CREATE INDEX IF NOT EXISTS idx_fire_predictions_risk ON fire_predictions (risk_level);
	`)
	return err
}

// InsertBatch stores one generation run's rows.
func (r *PostgresRepository) InsertBatch(ctx context.Context, predictions []prediction.FirePrediction) error {
	batch := &strings.Builder{}
	args := make([]any, 0, len(predictions)*8)
	batch.WriteString(`
		INSERT INTO fire_predictions
			(latitude, longitude, probability, risk_level, prediction_date, model_version, features_used, created_at)
		VALUES `)
	for i, p := range predictions {
		if i > 0 {
			batch.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(batch, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, p.Latitude, p.Longitude, p.Probability, string(p.RiskLevel),
			p.PredictionDate, p.ModelVersion, p.FeaturesUsed, p.CreatedAt)
	}
	if _, err := r.pool.Exec(ctx, batch.String(), args...); err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	return nil
}

// Query returns predictions matching the filter, strongest first.
func (r *PostgresRepository) Query(ctx context.Context, f prediction.Filter) ([]prediction.FirePrediction, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.RiskLevel != nil {
		conds = append(conds, "risk_level = "+arg(string(*f.RiskLevel)))
	}
	if f.MinProbability > 0 {
		conds = append(conds, "probability >= "+arg(f.MinProbability))
	}
	if f.Bounds != nil {
		conds = append(conds, "latitude BETWEEN "+arg(f.Bounds.LatMin)+" AND "+arg(f.Bounds.LatMax))
		conds = append(conds, "longitude BETWEEN "+arg(f.Bounds.LonMin)+" AND "+arg(f.Bounds.LonMax))
	}
	if f.ModelVersion != "" {
		conds = append(conds, "model_version = "+arg(f.ModelVersion))
	}

	query := `SELECT id, latitude, longitude, probability, risk_level, prediction_date, model_version, features_used, created_at
		FROM fire_predictions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY probability DESC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []prediction.FirePrediction
	for rows.Next() {
		var (
			p       prediction.FirePrediction
			level   string
			created time.Time
			date    time.Time
		)
		if err := rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.Probability, &level,
			&date, &p.ModelVersion, &p.FeaturesUsed, &created); err != nil {
			return nil, err
		}
		p.RiskLevel = prediction.RiskLevel(level)
		p.PredictionDate = date.UTC()
		p.CreatedAt = created.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestVersion returns the model version of the most recent stored run.
func (r *PostgresRepository) LatestVersion(ctx context.Context) (string, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT model_version
		FROM fire_predictions
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`)
	if err != nil {
		return "", false, fmt.Errorf("query latest model version: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return "", false, rows.Err()
	}
	var version string
	if err := rows.Scan(&version); err != nil {
		return "", false, err
	}
	return version, true, rows.Err()
}

var _ prediction.Repository = (*PostgresRepository)(nil)

package detectionrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// PostgresRepository persists fire detections in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the tables when missing. The service owns its schema; there
// is no separate migration tool.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fire_detections (
			id          BIGSERIAL PRIMARY KEY,
			latitude    DOUBLE PRECISION NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			confidence  INTEGER NOT NULL DEFAULT 0,
			brightness  DOUBLE PRECISION,
			scan        DOUBLE PRECISION,
			track       DOUBLE PRECISION,
			acq_date    TEXT NOT NULL,
			acq_time    TEXT NOT NULL DEFAULT '',
			satellite   TEXT NOT NULL DEFAULT '',
			instrument  TEXT NOT NULL DEFAULT '',
			version     TEXT NOT NULL DEFAULT '',
			bright_t31  DOUBLE PRECISION,
			frp         DOUBLE PRECISION,
			daynight    TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_fire_detections_acq_date ON fire_detections (acq_date);
		CREATE INDEX IF NOT EXISTS idx_fire_detections_source ON fire_detections (source);

		CREATE TABLE IF NOT EXISTS user_fire_reports (
			id               BIGSERIAL PRIMARY KEY,
			latitude         DOUBLE PRECISION NOT NULL,
			longitude        DOUBLE PRECISION NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			reporter_name    TEXT NOT NULL DEFAULT '',
			reporter_contact TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

const detectionColumns = `id, latitude, longitude, confidence, brightness, scan, track,
	acq_date, acq_time, satellite, instrument, version, bright_t31, frp, daynight, source, created_at`

// Insert stores one detection and returns its assigned ID.
func (r *PostgresRepository) Insert(ctx context.Context, det detection.FireDetection) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO fire_detections
			(latitude, longitude, confidence, brightness, scan, track,
			 acq_date, acq_time, satellite, instrument, version, bright_t31, frp, daynight, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`, det.Latitude, det.Longitude, det.Confidence, det.Brightness, det.Scan, det.Track,
		det.AcqDate, det.AcqTime, det.Satellite, det.Instrument, det.Version,
		det.BrightT31, det.FRP, det.DayNight, string(det.Source), det.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert detection: %w", err)
	}
	return id, nil
}

// Query returns detections matching the filter, newest acquisition first.
func (r *PostgresRepository) Query(ctx context.Context, f detection.QueryFilter) ([]detection.FireDetection, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.StartDate != "" {
		conds = append(conds, "acq_date >= "+arg(f.StartDate))
	}
	if f.EndDate != "" {
		conds = append(conds, "acq_date <= "+arg(f.EndDate))
	}
	if len(f.Sources) > 0 {
		sources := make([]string, len(f.Sources))
		for i, s := range f.Sources {
			sources[i] = string(s)
		}
		conds = append(conds, "source = ANY("+arg(sources)+")")
	}
	if f.MinConfidence > 0 {
		conds = append(conds, "confidence >= "+arg(f.MinConfidence))
	}
	if f.Bounds != nil {
		conds = append(conds, "latitude BETWEEN "+arg(f.Bounds.LatMin)+" AND "+arg(f.Bounds.LatMax))
		conds = append(conds, "longitude BETWEEN "+arg(f.Bounds.LonMin)+" AND "+arg(f.Bounds.LonMax))
	}

	query := "SELECT " + detectionColumns + " FROM fire_detections"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY acq_date DESC, acq_time DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

// Recent returns the latest stored detections by acquisition time.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]detection.FireDetection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+detectionColumns+`
		FROM fire_detections
		ORDER BY acq_date DESC, acq_time DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent detections: %w", err)
	}
	defer rows.Close()
	return scanDetections(rows)
}

// InsertUserReport stores the raw report row.
func (r *PostgresRepository) InsertUserReport(ctx context.Context, report detection.UserReport, createdAt time.Time) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_fire_reports (latitude, longitude, description, reporter_name, reporter_contact, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, report.Latitude, report.Longitude, report.Description, report.ReporterName, report.ReporterContact, createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user report: %w", err)
	}
	return id, nil
}

type rowsLike interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanDetections(rows rowsLike) ([]detection.FireDetection, error) {
	var out []detection.FireDetection
	for rows.Next() {
		var (
			det     detection.FireDetection
			source  string
			created time.Time
		)
		if err := rows.Scan(&det.ID, &det.Latitude, &det.Longitude, &det.Confidence,
			&det.Brightness, &det.Scan, &det.Track,
			&det.AcqDate, &det.AcqTime, &det.Satellite, &det.Instrument, &det.Version,
			&det.BrightT31, &det.FRP, &det.DayNight, &source, &created); err != nil {
			return nil, err
		}
		det.Source = detection.Source(source)
		det.CreatedAt = created.UTC()
		out = append(out, det)
	}
	return out, rows.Err()
}

var _ detection.Repository = (*PostgresRepository)(nil)

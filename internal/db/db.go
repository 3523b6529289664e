// Package db records generated feature collections in SQLite so earlier
// runs can be listed, diffed and served again.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/mchgeo/internal/feature"
	"github.com/banshee-data/mchgeo/internal/monitoring"
	"github.com/banshee-data/mchgeo/internal/timeutil"
)

var (
	// ErrNoRuns is returned by LatestRun on an empty database.
	ErrNoRuns = errors.New("no generation runs recorded")
	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("generation run not found")
)

type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// NewDB opens (or creates) the database at path and applies the embedded
// migrations.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	db := &DB{DB: sqlDB, path: path, clock: timeutil.RealClock{}}
	migrations, err := MigrationsFS()
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to timestamp runs.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// RunMeta describes where a run's inputs came from.
type RunMeta struct {
	EnvelopeSource       string
	TransformationSource string
}

// Run is one recorded generation.
type Run struct {
	ID                   string    `json:"run_id"`
	CreatedAt            time.Time `json:"created_at"`
	EnvelopeSource       string    `json:"envelope_source"`
	TransformationSource string    `json:"transformation_source"`
	FeatureCount         int       `json:"feature_count"`
}

// RecordRun stores features under a new run id in a single transaction.
func (db *DB) RecordRun(ctx context.Context, meta RunMeta, features []feature.Feature) (Run, error) {
	run := Run{
		ID:                   uuid.NewString(),
		CreatedAt:            db.clock.Now().UTC(),
		EnvelopeSource:       meta.EnvelopeSource,
		TransformationSource: meta.TransformationSource,
		FeatureCount:         len(features),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO generation_runs (run_id, created_unix_nanos, envelope_source, transformation_source, feature_count)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.EnvelopeSource, run.TransformationSource, run.FeatureCount,
	); err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO de_features (run_id, position, deid, bending, x, y, properties_json, geometry_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("failed to prepare feature insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range features {
		props, err := json.Marshal(f.Properties)
		if err != nil {
			return Run{}, fmt.Errorf("failed to encode properties of %d: %w", f.DEID(), err)
		}
		geom, err := json.Marshal(f.Geometry)
		if err != nil {
			return Run{}, fmt.Errorf("failed to encode geometry of %d: %w", f.DEID(), err)
		}
		p := f.Properties
		if _, err := stmt.ExecContext(ctx, run.ID, i, p.DEID, p.Bending, p.X, p.Y, string(props), string(geom)); err != nil {
			return Run{}, fmt.Errorf("failed to insert feature %d: %w", p.DEID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}
	monitoring.Logf("recorded run %s with %d features", run.ID, run.FeatureCount)
	return run, nil
}

const runColumns = `run_id, created_unix_nanos, envelope_source, transformation_source, feature_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run   Run
		nanos int64
	)
	if err := row.Scan(&run.ID, &nanos, &run.EnvelopeSource, &run.TransformationSource, &run.FeatureCount); err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.Unix(0, nanos).UTC()
	return run, nil
}

// Runs lists recorded runs, newest first. A limit <= 0 returns all of them.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM generation_runs ORDER BY created_unix_nanos DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Run returns the run with the given id.
func (db *DB) Run(ctx context.Context, id string) (Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM generation_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LatestRun returns the most recently recorded run.
func (db *DB) LatestRun(ctx context.Context) (Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM generation_runs ORDER BY created_unix_nanos DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNoRuns
	}
	return run, err
}

// RunFeatures rebuilds the feature collection of a run in its original
// order.
func (db *DB) RunFeatures(ctx context.Context, id string) ([]feature.Feature, error) {
	if _, err := db.Run(ctx, id); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT properties_json, geometry_json FROM de_features WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	features := []feature.Feature{}
	for rows.Next() {
		var props, geom string
		if err := rows.Scan(&props, &geom); err != nil {
			return nil, err
		}
		f := feature.Feature{Type: feature.TypeFeature}
		if err := json.Unmarshal([]byte(props), &f.Properties); err != nil {
			return nil, fmt.Errorf("failed to decode stored properties: %w", err)
		}
		if err := json.Unmarshal([]byte(geom), &f.Geometry); err != nil {
			return nil, fmt.Errorf("failed to decode stored geometry: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return features, nil
}

// DeleteRun removes a run and its features.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM generation_runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

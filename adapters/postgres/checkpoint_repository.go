package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ceasim/domain/core"
	"ceasim/domain/model"
	"ceasim/domain/run"
	"ceasim/ports"
)

// CheckpointRepositoryImpl implements ports.CheckpointStore on PostgreSQL.
// A unique (run_id, iteration) constraint is the merge-by-seed guard: a
// resumed run that tries to re-insert an accumulated draw surfaces a
// resume conflict instead of double-counting.
type CheckpointRepositoryImpl struct {
	db *sqlx.DB
}

var _ ports.CheckpointStore = (*CheckpointRepositoryImpl)(nil)

// NewCheckpointRepository creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepository(db *sqlx.DB) *CheckpointRepositoryImpl {
	return &CheckpointRepositoryImpl{db: db}
}

// Migrate creates the checkpoint tables if they do not exist.
func (r *CheckpointRepositoryImpl) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_manifests (
			run_id      TEXT PRIMARY KEY,
			payload     JSONB NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS run_draws (
			run_id     TEXT NOT NULL REFERENCES run_manifests(run_id),
			iteration  INTEGER NOT NULL,
			seed       BIGINT NOT NULL,
			params     JSONB NOT NULL,
			costs      JSONB NOT NULL,
			qalys      JSONB NOT NULL,
			PRIMARY KEY (run_id, iteration)
		);
	`)
	return err
}

// SaveManifest records the run manifest before any draws accumulate.
func (r *CheckpointRepositoryImpl) SaveManifest(ctx context.Context, manifest *run.Manifest) error {
	payload, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO run_manifests (run_id, payload, fingerprint)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING
	`, manifest.RunID.String(), payload, manifest.Fingerprint.String())
	return err
}

// LoadManifest returns the stored manifest for a run.
func (r *CheckpointRepositoryImpl) LoadManifest(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload,
		`SELECT payload FROM run_manifests WHERE run_id = $1`, runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, err
	}

	var manifest run.Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// AppendDraws persists a completed batch inside one transaction.
func (r *CheckpointRepositoryImpl) AppendDraws(ctx context.Context, runID core.RunID, draws []model.SimulationDraw) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range draws {
		params, err := json.Marshal(d.Params)
		if err != nil {
			return err
		}
		costs, err := json.Marshal(d.Cost)
		if err != nil {
			return err
		}
		qalys, err := json.Marshal(d.QALY)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_draws (run_id, iteration, seed, params, costs, qalys)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, runID.String(), d.Iteration, d.Seed, params, costs, qalys)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return core.NewResumeConflictError(runID.String(), d.Iteration)
			}
			return err
		}
	}
	return tx.Commit()
}

// LoadDraws returns all stored draws for the run in iteration order.
func (r *CheckpointRepositoryImpl) LoadDraws(ctx context.Context, runID core.RunID) ([]model.SimulationDraw, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT iteration, seed, params, costs, qalys
		FROM run_draws
		WHERE run_id = $1
		ORDER BY iteration
	`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var draws []model.SimulationDraw
	for rows.Next() {
		var (
			d      model.SimulationDraw
			params []byte
			costs  []byte
			qalys  []byte
		)
		if err := rows.Scan(&d.Iteration, &d.Seed, &params, &costs, &qalys); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(params, &d.Params); err != nil {
			return nil, fmt.Errorf("draw %d params: %w", d.Iteration, err)
		}
		if err := json.Unmarshal(costs, &d.Cost); err != nil {
			return nil, fmt.Errorf("draw %d costs: %w", d.Iteration, err)
		}
		if err := json.Unmarshal(qalys, &d.QALY); err != nil {
			return nil, fmt.Errorf("draw %d qalys: %w", d.Iteration, err)
		}
		draws = append(draws, d)
	}
	return draws, rows.Err()
}

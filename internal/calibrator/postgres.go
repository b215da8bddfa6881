package calibrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL creates the calibration_records table and its indices,
// translated from the original SQLite DDL to Postgres types (TIMESTAMPTZ,
// JSONB for the factors blob).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS calibration_records (
	id                 TEXT PRIMARY KEY,
	claimed_confidence DOUBLE PRECISION NOT NULL,
	actual_correct     BOOLEAN NOT NULL,
	response_content   TEXT NOT NULL,
	task_description   TEXT NOT NULL,
	agent_name         TEXT NOT NULL,
	domain             TEXT,
	timestamp          TIMESTAMPTZ NOT NULL,
	factors_json       JSONB
);
CREATE INDEX IF NOT EXISTS idx_calibration_agent ON calibration_records(agent_name);
CREATE INDEX IF NOT EXISTS idx_calibration_domain ON calibration_records(domain);
CREATE INDEX IF NOT EXISTS idx_calibration_timestamp ON calibration_records(timestamp);
`

// Postgres is a durable Calibrator backed by pgx, matching spec.md §6's
// persisted calibration layout.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens (or reuses) pool and ensures the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, resolvetypes.NewStorage("calibrator: initialize schema", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Record(ctx context.Context, claimed float64, actualCorrect bool, content, task, agentName string, domain resolvetypes.Domain, factors map[string]string) (string, error) {
	id := uuid.NewString()
	factorsJSON, err := json.Marshal(factors)
	if err != nil {
		return "", resolvetypes.NewProtocol("calibrator: marshal factors", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO calibration_records
			(id, claimed_confidence, actual_correct, response_content, task_description, agent_name, domain, timestamp, factors_json)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`, id, resolvetypes.Clamp(claimed), actualCorrect, content, task, agentName, string(domain), time.Now().UTC(), factorsJSON)
	if err != nil {
		return "", resolvetypes.NewStorage("calibrator: insert record", err)
	}
	return id, nil
}

func (p *Postgres) GetRecord(ctx context.Context, id string) (*resolvetypes.CalibrationRecord, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, claimed_confidence, actual_correct, response_content, task_description, agent_name,
		       COALESCE(domain, ''), timestamp, factors_json
		FROM calibration_records WHERE id = $1
	`, id)

	var rec resolvetypes.CalibrationRecord
	var domain string
	var factorsJSON []byte
	err := row.Scan(&rec.ID, &rec.ClaimedConfidence, &rec.ActualCorrect, &rec.ResponseContent,
		&rec.TaskDescription, &rec.AgentName, &domain, &rec.Timestamp, &factorsJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, resolvetypes.NewStorage("calibrator: get record", err)
	}
	rec.Domain = resolvetypes.Domain(domain)
	if len(factorsJSON) > 0 {
		_ = json.Unmarshal(factorsJSON, &rec.Factors)
	}
	return &rec, nil
}

func (p *Postgres) Statistics(ctx context.Context, f Filter) (resolvetypes.CalibrationStatistics, error) {
	records, err := p.fetchFiltered(ctx, f)
	if err != nil {
		return resolvetypes.CalibrationStatistics{}, err
	}
	return computeStatistics(records), nil
}

func (p *Postgres) AdjustmentFactor(ctx context.Context, f Filter) (float64, error) {
	stats, err := p.Statistics(ctx, f)
	if err != nil {
		return 1.0, err
	}
	return adjustmentFactor(stats), nil
}

func (p *Postgres) fetchFiltered(ctx context.Context, f Filter) ([]resolvetypes.CalibrationRecord, error) {
	query := `
		SELECT id, claimed_confidence, actual_correct, response_content, task_description, agent_name,
		       COALESCE(domain, ''), timestamp, factors_json
		FROM calibration_records
		WHERE ($1 = '' OR agent_name = $1)
		  AND ($2 = '' OR domain = $2)
	`
	rows, err := p.pool.Query(ctx, query, f.Agent, string(f.Domain))
	if err != nil {
		return nil, resolvetypes.NewStorage("calibrator: query statistics", err)
	}
	defer rows.Close()

	var out []resolvetypes.CalibrationRecord
	for rows.Next() {
		var rec resolvetypes.CalibrationRecord
		var domain string
		var factorsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.ClaimedConfidence, &rec.ActualCorrect, &rec.ResponseContent,
			&rec.TaskDescription, &rec.AgentName, &domain, &rec.Timestamp, &factorsJSON); err != nil {
			return nil, resolvetypes.NewStorage("calibrator: scan row", err)
		}
		rec.Domain = resolvetypes.Domain(domain)
		if len(factorsJSON) > 0 {
			_ = json.Unmarshal(factorsJSON, &rec.Factors)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, resolvetypes.NewStorage("calibrator: row iteration", err)
	}
	return out, nil
}

var _ Calibrator = (*Postgres)(nil)

package knowledge

import (
	"context"
	"strings"

	"github.com/fathomly/resolver-engine/internal/resolvetypes"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL mirrors the original four-table shape (discoveries,
// discovery_metadata, discovery_tags, discovery_files) with foreign-key
// cascade on delete, translated to Postgres.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS discoveries (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	severity         TEXT,
	content          TEXT NOT NULL,
	agent            TEXT NOT NULL,
	domain           TEXT,
	timestamp        TIMESTAMPTZ NOT NULL,
	reference_count  INTEGER NOT NULL DEFAULT 0,
	validated        BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS discovery_metadata (
	discovery_id TEXT NOT NULL REFERENCES discoveries(id) ON DELETE CASCADE,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	PRIMARY KEY (discovery_id, key)
);
CREATE TABLE IF NOT EXISTS discovery_tags (
	discovery_id TEXT NOT NULL REFERENCES discoveries(id) ON DELETE CASCADE,
	tag          TEXT NOT NULL,
	PRIMARY KEY (discovery_id, tag)
);
CREATE TABLE IF NOT EXISTS discovery_files (
	discovery_id TEXT NOT NULL REFERENCES discoveries(id) ON DELETE CASCADE,
	file_path    TEXT NOT NULL,
	PRIMARY KEY (discovery_id, file_path)
);
CREATE INDEX IF NOT EXISTS idx_discoveries_agent ON discoveries(agent);
CREATE INDEX IF NOT EXISTS idx_discoveries_timestamp ON discoveries(timestamp);
CREATE INDEX IF NOT EXISTS idx_discoveries_domain ON discoveries(domain);
CREATE INDEX IF NOT EXISTS idx_discovery_metadata_kv ON discovery_metadata(key, value);
CREATE INDEX IF NOT EXISTS idx_discovery_tags_tag ON discovery_tags(tag);
CREATE INDEX IF NOT EXISTS idx_discovery_files_path ON discovery_files(file_path);
`

// Postgres is a durable Store backed by pgx.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens (or reuses) pool and ensures the schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, resolvetypes.NewStorage("knowledge: initialize schema", err)
	}
	return &Postgres{pool: pool}, nil
}

// Insert writes the envelope row plus metadata/tag/file rows inside a
// single transaction: all or none commit, per spec.md §4.6.
func (p *Postgres) Insert(ctx context.Context, d resolvetypes.Discovery) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: begin insert", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO discoveries (id, type, severity, content, agent, domain, timestamp, reference_count, validated)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, d.ID, string(d.Type), d.Severity, d.Content, d.Agent, string(d.Domain), d.Timestamp, d.ReferenceCount, d.Validated)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: insert discovery", err)
	}

	for k, v := range d.Metadata {
		if _, err := tx.Exec(ctx, `INSERT INTO discovery_metadata (discovery_id, key, value) VALUES ($1, $2, $3)`, d.ID, k, v); err != nil {
			return resolvetypes.NewStorage("knowledge: insert metadata", err)
		}
	}
	for _, tag := range d.Tags {
		if _, err := tx.Exec(ctx, `INSERT INTO discovery_tags (discovery_id, tag) VALUES ($1, $2)`, d.ID, tag); err != nil {
			return resolvetypes.NewStorage("knowledge: insert tag", err)
		}
	}
	for _, f := range d.Files {
		if _, err := tx.Exec(ctx, `INSERT INTO discovery_files (discovery_id, file_path) VALUES ($1, $2)`, d.ID, f); err != nil {
			return resolvetypes.NewStorage("knowledge: insert file", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return resolvetypes.NewStorage("knowledge: commit insert", err)
	}
	return nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*resolvetypes.Discovery, error) {
	d, err := p.scanEnvelope(ctx, id)
	if err != nil || d == nil {
		return d, err
	}
	if err := p.loadSideTables(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *Postgres) scanEnvelope(ctx context.Context, id string) (*resolvetypes.Discovery, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, type, COALESCE(severity, ''), content, agent, COALESCE(domain, ''), timestamp, reference_count, validated
		FROM discoveries WHERE id = $1
	`, id)
	var d resolvetypes.Discovery
	var typ, domain string
	err := row.Scan(&d.ID, &typ, &d.Severity, &d.Content, &d.Agent, &domain, &d.Timestamp, &d.ReferenceCount, &d.Validated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, resolvetypes.NewStorage("knowledge: get by id", err)
	}
	d.Type = resolvetypes.DiscoveryType(typ)
	d.Domain = resolvetypes.Domain(domain)
	return &d, nil
}

func (p *Postgres) loadSideTables(ctx context.Context, d *resolvetypes.Discovery) error {
	metaRows, err := p.pool.Query(ctx, `SELECT key, value FROM discovery_metadata WHERE discovery_id = $1`, d.ID)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: load metadata", err)
	}
	defer metaRows.Close()
	d.Metadata = make(map[string]string)
	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return resolvetypes.NewStorage("knowledge: scan metadata", err)
		}
		d.Metadata[k] = v
	}

	tagRows, err := p.pool.Query(ctx, `SELECT tag FROM discovery_tags WHERE discovery_id = $1`, d.ID)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: load tags", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag string
		if err := tagRows.Scan(&tag); err != nil {
			return resolvetypes.NewStorage("knowledge: scan tag", err)
		}
		d.Tags = append(d.Tags, tag)
	}

	fileRows, err := p.pool.Query(ctx, `SELECT file_path FROM discovery_files WHERE discovery_id = $1`, d.ID)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: load files", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		var fp string
		if err := fileRows.Scan(&fp); err != nil {
			return resolvetypes.NewStorage("knowledge: scan file", err)
		}
		d.Files = append(d.Files, fp)
	}

	return nil
}

// Query applies the composable filter and a mandatory LIMIT, newest-first.
func (p *Postgres) Query(ctx context.Context, f Filter) ([]resolvetypes.Discovery, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if f.Type != "" {
		conds = append(conds, "type = "+arg(string(f.Type)))
	}
	if f.Severity != "" {
		conds = append(conds, "severity = "+arg(f.Severity))
	}
	if f.Domain != "" {
		conds = append(conds, "domain = "+arg(string(f.Domain)))
	}
	if f.Agent != "" {
		conds = append(conds, "agent = "+arg(f.Agent))
	}
	if f.FilePath != "" {
		conds = append(conds, "id IN (SELECT discovery_id FROM discovery_files WHERE file_path = "+arg(f.FilePath)+")")
	}
	if len(f.Tags) > 0 {
		placeholders := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			placeholders[i] = arg(t)
		}
		conds = append(conds, "id IN (SELECT discovery_id FROM discovery_tags WHERE tag IN ("+strings.Join(placeholders, ",")+"))")
	}

	query := "SELECT id FROM discoveries"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC LIMIT " + arg(limit)

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, resolvetypes.NewStorage("knowledge: query", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, resolvetypes.NewStorage("knowledge: scan query id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, resolvetypes.NewStorage("knowledge: query iteration", err)
	}

	out := make([]resolvetypes.Discovery, 0, len(ids))
	for _, id := range ids {
		d, err := p.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (p *Postgres) IncrementReferences(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE discoveries SET reference_count = reference_count + 1 WHERE id = $1`, id)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: increment references", err)
	}
	if tag.RowsAffected() == 0 {
		return resolvetypes.NewNotFound("discovery " + id + " not found")
	}
	return nil
}

func (p *Postgres) MarkValidated(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `UPDATE discoveries SET validated = TRUE WHERE id = $1`, id)
	if err != nil {
		return resolvetypes.NewStorage("knowledge: mark validated", err)
	}
	if tag.RowsAffected() == 0 {
		return resolvetypes.NewNotFound("discovery " + id + " not found")
	}
	return nil
}

func (p *Postgres) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	row := p.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE validated), COALESCE(SUM(LENGTH(content)), 0)
		FROM discoveries
	`)
	if err := row.Scan(&stats.Total, &stats.Validated, &stats.SizeBytes); err != nil {
		return Statistics{}, resolvetypes.NewStorage("knowledge: statistics", err)
	}
	tagRow := p.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT tag) FROM discovery_tags`)
	if err := tagRow.Scan(&stats.Tags); err != nil {
		return Statistics{}, resolvetypes.NewStorage("knowledge: tag statistics", err)
	}
	return stats, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

var _ Store = (*Postgres)(nil)

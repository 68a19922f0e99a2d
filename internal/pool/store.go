// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ionscreen/pkg/types"
)

const (
	indexDir = "index"
	dbFile   = "pool.db"
)

// Store persists a candidate pool in a SQLite database so screening
// runs can resume after interruption. Save writes the full belief
// state and provenance of every candidate; excluded candidates keep
// their last known state and exclusion reason for audit.
type Store struct {
	db      *sql.DB
	baseDir string
}

// NewStore opens or creates the pool database at dir/index/pool.db,
// creating the schema if needed.
func NewStore(cfg types.PoolConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.Dir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, baseDir: cfg.Dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS candidates (
			id TEXT PRIMARY KEY,
			formula TEXT,
			mobile_species TEXT,
			state TEXT NOT NULL,
			cost TEXT,
			evidence_count INTEGER NOT NULL DEFAULT 0,
			retries INTEGER NOT NULL DEFAULT 0,
			exclusion_reason TEXT,
			features TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS beliefs (
			candidate_id TEXT NOT NULL REFERENCES candidates(id) ON DELETE CASCADE,
			property TEXT NOT NULL,
			estimate REAL NOT NULL,
			sigma REAL NOT NULL,
			provenance TEXT NOT NULL,
			PRIMARY KEY (candidate_id, property)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_state ON candidates(state)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save writes the full pool transactionally, replacing any previous
// snapshot.
func (s *Store) Save(ctx context.Context, p *Pool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM beliefs`); err != nil {
		return fmt.Errorf("clearing beliefs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates`); err != nil {
		return fmt.Errorf("clearing candidates: %w", err)
	}

	candStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candidates (id, formula, mobile_species, state, cost, evidence_count, retries, exclusion_reason, features, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing candidate insert: %w", err)
	}
	defer candStmt.Close()

	beliefStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO beliefs (candidate_id, property, estimate, sigma, provenance)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing belief insert: %w", err)
	}
	defer beliefStmt.Close()

	for _, c := range p.Snapshot() {
		featuresJSON, _ := json.Marshal(c.Features)
		_, err := candStmt.ExecContext(ctx,
			c.ID, c.Formula, c.MobileSpecies, string(c.State), string(c.Cost),
			c.EvidenceCount, c.Retries, c.ExclusionReason,
			string(featuresJSON), c.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting candidate %s: %w", c.ID, err)
		}

		// Deterministic belief order keeps the file stable for diffing.
		for _, prop := range beliefOrder(c.Beliefs) {
			b := c.Beliefs[prop]
			_, err := beliefStmt.ExecContext(ctx,
				c.ID, string(prop), b.Estimate, b.Sigma, string(b.Provenance))
			if err != nil {
				return fmt.Errorf("inserting belief %s/%s: %w", c.ID, prop, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads the persisted pool. An empty database yields an empty
// pool, not an error.
func (s *Store) Load(ctx context.Context) (*Pool, error) {
	beliefs, err := s.loadBeliefs(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, formula, mobile_species, state, cost, evidence_count, retries, exclusion_reason, features, updated_at
		 FROM candidates ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	p := New()
	for rows.Next() {
		var c types.Candidate
		var state, cost, featuresJSON, updatedAt string
		if err := rows.Scan(&c.ID, &c.Formula, &c.MobileSpecies, &state, &cost,
			&c.EvidenceCount, &c.Retries, &c.ExclusionReason,
			&featuresJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		c.State = types.CandidateState(state)
		c.Cost = types.CostClass(cost)
		if featuresJSON != "" {
			if err := json.Unmarshal([]byte(featuresJSON), &c.Features); err != nil {
				return nil, fmt.Errorf("candidate %s: parsing features: %w", c.ID, err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			c.UpdatedAt = t
		}
		c.Beliefs = beliefs[c.ID]
		if c.Beliefs == nil {
			c.Beliefs = map[types.Property]types.Belief{}
		}
		if err := p.Add(&c); err != nil {
			return nil, err
		}
	}
	return p, rows.Err()
}

func (s *Store) loadBeliefs(ctx context.Context) (map[string]map[types.Property]types.Belief, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT candidate_id, property, estimate, sigma, provenance FROM beliefs`)
	if err != nil {
		return nil, fmt.Errorf("querying beliefs: %w", err)
	}
	defer rows.Close()

	out := map[string]map[types.Property]types.Belief{}
	for rows.Next() {
		var id, prop, prov string
		var b types.Belief
		if err := rows.Scan(&id, &prop, &b.Estimate, &b.Sigma, &prov); err != nil {
			return nil, fmt.Errorf("scanning belief: %w", err)
		}
		b.Provenance = types.Provenance(prov)
		if out[id] == nil {
			out[id] = map[types.Property]types.Belief{}
		}
		out[id][types.Property(prop)] = b
	}
	return out, rows.Err()
}

// ExportYAML writes the pool snapshot to dir/index/pool.yaml.
func (s *Store) ExportYAML(p *Pool) error {
	data, err := yaml.Marshal(p.Snapshot())
	if err != nil {
		return fmt.Errorf("marshaling pool: %w", err)
	}
	path := filepath.Join(s.baseDir, indexDir, "pool.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ExportJSON writes the pool snapshot to dir/index/pool.json.
func (s *Store) ExportJSON(p *Pool) error {
	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pool: %w", err)
	}
	path := filepath.Join(s.baseDir, indexDir, "pool.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func beliefOrder(beliefs map[types.Property]types.Belief) []types.Property {
	props := make([]types.Property, 0, len(beliefs))
	for p := range beliefs {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
	return props
}

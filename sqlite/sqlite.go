// Package sqlite implements gradegraph.Store on a single SQLite file, keeping
// each grading model's graph as one JSON document.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meikuraledutech/gradegraph"
	_ "modernc.org/sqlite" // driver: sqlite
)

// DefaultDSN is used when Open is given an empty DSN.
const DefaultDSN = "file:gradegraph.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Store implements gradegraph.Store using SQLite via database/sql.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite database at dsn.
// SQLite allows a single writer, so the pool is limited to one connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS grading_models (
  id             TEXT PRIMARY KEY,
  course_id      TEXT NOT NULL,
  course_part_id TEXT NOT NULL DEFAULT '',
  name           TEXT NOT NULL,
  graph_json     TEXT NOT NULL,
  created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_grading_models_course ON grading_models(course_id);
`

// CreateSchema creates the grading_models table if it doesn't exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// DropSchema drops the grading_models table.
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS grading_models`)
	return err
}

// CreateModel saves a grading model. Missing model, node and edge IDs are
// generated. The graph must be valid.
func (s *Store) CreateModel(ctx context.Context, m *gradegraph.Model) (*gradegraph.Model, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Graph.FillIDs()
	if err := m.Graph.Validate(); err != nil {
		return nil, err
	}
	doc, err := json.Marshal(m.Graph)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: encode graph: %w", err)
	}

	m.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO grading_models (id, course_id, course_part_id, name, graph_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.CourseID, m.CoursePartID, m.Name, string(doc), m.CreatedAt.UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("gradegraph: insert model: %w", err)
	}
	return m, nil
}

// GetModel retrieves a grading model by ID.
// Returns nil, nil if not found.
func (s *Store) GetModel(ctx context.Context, modelID string) (*gradegraph.Model, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, course_id, course_part_id, name, graph_json, created_at FROM grading_models WHERE id = ?`,
		modelID)
	m, err := scanModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gradegraph: get model: %w", err)
	}
	return m, nil
}

// ListModels returns every grading model of a course, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *Store) ListModels(ctx context.Context, courseID string) ([]gradegraph.Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course_id, course_part_id, name, graph_json, created_at FROM grading_models
		 WHERE course_id = ? ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: list models: %w", err)
	}
	defer rows.Close()

	models := []gradegraph.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("gradegraph: scan model: %w", err)
		}
		models = append(models, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gradegraph: rows models: %w", err)
	}
	return models, nil
}

// ReplaceGraph swaps a model's whole graph for g.
func (s *Store) ReplaceGraph(ctx context.Context, modelID string, g *gradegraph.Graph) error {
	g.FillIDs()
	if err := g.Validate(); err != nil {
		return err
	}
	return s.edit(ctx, modelID, func(cur *gradegraph.Graph) error {
		*cur = *g
		return nil
	})
}

// DeleteModel removes a model. No error if it doesn't exist.
func (s *Store) DeleteModel(ctx context.Context, modelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM grading_models WHERE id = ?`, modelID); err != nil {
		return fmt.Errorf("gradegraph: delete model: %w", err)
	}
	return nil
}

// AddNode inserts a node; a UUID is generated when node.ID is empty.
func (s *Store) AddNode(ctx context.Context, modelID string, node *gradegraph.Node) (string, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	err := s.edit(ctx, modelID, func(g *gradegraph.Graph) error {
		return g.AddNode(*node)
	})
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// UpdateNode replaces an existing node.
func (s *Store) UpdateNode(ctx context.Context, modelID string, node *gradegraph.Node) error {
	return s.edit(ctx, modelID, func(g *gradegraph.Graph) error {
		return g.UpdateNode(*node)
	})
}

// DeleteNode deletes a node and the edges touching it.
func (s *Store) DeleteNode(ctx context.Context, modelID, nodeID string) error {
	return s.edit(ctx, modelID, func(g *gradegraph.Graph) error {
		return g.RemoveNode(nodeID)
	})
}

// AddEdge inserts an edge after checking it keeps the graph valid and
// acyclic; a UUID is generated when edge.ID is empty.
func (s *Store) AddEdge(ctx context.Context, modelID string, edge *gradegraph.Edge) (string, error) {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	err := s.edit(ctx, modelID, func(g *gradegraph.Graph) error {
		return g.AddEdge(*edge)
	})
	if err != nil {
		return "", err
	}
	return edge.ID, nil
}

// DeleteEdge deletes an edge by its ID.
func (s *Store) DeleteEdge(ctx context.Context, modelID, edgeID string) error {
	return s.edit(ctx, modelID, func(g *gradegraph.Graph) error {
		return g.RemoveEdge(edgeID)
	})
}

// edit loads a model's graph, applies fn and writes it back in one
// transaction.
func (s *Store) edit(ctx context.Context, modelID string, fn func(*gradegraph.Graph) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT graph_json FROM grading_models WHERE id = ?`, modelID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return gradegraph.ErrModelNotFound
	}
	if err != nil {
		return fmt.Errorf("gradegraph: load graph: %w", err)
	}

	var g gradegraph.Graph
	if err := json.Unmarshal([]byte(doc), &g); err != nil {
		return fmt.Errorf("gradegraph: decode graph: %w", err)
	}
	if err := fn(&g); err != nil {
		return err
	}
	out, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("gradegraph: encode graph: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE grading_models SET graph_json = ? WHERE id = ?`, string(out), modelID,
	); err != nil {
		return fmt.Errorf("gradegraph: save graph: %w", err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(row scanner) (*gradegraph.Model, error) {
	var (
		m       gradegraph.Model
		doc     string
		created int64
	)
	if err := row.Scan(&m.ID, &m.CourseID, &m.CoursePartID, &m.Name, &doc, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), &m.Graph); err != nil {
		return nil, fmt.Errorf("decode graph of %s: %w", m.ID, err)
	}
	m.CreatedAt = time.UnixMilli(created).UTC()
	return &m, nil
}

var _ gradegraph.Store = (*Store)(nil)

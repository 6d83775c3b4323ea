package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/meikuraledutech/gradegraph"
)

// CreateModel saves a grading model and its full graph in one transaction.
// The model and edges without IDs get auto-generated UUIDs, as do nodes
// without IDs. The graph must be valid.
// Returns the model with all IDs filled in.
func (s *PGStore) CreateModel(ctx context.Context, m *gradegraph.Model) (*gradegraph.Model, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Graph.FillIDs()

	if err := m.Graph.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx,
		`INSERT INTO grading_models (id, course_id, course_part_id, name) VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		m.ID, m.CourseID, m.CoursePartID, m.Name,
	).Scan(&m.CreatedAt); err != nil {
		return nil, fmt.Errorf("gradegraph: insert model: %w", err)
	}
	if err := writeGraph(ctx, tx, m.ID, &m.Graph); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("gradegraph: commit: %w", err)
	}
	return m, nil
}

// GetModel retrieves a grading model and its graph by ID.
// Returns nil, nil if the model doesn't exist.
func (s *PGStore) GetModel(ctx context.Context, modelID string) (*gradegraph.Model, error) {
	m := &gradegraph.Model{ID: modelID}
	err := s.db.QueryRow(ctx,
		`SELECT course_id, course_part_id, name, created_at FROM grading_models WHERE id = $1`, modelID,
	).Scan(&m.CourseID, &m.CoursePartID, &m.Name, &m.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gradegraph: get model: %w", err)
	}

	g, err := loadGraph(ctx, s.db, modelID)
	if err != nil {
		return nil, err
	}
	m.Graph = *g
	return m, nil
}

// ListModels returns every grading model of a course, ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListModels(ctx context.Context, courseID string) ([]gradegraph.Model, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, course_id, course_part_id, name, created_at FROM grading_models
		 WHERE course_id = $1 ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: list models: %w", err)
	}
	defer rows.Close()

	models := []gradegraph.Model{}
	for rows.Next() {
		var m gradegraph.Model
		if err := rows.Scan(&m.ID, &m.CourseID, &m.CoursePartID, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("gradegraph: scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gradegraph: rows models: %w", err)
	}

	for i := range models {
		g, err := loadGraph(ctx, s.db, models[i].ID)
		if err != nil {
			return nil, err
		}
		models[i].Graph = *g
	}
	return models, nil
}

// ReplaceGraph swaps a model's whole graph for g (replace semantics).
// Returns ErrModelNotFound if the model doesn't exist.
func (s *PGStore) ReplaceGraph(ctx context.Context, modelID string, g *gradegraph.Graph) error {
	g.FillIDs()
	if err := g.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockModel(ctx, tx, modelID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM grading_edges WHERE model_id = $1`, modelID); err != nil {
		return fmt.Errorf("gradegraph: delete edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM grading_nodes WHERE model_id = $1`, modelID); err != nil {
		return fmt.Errorf("gradegraph: delete nodes: %w", err)
	}
	if err := writeGraph(ctx, tx, modelID, g); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteModel removes a model; its nodes and edges are cascade-deleted.
// No error if the model doesn't exist.
func (s *PGStore) DeleteModel(ctx context.Context, modelID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM grading_models WHERE id = $1`, modelID); err != nil {
		return fmt.Errorf("gradegraph: delete model: %w", err)
	}
	return nil
}

// lockModel takes a row lock on the model so concurrent edits of one graph
// serialise, and reports ErrModelNotFound for unknown ids.
func lockModel(ctx context.Context, q querier, modelID string) error {
	var id string
	err := q.QueryRow(ctx, `SELECT id FROM grading_models WHERE id = $1 FOR UPDATE`, modelID).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return gradegraph.ErrModelNotFound
		}
		return fmt.Errorf("gradegraph: find model: %w", err)
	}
	return nil
}

func writeGraph(ctx context.Context, q querier, modelID string, g *gradegraph.Graph) error {
	for i := range g.Nodes {
		if err := insertNode(ctx, q, modelID, &g.Nodes[i]); err != nil {
			return err
		}
	}
	for i := range g.Edges {
		if err := insertEdge(ctx, q, modelID, &g.Edges[i]); err != nil {
			return err
		}
	}
	return nil
}

func loadGraph(ctx context.Context, q querier, modelID string) (*gradegraph.Graph, error) {
	g := &gradegraph.Graph{}
	nodes, err := listNodes(ctx, q, modelID)
	if err != nil {
		return nil, err
	}
	edges, err := listEdges(ctx, q, modelID)
	if err != nil {
		return nil, err
	}
	g.Nodes, g.Edges = nodes, edges
	return g, nil
}

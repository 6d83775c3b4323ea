package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/meikuraledutech/gradegraph"
)

// AddEdge inserts a single edge into a model's graph.
// If edge.ID is empty, a UUID is auto-generated.
// Validates that adding this edge does not create a cycle or an illegal
// connection.
// Returns the edge ID (generated or provided).
func (s *PGStore) AddEdge(ctx context.Context, modelID string, edge *gradegraph.Edge) (string, error) {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Fetch the existing graph for validation.
	g, err := lockGraph(ctx, tx, modelID)
	if err != nil {
		return "", err
	}
	if err := g.AddEdge(*edge); err != nil {
		return "", err
	}
	if err := insertEdge(ctx, tx, modelID, edge); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("gradegraph: commit: %w", err)
	}
	return edge.ID, nil
}

// DeleteEdge deletes an edge by its ID.
// Returns ErrEdgeNotFound if the edge doesn't exist.
func (s *PGStore) DeleteEdge(ctx context.Context, modelID, edgeID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := lockGraph(ctx, tx, modelID)
	if err != nil {
		return err
	}
	var target string
	for _, e := range g.Edges {
		if e.ID == edgeID {
			target = e.Target
		}
	}
	if err := g.RemoveEdge(edgeID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM grading_edges WHERE model_id = $1 AND id = $2`, modelID, edgeID,
	); err != nil {
		return fmt.Errorf("gradegraph: delete edge: %w", err)
	}
	if err := saveHandles(ctx, tx, modelID, g, []string{target}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func handleText(h *gradegraph.Handle) *string {
	if h == nil {
		return nil
	}
	s := h.String()
	return &s
}

func parseHandle(s *string) (*gradegraph.Handle, error) {
	if s == nil {
		return nil, nil
	}
	h, err := gradegraph.ParseHandle(*s)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func insertEdge(ctx context.Context, q querier, modelID string, e *gradegraph.Edge) error {
	if _, err := q.Exec(ctx,
		`INSERT INTO grading_edges (model_id, id, source, source_handle, target, target_handle)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		modelID, e.ID, e.Source, handleText(e.SourceHandle), e.Target, handleText(e.TargetHandle),
	); err != nil {
		return fmt.Errorf("gradegraph: insert edge %s: %w", e.ID, err)
	}
	return nil
}

// listEdges returns all edges of a model in insertion order.
func listEdges(ctx context.Context, q querier, modelID string) ([]gradegraph.Edge, error) {
	rows, err := q.Query(ctx,
		`SELECT id, source, source_handle, target, target_handle FROM grading_edges
		 WHERE model_id = $1 ORDER BY seq`, modelID)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: list edges: %w", err)
	}
	defer rows.Close()

	edges := []gradegraph.Edge{}
	for rows.Next() {
		var (
			e      gradegraph.Edge
			sh, th *string
		)
		if err := rows.Scan(&e.ID, &e.Source, &sh, &e.Target, &th); err != nil {
			return nil, fmt.Errorf("gradegraph: scan edge: %w", err)
		}
		if e.SourceHandle, err = parseHandle(sh); err != nil {
			return nil, fmt.Errorf("gradegraph: edge %s: %w", e.ID, err)
		}
		if e.TargetHandle, err = parseHandle(th); err != nil {
			return nil, fmt.Errorf("gradegraph: edge %s: %w", e.ID, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gradegraph: rows edges: %w", err)
	}

	return edges, nil
}

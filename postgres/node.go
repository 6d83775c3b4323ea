package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/meikuraledutech/gradegraph"
)

// AddNode inserts a single node into a model's graph.
// If node.ID is empty, a UUID is auto-generated.
// Validates that the graph stays valid with the node added.
// Returns the node ID (generated or provided).
func (s *PGStore) AddNode(ctx context.Context, modelID string, node *gradegraph.Node) (string, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := lockGraph(ctx, tx, modelID)
	if err != nil {
		return "", err
	}
	if err := g.AddNode(*node); err != nil {
		return "", err
	}
	added, _ := g.Node(node.ID)
	if err := insertNode(ctx, tx, modelID, added); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("gradegraph: commit: %w", err)
	}
	return node.ID, nil
}

// UpdateNode replaces an existing node's kind, title, handles and settings.
// Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) UpdateNode(ctx context.Context, modelID string, node *gradegraph.Node) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := lockGraph(ctx, tx, modelID)
	if err != nil {
		return err
	}
	if err := g.UpdateNode(*node); err != nil {
		return err
	}
	updated, _ := g.Node(node.ID)
	handles, settings, err := encodeNode(updated)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE grading_nodes SET kind = $1, title = $2, handles = $3, settings = $4
		 WHERE model_id = $5 AND id = $6`,
		updated.Kind, updated.Title, handles, settings, modelID, updated.ID,
	); err != nil {
		return fmt.Errorf("gradegraph: update node: %w", err)
	}
	return tx.Commit(ctx)
}

// DeleteNode deletes a node by its ID.
// Associated edges are cascade-deleted by the DB.
// Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) DeleteNode(ctx context.Context, modelID, nodeID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("gradegraph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	g, err := lockGraph(ctx, tx, modelID)
	if err != nil {
		return err
	}
	var fed []string
	for _, e := range g.Edges {
		if e.Source == nodeID {
			fed = append(fed, e.Target)
		}
	}
	if err := g.RemoveNode(nodeID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM grading_nodes WHERE model_id = $1 AND id = $2`, modelID, nodeID,
	); err != nil {
		return fmt.Errorf("gradegraph: delete node: %w", err)
	}
	if err := saveHandles(ctx, tx, modelID, g, fed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockGraph locks the model row and loads its graph within the transaction.
func lockGraph(ctx context.Context, q querier, modelID string) (*gradegraph.Graph, error) {
	if err := lockModel(ctx, q, modelID); err != nil {
		return nil, err
	}
	return loadGraph(ctx, q, modelID)
}

// saveHandles writes back the declared handles of the given nodes after an
// edit may have changed them.
func saveHandles(ctx context.Context, q querier, modelID string, g *gradegraph.Graph, ids []string) error {
	for _, id := range ids {
		n, ok := g.Node(id)
		if !ok {
			continue
		}
		handles, _, err := encodeNode(n)
		if err != nil {
			return err
		}
		if _, err := q.Exec(ctx,
			`UPDATE grading_nodes SET handles = $1 WHERE model_id = $2 AND id = $3`,
			handles, modelID, id,
		); err != nil {
			return fmt.Errorf("gradegraph: update handles of %s: %w", id, err)
		}
	}
	return nil
}

func encodeNode(n *gradegraph.Node) (handles, settings []byte, err error) {
	hs := n.Handles
	if hs == nil {
		hs = []gradegraph.Handle{}
	}
	if handles, err = json.Marshal(hs); err != nil {
		return nil, nil, fmt.Errorf("gradegraph: encode handles of %s: %w", n.ID, err)
	}
	if n.Settings != nil {
		if settings, err = json.Marshal(n.Settings); err != nil {
			return nil, nil, fmt.Errorf("gradegraph: encode settings of %s: %w", n.ID, err)
		}
	}
	return handles, settings, nil
}

func insertNode(ctx context.Context, q querier, modelID string, n *gradegraph.Node) error {
	handles, settings, err := encodeNode(n)
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO grading_nodes (model_id, id, kind, title, handles, settings) VALUES ($1, $2, $3, $4, $5, $6)`,
		modelID, n.ID, n.Kind, n.Title, handles, settings,
	); err != nil {
		return fmt.Errorf("gradegraph: insert node %s: %w", n.ID, err)
	}
	return nil
}

// listNodes returns all nodes of a model in insertion order.
func listNodes(ctx context.Context, q querier, modelID string) ([]gradegraph.Node, error) {
	rows, err := q.Query(ctx,
		`SELECT id, kind, title, handles, settings FROM grading_nodes WHERE model_id = $1 ORDER BY seq`, modelID)
	if err != nil {
		return nil, fmt.Errorf("gradegraph: list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []gradegraph.Node{}
	for rows.Next() {
		var (
			n        gradegraph.Node
			handles  []byte
			settings []byte
		)
		if err := rows.Scan(&n.ID, &n.Kind, &n.Title, &handles, &settings); err != nil {
			return nil, fmt.Errorf("gradegraph: scan node: %w", err)
		}
		var hs []gradegraph.Handle
		if err := json.Unmarshal(handles, &hs); err != nil {
			return nil, fmt.Errorf("gradegraph: decode handles of %s: %w", n.ID, err)
		}
		if len(hs) > 0 {
			n.Handles = hs
		}
		if settings != nil {
			if n.Settings, err = gradegraph.DecodeSettings(n.Kind, settings); err != nil {
				return nil, fmt.Errorf("gradegraph: decode settings of %s: %w", n.ID, err)
			}
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gradegraph: rows nodes: %w", err)
	}

	return nodes, nil
}

package gradegraph

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCyclicGraph     = errors.New("gradegraph: cycle detected, graph is not acyclic")
	ErrInvalidSettings = errors.New("gradegraph: invalid node settings")
	ErrInvalidGraph    = errors.New("gradegraph: invalid graph")
	ErrInvalidEdge     = errors.New("gradegraph: invalid edge")
	ErrNodeNotFound    = errors.New("gradegraph: node not found")
	ErrEdgeNotFound    = errors.New("gradegraph: edge not found")
	ErrModelNotFound   = errors.New("gradegraph: grading model not found")
)

// Model is a persisted grading model: a named graph owned by a course.
// CoursePartID is set when the model computes a part-grade that feeds the
// course's final model.
type Model struct {
	ID           string    `json:"id,omitempty"`
	CourseID     string    `json:"courseId"`
	CoursePartID string    `json:"coursePartId,omitempty"`
	Name         string    `json:"name"`
	Graph        Graph     `json:"graph"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
}

// Store defines the contract for persisting and retrieving grading models.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Models (bulk operations)
	CreateModel(ctx context.Context, m *Model) (*Model, error)
	GetModel(ctx context.Context, modelID string) (*Model, error)
	ListModels(ctx context.Context, courseID string) ([]Model, error)
	ReplaceGraph(ctx context.Context, modelID string, g *Graph) error
	DeleteModel(ctx context.Context, modelID string) error

	// Nodes
	AddNode(ctx context.Context, modelID string, node *Node) (string, error)
	UpdateNode(ctx context.Context, modelID string, node *Node) error
	DeleteNode(ctx context.Context, modelID, nodeID string) error

	// Edges
	AddEdge(ctx context.Context, modelID string, edge *Edge) (string, error)
	DeleteEdge(ctx context.Context, modelID, edgeID string) error
}

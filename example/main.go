package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meikuraledutech/gradegraph"
	"github.com/meikuraledutech/gradegraph/postgres"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	// Wire up the postgres implementation behind the Store interface.
	var store gradegraph.Store = postgres.New(pool)

	// 1. Create tables
	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Create a model from the average template ──────────────────────
	g, err := gradegraph.NewGraph(gradegraph.TemplateAverage, "Exercises", []gradegraph.SourceRef{
		{ID: "ex1", Title: "Exercise 1"},
		{ID: "ex2", Title: "Exercise 2"},
		{ID: "ex3", Title: "Exercise 3"},
	})
	if err != nil {
		log.Fatalf("template: %v", err)
	}
	created, err := store.CreateModel(ctx, &gradegraph.Model{
		CourseID: "cs-101",
		Name:     "Exercises",
		Graph:    *g,
	})
	if err != nil {
		log.Fatalf("create model: %v", err)
	}
	fmt.Println("model created from template")
	printJSON(created)

	// ── Granular: require a passing exam before the grade ─────────────
	examID, err := store.AddNode(ctx, created.ID, &gradegraph.Node{
		ID:       "exam",
		Kind:     gradegraph.KindSource,
		Title:    "Exam",
		Settings: &gradegraph.SourceSettings{MinPoints: ptr(10.0), OnFailSetting: gradegraph.OnFailFullFail},
	})
	if err != nil {
		log.Fatalf("add node: %v", err)
	}
	fmt.Printf("\nadded node: %s\n", examID)

	in := gradegraph.In(3)
	edgeID, err := store.AddEdge(ctx, created.ID, &gradegraph.Edge{
		Source:       examID,
		Target:       string(gradegraph.TemplateAverage),
		TargetHandle: &in,
	})
	if err != nil {
		log.Fatalf("add edge: %v", err)
	}
	fmt.Printf("added edge: %s\n", edgeID)

	// A cycle is rejected before it reaches the database.
	_, err = store.AddEdge(ctx, created.ID, &gradegraph.Edge{Source: "stepper", Target: "average", TargetHandle: ptr(gradegraph.In(4))})
	fmt.Printf("cyclic edge rejected: %v\n", err)

	// ── Retrieve and evaluate ─────────────────────────────────────────
	model, err := store.GetModel(ctx, created.ID)
	if err != nil {
		log.Fatalf("get model: %v", err)
	}
	for _, sources := range []map[string]float64{
		{"ex1": 8, "ex2": 9, "ex3": 7, "exam": 16},
		{"ex1": 8, "ex2": 9, "ex3": 7, "exam": 4},
	} {
		res, err := gradegraph.Evaluate(&model.Graph, sources)
		if err != nil {
			log.Fatalf("evaluate: %v", err)
		}
		fmt.Printf("\nsources %v -> grade %v (fullFail %v)\n", sources, res.Grade.Value, res.Grade.FullFail)
	}

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteModel(ctx, created.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\nmodel deleted")
}

func ptr[T any](v T) *T { return &v }

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/meikuraledutech/gradegraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// evaluateOptions defines flags for `gradectl evaluate`.
type evaluateOptions struct {
	graphPath   string
	sourcesPath string
}

func (o *evaluateOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.graphPath, "graph", "", "graph JSON document")
	cmd.Flags().StringVar(&o.sourcesPath, "sources", "", "JSON object of source values, - for stdin")
	_ = cmd.MarkFlagRequired("graph")
}

func (o *evaluateOptions) run(cmd *cobra.Command) error {
	g, err := readGraph(o.graphPath)
	if err != nil {
		return err
	}
	sources := map[string]float64{}
	if o.sourcesPath != "" {
		if err := readJSON(cmd.InOrStdin(), o.sourcesPath, &sources); err != nil {
			return err
		}
	}
	res, err := gradegraph.Evaluate(g, sources)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

// newCmdEvaluate creates the `gradectl evaluate` command.
func newCmdEvaluate() *cobra.Command {
	o := &evaluateOptions{}
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a graph once for one set of source values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	o.addFlags(cmd)
	return cmd
}

// batchOptions defines flags for `gradectl batch`.
type batchOptions struct {
	root       *rootOptions
	graphPath  string
	cohortPath string
	gradesOnly bool
}

func (o *batchOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.graphPath, "graph", "", "graph JSON document")
	cmd.Flags().StringVar(&o.cohortPath, "cohort", "-", "JSON object of student id to source values, - for stdin")
	cmd.Flags().BoolVar(&o.gradesOnly, "grades-only", false, "print only each student's grade")
	_ = cmd.MarkFlagRequired("graph")
}

func (o *batchOptions) run(cmd *cobra.Command) error {
	logger, err := newLogger(o.root.logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	g, err := readGraph(o.graphPath)
	if err != nil {
		return err
	}
	var cohort gradegraph.Cohort
	if err := readJSON(cmd.InOrStdin(), o.cohortPath, &cohort); err != nil {
		return err
	}
	p, err := gradegraph.Compile(g)
	if err != nil {
		return err
	}
	for _, d := range p.Diagnostics() {
		logger.Warn("graph diagnostic", zap.Stringer("diagnostic", d))
	}

	opts := []gradegraph.BatchOption{
		gradegraph.WithWorkers(o.root.workers),
		gradegraph.WithLogger(logger),
	}
	if o.gradesOnly {
		grades, err := p.GradeBatch(cmd.Context(), cohort, opts...)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), grades)
	}
	results, err := p.EvaluateBatch(cmd.Context(), cohort, opts...)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), results)
}

// newCmdBatch creates the `gradectl batch` command.
func newCmdBatch(root *rootOptions) *cobra.Command {
	o := &batchOptions{root: root}
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate a graph for every student of a cohort",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}
	o.addFlags(cmd)
	return cmd
}

// newCmdTemplate creates the `gradectl template` command, which prints the
// starting graph for a set of source ids.
func newCmdTemplate() *cobra.Command {
	var (
		template string
		title    string
	)
	cmd := &cobra.Command{
		Use:   "template SOURCE_ID...",
		Short: "Print a template graph over the given sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := make([]gradegraph.SourceRef, len(args))
			for i, id := range args {
				sources[i] = gradegraph.SourceRef{ID: id, Title: id}
			}
			g, err := gradegraph.NewGraph(gradegraph.Template(template), title, sources)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), g)
		},
	}
	cmd.Flags().StringVar(&template, "template", string(gradegraph.TemplateAverage), "none, addition or average")
	cmd.Flags().StringVar(&title, "title", "Final grade", "sink title")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func readGraph(path string) (*gradegraph.Graph, error) {
	var g gradegraph.Graph
	if err := readJSON(nil, path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// readJSON decodes the file at path into v. The path "-" reads stdin.
func readJSON(stdin io.Reader, path string, v any) error {
	var r io.Reader
	if path == "-" {
		if stdin == nil {
			return errors.New("stdin is not available for this input")
		}
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

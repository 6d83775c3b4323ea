package gradegraph

import (
	"context"
	"runtime"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Cohort maps student ids to that student's Source values.
type Cohort map[string]map[string]float64

type batchConfig struct {
	workers     int
	shard       int
	materialize bool
	logger      *zap.Logger
}

// BatchOption configures batch evaluation.
type BatchOption func(*batchConfig)

// WithWorkers bounds the number of goroutines evaluating students.
// Values below 1 use GOMAXPROCS.
func WithWorkers(n int) BatchOption { return func(c *batchConfig) { c.workers = n } }

// WithShardSize sets how many students one goroutine evaluates in a row.
func WithShardSize(n int) BatchOption { return func(c *batchConfig) { c.shard = n } }

// WithLogger sets the logger used for batch progress.
func WithLogger(l *zap.Logger) BatchOption { return func(c *batchConfig) { c.logger = l } }

func newBatchConfig(opts []BatchOption) *batchConfig {
	c := &batchConfig{
		workers:     runtime.GOMAXPROCS(0),
		shard:       64,
		materialize: true,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.workers < 1 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	if c.shard < 1 {
		c.shard = 1
	}
	return c
}

// EvaluateBatch evaluates p independently for every student in cohort.
// The topological order is computed once at compile time and replayed per
// student; each worker owns its frame, so students never share state.
// The context only stops work early; a completed batch never fails.
func (p *Program) EvaluateBatch(ctx context.Context, cohort Cohort, opts ...BatchOption) (map[string]*Result, error) {
	return p.evaluateBatch(ctx, cohort, newBatchConfig(opts))
}

// GradeBatch is EvaluateBatch projected to each student's Grade. Per-node
// values are never built.
func (p *Program) GradeBatch(ctx context.Context, cohort Cohort, opts ...BatchOption) (map[string]Grade, error) {
	cfg := newBatchConfig(opts)
	cfg.materialize = false
	results, err := p.evaluateBatch(ctx, cohort, cfg)
	if err != nil {
		return nil, err
	}
	grades := make(map[string]Grade, len(results))
	for id, r := range results {
		grades[id] = r.Grade
	}
	return grades, nil
}

func (p *Program) evaluateBatch(ctx context.Context, cohort Cohort, cfg *batchConfig) (map[string]*Result, error) {
	start := time.Now()

	ids := make([]string, 0, len(cohort))
	for id := range cohort {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	results := make([]*Result, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers)
	for lo := 0; lo < len(ids); lo += cfg.shard {
		hi := min(lo+cfg.shard, len(ids))
		g.Go(func() error {
			f := p.newFrame()
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = p.replay(f, cohort[ids[i]], cfg.materialize)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cfg.logger.Warn("batch evaluation stopped",
			zap.Int("students", len(ids)),
			zap.Error(err))
		return nil, err
	}

	out := make(map[string]*Result, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	cfg.logger.Debug("batch evaluated",
		zap.Int("students", len(ids)),
		zap.Int("nodes", len(p.nodes)),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// replay evaluates one student by walking the precomputed order.
func (p *Program) replay(f *frame, sources map[string]float64, materialize bool) *Result {
	f.reset()
	diags := p.seed(f, sources)
	for _, i := range p.order {
		p.step(f, i)
	}
	p.settle(f)

	r := &Result{Grade: p.grade(f), Diagnostics: diags}
	if materialize {
		r.Values = p.materialize(f)
	}
	return r
}

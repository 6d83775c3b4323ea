package gradegraph

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func randomCohort(n int, seed int64) Cohort {
	rng := rand.New(rand.NewSource(seed))
	ids := []string{"ex0", "ex1", "ex2", "spare", "project", "exam"}
	cohort := make(Cohort, n)
	for i := range n {
		sources := make(map[string]float64, len(ids))
		for _, id := range ids {
			// Leave some values out to exercise the missing-source path.
			if rng.Intn(10) == 0 {
				continue
			}
			sources[id] = float64(rng.Intn(21))
		}
		cohort[fmt.Sprintf("student-%03d", i)] = sources
	}
	return cohort
}

func TestEvaluateBatchMatchesSingleEvaluation(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)
	cohort := randomCohort(300, 7)

	results, err := p.EvaluateBatch(context.Background(), cohort,
		WithWorkers(4),
		WithShardSize(7),
		WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.Len(t, results, len(cohort))

	for id, sources := range cohort {
		want, err := p.Evaluate(sources)
		require.NoError(t, err)
		if diff := cmp.Diff(want, results[id]); diff != "" {
			t.Fatalf("student %s differs from single evaluation (-want +got):\n%s", id, diff)
		}
	}
}

func TestGradeBatch(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)
	cohort := randomCohort(50, 3)

	grades, err := p.GradeBatch(context.Background(), cohort, WithWorkers(3))
	require.NoError(t, err)
	require.Len(t, grades, len(cohort))
	for id, sources := range cohort {
		want, err := p.Evaluate(sources)
		require.NoError(t, err)
		assert.Equal(t, want.Grade, grades[id], id)
	}
}

func TestGradesOnlySkipsNodeValues(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)
	cfg := newBatchConfig(nil)
	cfg.materialize = false
	results, err := p.evaluateBatch(context.Background(), Cohort{"s": {"exam": 1}}, cfg)
	require.NoError(t, err)
	assert.Nil(t, results["s"].Values)
	assert.Equal(t, Grade{Value: 0, FullFail: true}, results["s"].Grade)
	assert.NotEmpty(t, results["s"].Diagnostics)
}

func TestGradeBatchSharedOptions(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)
	cohort := randomCohort(20, 5)

	// Options shared between callers, with spare capacity behind them.
	opts := make([]BatchOption, 1, 8)
	opts[0] = WithWorkers(2)

	var wg sync.WaitGroup
	grades := make([]map[string]Grade, 8)
	errs := make([]error, len(grades))
	for i := range grades {
		wg.Add(1)
		go func() {
			defer wg.Done()
			grades[i], errs[i] = p.GradeBatch(context.Background(), cohort, opts...)
		}()
	}
	wg.Wait()

	for i := range grades {
		require.NoError(t, errs[i])
		assert.Equal(t, grades[0], grades[i])
	}
	for _, o := range opts[1:cap(opts)] {
		assert.Nil(t, o, "spare capacity was written")
	}
	assert.Len(t, grades[0], len(cohort))

	results, err := p.EvaluateBatch(context.Background(), cohort, opts...)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotNil(t, r.Values)
	}
}

func TestEvaluateBatchEmptyCohort(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)
	results, err := p.EvaluateBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluateBatchStopsOnCancel(t *testing.T) {
	p, err := Compile(mixedGraph())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.EvaluateBatch(ctx, randomCohort(10, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchConfigDefaults(t *testing.T) {
	c := newBatchConfig([]BatchOption{WithWorkers(-1), WithShardSize(0)})
	assert.Positive(t, c.workers)
	assert.Equal(t, 1, c.shard)
	assert.True(t, c.materialize)
}

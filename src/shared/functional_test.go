package common

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPipeline_ExecutesStepsInOrder(t *testing.T) {
	ctx := TestContext(t, "test-pipeline")

	pipeline := NewPipeline[[]string]().
		AddStep("first", func(_ context.Context, in []string) ([]string, error) {
			return append(in, "first"), nil
		}).
		AddStep("second", func(_ context.Context, in []string) ([]string, error) {
			return append(in, "second"), nil
		})

	out, err := pipeline.Execute(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, out)
	assert.Equal(t, []string{"first", "second"}, pipeline.Steps())
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	ctx := TestContext(t, "test-pipeline-failure")
	sentinel := errors.New("boom")
	thirdRan := false

	pipeline := NewPipeline[int]().
		AddStep("increment", func(_ context.Context, in int) (int, error) { return in + 1, nil }).
		AddStep("explode", func(_ context.Context, in int) (int, error) { return in, sentinel }).
		AddStep("never", func(_ context.Context, in int) (int, error) {
			thirdRan = true
			return in, nil
		})

	out, err := pipeline.Execute(ctx, 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "explode: boom")
	assert.Equal(t, 1, out, "state reached before the failing step is returned")
	assert.False(t, thirdRan)
}

func TestPipeline_RunsWithoutSegment(t *testing.T) {
	pipeline := NewPipeline[int]().
		AddStep("double", func(_ context.Context, in int) (int, error) { return in * 2, nil })

	out, err := pipeline.Execute(context.Background(), 21)

	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestWithTracedPipeline(t *testing.T) {
	ctx := TestContext(t, "test-traced-pipeline")

	ok := WithTracedPipeline(ctx, "ok", NewPipeline[string]().
		AddStep("upper", func(_ context.Context, in string) (string, error) { return in + "!", nil }), "hi")
	assert.True(t, ok.IsSuccess())
	assert.Equal(t, "hi!", ok.Value)

	failed := WithTracedPipeline(ctx, "failed", NewPipeline[string]().
		AddStep("fail", func(_ context.Context, in string) (string, error) { return in, errors.New("nope") }), "hi")
	assert.True(t, failed.IsFailure())
	assert.Equal(t, "hi", failed.Value)
}

func TestPipeline_Property_AllStepsApplied(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "steps")
		pipeline := NewPipeline[int]()
		for i := 0; i < n; i++ {
			pipeline.AddStep("inc", func(_ context.Context, in int) (int, error) { return in + 1, nil })
		}

		out, err := pipeline.Execute(context.Background(), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != n {
			t.Fatalf("expected %d, got %d", n, out)
		}
	})
}

package engine

import (
	"context"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeEngine_Lifecycle(t *testing.T) {
	e := NewRuntimeEngine(zerolog.Nop())
	ctx := context.Background()

	running, err := e.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, e.Start(ctx, 1000, 0.001, []string{"stackwalk", "threads"}, []string{"GeckoMain"}))
	t.Cleanup(func() {
		if ok, _ := e.IsRunning(ctx); ok {
			_ = e.Stop(ctx)
		}
	})

	err = e.Start(ctx, 1000, 0.001, nil, nil)
	assert.ErrorIs(t, err, ErrEngineRejected, "second start must be rejected")

	p, err := e.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, FormatPprof, p.Format)
	assert.NotEmpty(t, p.Data)
	assert.False(t, p.CapturedAt.IsZero())

	parsed, err := profile.ParseData(p.Data)
	require.NoError(t, err)
	assert.Len(t, parsed.Sample, p.SampleCount)

	running, err = e.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running, "capture must not stop the engine")

	require.NoError(t, e.Stop(ctx))
	running, err = e.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	assert.ErrorIs(t, e.Stop(ctx), ErrEngineQueryFailed)
	_, err = e.GetProfile(ctx)
	assert.ErrorIs(t, err, ErrEngineQueryFailed)
}

func TestRuntimeEngine_RejectsBadConfiguration(t *testing.T) {
	e := NewRuntimeEngine(zerolog.Nop())
	ctx := context.Background()

	assert.ErrorIs(t, e.Start(ctx, 0, 0.001, nil, nil), ErrEngineRejected)
	assert.ErrorIs(t, e.Start(ctx, 10, 0, nil, nil), ErrEngineRejected)
	assert.ErrorIs(t, e.Start(ctx, 10, 0.001, []string{"gpu"}, nil), ErrEngineRejected)

	running, err := e.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}

func labelled(thread string) *profile.Sample {
	s := &profile.Sample{Value: []int64{1}}
	if thread != "" {
		s.Label = map[string][]string{ThreadLabel: {thread}}
	}
	return s
}

func TestFilterThreads(t *testing.T) {
	p := &profile.Profile{Sample: []*profile.Sample{
		labelled("GeckoMain"),
		labelled("Compositor"),
		labelled(""),
	}}

	filterThreads(p, []string{"GeckoMain"})

	require.Len(t, p.Sample, 2)
	assert.Equal(t, []string{"GeckoMain"}, p.Sample[0].Label[ThreadLabel])
	assert.Empty(t, p.Sample[1].Label)
}

func TestFilterThreads_NoFilterKeepsAll(t *testing.T) {
	p := &profile.Profile{Sample: []*profile.Sample{labelled("A"), labelled("B")}}
	filterThreads(p, nil)
	assert.Len(t, p.Sample, 2)
}

func TestTruncateSamples(t *testing.T) {
	p := &profile.Profile{Sample: []*profile.Sample{labelled("1"), labelled("2"), labelled("3")}}

	truncateSamples(p, 2)

	require.Len(t, p.Sample, 2)
	assert.Equal(t, []string{"2"}, p.Sample[0].Label[ThreadLabel])
	assert.Equal(t, []string{"3"}, p.Sample[1].Label[ThreadLabel])
}

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shardstore/internal/payload"
	"github.com/roach88/shardstore/internal/schema"
	"github.com/roach88/shardstore/internal/storeerr"
)

func pipelineRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Build(
		[]string{"version", "tolerance", "redshift", "wavenumber"},
		[]string{"ScalarModel", "ScalarModelValue"},
	)
	require.NoError(t, err)
	return reg
}

func pipelineRules() Rules {
	return Rules{"ScalarModel": "k_serial", "ScalarModelValue": "k_serial"}
}

func TestNew_Validation(t *testing.T) {
	reg := pipelineRegistry(t)

	tests := []struct {
		name   string
		count  int
		rules  Rules
		isErr  bool
		substr string
	}{
		{"valid", 20, pipelineRules(), false, ""},
		{"zero shards", 0, pipelineRules(), true, "shard count"},
		{"missing rule", 4, Rules{"ScalarModel": "k_serial"}, true, "no shard-key rule"},
		{"rule on replicated", 4, Rules{"ScalarModel": "k_serial", "ScalarModelValue": "k_serial", "redshift": "z"}, true, "must not have"},
		{"data column", 4, Rules{"ScalarModel": "steps", "ScalarModelValue": "k_serial"}, true, "int key column"},
		{"string column", 4, Rules{"ScalarModel": "label", "ScalarModelValue": "k_serial"}, true, "int key column"},
		{"unknown column", 4, Rules{"ScalarModel": "nope", "ScalarModelValue": "k_serial"}, true, "int key column"},
		{"unregistered type", 4, Rules{"ScalarModel": "k_serial", "ScalarModelValue": "k_serial", "LambdaCDM": "x"}, true, "unregistered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(reg, tt.count, tt.rules)
			if !tt.isErr {
				require.NoError(t, err)
				assert.Equal(t, tt.count, r.ShardCount())
				return
			}
			require.Error(t, err)
			assert.True(t, storeerr.IsConfig(err))
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestRoute_ReplicatedLeaderFirst(t *testing.T) {
	reg := pipelineRegistry(t)
	r, err := New(reg, 5, pipelineRules())
	require.NoError(t, err)

	desc, err := reg.Lookup("redshift")
	require.NoError(t, err)

	shards, err := r.Route(desc, payload.New(payload.P("z", payload.Float(1))))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, shards)
	assert.Equal(t, Leader, shards[0])

	// Callers may not corrupt the router's view
	shards[0] = 99
	assert.Equal(t, 0, r.All()[0])
}

func TestRoute_PartitionedSingleShard(t *testing.T) {
	reg := pipelineRegistry(t)
	r, err := New(reg, 20, pipelineRules())
	require.NoError(t, err)

	model, err := reg.Lookup("ScalarModel")
	require.NoError(t, err)
	value, err := reg.Lookup("ScalarModelValue")
	require.NoError(t, err)

	for k := int64(1); k <= 50; k++ {
		a, err := r.Route(model, payload.New(payload.P("k_serial", payload.Int(k))))
		require.NoError(t, err)
		require.Len(t, a, 1)

		// Values of a model live next to it
		b, err := r.Route(value, payload.New(payload.P("k_serial", payload.Int(k))))
		require.NoError(t, err)
		assert.Equal(t, a, b, "k=%d", k)
	}
}

func TestRoute_MissingKeyField(t *testing.T) {
	reg := pipelineRegistry(t)
	r, err := New(reg, 4, pipelineRules())
	require.NoError(t, err)
	model, err := reg.Lookup("ScalarModel")
	require.NoError(t, err)

	_, err = r.Route(model, payload.New(payload.P("label", payload.String("x"))))
	assert.True(t, storeerr.IsInvalidPayload(err))

	_, err = r.Route(model, payload.New(payload.P("k_serial", payload.String("3"))))
	assert.True(t, storeerr.IsInvalidPayload(err))
}

func TestShardKey_NoRuleIsConfigError(t *testing.T) {
	reg := pipelineRegistry(t)
	r, err := New(reg, 4, pipelineRules())
	require.NoError(t, err)

	// A partitioned descriptor the router was never told about
	stray, ok := schema.Builtin(schema.TagIntegrationSolver)
	require.True(t, ok)
	_, err = r.ShardKey(stray, payload.New(payload.P("stepping", payload.Int(1))))
	require.Error(t, err)
	assert.True(t, storeerr.IsConfig(err))
}

func TestPartition_Pinned(t *testing.T) {
	// Changing these values reshuffles every existing datastore.
	tests := []struct {
		key  int64
		n    int
		want int
	}{
		{0, 20, 19},
		{1, 20, 9},
		{2, 20, 0},
		{7, 20, 17},
		{42, 20, 7},
		{1000, 20, 1},
		{-1, 20, 1},
		{0, 4, 3},
		{42, 4, 3},
		{1000, 4, 1},
		{5, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Partition(tt.key, tt.n), "Partition(%d, %d)", tt.key, tt.n)
	}
}

func TestPartition_Spread(t *testing.T) {
	const n = 20
	hits := make([]int, n)
	for k := int64(1); k <= 2000; k++ {
		s := Partition(k, n)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, n)
		hits[s]++
	}
	for i, h := range hits {
		assert.Positive(t, h, "shard %d never chosen", i)
	}
}

func TestPartition_FloatKeyAccepted(t *testing.T) {
	reg := pipelineRegistry(t)
	r, err := New(reg, 20, pipelineRules())
	require.NoError(t, err)
	model, err := reg.Lookup("ScalarModel")
	require.NoError(t, err)

	// JSON decoding can hand over integral floats
	a, err := r.ShardKey(model, payload.New(payload.P("k_serial", payload.Float(42))))
	require.NoError(t, err)
	assert.Equal(t, int64(42), a)
}

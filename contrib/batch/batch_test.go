package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type revision struct {
	id       int64
	document int64
}

func TestOrderByKeys(t *testing.T) {
	values := []revision{{id: 3}, {id: 1}}
	got, errs := OrderByKeys([]int64{1, 2, 3}, values, func(r revision) int64 { return r.id })
	assert.Equal(t, []revision{{id: 1}, {}, {id: 3}}, got)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], ErrNotFound)
	assert.NoError(t, errs[2])
}

func TestGroups(t *testing.T) {
	values := []revision{{id: 1, document: 10}, {id: 2, document: 20}, {id: 3, document: 10}}
	groups := GroupByKey(values, func(r revision) int64 { return r.document })
	ordered := OrderGroupsByKeys([]int64{20, 30, 10}, groups)
	require.Len(t, ordered, 3)
	assert.Equal(t, []revision{{id: 2, document: 20}}, ordered[0])
	assert.Nil(t, ordered[1])
	assert.Equal(t, []revision{{id: 1, document: 10}, {id: 3, document: 10}}, ordered[2])
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, Unique([]int{3, 1, 3, 2, 1}))
	assert.Empty(t, Unique[int](nil))
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		keys []int
		size int
		want [][]int
	}{
		{name: "empty", keys: nil, size: 2, want: nil},
		{name: "unbounded", keys: []int{1, 2, 3}, size: 0, want: [][]int{{1, 2, 3}}},
		{name: "exact", keys: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "remainder", keys: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
		{name: "larger", keys: []int{1, 2}, size: 5, want: [][]int{{1, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunk(tt.keys, tt.size))
		})
	}
}

func TestLoad(t *testing.T) {
	double := func(_ context.Context, keys []int) ([]int, error) {
		out := make([]int, len(keys))
		for i, k := range keys {
			out[i] = k * 2
		}
		return out, nil
	}
	for _, concurrency := range []int{1, 4} {
		got, err := Load(context.Background(), []int{1, 2, 3, 4, 5}, 2, concurrency, double)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 6, 8, 10}, got)
	}

	var calls atomic.Int32
	failing := func(_ context.Context, keys []int) ([]int, error) {
		calls.Add(1)
		if keys[0] == 3 {
			return nil, errors.New("boom")
		}
		return keys, nil
	}
	_, err := Load(context.Background(), []int{1, 2, 3, 4, 5}, 2, 1, failing)
	require.EqualError(t, err, "boom")
	assert.Equal(t, int32(2), calls.Load())

	got, err := Load(context.Background(), nil, 2, 1, double)
	require.NoError(t, err)
	assert.Nil(t, got)
}

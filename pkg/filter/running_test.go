package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningAvg_AddAndGetAvg(t *testing.T) {
	f := NewRunningAvg(3)

	assert.InDelta(t, 3.0, f.AddAndGetAvg(3), 1e-9)
	assert.InDelta(t, 4.0, f.AddAndGetAvg(5), 1e-9)
	assert.InDelta(t, 5.0, f.AddAndGetAvg(7), 1e-9)

	// 第四个样本覆盖最旧的 3
	assert.InDelta(t, 7.0, f.AddAndGetAvg(9), 1e-9)
	assert.Equal(t, 3, f.Count())
}

func TestRunningAvg_Reset(t *testing.T) {
	f := NewRunningAvg(4)
	f.AddAndGetAvg(100)
	f.AddAndGetAvg(200)
	f.Reset()

	assert.Equal(t, 0, f.Count())
	assert.InDelta(t, 10.0, f.AddAndGetAvg(10), 1e-9)
}

func TestRunningAvg_ClampsSize(t *testing.T) {
	f := NewRunningAvg(0)
	assert.InDelta(t, 1.0, f.AddAndGetAvg(1), 1e-9)
	assert.InDelta(t, 2.0, f.AddAndGetAvg(2), 1e-9)
}

func TestRunningMedian_OddAndEven(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float64
		expected float64
	}{
		{"single", []float64{4}, 4},
		{"odd sorted", []float64{1, 2, 3, 4, 5}, 3},
		{"even sorted", []float64{1, 2, 3, 4}, 2.5},
		{"even unsorted", []float64{10, 1, 7, 2}, 4.5},
		{"odd with duplicates", []float64{5, 5, 1}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewRunningMedian(len(tt.samples))
			var got float64
			for _, s := range tt.samples {
				got = f.AddAndGetMedian(s)
			}
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestRunningMedian_PermutationInvariant(t *testing.T) {
	orders := [][]float64{
		{3, 9, 1, 7, 5, 2},
		{9, 7, 5, 3, 2, 1},
		{1, 2, 3, 5, 7, 9},
		{5, 1, 9, 2, 7, 3},
	}

	var results []float64
	for _, order := range orders {
		f := NewRunningMedian(len(order))
		var got float64
		for _, s := range order {
			got = f.AddAndGetMedian(s)
		}
		results = append(results, got)
	}

	require.Len(t, results, len(orders))
	for _, r := range results {
		assert.InDelta(t, 4.0, r, 1e-9)
	}
}

func TestRunningMedian_WindowOverwrite(t *testing.T) {
	f := NewRunningMedian(3)
	f.AddAndGetMedian(100)
	f.AddAndGetMedian(200)
	f.AddAndGetMedian(300)

	// 100 和 200 被挤出窗口
	f.AddAndGetMedian(1)
	got := f.AddAndGetMedian(2)

	assert.InDelta(t, 2.0, got, 1e-9)
	assert.Equal(t, 3, f.Count())
}

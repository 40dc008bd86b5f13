// Package filter 固定窗口的滑动平均与滑动中位数
package filter

import "sort"

// RunningAvg 固定窗口的滑动平均
type RunningAvg struct {
	samples []float64
	index   int
	count   int
}

// NewRunningAvg 创建滑动平均过滤器
func NewRunningAvg(size int) *RunningAvg {
	if size < 1 {
		size = 1
	}
	return &RunningAvg{samples: make([]float64, size)}
}

// AddAndGetAvg 写入一个样本并返回窗口内有效样本的平均值
func (f *RunningAvg) AddAndGetAvg(x float64) float64 {
	f.samples[f.index] = x
	f.index = (f.index + 1) % len(f.samples)
	if f.count < len(f.samples) {
		f.count++
	}

	// 窗口很小（几十个样本），每次全量扫描
	sum := 0.0
	for i := 0; i < f.count; i++ {
		sum += f.samples[i]
	}
	return sum / float64(f.count)
}

// Count 返回有效样本数
func (f *RunningAvg) Count() int {
	return f.count
}

// Reset 清空窗口
func (f *RunningAvg) Reset() {
	f.index = 0
	f.count = 0
}

// RunningMedian 固定窗口的滑动中位数
type RunningMedian struct {
	samples []float64
	scratch []float64
	index   int
	count   int
}

// NewRunningMedian 创建滑动中位数过滤器
func NewRunningMedian(size int) *RunningMedian {
	if size < 1 {
		size = 1
	}
	return &RunningMedian{
		samples: make([]float64, size),
		scratch: make([]float64, size),
	}
}

// AddAndGetMedian 写入一个样本并返回窗口内的中位数
// 偶数个样本时取中间两个值的平均
func (f *RunningMedian) AddAndGetMedian(x float64) float64 {
	f.samples[f.index] = x
	f.index = (f.index + 1) % len(f.samples)
	if f.count < len(f.samples) {
		f.count++
	}

	valid := f.scratch[:f.count]
	copy(valid, f.samples[:f.count])
	sort.Float64s(valid)

	mid := f.count / 2
	if f.count%2 == 1 {
		return valid[mid]
	}
	return (valid[mid-1] + valid[mid]) / 2
}

// Count 返回有效样本数
func (f *RunningMedian) Count() int {
	return f.count
}

// Reset 清空窗口
func (f *RunningMedian) Reset() {
	f.index = 0
	f.count = 0
}

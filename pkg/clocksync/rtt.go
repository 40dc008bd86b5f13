package clocksync

import (
	"time"

	"elympics/pkg/filter"
)

const (
	// JitterMultiplier 相邻样本比值超过该倍数视为抖动
	JitterMultiplier = 1.5

	DefaultRttWindow = 20
	DefaultLcoWindow = 20
)

// RoundTripTimeCalculator 平滑往返时延与时钟偏移
// 非线程安全，只能在模拟线程上调用
type RoundTripTimeCalculator struct {
	lastRtt time.Duration
	lastLco time.Duration

	// baseline 为抖动比较的基准 RTT，单次尖峰期间保持不变
	baseline   time.Duration
	averageRtt time.Duration
	hasAverage bool

	lastJitterUp   bool
	lastJitterDown bool

	windowRtt  time.Duration
	medianLco  time.Duration
	rttAvg     *filter.RunningAvg
	lcoMedian  *filter.RunningMedian
	sampleSeen int
}

// NewRoundTripTimeCalculator 创建计算器，窗口大小作用于滑动平均/中位数
func NewRoundTripTimeCalculator(rttWindow, lcoWindow int) *RoundTripTimeCalculator {
	if rttWindow <= 0 {
		rttWindow = DefaultRttWindow
	}
	if lcoWindow <= 0 {
		lcoWindow = DefaultLcoWindow
	}
	return &RoundTripTimeCalculator{
		rttAvg:    filter.NewRunningAvg(rttWindow),
		lcoMedian: filter.NewRunningMedian(lcoWindow),
	}
}

// OnSynchronized 处理一次同步事件
// 调用方保证 data 中含有有效的往返时延
func (c *RoundTripTimeCalculator) OnSynchronized(data SynchronizationData) {
	rtt, lco := data.Selected()

	c.sampleSeen++
	c.lastRtt = rtt
	c.lastLco = lco
	c.windowRtt = time.Duration(c.rttAvg.AddAndGetAvg(float64(rtt)))
	c.medianLco = time.Duration(c.lcoMedian.AddAndGetMedian(float64(lco)))

	c.updateAverageRtt(rtt)
}

func (c *RoundTripTimeCalculator) updateAverageRtt(rtt time.Duration) {
	if c.baseline == 0 {
		c.baseline = rtt
		return
	}

	div := float64(rtt) / float64(c.baseline)
	jitterUp := div > JitterMultiplier
	jitterDown := div < 1/JitterMultiplier

	switch {
	case (jitterUp && c.lastJitterUp) || (jitterDown && c.lastJitterDown):
		// 同方向连续两次，认为网络状况确实变化
		c.setAverage(rtt)
		c.baseline = rtt
		c.lastJitterUp, c.lastJitterDown = false, false
	case jitterUp || jitterDown:
		// 单次尖峰：平均值与基准保持不变，仅记住方向
		c.lastJitterUp, c.lastJitterDown = jitterUp, jitterDown
	default:
		if c.hasAverage {
			c.setAverage((2*c.averageRtt + rtt) / 3)
		} else {
			c.setAverage(rtt)
		}
		c.baseline = rtt
		c.lastJitterUp, c.lastJitterDown = false, false
	}
}

func (c *RoundTripTimeCalculator) setAverage(v time.Duration) {
	c.averageRtt = v
	c.hasAverage = true
}

// LastRtt 最近一次测得的往返时延
func (c *RoundTripTimeCalculator) LastRtt() time.Duration { return c.lastRtt }

// LastLco 最近一次测得的时钟偏移
func (c *RoundTripTimeCalculator) LastLco() time.Duration { return c.lastLco }

// AverageRtt 抖动感知的平均往返时延，首个样本之前为 0
func (c *RoundTripTimeCalculator) AverageRtt() time.Duration { return c.averageRtt }

// EffectiveRtt 供选帧使用的 RTT：有平均值用平均值，否则用最近一次测量
func (c *RoundTripTimeCalculator) EffectiveRtt() time.Duration {
	if !c.hasAverage {
		return c.lastRtt
	}
	return c.averageRtt
}

// HasAverage 是否已经得到过平均值
func (c *RoundTripTimeCalculator) HasAverage() bool { return c.hasAverage }

// WindowRtt 窗口内原始 RTT 的算术平均
func (c *RoundTripTimeCalculator) WindowRtt() time.Duration { return c.windowRtt }

// MedianLco 窗口内时钟偏移的中位数
func (c *RoundTripTimeCalculator) MedianLco() time.Duration { return c.medianLco }

// Samples 已处理的同步事件数
func (c *RoundTripTimeCalculator) Samples() int { return c.sampleSeen }

// Reset 对局结束时清空全部状态
func (c *RoundTripTimeCalculator) Reset() {
	c.lastRtt, c.lastLco = 0, 0
	c.baseline, c.averageRtt = 0, 0
	c.hasAverage = false
	c.lastJitterUp, c.lastJitterDown = false, false
	c.windowRtt, c.medianLco = 0, 0
	c.sampleSeen = 0
	c.rttAvg.Reset()
	c.lcoMedian.Reset()
}

// Package tick 根据 RTT 与时钟偏移选择客户端本帧要模拟的帧号
package tick

import (
	"errors"
	"math"
	"time"
)

// Config 帧率与预测参数
type Config struct {
	TicksPerSecond int
	// InputLagTicks 输入提前量，保证输入在服务器需要前到达
	InputLagTicks int
	// PredictionLimitTicks 最多领先最后收到的权威帧多少帧
	PredictionLimitTicks int
	// ForceJumpThresholdTicks 目标帧与上一帧相差超过该值时直接跳帧
	ForceJumpThresholdTicks int
	// MinSyncSamples 进入已同步状态所需的 RTT 样本数
	MinSyncSamples int
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		TicksPerSecond:          30,
		InputLagTicks:           2,
		PredictionLimitTicks:    30,
		ForceJumpThresholdTicks: 10,
		MinSyncSamples:          3,
	}
}

// TickDuration 每帧时长
func (c Config) TickDuration() time.Duration {
	return time.Second / time.Duration(c.TicksPerSecond)
}

// Validate 检查参数
func (c Config) Validate() error {
	switch {
	case c.TicksPerSecond <= 0:
		return errors.New("tick: ticks_per_second 必须为正")
	case c.InputLagTicks < 0:
		return errors.New("tick: input_lag_ticks 不能为负")
	case c.PredictionLimitTicks <= 0:
		return errors.New("tick: prediction_limit_ticks 必须为正")
	case c.ForceJumpThresholdTicks <= 0:
		return errors.New("tick: force_jump_threshold_ticks 必须为正")
	}
	return nil
}

// NetworkCondition 每帧重新计算的网络状况，只读
type NetworkCondition struct {
	TicksPerSecond          int
	PredictedExactTick      float64
	InputLagTicks           int
	PreviousTick            int64
	SelectedTick            int64
	LastReceivedTick        int64
	LcoTicks                float64
	RttTicks                float64
	ReconciliationPerformed bool
	WasTickJumpForced       bool
	// PredictionLimit 本帧允许选择的最大帧号
	PredictionLimit int64
	TicksToCatchup  int64
}

// Frame 一帧的输入条件
type Frame struct {
	Now                   time.Time
	LastReceivedTick      int64
	LastReceivedTickStart time.Time
	// InputProduced 上一个选中帧的本地输入是否已经产生
	InputProduced bool
}

// Estimate 平滑后的 RTT 与本地时钟偏移（服务器时间 - 本地时间）
type Estimate struct {
	Rtt time.Duration
	Lco time.Duration
}

// Calculator 帧号选择器，只能在模拟线程中使用
type Calculator struct {
	cfg     Config
	started bool
	last    NetworkCondition
}

// NewCalculator 创建选择器
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Calculate 计算本帧要模拟的帧号
func (c *Calculator) Calculate(f Frame, est Estimate) NetworkCondition {
	tickDur := float64(c.cfg.TickDuration())
	rttTicks := float64(est.Rtt) / tickDur
	lcoTicks := float64(est.Lco) / tickDur

	target := f.LastReceivedTick + int64(math.Ceil(rttTicks/2)) + int64(c.cfg.InputLagTicks)
	limit := f.LastReceivedTick + int64(c.cfg.PredictionLimitTicks)
	prev := c.last.SelectedTick

	cond := NetworkCondition{
		TicksPerSecond:     c.cfg.TicksPerSecond,
		PredictedExactTick: float64(f.LastReceivedTick),
		InputLagTicks:      c.cfg.InputLagTicks,
		PreviousTick:       prev,
		LastReceivedTick:   f.LastReceivedTick,
		LcoTicks:           lcoTicks,
		RttTicks:           rttTicks,
		PredictionLimit:    limit,
	}
	if !f.LastReceivedTickStart.IsZero() {
		serverNow := f.Now.Add(est.Lco)
		cond.PredictedExactTick += float64(serverNow.Sub(f.LastReceivedTickStart)) / tickDur
	}

	var selected int64
	switch {
	case !c.started:
		selected = target
	case target-prev > int64(c.cfg.ForceJumpThresholdTicks):
		selected = target
		cond.WasTickJumpForced = true
	case !f.InputProduced && prev > f.LastReceivedTick:
		// 已确认的帧之前不再等待输入
		selected = prev
	default:
		selected = prev + 1
	}
	if selected > limit {
		selected = limit
	}

	cond.SelectedTick = selected
	cond.TicksToCatchup = target - selected
	c.started = true
	c.last = cond
	return cond
}

// MarkReconciliation 标记本帧进行了校正
func (c *Calculator) MarkReconciliation() {
	c.last.ReconciliationPerformed = true
}

// Condition 最近一次计算结果
func (c *Calculator) Condition() NetworkCondition {
	return c.last
}

// Started 是否已经选择过帧号
func (c *Calculator) Started() bool {
	return c.started
}

// Reset 回到初始状态
func (c *Calculator) Reset() {
	c.started = false
	c.last = NetworkCondition{}
}

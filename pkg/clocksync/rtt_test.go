package clocksync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reliable(rtt time.Duration) SynchronizationData {
	return SynchronizationData{RoundTripDelay: rtt}
}

func TestTimestamps_NTPArithmetic(t *testing.T) {
	base := time.Unix(1000, 0)
	ts := Timestamps{
		Originate: base,
		Receive:   base.Add(70 * time.Millisecond),  // 客户端->服务器 50ms，服务器快 20ms
		Transmit:  base.Add(75 * time.Millisecond),  // 服务器处理 5ms
		Reception: base.Add(105 * time.Millisecond), // 服务器->客户端 50ms
	}

	require.True(t, ts.Valid())
	assert.Equal(t, 100*time.Millisecond, ts.RoundTripDelay())
	assert.Equal(t, 20*time.Millisecond, ts.LocalClockOffset())
}

func TestTimestamps_Invalid(t *testing.T) {
	base := time.Unix(1000, 0)
	assert.False(t, Timestamps{}.Valid())
	assert.False(t, Timestamps{
		Originate: base,
		Receive:   base,
		Transmit:  base,
		Reception: base.Add(-time.Millisecond),
	}.Valid())
}

func TestSynchronizationData_PrefersUnreliableWhenRecent(t *testing.T) {
	base := time.Unix(0, 0)
	rel := Timestamps{Originate: base, Receive: base.Add(50 * time.Millisecond), Transmit: base.Add(50 * time.Millisecond), Reception: base.Add(100 * time.Millisecond)}
	unrel := Timestamps{Originate: base, Receive: base.Add(20 * time.Millisecond), Transmit: base.Add(20 * time.Millisecond), Reception: base.Add(40 * time.Millisecond)}

	stale := FromTimestamps(rel, &unrel, false)
	rtt, _ := stale.Selected()
	assert.Equal(t, 100*time.Millisecond, rtt)

	recent := FromTimestamps(rel, &unrel, true)
	rtt, _ = recent.Selected()
	assert.Equal(t, 40*time.Millisecond, rtt)
}

func TestRoundTripTimeCalculator_FirstSampleOnlySeeds(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)
	c.OnSynchronized(reliable(100 * time.Millisecond))

	assert.False(t, c.HasAverage())
	assert.Equal(t, time.Duration(0), c.AverageRtt())
	assert.Equal(t, 100*time.Millisecond, c.LastRtt())
	assert.Equal(t, 100*time.Millisecond, c.EffectiveRtt())
}

func TestRoundTripTimeCalculator_SingleSpikeIsDebounced(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)
	c.OnSynchronized(reliable(100 * time.Millisecond))
	c.OnSynchronized(reliable(100 * time.Millisecond))
	require.Equal(t, 100*time.Millisecond, c.AverageRtt())

	// 单次尖峰：平均值不变
	c.OnSynchronized(reliable(160 * time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, c.AverageRtt())

	// 回到基线：正常混合
	c.OnSynchronized(reliable(100 * time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, c.AverageRtt())
}

func TestRoundTripTimeCalculator_ConsecutiveSpikesSnap(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)
	c.OnSynchronized(reliable(100 * time.Millisecond))
	c.OnSynchronized(reliable(100 * time.Millisecond))

	c.OnSynchronized(reliable(160 * time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, c.AverageRtt())

	c.OnSynchronized(reliable(170 * time.Millisecond))
	assert.Equal(t, 170*time.Millisecond, c.AverageRtt())
}

func TestRoundTripTimeCalculator_SpikesRightAfterSeed(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)

	// 第一个样本只作为基准
	c.OnSynchronized(reliable(100 * time.Millisecond))
	assert.False(t, c.HasAverage())
	assert.Zero(t, c.AverageRtt())

	c.OnSynchronized(reliable(160 * time.Millisecond))
	assert.False(t, c.HasAverage())
	assert.Zero(t, c.AverageRtt())

	c.OnSynchronized(reliable(170 * time.Millisecond))
	assert.True(t, c.HasAverage())
	assert.Equal(t, 170*time.Millisecond, c.AverageRtt())
}

func TestRoundTripTimeCalculator_ConsecutiveDropsSnap(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)
	c.OnSynchronized(reliable(300 * time.Millisecond))
	c.OnSynchronized(reliable(300 * time.Millisecond))

	c.OnSynchronized(reliable(100 * time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, c.AverageRtt())

	c.OnSynchronized(reliable(90 * time.Millisecond))
	assert.Equal(t, 90*time.Millisecond, c.AverageRtt())
}

func TestRoundTripTimeCalculator_BlendsWithoutJitter(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)
	c.OnSynchronized(reliable(90 * time.Millisecond))
	c.OnSynchronized(reliable(90 * time.Millisecond))
	c.OnSynchronized(reliable(120 * time.Millisecond))

	// (2*90 + 120) / 3 = 100
	assert.Equal(t, 100*time.Millisecond, c.AverageRtt())
	// 窗口平均 (90+90+120)/3
	assert.Equal(t, 100*time.Millisecond, c.WindowRtt())
}

func TestRoundTripTimeCalculator_MedianLco(t *testing.T) {
	c := NewRoundTripTimeCalculator(8, 3)
	for _, lco := range []time.Duration{10, 500, 20} {
		c.OnSynchronized(SynchronizationData{RoundTripDelay: 50 * time.Millisecond, LocalClockOffset: lco * time.Millisecond})
	}

	assert.Equal(t, 20*time.Millisecond, c.MedianLco())
	assert.Equal(t, 20*time.Millisecond, c.LastLco())
	assert.Equal(t, 3, c.Samples())
}

func TestRoundTripTimeCalculator_Reset(t *testing.T) {
	c := NewRoundTripTimeCalculator(4, 4)
	c.OnSynchronized(reliable(100 * time.Millisecond))
	c.OnSynchronized(reliable(100 * time.Millisecond))
	c.Reset()

	assert.Equal(t, 0, c.Samples())
	assert.False(t, c.HasAverage())

	c.OnSynchronized(reliable(40 * time.Millisecond))
	assert.False(t, c.HasAverage(), "reset 后首个样本重新作为基准")
}

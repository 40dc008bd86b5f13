// Package clocksync 根据 NTP 风格的时间戳交换估算往返时延与本地时钟偏移
package clocksync

import "time"

// Timestamps 一次 ping/pong 交换中的四个时间戳
// Originate 客户端发送, Receive 服务器接收, Transmit 服务器回复, Reception 客户端接收
type Timestamps struct {
	Originate time.Time
	Receive   time.Time
	Transmit  time.Time
	Reception time.Time
}

// RoundTripDelay 往返时延（扣除服务器处理时间）
func (ts Timestamps) RoundTripDelay() time.Duration {
	return ts.Receive.Sub(ts.Originate) + ts.Reception.Sub(ts.Transmit)
}

// LocalClockOffset 服务器时钟相对本地时钟的偏移，正值表示服务器更快
func (ts Timestamps) LocalClockOffset() time.Duration {
	return (ts.Receive.Sub(ts.Originate) + ts.Transmit.Sub(ts.Reception)) / 2
}

// Valid 四个时间戳都已填写且客户端侧单调
func (ts Timestamps) Valid() bool {
	if ts.Originate.IsZero() || ts.Receive.IsZero() || ts.Transmit.IsZero() || ts.Reception.IsZero() {
		return false
	}
	return !ts.Reception.Before(ts.Originate) && !ts.Transmit.Before(ts.Receive)
}

// SynchronizationData 一次同步事件的派生结果
type SynchronizationData struct {
	RoundTripDelay   time.Duration
	LocalClockOffset time.Duration

	// 不可靠通道最近收到过 ping 时优先使用其测量值
	UnreliableReceivedPingLately bool
	UnreliableRoundTripDelay     time.Duration
	UnreliableLocalClockOffset   time.Duration
}

// FromTimestamps 由可靠通道（以及可选的不可靠通道）的时间戳生成同步数据
func FromTimestamps(reliable Timestamps, unreliable *Timestamps, receivedLately bool) SynchronizationData {
	data := SynchronizationData{
		RoundTripDelay:   reliable.RoundTripDelay(),
		LocalClockOffset: reliable.LocalClockOffset(),
	}
	if unreliable != nil {
		data.UnreliableReceivedPingLately = receivedLately
		data.UnreliableRoundTripDelay = unreliable.RoundTripDelay()
		data.UnreliableLocalClockOffset = unreliable.LocalClockOffset()
	}
	return data
}

// Selected 返回本次应使用的往返时延与时钟偏移
func (d SynchronizationData) Selected() (rtt, lco time.Duration) {
	if d.UnreliableReceivedPingLately {
		return d.UnreliableRoundTripDelay, d.UnreliableLocalClockOffset
	}
	return d.RoundTripDelay, d.LocalClockOffset
}

// Package ringbuffer 按帧号寻址的定长滑动窗口
//
// 窗口为 [MinTick, MinTick+Capacity-1]，槽位为 tick mod Capacity。
// 写入比窗口更新的帧会推动窗口前移，早于 MinTick 的写入被拒绝。
// 非线程安全，只能在模拟线程上使用。
package ringbuffer

// Ticked 可放入缓冲区的数据
type Ticked interface {
	GetTick() int64
}

type slot[T Ticked] struct {
	item T
	used bool
}

// RingBuffer 按帧号寻址的环形缓冲
type RingBuffer[T Ticked] struct {
	slots   []slot[T]
	minTick int64
	count   int
}

// New 创建容量为 capacity 的缓冲，窗口起点为 0
func New[T Ticked](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{slots: make([]slot[T], capacity)}
}

// Capacity 容量
func (b *RingBuffer[T]) Capacity() int {
	return len(b.slots)
}

// MinTick 窗口中最小的帧号
func (b *RingBuffer[T]) MinTick() int64 {
	return b.minTick
}

// MaxTick 窗口中最大的帧号
func (b *RingBuffer[T]) MaxTick() int64 {
	return b.minTick + int64(len(b.slots)) - 1
}

// Count 已填充的槽位数
func (b *RingBuffer[T]) Count() int {
	return b.count
}

func (b *RingBuffer[T]) index(tick int64) int {
	n := int64(len(b.slots))
	return int(((tick % n) + n) % n)
}

// TryAddData 写入数据，帧号早于 MinTick 时返回 false
func (b *RingBuffer[T]) TryAddData(item T) bool {
	tick := item.GetTick()
	if tick < b.minTick {
		return false
	}
	if tick > b.MaxTick() {
		b.UpdateMinTick(tick - int64(len(b.slots)) + 1)
	}

	s := &b.slots[b.index(tick)]
	if !s.used {
		b.count++
	}
	s.item = item
	s.used = true
	return true
}

// TryGetData 读取指定帧的数据
func (b *RingBuffer[T]) TryGetData(tick int64) (T, bool) {
	var zero T
	if tick < b.minTick || tick > b.MaxTick() {
		return zero, false
	}
	s := b.slots[b.index(tick)]
	if !s.used || s.item.GetTick() != tick {
		return zero, false
	}
	return s.item, true
}

// Contains 指定帧是否有数据
func (b *RingBuffer[T]) Contains(tick int64) bool {
	_, ok := b.TryGetData(tick)
	return ok
}

// GetInputListNonAlloc 从 MinTick 开始按帧序复制连续的数据到 dst
// 遇到空槽、窗口末尾或 dst 写满时停止，返回复制的条数
func (b *RingBuffer[T]) GetInputListNonAlloc(dst []T) int {
	n := 0
	for tick := b.minTick; tick <= b.MaxTick() && n < len(dst); tick++ {
		item, ok := b.TryGetData(tick)
		if !ok {
			break
		}
		dst[n] = item
		n++
	}
	return n
}

// UpdateMinTick 推进窗口起点，淘汰早于 newMinTick 的数据
// 新起点超出整个旧窗口时直接清空
func (b *RingBuffer[T]) UpdateMinTick(newMinTick int64) {
	if newMinTick <= b.minTick {
		return
	}
	if newMinTick > b.MaxTick() {
		b.clearSlots()
		b.minTick = newMinTick
		return
	}
	for tick := b.minTick; tick < newMinTick; tick++ {
		b.evict(tick)
	}
	b.minTick = newMinTick
}

// LatestTick 已填充数据中最大的帧号
func (b *RingBuffer[T]) LatestTick() (int64, bool) {
	for tick := b.MaxTick(); tick >= b.minTick; tick-- {
		if b.Contains(tick) {
			return tick, true
		}
	}
	return 0, false
}

// Clear 清空数据，窗口起点不变
func (b *RingBuffer[T]) Clear() {
	b.clearSlots()
}

func (b *RingBuffer[T]) evict(tick int64) {
	s := &b.slots[b.index(tick)]
	if !s.used {
		return
	}
	var zero T
	s.item = zero
	s.used = false
	b.count--
}

func (b *RingBuffer[T]) clearSlots() {
	for i := range b.slots {
		b.slots[i] = slot[T]{}
	}
	b.count = 0
}

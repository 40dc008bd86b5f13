// Package snapshot 权威状态快照：按对象 ID 排序的状态块、工厂状态与输入回显
package snapshot

import (
	"bytes"
	"sort"
	"time"

	"elympics/pkg/input"
)

// ObjectState 单个同步对象在某帧的序列化状态
// State 发布后视为不可变，多个快照可共享同一块内存
type ObjectState struct {
	ObjectID int32
	State    []byte
}

// FactoryPart 某个玩家工厂的动态对象描述
type FactoryPart struct {
	Player int32
	Data   []byte
}

// FactoryState 动态生成/销毁对象的生命周期信息
type FactoryState struct {
	Parts []FactoryPart
}

// Find 查找玩家的工厂数据
func (f FactoryState) Find(player int32) ([]byte, bool) {
	for _, p := range f.Parts {
		if p.Player == player {
			return p.Data, true
		}
	}
	return nil, false
}

// TickPlayerInputs 某一帧各玩家的输入回显
type TickPlayerInputs struct {
	Inputs map[int32]input.Input
}

// Snapshot 某一帧的权威状态
// Data 按 ObjectID 升序，精简快照会省略未变化的对象
type Snapshot struct {
	Tick                   int64
	TickStartUtc           time.Time
	Factory                FactoryState
	Data                   []ObjectState
	TickToPlayersInputData map[int64]TickPlayerInputs
}

// New 创建空快照
func New(tick int64) *Snapshot {
	return &Snapshot{Tick: tick}
}

// GetTick 实现 ringbuffer.Ticked
func (s *Snapshot) GetTick() int64 {
	return s.Tick
}

// DeepCopyFrom 复制 other 的全部字段
// 列表与映射是新分配的，状态块按引用共享
func (s *Snapshot) DeepCopyFrom(other *Snapshot) {
	s.Tick = other.Tick
	s.TickStartUtc = other.TickStartUtc
	s.Factory.Parts = append([]FactoryPart(nil), other.Factory.Parts...)
	s.Data = append([]ObjectState(nil), other.Data...)

	s.TickToPlayersInputData = nil
	if other.TickToPlayersInputData != nil {
		s.TickToPlayersInputData = make(map[int64]TickPlayerInputs, len(other.TickToPlayersInputData))
		for tick, tpi := range other.TickToPlayersInputData {
			inputs := make(map[int32]input.Input, len(tpi.Inputs))
			for player, in := range tpi.Inputs {
				inputs[player] = in
			}
			s.TickToPlayersInputData[tick] = TickPlayerInputs{Inputs: inputs}
		}
	}
}

// Clone 返回副本
func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{}
	c.DeepCopyFrom(s)
	return c
}

// FillMissingFrom 把 source 中本快照缺失的对象追加进来，重叠的对象以本快照为准
// 两边 Data 都必须有序；追加后不再保证有序，需要时调用 SortData
func (s *Snapshot) FillMissingFrom(source *Snapshot) {
	originalCount := len(s.Data)
	minIndex := 0
	for _, src := range source.Data {
		i := minIndex
		for i < originalCount && s.Data[i].ObjectID < src.ObjectID {
			i++
		}
		minIndex = i
		if i < originalCount && s.Data[i].ObjectID == src.ObjectID {
			minIndex = i + 1
			continue
		}
		s.Data = append(s.Data, src)
	}
}

// SortData 按 ObjectID 排序
func (s *Snapshot) SortData() {
	sort.SliceStable(s.Data, func(i, j int) bool { return s.Data[i].ObjectID < s.Data[j].ObjectID })
}

// Find 查找对象状态
func (s *Snapshot) Find(objectID int32) ([]byte, bool) {
	for _, d := range s.Data {
		if d.ObjectID == objectID {
			return d.State, true
		}
	}
	return nil, false
}

// Reduce 生成相对 previous 的精简快照：省略状态与 previous 相同的对象
// previous 为 nil 时返回完整副本
func (s *Snapshot) Reduce(previous *Snapshot) *Snapshot {
	out := s.Clone()
	if previous == nil {
		return out
	}
	out.Data = out.Data[:0]
	j := 0
	for _, d := range s.Data {
		for j < len(previous.Data) && previous.Data[j].ObjectID < d.ObjectID {
			j++
		}
		if j < len(previous.Data) && previous.Data[j].ObjectID == d.ObjectID && bytes.Equal(previous.Data[j].State, d.State) {
			continue
		}
		out.Data = append(out.Data, d)
	}
	return out
}

// IDs 快照内的对象 ID
func (s *Snapshot) IDs() []int32 {
	ids := make([]int32, len(s.Data))
	for i, d := range s.Data {
		ids[i] = d.ObjectID
	}
	return ids
}

// AddInputEcho 记录某帧某玩家的输入回显
func (s *Snapshot) AddInputEcho(in input.Input) {
	if s.TickToPlayersInputData == nil {
		s.TickToPlayersInputData = make(map[int64]TickPlayerInputs)
	}
	tpi, ok := s.TickToPlayersInputData[in.Tick]
	if !ok {
		tpi = TickPlayerInputs{Inputs: make(map[int32]input.Input)}
		s.TickToPlayersInputData[in.Tick] = tpi
	}
	tpi.Inputs[in.Player] = in
}

// InputEcho 查找某帧某玩家的输入回显
func (s *Snapshot) InputEcho(tick int64, player int32) (input.Input, bool) {
	tpi, ok := s.TickToPlayersInputData[tick]
	if !ok {
		return input.Input{}, false
	}
	in, ok := tpi.Inputs[player]
	return in, ok
}

// Equal 比较两个快照的全部内容（Data 按顺序比较）
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s.Tick != other.Tick || !s.TickStartUtc.Equal(other.TickStartUtc) {
		return false
	}
	if len(s.Factory.Parts) != len(other.Factory.Parts) || len(s.Data) != len(other.Data) {
		return false
	}
	for i, p := range s.Factory.Parts {
		q := other.Factory.Parts[i]
		if p.Player != q.Player || !bytes.Equal(p.Data, q.Data) {
			return false
		}
	}
	for i, d := range s.Data {
		e := other.Data[i]
		if d.ObjectID != e.ObjectID || !bytes.Equal(d.State, e.State) {
			return false
		}
	}
	if len(s.TickToPlayersInputData) != len(other.TickToPlayersInputData) {
		return false
	}
	for tick, tpi := range s.TickToPlayersInputData {
		otpi, ok := other.TickToPlayersInputData[tick]
		if !ok || len(tpi.Inputs) != len(otpi.Inputs) {
			return false
		}
		for player, in := range tpi.Inputs {
			oin, ok := otpi.Inputs[player]
			if !ok || !bytes.Equal(input.EncodeInput(in), input.EncodeInput(oin)) {
				return false
			}
		}
	}
	return true
}

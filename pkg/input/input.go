// Package input 每帧玩家输入、RPC 队列及其二进制编码
package input

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/wire"
)

// ErrTruncated 数据不完整
var ErrTruncated = wire.ErrTruncated

// ObjectInput 单个同步对象的输入
type ObjectInput struct {
	ObjectID int32
	Payload  []byte
}

// Input 某个玩家在某一帧的输入
// 序列化之后视为不可变
type Input struct {
	Tick   int64
	Player int32
	Data   []ObjectInput
}

// GetTick 实现 ringbuffer.Ticked
func (in Input) GetTick() int64 {
	return in.Tick
}

// Find 查找指定对象的输入
func (in Input) Find(objectID int32) ([]byte, bool) {
	for _, d := range in.Data {
		if d.ObjectID == objectID {
			return d.Payload, true
		}
	}
	return nil, false
}

// WithTick 返回帧号替换后的副本，Data 共享
func (in Input) WithTick(tick int64) Input {
	in.Tick = tick
	return in
}

// AppendInput 按 tick:int64, player:int32, 计数前缀的 (int32, bytes) 列表编码
func AppendInput(b []byte, in Input) []byte {
	b = protowire.AppendFixed64(b, uint64(in.Tick))
	b = protowire.AppendFixed32(b, uint32(in.Player))
	b = protowire.AppendVarint(b, uint64(len(in.Data)))
	for _, d := range in.Data {
		b = protowire.AppendFixed32(b, uint32(d.ObjectID))
		b = protowire.AppendBytes(b, d.Payload)
	}
	return b
}

// EncodeInput 编码单个输入
func EncodeInput(in Input) []byte {
	return AppendInput(nil, in)
}

// ReadInput 从 r 中读取一个输入
func ReadInput(r *wire.Reader) (Input, error) {
	var in Input
	in.Tick = int64(r.Fixed64())
	in.Player = int32(r.Fixed32())
	count := r.Count()
	if r.Err() != nil {
		return Input{}, r.Err()
	}

	in.Data = make([]ObjectInput, 0, count)
	for i := 0; i < count; i++ {
		id := int32(r.Fixed32())
		payload := r.Bytes()
		if r.Err() != nil {
			return Input{}, r.Err()
		}
		in.Data = append(in.Data, ObjectInput{ObjectID: id, Payload: payload})
	}
	return in, nil
}

// DecodeInput 解码单个输入，要求恰好消耗全部数据
func DecodeInput(b []byte) (Input, error) {
	r := wire.NewReader(b)
	in, err := ReadInput(r)
	if err != nil {
		return Input{}, err
	}
	if err := r.Done(); err != nil {
		return Input{}, fmt.Errorf("input: %w", err)
	}
	return in, nil
}

// SortByPlayer 按玩家排序
func SortByPlayer(inputs []Input) {
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Player < inputs[j].Player })
}

package input

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/wire"
)

// TickPackage 一帧内所有玩家的输入与 RPC
type TickPackage struct {
	Tick   int64
	Inputs []Input
	Rpcs   []RpcMessage
}

// NewTickPackage 创建空的帧数据包
func NewTickPackage(tick int64) *TickPackage {
	return &TickPackage{Tick: tick}
}

// GetTick 实现 ringbuffer.Ticked
func (p *TickPackage) GetTick() int64 {
	return p.Tick
}

// Merge 合并一个玩家的输入，同一玩家保留最后一次，按玩家有序
// 帧号不一致时返回 false
func (p *TickPackage) Merge(in Input) bool {
	if in.Tick != p.Tick {
		return false
	}
	i := sort.Search(len(p.Inputs), func(i int) bool { return p.Inputs[i].Player >= in.Player })
	if i < len(p.Inputs) && p.Inputs[i].Player == in.Player {
		p.Inputs[i] = in
		return true
	}
	p.Inputs = append(p.Inputs, Input{})
	copy(p.Inputs[i+1:], p.Inputs[i:])
	p.Inputs[i] = in
	return true
}

// InputFor 查找玩家的输入
func (p *TickPackage) InputFor(player int32) (Input, bool) {
	for _, in := range p.Inputs {
		if in.Player == player {
			return in, true
		}
	}
	return Input{}, false
}

// AddRpcs 追加 RPC
func (p *TickPackage) AddRpcs(msgs []RpcMessage) {
	p.Rpcs = append(p.Rpcs, msgs...)
}

// EncodeTickPackage 编码帧数据包
func EncodeTickPackage(p *TickPackage) []byte {
	b := protowire.AppendFixed64(nil, uint64(p.Tick))
	return appendInputsAndRpcs(b, p.Inputs, p.Rpcs)
}

// DecodeTickPackage 解码帧数据包
func DecodeTickPackage(b []byte) (*TickPackage, error) {
	r := wire.NewReader(b)
	p := &TickPackage{Tick: int64(r.Fixed64())}
	if r.Err() != nil {
		return nil, r.Err()
	}
	inputs, rpcs, err := readInputsAndRpcs(r)
	if err != nil {
		return nil, err
	}
	p.Inputs, p.Rpcs = inputs, rpcs
	return p, nil
}

// Batch 客户端上行数据：最近若干帧的本地输入（冗余发送）与本帧刷出的 RPC
type Batch struct {
	Inputs []Input
	Rpcs   []RpcMessage
}

// EncodeBatch 编码上行数据
func EncodeBatch(b Batch) []byte {
	return appendInputsAndRpcs(nil, b.Inputs, b.Rpcs)
}

// DecodeBatch 解码上行数据
func DecodeBatch(data []byte) (Batch, error) {
	inputs, rpcs, err := readInputsAndRpcs(wire.NewReader(data))
	if err != nil {
		return Batch{}, err
	}
	return Batch{Inputs: inputs, Rpcs: rpcs}, nil
}

func appendInputsAndRpcs(b []byte, inputs []Input, rpcs []RpcMessage) []byte {
	b = protowire.AppendVarint(b, uint64(len(inputs)))
	for _, in := range inputs {
		b = protowire.AppendBytes(b, EncodeInput(in))
	}
	b = protowire.AppendVarint(b, uint64(len(rpcs)))
	for _, m := range rpcs {
		b = AppendRpc(b, m)
	}
	return b
}

func readInputsAndRpcs(r *wire.Reader) ([]Input, []RpcMessage, error) {
	n := r.Count()
	if r.Err() != nil {
		return nil, nil, r.Err()
	}
	inputs := make([]Input, 0, n)
	for i := 0; i < n; i++ {
		raw := r.BytesView()
		if r.Err() != nil {
			return nil, nil, r.Err()
		}
		in, err := DecodeInput(raw)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, in)
	}

	m := r.Count()
	var rpcs []RpcMessage
	for i := 0; i < m; i++ {
		rpcs = append(rpcs, ReadRpc(r))
	}
	if err := r.Done(); err != nil {
		return nil, nil, fmt.Errorf("input: %w", err)
	}
	return inputs, rpcs, nil
}

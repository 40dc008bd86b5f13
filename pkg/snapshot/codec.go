package snapshot

import (
	"fmt"
	"sort"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/input"
	"elympics/pkg/wire"
)

// ErrTruncated 数据不完整
var ErrTruncated = wire.ErrTruncated

// Encode 编码快照
// 布局：tick, unix 纳秒, 工厂部件列表, 对象状态列表, 输入回显（按帧号、玩家排序）
func Encode(s *Snapshot) []byte {
	return Append(nil, s)
}

// Append 把快照编码追加到 b
func Append(b []byte, s *Snapshot) []byte {
	b = protowire.AppendFixed64(b, uint64(s.Tick))
	var nanos int64
	if !s.TickStartUtc.IsZero() {
		nanos = s.TickStartUtc.UnixNano()
	}
	b = protowire.AppendFixed64(b, uint64(nanos))

	b = protowire.AppendVarint(b, uint64(len(s.Factory.Parts)))
	for _, p := range s.Factory.Parts {
		b = protowire.AppendFixed32(b, uint32(p.Player))
		b = protowire.AppendBytes(b, p.Data)
	}

	b = protowire.AppendVarint(b, uint64(len(s.Data)))
	for _, d := range s.Data {
		b = protowire.AppendFixed32(b, uint32(d.ObjectID))
		b = protowire.AppendBytes(b, d.State)
	}

	ticks := make([]int64, 0, len(s.TickToPlayersInputData))
	for t := range s.TickToPlayersInputData {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	b = protowire.AppendVarint(b, uint64(len(ticks)))
	for _, t := range ticks {
		inputs := s.TickToPlayersInputData[t].Inputs
		players := make([]int32, 0, len(inputs))
		for p := range inputs {
			players = append(players, p)
		}
		sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })

		b = protowire.AppendFixed64(b, uint64(t))
		b = protowire.AppendVarint(b, uint64(len(players)))
		for _, p := range players {
			b = protowire.AppendBytes(b, input.EncodeInput(inputs[p]))
		}
	}
	return b
}

// Decode 解码快照，要求恰好消耗全部数据
func Decode(b []byte) (*Snapshot, error) {
	r := wire.NewReader(b)
	s, err := Read(r)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return s, nil
}

// Read 从 r 中读取一个快照
func Read(r *wire.Reader) (*Snapshot, error) {
	s := &Snapshot{Tick: int64(r.Fixed64())}
	if nanos := int64(r.Fixed64()); nanos != 0 {
		s.TickStartUtc = time.Unix(0, nanos).UTC()
	}

	if n := r.Count(); n > 0 {
		s.Factory.Parts = make([]FactoryPart, 0, n)
		for i := 0; i < n; i++ {
			player := int32(r.Fixed32())
			data := r.Bytes()
			s.Factory.Parts = append(s.Factory.Parts, FactoryPart{Player: player, Data: data})
		}
	}

	if n := r.Count(); n > 0 {
		s.Data = make([]ObjectState, 0, n)
		for i := 0; i < n; i++ {
			id := int32(r.Fixed32())
			state := r.Bytes()
			s.Data = append(s.Data, ObjectState{ObjectID: id, State: state})
		}
	}

	ticks := r.Count()
	for i := 0; i < ticks; i++ {
		t := int64(r.Fixed64())
		players := r.Count()
		if r.Err() != nil {
			break
		}
		tpi := TickPlayerInputs{Inputs: make(map[int32]input.Input, players)}
		for j := 0; j < players; j++ {
			raw := r.BytesView()
			if r.Err() != nil {
				break
			}
			in, err := input.DecodeInput(raw)
			if err != nil {
				return nil, fmt.Errorf("snapshot: 帧 %d 输入回显: %w", t, err)
			}
			tpi.Inputs[in.Player] = in
		}
		if s.TickToPlayersInputData == nil {
			s.TickToPlayersInputData = make(map[int64]TickPlayerInputs, ticks)
		}
		s.TickToPlayersInputData[t] = tpi
	}

	if r.Err() != nil {
		return nil, fmt.Errorf("snapshot: %w", r.Err())
	}
	return s, nil
}

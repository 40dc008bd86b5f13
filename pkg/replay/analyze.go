package replay

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"time"
)

// Gap 回放中缺失的帧区间 [From, To]
type Gap struct {
	From int64
	To   int64
}

// Summary 回放统计
type Summary struct {
	Init      InitData
	Snapshots int
	FirstTick int64
	LastTick  int64
	Gaps      []Gap
	// ObjectChanges 每个对象状态发生变化的次数（首次出现计一次）
	ObjectChanges map[int32]int
	// PlayerInputs 每个玩家回显的输入帧数
	PlayerInputs map[int32]int
}

// Duration 按帧率换算的对局时长
func (s Summary) Duration() time.Duration {
	if s.Snapshots == 0 || s.Init.TicksPerSecond <= 0 {
		return 0
	}
	ticks := s.LastTick - s.FirstTick + 1
	return time.Duration(ticks) * time.Second / time.Duration(s.Init.TicksPerSecond)
}

// Analyze 读完整个回放并统计
func Analyze(r *Reader) (Summary, error) {
	init, err := r.Init()
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Init:          init,
		ObjectChanges: make(map[int32]int),
		PlayerInputs:  make(map[int32]int),
	}

	lastState := make(map[int32][]byte)
	lastInputTick := make(map[int32]int64)
	for {
		s, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}

		if sum.Snapshots == 0 {
			sum.FirstTick = s.Tick
		} else if s.Tick > sum.LastTick+1 {
			sum.Gaps = append(sum.Gaps, Gap{From: sum.LastTick + 1, To: s.Tick - 1})
		}
		sum.LastTick = s.Tick
		sum.Snapshots++

		for _, d := range s.Data {
			prev, seen := lastState[d.ObjectID]
			if !seen || !bytes.Equal(prev, d.State) {
				sum.ObjectChanges[d.ObjectID]++
				lastState[d.ObjectID] = d.State
			}
		}
		ticks := make([]int64, 0, len(s.TickToPlayersInputData))
		for tick := range s.TickToPlayersInputData {
			ticks = append(ticks, tick)
		}
		sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
		for _, tick := range ticks {
			for player := range s.TickToPlayersInputData[tick].Inputs {
				if last, ok := lastInputTick[player]; ok && tick <= last {
					continue
				}
				lastInputTick[player] = tick
				sum.PlayerInputs[player]++
			}
		}
	}
	return sum, nil
}

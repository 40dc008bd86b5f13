package client

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"elympics/internal/config"
	"elympics/internal/logging"
	"elympics/pkg/clocksync"
	"elympics/pkg/core"
	"elympics/pkg/input"
	"elympics/pkg/ringbuffer"
	"elympics/pkg/snapshot"
	"elympics/pkg/tick"
)

// Uplink 上行输入通道
type Uplink interface {
	SendBatch(batch input.Batch) error
}

// InputSource 为本地玩家产生某一帧的操作
type InputSource func(tick int64) core.Command

// Stats 模拟统计
type Stats struct {
	Frames           int
	SimulatedTicks   int
	Mispredictions   int
	Reconciliations  int
	ForcedJumps      int
	DesyncErrors     int
	DroppedSnapshots int
}

// Simulation 客户端单线程模拟循环：对时、选帧、预测与校正
type Simulation struct {
	cfg    config.Client
	log    *logrus.Entry
	player int32
	game   *core.Game
	source InputSource
	uplink Uplink

	rtt  *clocksync.RoundTripTimeCalculator
	sync *tick.Synchronizer
	calc *tick.Calculator

	received  *ringbuffer.RingBuffer[*snapshot.Snapshot]
	predicted *ringbuffer.RingBuffer[*snapshot.Snapshot]
	inputs    *ringbuffer.RingBuffer[input.Input]
	history   []input.Input
	rpcs      input.RpcQueue

	lastReceived *snapshot.Snapshot
	lastEcho     map[int32]input.Input
	checkedTick  int64
	simTick      int64
	simulating   bool

	stats Stats
}

// NewSimulation 创建模拟循环，tps 取自服务器的加入响应
func NewSimulation(cfg config.Client, tps int, player int32, source InputSource, uplink Uplink) (*Simulation, error) {
	tcfg := tick.Config{
		TicksPerSecond:          tps,
		InputLagTicks:           cfg.InputLagTicks,
		PredictionLimitTicks:    cfg.PredictionLimitTicks,
		ForceJumpThresholdTicks: cfg.ForceJumpThresholdTicks,
		MinSyncSamples:          cfg.MinSyncSamples,
	}
	if err := tcfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BufferCapacity <= cfg.PredictionLimitTicks {
		return nil, fmt.Errorf("buffer_capacity (%d) 必须大于 prediction_limit_ticks (%d)", cfg.BufferCapacity, cfg.PredictionLimitTicks)
	}
	if source == nil {
		source = func(int64) core.Command { return core.Command{} }
	}

	s := &Simulation{
		cfg:       cfg,
		log:       logging.Component("simulation").WithField("player", player),
		player:    player,
		game:      core.NewGame(),
		source:    source,
		uplink:    uplink,
		rtt:       clocksync.NewRoundTripTimeCalculator(cfg.RttWindow, cfg.LcoWindow),
		sync:      tick.NewSynchronizer(cfg.MinSyncSamples),
		calc:      tick.NewCalculator(tcfg),
		received:  ringbuffer.New[*snapshot.Snapshot](cfg.BufferCapacity),
		predicted: ringbuffer.New[*snapshot.Snapshot](cfg.BufferCapacity),
		inputs:    ringbuffer.New[input.Input](cfg.BufferCapacity),
		history:   make([]input.Input, cfg.BufferCapacity),
		lastEcho:  make(map[int32]input.Input),
	}
	if err := s.sync.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

// Game 本地预测的游戏状态
func (s *Simulation) Game() *core.Game { return s.game }

// Stats 统计
func (s *Simulation) Stats() Stats { return s.stats }

// State 同步状态
func (s *Simulation) State() tick.SyncState { return s.sync.State() }

// SimTick 本地已模拟到的帧号
func (s *Simulation) SimTick() int64 { return s.simTick }

// Condition 最近一帧的网络状况
func (s *Simulation) Condition() tick.NetworkCondition { return s.calc.Condition() }

// Rtt 平滑后的往返时延
func (s *Simulation) Rtt() time.Duration { return s.rtt.EffectiveRtt() }

// LastReceived 最近一次收到的权威快照
func (s *Simulation) LastReceived() *snapshot.Snapshot { return s.lastReceived }

// Predicted 本地在 tick 帧结束时的预测状态
func (s *Simulation) Predicted(t int64) (*snapshot.Snapshot, bool) {
	return s.predicted.TryGetData(t)
}

// QueueRpc 排队一次 RPC，随下一个输入包发出
func (s *Simulation) QueueRpc(m input.RpcMessage) {
	s.rpcs.Enqueue(m.NetworkID, m.MethodID, m.Args)
}

// Disconnect 连接断开
func (s *Simulation) Disconnect() {
	s.sync.Disconnect()
}

// Frame 执行一帧：处理对时样本与快照，选帧、校正、预测并发送输入
func (s *Simulation) Frame(now time.Time, snaps []ReceivedSnapshot, pongs []PongSample) tick.NetworkCondition {
	s.stats.Frames++

	for _, p := range pongs {
		s.onPong(p)
	}
	for _, rs := range snaps {
		s.store(rs)
	}

	if !s.sync.Ready() || s.lastReceived == nil {
		return s.calc.Condition()
	}

	// 上一次选中的帧已有本地输入才继续前进，被预测上限截断时同样成立
	produced := s.inputs.Contains(s.calc.Condition().SelectedTick)
	cond := s.calc.Calculate(tick.Frame{
		Now:                   now,
		LastReceivedTick:      s.lastReceived.Tick,
		LastReceivedTickStart: s.lastReceived.TickStartUtc,
		InputProduced:         produced,
	}, tick.Estimate{Rtt: s.rtt.EffectiveRtt(), Lco: s.rtt.MedianLco()})

	switch {
	case !s.simulating || cond.WasTickJumpForced || s.simTick < s.lastReceived.Tick:
		if cond.WasTickJumpForced {
			s.stats.ForcedJumps++
			s.log.WithFields(logrus.Fields{
				"from": cond.PreviousTick,
				"to":   cond.SelectedTick,
			}).Debug("帧号跳变")
		}
		s.rewind(s.lastReceived, max(cond.SelectedTick-1, s.lastReceived.Tick))
	case s.checkPrediction():
		s.reconcile()
		cond = s.calc.Condition()
	}

	if cond.SelectedTick > s.simTick {
		for t := s.simTick + 1; t <= cond.SelectedTick; t++ {
			in := s.produceInput(t)
			s.simulateTick(t, &in)
		}
		s.sendInputs()
	}

	s.predicted.UpdateMinTick(s.lastReceived.Tick)
	return cond
}

func (s *Simulation) onPong(p PongSample) {
	if !p.Timestamps.Valid() {
		return
	}
	s.rtt.OnSynchronized(clocksync.FromTimestamps(p.Timestamps, nil, false))
	if s.sync.OnSample(s.rtt.Samples()) {
		s.log.WithFields(logrus.Fields{
			"rtt": s.rtt.EffectiveRtt(),
			"lco": s.rtt.MedianLco(),
		}).Info("时钟同步完成")
	}
}

// store 保存权威快照，精简快照用上一帧补全
func (s *Simulation) store(rs ReceivedSnapshot) {
	snap := rs.Snapshot
	if latest, ok := s.received.LatestTick(); ok && snap.Tick <= latest {
		s.stats.DroppedSnapshots++
		return
	}
	if !rs.Full {
		// 精简快照只相对紧邻的上一帧有效
		base, ok := s.received.TryGetData(snap.Tick - 1)
		if !ok {
			s.stats.DroppedSnapshots++
			s.log.WithField("tick", snap.Tick).Debug("缺少基准快照，等待完整快照")
			return
		}
		snap.FillMissingFrom(base)
		snap.SortData()
		if err := core.Prune(snap); err != nil {
			s.stats.DesyncErrors++
			s.log.WithError(err).WithField("tick", snap.Tick).Warn("工厂状态无法解析")
			return
		}
	}

	s.received.TryAddData(snap)
	s.lastReceived = snap
	for _, byPlayer := range snap.TickToPlayersInputData {
		for p, in := range byPlayer.Inputs {
			if last, ok := s.lastEcho[p]; !ok || in.Tick > last.Tick {
				s.lastEcho[p] = in
			}
		}
	}
}

// checkPrediction 新的权威快照到达时对比本地预测，返回是否需要校正
func (s *Simulation) checkPrediction() bool {
	auth := s.lastReceived
	if auth.Tick <= s.checkedTick {
		return false
	}
	s.checkedTick = auth.Tick

	pred, ok := s.predicted.TryGetData(auth.Tick)
	if !ok {
		s.stats.Mispredictions++
		return true
	}
	if !factoryEqual(pred.Factory, auth.Factory) {
		s.stats.Mispredictions++
		s.log.WithField("tick", auth.Tick).Debug("对象生成预测错误")
		return true
	}

	diverged, err := s.game.Registry.Mispredicted(auth.Tick, pred, auth)
	if err != nil {
		s.stats.DesyncErrors++
		s.log.WithError(err).WithField("tick", auth.Tick).Warn("状态无法比较")
	}
	if len(diverged) == 0 {
		return false
	}
	s.stats.Mispredictions++
	s.log.WithFields(logrus.Fields{
		"tick":    auth.Tick,
		"objects": diverged,
	}).Debug("预测错误")
	return true
}

// reconcile 回到权威状态并重放本地输入直到当前帧
func (s *Simulation) reconcile() {
	if err := s.sync.BeginReconcile(); err != nil {
		s.log.WithError(err).Debug("无法进入校正状态")
	}
	s.rewind(s.lastReceived, s.simTick)
	s.calc.MarkReconciliation()
	s.stats.Reconciliations++
	if err := s.sync.EndReconcile(); err != nil {
		s.log.WithError(err).Debug("无法退出校正状态")
	}
}

// rewind 应用权威快照 auth，再模拟到 to 帧
func (s *Simulation) rewind(auth *snapshot.Snapshot, to int64) {
	res, err := s.game.ApplySnapshot(auth)
	if err != nil {
		s.stats.DesyncErrors++
		s.log.WithError(err).WithField("tick", auth.Tick).Warn("应用权威快照失败")
	} else if res.Err != nil {
		s.stats.DesyncErrors++
		s.log.WithError(res.Err).WithFields(logrus.Fields{
			"tick":   auth.Tick,
			"failed": res.Failed,
		}).Warn("部分对象状态无法应用")
	}

	s.predicted.TryAddData(auth)
	s.simTick = auth.Tick
	s.simulating = true
	s.checkedTick = max(s.checkedTick, auth.Tick)

	// 已确认帧之前的本地输入不再需要
	s.inputs.UpdateMinTick(auth.Tick + 1)
	local := s.history[:s.inputs.GetInputListNonAlloc(s.history)]
	for t := auth.Tick + 1; t <= to; t++ {
		var own *input.Input
		if i := t - auth.Tick - 1; i < int64(len(local)) && local[i].Tick == t {
			own = &local[i]
		} else if in, ok := s.inputs.TryGetData(t); ok {
			own = &in
		}
		s.simulateTick(t, own)
	}
}

func (s *Simulation) produceInput(t int64) input.Input {
	if in, ok := s.inputs.TryGetData(t); ok {
		return in
	}
	in := core.NewInput(t, s.player, s.source(t))
	s.inputs.TryAddData(in)
	return in
}

// simulateTick 用本地输入 own 与其他玩家最近一次回显的输入推进一帧
func (s *Simulation) simulateTick(t int64, own *input.Input) {
	if err := s.game.StepInputs(s.inputsFor(t, own)); err != nil {
		s.log.WithError(err).WithField("tick", t).Debug("输入无法解析")
	}
	s.predicted.TryAddData(s.game.Snapshot(t))
	s.simTick = t
	s.stats.SimulatedTicks++
}

func (s *Simulation) inputsFor(t int64, own *input.Input) []input.Input {
	players := s.game.Players()
	out := make([]input.Input, 0, len(players))
	for _, p := range players {
		if p == s.player && own != nil {
			out = append(out, *own)
			continue
		}
		if last, ok := s.lastEcho[p]; ok {
			out = append(out, last.WithTick(t))
		}
	}
	return out
}

// sendInputs 发送最近几帧的输入，冗余发送应对丢包
func (s *Simulation) sendInputs() {
	n := int64(max(s.cfg.RedundantInputs, 1))
	batch := input.Batch{Rpcs: s.rpcs.Flush()}
	for t := max(s.simTick-n+1, s.lastReceived.Tick+1); t <= s.simTick; t++ {
		if in, ok := s.inputs.TryGetData(t); ok {
			batch.Inputs = append(batch.Inputs, in)
		}
	}
	if len(batch.Inputs) == 0 && len(batch.Rpcs) == 0 {
		return
	}
	if s.uplink == nil {
		return
	}
	if err := s.uplink.SendBatch(batch); err != nil {
		s.log.WithError(err).Debug("发送输入失败")
	}
}

func factoryEqual(a, b snapshot.FactoryState) bool {
	if len(a.Parts) != len(b.Parts) {
		return false
	}
	for _, p := range a.Parts {
		other, ok := b.Find(p.Player)
		if !ok || !bytes.Equal(p.Data, other) {
			return false
		}
	}
	return true
}

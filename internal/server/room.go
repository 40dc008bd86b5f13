package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"elympics/internal/archive"
	"elympics/internal/config"
	"elympics/internal/logging"
	"elympics/pkg/core"
	"elympics/pkg/input"
	"elympics/pkg/protocol"
	"elympics/pkg/replay"
	"elympics/pkg/ringbuffer"
	"elympics/pkg/snapshot"
)

// ReplayExt 回放文件扩展名
const ReplayExt = ".replay"

// 对局结束后等待多久重置房间
const matchResetDelay = 3 * time.Second

// GameState 服务端房间状态
type GameState int

const (
	StateWaiting GameState = iota
	StateRunning
	StateEnding
)

type member struct {
	session  Session
	needFull bool // 下一次必须发送完整快照
}

// Room 权威模拟：收集输入、推进游戏、下发快照、记录回放
type Room struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     config.Server
	log     *logrus.Entry
	tokens  *TokenIssuer
	archive *archive.Archive
	now     func() time.Time

	matchID   string
	startedAt time.Time
	game      *core.Game
	rpcs      *input.RpcRegistry
	tick      atomic.Int64
	state     GameState
	resetAt   time.Time

	members   map[int32]*member
	joined    map[int32]struct{}
	lastInput map[int32]input.Input
	inputs    *ringbuffer.RingBuffer[*input.TickPackage]
	lastSent  *snapshot.Snapshot

	replayBuf bytes.Buffer
	replay    *replay.Writer

	joinCh  chan joinRequest
	inputCh chan *InputEvent
	leaveCh chan int32
}

type joinRequest struct {
	session Session
	token   string
	respCh  chan error
}

// NewRoom 创建房间，archive 可以为空
func NewRoom(parent context.Context, cfg config.Server, tokens *TokenIssuer, arch *archive.Archive) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		log:     logging.Component("room"),
		tokens:  tokens,
		archive: arch,
		now:     time.Now,
		joinCh:  make(chan joinRequest),
		inputCh: make(chan *InputEvent, 256),
		leaveCh: make(chan int32, 256),
	}
	r.reset()
	return r
}

// reset 准备一局新的对局
func (r *Room) reset() {
	r.matchID = uuid.NewString()
	r.startedAt = time.Time{}
	r.game = core.NewGame()
	r.rpcs = input.NewRpcRegistry()
	if err := r.game.RegisterRpcs(r.rpcs); err != nil {
		r.log.WithError(err).Error("注册 RPC 失败")
	}
	r.tick.Store(0)
	r.state = StateWaiting
	r.resetAt = time.Time{}
	r.members = make(map[int32]*member)
	r.joined = make(map[int32]struct{})
	r.lastInput = make(map[int32]input.Input)
	r.inputs = ringbuffer.New[*input.TickPackage](r.cfg.InputBufferCapacity)
	r.lastSent = nil
	r.replay = nil
	r.replayBuf.Reset()
}

func (r *Room) tickDuration() time.Duration {
	return time.Second / time.Duration(r.cfg.TicksPerSecond)
}

// MatchID 当前对局 ID
func (r *Room) MatchID() string {
	return r.matchID
}

// CurrentTick 最近一次模拟的帧号，可在任意协程调用
func (r *Room) CurrentTick() int64 {
	return r.tick.Load()
}

func (r *Room) Run(wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(r.tickDuration())
	defer ticker.Stop()

	r.log.WithField("tps", r.cfg.TicksPerSecond).Info("房间循环启动")

	for {
		select {
		case <-r.ctx.Done():
			if r.state == StateRunning {
				r.finishMatch("服务器关闭")
			}
			r.closeAllConnections(false)
			r.log.Info("房间循环停止")
			return

		case req := <-r.joinCh:
			req.respCh <- r.handleJoin(req)

		case ev := <-r.inputCh:
			r.handleInput(ev)

		case playerID := <-r.leaveCh:
			r.handleLeave(playerID)

		case <-ticker.C:
			r.step()
		}
	}
}

func (r *Room) Shutdown() {
	r.cancel()
}

// Join 校验 token 并加入房间，成功时已向会话发送加入响应
func (r *Room) Join(session Session, token string) error {
	respCh := make(chan error, 1)

	select {
	case <-r.ctx.Done():
		return fmt.Errorf("房间已关闭")
	case r.joinCh <- joinRequest{session: session, token: token, respCh: respCh}:
	}

	select {
	case <-r.ctx.Done():
		return fmt.Errorf("房间已关闭")
	case err := <-respCh:
		return err
	}
}

func (r *Room) EnqueueInput(ev *InputEvent) {
	select {
	case <-r.ctx.Done():
	case r.inputCh <- ev:
	}
}

func (r *Room) Leave(playerID int32) {
	select {
	case <-r.ctx.Done():
	case r.leaveCh <- playerID:
	}
}

func (r *Room) handleJoin(req joinRequest) error {
	if r.state == StateEnding {
		return fmt.Errorf("对局结算中，暂时无法加入")
	}

	claims, err := r.tokens.Verify(req.token)
	if err != nil {
		return err
	}
	playerID := claims.PlayerID
	if claims.MatchID != "" && claims.MatchID != r.matchID {
		return fmt.Errorf("token 不属于当前对局")
	}
	if _, exists := r.members[playerID]; exists {
		return fmt.Errorf("玩家 %d 已在对局中", playerID)
	}
	if len(r.members) >= r.cfg.MaxPlayers {
		return fmt.Errorf("服务器已满 (%d/%d)", len(r.members), r.cfg.MaxPlayers)
	}

	if r.state == StateWaiting {
		if err := r.startMatch(); err != nil {
			return err
		}
	}

	if _, err := r.game.AddPlayer(playerID); err != nil {
		return err
	}
	req.session.SetPlayerID(playerID)
	r.members[playerID] = &member{session: req.session, needFull: true}

	resp := protocol.NewJoinResponsePacket(&protocol.JoinResponse{
		Success:    true,
		PlayerID:   playerID,
		MatchID:    r.matchID,
		Tps:        int32(r.cfg.TicksPerSecond),
		ServerTick: r.tick.Load(),
	})
	if err := req.session.Send(protocol.MarshalPacket(resp)); err != nil {
		delete(r.members, playerID)
		r.game.RemovePlayer(playerID)
		req.session.SetPlayerID(-1)
		return fmt.Errorf("发送加入响应失败: %w", err)
	}
	r.joined[playerID] = struct{}{}

	r.log.WithFields(logrus.Fields{
		"match":   r.matchID,
		"player":  playerID,
		"tick":    r.tick.Load(),
		"players": len(r.members),
	}).Info("玩家加入")
	return nil
}

func (r *Room) startMatch() error {
	r.startedAt = r.now()
	w, err := replay.NewWriter(&r.replayBuf, replay.InitData{
		MatchID:        r.matchID,
		TicksPerSecond: r.cfg.TicksPerSecond,
		Players:        r.cfg.MaxPlayers,
		StartedAt:      r.startedAt,
	})
	if err != nil {
		return fmt.Errorf("创建回放失败: %w", err)
	}
	r.replay = w
	r.state = StateRunning
	r.log.WithField("match", r.matchID).Info("对局开始")
	return nil
}

// handleInput 把上行输入放入对应帧的数据包，返回接受的输入数
// 已模拟过的帧与超出缓冲窗口的帧被丢弃
func (r *Room) handleInput(ev *InputEvent) int {
	if r.state != StateRunning {
		return 0
	}
	if _, exists := r.members[ev.PlayerID]; !exists {
		return 0
	}

	current := r.tick.Load()
	accepted, stale := 0, 0
	for _, in := range ev.Batch.Inputs {
		in.Player = ev.PlayerID
		if in.Tick <= current || in.Tick > r.inputs.MaxTick() {
			stale++
			continue
		}
		pkg, ok := r.inputs.TryGetData(in.Tick)
		if !ok {
			pkg = input.NewTickPackage(in.Tick)
			if !r.inputs.TryAddData(pkg) {
				stale++
				continue
			}
		}
		pkg.Merge(in)
		accepted++
	}

	if len(ev.Batch.Rpcs) > 0 {
		r.enqueueRpcs(ev.PlayerID, current+1, ev.Batch.Rpcs)
	}

	if stale > 0 {
		r.log.WithFields(logrus.Fields{
			"player": ev.PlayerID,
			"stale":  stale,
			"tick":   current,
		}).Debug("丢弃过期输入")
	}
	return accepted
}

// enqueueRpcs 只接受玩家对自己头像发起的 RPC，在下一帧执行
func (r *Room) enqueueRpcs(playerID int32, tick int64, msgs []input.RpcMessage) {
	own := make([]input.RpcMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.NetworkID != core.AvatarID(playerID) {
			r.log.WithFields(logrus.Fields{"player": playerID, "object": m.NetworkID}).Warn("拒绝他人对象的 RPC")
			continue
		}
		own = append(own, m)
	}
	if len(own) == 0 {
		return
	}
	pkg, ok := r.inputs.TryGetData(tick)
	if !ok {
		pkg = input.NewTickPackage(tick)
		if !r.inputs.TryAddData(pkg) {
			return
		}
	}
	pkg.AddRpcs(own)
}

func (r *Room) handleLeave(playerID int32) {
	if _, exists := r.members[playerID]; !exists {
		return
	}

	delete(r.members, playerID)
	delete(r.lastInput, playerID)
	r.game.RemovePlayer(playerID)

	r.log.WithFields(logrus.Fields{"player": playerID, "players": len(r.members)}).Info("玩家离开")

	if len(r.members) == 0 && r.state == StateRunning {
		r.finishMatch("所有玩家离开")
	}
}

// step 推进一帧
func (r *Room) step() {
	now := r.now()

	if r.state == StateEnding && !r.resetAt.IsZero() && now.After(r.resetAt) {
		r.closeAllConnections(false)
		r.reset()
		return
	}

	if r.state != StateRunning {
		return
	}

	next := r.tick.Load() + 1
	pkg, _ := r.inputs.TryGetData(next)
	inputs := r.collectInputs(next, pkg)

	if pkg != nil && len(pkg.Rpcs) > 0 {
		if err := r.rpcs.DispatchAll(pkg.Rpcs); err != nil {
			r.log.WithError(err).WithField("tick", next).Warn("执行 RPC 失败")
		}
	}
	if err := r.game.StepInputs(inputs); err != nil {
		r.log.WithError(err).WithField("tick", next).Warn("输入无法解析，按空操作处理")
	}

	r.tick.Store(next)
	r.inputs.UpdateMinTick(next + 1)

	snap := r.game.Snapshot(next)
	snap.TickStartUtc = now
	for _, in := range inputs {
		snap.AddInputEcho(in)
	}
	if r.replay != nil {
		if err := r.replay.WriteSnapshot(snap); err != nil {
			r.log.WithError(err).Warn("写入回放失败")
		}
	}
	r.broadcastSnapshot(snap)

	if reason, end := r.checkMatchEnd(next); end {
		r.finishMatch(reason)
	}
}

// collectInputs 每个玩家取本帧输入，缺失时重复上一次的输入
func (r *Room) collectInputs(tick int64, pkg *input.TickPackage) []input.Input {
	players := r.game.Players()
	out := make([]input.Input, 0, len(players))
	for _, p := range players {
		if pkg != nil {
			if in, ok := pkg.InputFor(p); ok {
				r.lastInput[p] = in
				out = append(out, in)
				continue
			}
		}
		if last, ok := r.lastInput[p]; ok {
			out = append(out, last.WithTick(tick))
		}
	}
	return out
}

func (r *Room) broadcastSnapshot(snap *snapshot.Snapshot) {
	every := int64(r.cfg.FullSnapshotEvery)
	full := r.lastSent == nil || every <= 1 || snap.Tick%every == 0

	var fullData, reducedData []byte
	for playerID, m := range r.members {
		var data []byte
		if full || m.needFull {
			if fullData == nil {
				fullData = protocol.MarshalPacket(protocol.NewSnapshotPacket(snap, true))
			}
			data = fullData
		} else {
			if reducedData == nil {
				reducedData = protocol.MarshalPacket(protocol.NewSnapshotPacket(snap.Reduce(r.lastSent), false))
			}
			data = reducedData
		}

		m.needFull = false
		if err := m.session.Send(data); err != nil {
			// 丢了一帧，下一次只能发完整快照
			m.needFull = true
			r.log.WithError(err).WithField("player", playerID).Warn("发送快照失败")
		}
	}
	r.lastSent = snap
}

func (r *Room) broadcast(data []byte) {
	for playerID, m := range r.members {
		if err := m.session.Send(data); err != nil {
			r.log.WithError(err).WithField("player", playerID).Warn("发送失败")
		}
	}
}

func (r *Room) checkMatchEnd(tick int64) (string, bool) {
	if r.cfg.MatchTicks > 0 && tick >= r.cfg.MatchTicks {
		return "时间到", true
	}

	total, alive := len(r.game.Players()), r.game.AliveCount()
	switch {
	case total == 0:
		return "", false
	case total == 1:
		// 单人训练：只有死亡才结束
		return "全部阵亡", alive == 0
	default:
		return "决出胜者", alive <= 1
	}
}

func (r *Room) finishMatch(reason string) {
	if r.state == StateEnding {
		return
	}

	r.state = StateEnding
	r.resetAt = r.now().Add(matchResetDelay)
	lastTick := r.tick.Load()

	r.broadcast(protocol.MarshalPacket(protocol.NewMatchEndPacket(reason, lastTick)))

	r.log.WithFields(logrus.Fields{
		"match":  r.matchID,
		"reason": reason,
		"tick":   lastTick,
	}).Info("对局结束")

	if err := r.saveReplay(reason, lastTick); err != nil {
		r.log.WithError(err).Error("保存回放失败")
	}
}

// saveReplay 回放写入文件并归档
func (r *Room) saveReplay(reason string, lastTick int64) error {
	if r.replay == nil {
		return nil
	}
	defer func() { r.replay = nil }()

	if err := r.replay.Close(); err != nil {
		return err
	}
	data := bytes.Clone(r.replayBuf.Bytes())

	var errs []error
	if r.cfg.ReplayDir != "" {
		if err := os.MkdirAll(r.cfg.ReplayDir, 0o755); err != nil {
			errs = append(errs, err)
		} else {
			path := filepath.Join(r.cfg.ReplayDir, r.matchID+ReplayExt)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				errs = append(errs, err)
			} else {
				r.log.WithFields(logrus.Fields{"path": path, "bytes": len(data)}).Info("回放已保存")
			}
		}
	}

	if r.archive != nil {
		m := archive.Match{
			ID:        r.matchID,
			StartedAt: r.startedAt,
			EndedAt:   r.now(),
			Players:   len(r.joined),
			LastTick:  lastTick,
			Reason:    reason,
			Size:      len(data),
		}
		if err := r.archive.Put(m, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Room) closeAllConnections(notify bool) {
	for _, m := range r.members {
		if notify {
			m.session.Close()
		} else {
			m.session.CloseWithoutNotify()
		}
	}
}

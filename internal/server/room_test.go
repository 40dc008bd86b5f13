package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elympics/internal/archive"
	"elympics/internal/config"
	"elympics/pkg/core"
	"elympics/pkg/input"
	"elympics/pkg/protocol"
	"elympics/pkg/replay"
	"elympics/pkg/snapshot"
	"elympics/pkg/syncvar"
)

type fakeSession struct {
	id     int32
	sent   [][]byte
	fail   bool
	closed bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{id: -1}
}

func (f *fakeSession) ID() int32 { return f.id }

func (f *fakeSession) Send(data []byte) error {
	if f.fail {
		return ErrSendQueueFull
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeSession) Close()               { f.closed = true }
func (f *fakeSession) CloseWithoutNotify()  { f.closed = true }
func (f *fakeSession) SetPlayerID(id int32) { f.id = id }

func (f *fakeSession) packets(t *testing.T) []*protocol.Packet {
	t.Helper()
	out := make([]*protocol.Packet, 0, len(f.sent))
	for _, data := range f.sent {
		pkt, err := protocol.UnmarshalPacket(data)
		require.NoError(t, err)
		out = append(out, pkt)
	}
	return out
}

type sentSnapshot struct {
	snap *snapshot.Snapshot
	full bool
}

func (f *fakeSession) snapshots(t *testing.T) []sentSnapshot {
	t.Helper()
	var out []sentSnapshot
	for _, pkt := range f.packets(t) {
		if pkt.Type != protocol.MessageTypeSnapshot {
			continue
		}
		s, full, err := protocol.ParseSnapshot(pkt)
		require.NoError(t, err)
		out = append(out, sentSnapshot{snap: s, full: full})
	}
	return out
}

const testSecret = "room-test-secret"

func testServerConfig(t *testing.T) config.Server {
	cfg := config.Default().Server
	cfg.ReplayDir = t.TempDir()
	cfg.ArchivePath = ""
	cfg.MatchTicks = 0
	cfg.FullSnapshotEvery = 4
	cfg.InputBufferCapacity = 16
	cfg.JWTSecret = testSecret
	return cfg
}

func newTestRoom(t *testing.T, cfg config.Server, arch *archive.Archive) *Room {
	t.Helper()
	r := NewRoom(context.Background(), cfg, NewTokenIssuer(testSecret), arch)
	t.Cleanup(r.Shutdown)
	return r
}

func joinRoom(t *testing.T, r *Room, player int32) *fakeSession {
	t.Helper()
	token, err := NewTokenIssuer(testSecret).Generate(player, "", 0)
	require.NoError(t, err)
	s := newFakeSession()
	require.NoError(t, r.handleJoin(joinRequest{session: s, token: token}))
	return s
}

func inputEvent(player int32, inputs ...input.Input) *InputEvent {
	return &InputEvent{PlayerID: player, Batch: input.Batch{Inputs: inputs}}
}

func TestRoom_JoinSendsResponse(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	s := joinRoom(t, r, 3)

	assert.Equal(t, int32(3), s.ID())
	assert.Equal(t, StateRunning, r.state)
	_, ok := r.game.Avatar(3)
	assert.True(t, ok)

	pkts := s.packets(t)
	require.Len(t, pkts, 1)
	resp, err := protocol.ParseJoinResponse(pkts[0])
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int32(3), resp.PlayerID)
	assert.Equal(t, r.MatchID(), resp.MatchID)
	assert.Equal(t, int32(30), resp.Tps)
}

func TestRoom_JoinRejections(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.MaxPlayers = 2
	r := newTestRoom(t, cfg, nil)
	joinRoom(t, r, 0)

	err := r.handleJoin(joinRequest{session: newFakeSession(), token: "garbage"})
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenIssuer("other-secret").Generate(1, "", 0)
	require.NoError(t, err)
	assert.ErrorIs(t, r.handleJoin(joinRequest{session: newFakeSession(), token: other}), ErrInvalidToken)

	dup, err := NewTokenIssuer(testSecret).Generate(0, "", 0)
	require.NoError(t, err)
	assert.Error(t, r.handleJoin(joinRequest{session: newFakeSession(), token: dup}))

	wrongMatch, err := NewTokenIssuer(testSecret).Generate(1, "not-this-match", 0)
	require.NoError(t, err)
	assert.Error(t, r.handleJoin(joinRequest{session: newFakeSession(), token: wrongMatch}))

	joinRoom(t, r, 1)
	full, err := NewTokenIssuer(testSecret).Generate(2, r.MatchID(), 0)
	require.NoError(t, err)
	assert.Error(t, r.handleJoin(joinRequest{session: newFakeSession(), token: full}))
}

func TestRoom_JoinRollsBackWhenSendFails(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	token, err := NewTokenIssuer(testSecret).Generate(4, "", 0)
	require.NoError(t, err)
	s := newFakeSession()
	s.fail = true

	assert.Error(t, r.handleJoin(joinRequest{session: s, token: token}))
	assert.Equal(t, int32(-1), s.ID())
	assert.Empty(t, r.members)
	assert.Empty(t, r.game.Players())
}

func TestRoom_HandleInputDropsStale(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	joinRoom(t, r, 0)
	for i := 0; i < 3; i++ {
		r.step()
	}
	require.Equal(t, int64(3), r.CurrentTick())

	cmd := core.Command{Move: syncvar.Vector2{X: 1}}
	accepted := r.handleInput(inputEvent(0,
		core.NewInput(2, 0, cmd),
		core.NewInput(3, 0, cmd),
		core.NewInput(4, 0, cmd),
		core.NewInput(5, 0, cmd),
		core.NewInput(3+16+5, 0, cmd),
	))
	assert.Equal(t, 2, accepted)
	assert.True(t, r.inputs.Contains(4))
	assert.True(t, r.inputs.Contains(5))
	assert.False(t, r.inputs.Contains(3))

	// 未加入的玩家
	assert.Zero(t, r.handleInput(inputEvent(9, core.NewInput(6, 9, cmd))))
}

func TestRoom_InputPlayerIsForcedToSender(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	joinRoom(t, r, 0)
	joinRoom(t, r, 1)

	// 玩家 0 冒充玩家 1
	forged := core.NewInput(1, 1, core.Command{Move: syncvar.Vector2{X: 1}})
	require.Equal(t, 1, r.handleInput(inputEvent(0, forged)))

	pkg, ok := r.inputs.TryGetData(1)
	require.True(t, ok)
	_, ok = pkg.InputFor(1)
	assert.False(t, ok)
	_, ok = pkg.InputFor(0)
	assert.True(t, ok)
}

func TestRoom_StepRepeatsLastInput(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	s := joinRoom(t, r, 0)
	a, _ := r.game.Avatar(0)
	start := a.Pos.Value()

	r.handleInput(inputEvent(0, core.NewInput(1, 0, core.Command{Move: syncvar.Vector2{X: 1}})))
	r.step()
	assert.InDelta(t, start.X+core.PlayerSpeedPerTick, a.Pos.Value().X, 1e-4)

	r.step()
	assert.InDelta(t, start.X+2*core.PlayerSpeedPerTick, a.Pos.Value().X, 1e-4)

	snaps := s.snapshots(t)
	require.Len(t, snaps, 2)
	echo, ok := snaps[1].snap.InputEcho(2, 0)
	require.True(t, ok)
	assert.Equal(t, int64(2), echo.Tick)
	cmd, err := core.CommandFromInput(echo)
	require.NoError(t, err)
	assert.Equal(t, float32(1), cmd.Move.X)
}

func TestRoom_FullSnapshotCadence(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	first := joinRoom(t, r, 0)
	for i := 0; i < 5; i++ {
		r.step()
	}
	second := joinRoom(t, r, 1)
	for i := 0; i < 3; i++ {
		r.step()
	}

	var fulls []bool
	for _, s := range first.snapshots(t) {
		fulls = append(fulls, s.full)
	}
	assert.Equal(t, []bool{true, false, false, true, false, false, false, true}, fulls)

	snaps := first.snapshots(t)
	assert.Empty(t, snaps[1].snap.Data, "没有变化的对象不下发")
	assert.Len(t, snaps[0].snap.Data, 1)
	assert.Len(t, snaps[5].snap.Factory.Parts, 2)

	late := second.snapshots(t)
	require.Len(t, late, 3)
	assert.True(t, late[0].full)
	assert.Len(t, late[0].snap.Data, 2)
	assert.False(t, late[1].full)
}

func TestRoom_FailedSendForcesFullSnapshot(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	s := joinRoom(t, r, 0)
	r.step()

	s.fail = true
	r.step()
	s.fail = false
	r.step()

	snaps := s.snapshots(t)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[1].full)
	assert.Equal(t, int64(3), snaps[1].snap.Tick)
}

func TestRoom_RpcOnlyForOwnAvatar(t *testing.T) {
	r := newTestRoom(t, testServerConfig(t), nil)
	joinRoom(t, r, 0)
	joinRoom(t, r, 1)

	r.handleInput(&InputEvent{PlayerID: 0, Batch: input.Batch{Rpcs: []input.RpcMessage{core.ForfeitRpc(1)}}})
	r.step()
	b, _ := r.game.Avatar(1)
	assert.True(t, b.Alive())
	assert.Equal(t, StateRunning, r.state)

	r.handleInput(&InputEvent{PlayerID: 0, Batch: input.Batch{Rpcs: []input.RpcMessage{core.ForfeitRpc(0)}}})
	r.step()
	a, _ := r.game.Avatar(0)
	assert.False(t, a.Alive())
	assert.Equal(t, StateEnding, r.state)
}

func TestRoom_MatchEndSavesReplay(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.MatchTicks = 5
	arch, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = arch.Close() })

	r := newTestRoom(t, cfg, arch)
	s := joinRoom(t, r, 0)
	matchID := r.MatchID()
	for i := 0; i < 5; i++ {
		r.handleInput(inputEvent(0, core.NewInput(int64(i+1), 0, core.Command{Move: syncvar.Vector2{Y: 1}})))
		r.step()
	}
	require.Equal(t, StateEnding, r.state)

	pkts := s.packets(t)
	end, err := protocol.ParseMatchEnd(pkts[len(pkts)-1])
	require.NoError(t, err)
	assert.Equal(t, int64(5), end.LastTick)
	assert.Equal(t, "时间到", end.Reason)

	f, err := os.Open(filepath.Join(cfg.ReplayDir, matchID+ReplayExt))
	require.NoError(t, err)
	defer f.Close()
	rd, err := replay.NewReader(f)
	require.NoError(t, err)
	defer rd.Close()
	summary, err := replay.Analyze(rd)
	require.NoError(t, err)
	assert.Equal(t, matchID, summary.Init.MatchID)
	assert.Equal(t, 5, summary.Snapshots)
	assert.Equal(t, int64(1), summary.FirstTick)
	assert.Equal(t, int64(5), summary.LastTick)
	assert.Empty(t, summary.Gaps)
	assert.Equal(t, 5, summary.PlayerInputs[0])

	m, data, err := arch.Get(matchID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.LastTick)
	assert.Equal(t, 1, m.Players)
	assert.Equal(t, len(data), m.Size)

	// 结算期间不能加入
	token, err := NewTokenIssuer(testSecret).Generate(1, "", 0)
	require.NoError(t, err)
	assert.Error(t, r.handleJoin(joinRequest{session: newFakeSession(), token: token}))

	// 结算结束后重置为新对局
	r.now = func() time.Time { return time.Now().Add(time.Minute) }
	r.step()
	assert.True(t, s.closed)
	assert.Equal(t, StateWaiting, r.state)
	assert.NotEqual(t, matchID, r.MatchID())
	assert.Zero(t, r.CurrentTick())
}

func TestRoom_LeaveEndsMatch(t *testing.T) {
	cfg := testServerConfig(t)
	r := newTestRoom(t, cfg, nil)
	joinRoom(t, r, 0)
	matchID := r.MatchID()
	r.step()

	r.handleLeave(0)
	assert.Equal(t, StateEnding, r.state)
	assert.Empty(t, r.game.Players())
	assert.FileExists(t, filepath.Join(cfg.ReplayDir, matchID+ReplayExt))

	// 重复离开无影响
	r.handleLeave(0)
}

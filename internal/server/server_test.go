package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elympics/internal/transport"
	"elympics/pkg/core"
	"elympics/pkg/input"
	"elympics/pkg/protocol"
	"elympics/pkg/syncvar"
)

func readUntil(t *testing.T, conn transport.Conn, typ protocol.MessageType) *protocol.Packet {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, conn.SetReadDeadline(deadline))
		data, err := conn.ReadPacket()
		require.NoError(t, err)
		pkt, err := protocol.UnmarshalPacket(data)
		require.NoError(t, err)
		if pkt.Type == typ {
			return pkt
		}
	}
	t.Fatalf("没有收到 %s", typ)
	return nil
}

func TestGameServer_EndToEnd(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Addr = "127.0.0.1:0"
	cfg.Proto = "tcp"

	s := NewGameServer(cfg, nil)
	require.NoError(t, s.Listen())
	go func() { _ = s.Start() }()
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	token, err := NewTokenIssuer(testSecret).Generate(2, "", 0)
	require.NoError(t, err)
	require.NoError(t, conn.WritePacket(protocol.MarshalPacket(protocol.NewJoinRequestPacket(token))))

	resp, err := protocol.ParseJoinResponse(readUntil(t, conn, protocol.MessageTypeJoinResponse))
	require.NoError(t, err)
	require.True(t, resp.Success, resp.ErrorMessage)
	assert.Equal(t, int32(2), resp.PlayerID)

	first, full, err := protocol.ParseSnapshot(readUntil(t, conn, protocol.MessageTypeSnapshot))
	require.NoError(t, err)
	assert.True(t, full)
	_, ok := first.Factory.Find(2)
	assert.True(t, ok)

	sent := time.Now().UnixNano()
	require.NoError(t, conn.WritePacket(protocol.MarshalPacket(protocol.NewPingPacket(sent))))
	pong, err := protocol.ParsePong(readUntil(t, conn, protocol.MessageTypePong))
	require.NoError(t, err)
	assert.Equal(t, sent, pong.ClientTime)
	assert.GreaterOrEqual(t, pong.TransmitTime, pong.ReceiveTime)
	assert.Positive(t, pong.ServerTick)

	// 发送未来帧的输入，稍后应在快照回显中看到
	target := pong.ServerTick + 5
	batch := input.Batch{Inputs: []input.Input{core.NewInput(target, 2, core.Command{Move: syncvar.Vector2{X: 1}})}}
	require.NoError(t, conn.WritePacket(protocol.MarshalPacket(protocol.NewClientInputPacket(batch))))

	for i := 0; i < 60; i++ {
		snap, _, err := protocol.ParseSnapshot(readUntil(t, conn, protocol.MessageTypeSnapshot))
		require.NoError(t, err)
		if echo, ok := snap.InputEcho(target, 2); ok {
			assert.Equal(t, target, snap.Tick)
			cmd, err := core.CommandFromInput(echo)
			require.NoError(t, err)
			assert.Equal(t, float32(1), cmd.Move.X)
			return
		}
	}
	t.Fatal("没有收到输入回显")
}

func TestGameServer_RejectsBadToken(t *testing.T) {
	cfg := testServerConfig(t)
	cfg.Addr = "127.0.0.1:0"
	cfg.Proto = "tcp"

	s := NewGameServer(cfg, nil)
	require.NoError(t, s.Listen())
	go func() { _ = s.Start() }()
	defer s.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WritePacket(protocol.MarshalPacket(protocol.NewJoinRequestPacket("bad"))))
	resp, err := protocol.ParseJoinResponse(readUntil(t, conn, protocol.MessageTypeJoinResponse))
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.ErrorMessage)
}

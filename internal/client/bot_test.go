package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elympics/pkg/core"
	"elympics/pkg/syncvar"
)

func TestBot_Deterministic(t *testing.T) {
	a, b := NewBot(42), NewBot(42)
	for i := int64(1); i <= 200; i++ {
		assert.Equal(t, a.Command(i), b.Command(i))
	}
}

func TestBot_HoldsDirection(t *testing.T) {
	bot := NewBot(7)
	bot.BombChance = 0
	first := bot.Command(1)
	// 方向至少保持 15 帧
	for i := int64(2); i < 16; i++ {
		c := bot.Command(i)
		assert.Equal(t, first.Move, c.Move)
		assert.False(t, c.PlaceBomb)
	}
}

func TestBot_AlwaysBombs(t *testing.T) {
	bot := NewBot(1)
	bot.BombChance = 1
	assert.True(t, bot.Command(1).PlaceBomb)
}

func TestBot_EscapesBomb(t *testing.T) {
	g := core.NewGame()
	g.AddPlayer(0)
	g.AddPlayer(1)
	// 玩家 1 走到玩家 0 右侧放下炸弹
	a, ok := g.Avatar(0)
	require.True(t, ok)
	b, ok := g.Avatar(1)
	require.True(t, ok)
	b.Pos.Set(syncvar.Vector2{X: a.Pos.Value().X + 20, Y: a.Pos.Value().Y})
	g.Step(map[int32]core.Command{1: {PlaceBomb: true}})
	require.Len(t, g.Bombs(), 1)

	bot := NewBot(3)
	bot.BombChance = 1
	bot.Watch(g, 0)
	c := bot.Command(1)
	assert.False(t, c.PlaceBomb)
	assert.Less(t, c.Move.X, float32(0))

	// 离开爆炸范围后恢复游走
	a.Pos.Set(syncvar.Vector2{X: 400, Y: 400})
	assert.True(t, bot.Command(2).PlaceBomb)
}

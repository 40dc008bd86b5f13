package client

import (
	"math/rand/v2"

	"elympics/pkg/core"
	"elympics/pkg/syncvar"
)

var botDirections = [...]syncvar.Vector2{
	{},
	{X: 1}, {X: -1}, {Y: 1}, {Y: -1},
	{X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: -1, Y: -1},
}

// Bot 随机游走并偶尔放置炸弹的机器人，处在爆炸范围内时优先逃离
type Bot struct {
	rng        *rand.Rand
	dir        syncvar.Vector2
	until      int64
	BombChance float64

	game   *core.Game
	player int32
}

// NewBot 创建机器人，同一种子产生同样的操作序列
func NewBot(seed uint64) *Bot {
	return &Bot{
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		until:      -1,
		BombChance: 0.02,
	}
}

// Watch 让机器人根据本地预测的状态躲避炸弹
func (b *Bot) Watch(game *core.Game, player int32) {
	b.game, b.player = game, player
}

// Command 产生某一帧的操作，每帧调用一次
func (b *Bot) Command(tick int64) core.Command {
	if away, ok := b.escape(); ok {
		return core.Command{Move: away}
	}
	if tick >= b.until {
		b.dir = botDirections[b.rng.IntN(len(botDirections))]
		b.until = tick + 15 + int64(b.rng.IntN(30))
	}
	return core.Command{
		Move:      b.dir,
		PlaceBomb: b.rng.Float64() < b.BombChance,
	}
}

// escape 返回远离最近一颗威胁炸弹的方向
func (b *Bot) escape() (syncvar.Vector2, bool) {
	if b.game == nil {
		return syncvar.Vector2{}, false
	}
	a, ok := b.game.Avatar(b.player)
	if !ok || !a.Alive() {
		return syncvar.Vector2{}, false
	}
	pos := a.Pos.Value()

	var (
		away  syncvar.Vector2
		best  = float32(core.BombRadius * core.BombRadius)
		found bool
	)
	for _, bomb := range b.game.Bombs() {
		at := bomb.Pos.Value()
		dx, dy := pos.X-at.X, pos.Y-at.Y
		d := dx*dx + dy*dy
		if d > best {
			continue
		}
		best, found = d, true
		away = syncvar.Vector2{X: dx, Y: dy}
		if dx == 0 && dy == 0 {
			away = syncvar.Vector2{X: 1}
		}
	}
	return away, found
}

// Package core 确定性的演示竞技场：玩家头像移动、放置炸弹、爆炸伤害
// 同一组输入在服务器与客户端上得到相同结果
package core

import (
	"errors"
	"fmt"
	"sort"

	"elympics/pkg/input"
	"elympics/pkg/snapshot"
	"elympics/pkg/syncvar"
)

// ErrPlayerID 玩家编号超出可分配网络 ID 的范围
var ErrPlayerID = errors.New("玩家编号越界")

// Game 游戏状态（纯逻辑，不包含渲染）
type Game struct {
	Registry *syncvar.Registry
	avatars  map[int32]*Avatar
	bombs    map[int32]*Bomb
	nextSeq  map[int32]int32
}

// NewGame 创建空游戏
func NewGame() *Game {
	return &Game{
		Registry: syncvar.NewRegistry(),
		avatars:  make(map[int32]*Avatar),
		bombs:    make(map[int32]*Bomb),
		nextSeq:  make(map[int32]int32),
	}
}

// AddPlayer 添加玩家头像，已存在时返回原头像
func (g *Game) AddPlayer(player int32) (*Avatar, error) {
	if a, ok := g.avatars[player]; ok {
		return a, nil
	}
	if player < 0 || player > MaxPlayerID {
		return nil, fmt.Errorf("%w: %d", ErrPlayerID, player)
	}
	a := NewAvatar(player)
	if err := g.Registry.Add(a); err != nil {
		return nil, err
	}
	g.avatars[player] = a
	g.nextSeq[player] = 0
	return a, nil
}

// RemovePlayer 移除玩家头像及其炸弹
func (g *Game) RemovePlayer(player int32) {
	a, ok := g.avatars[player]
	if !ok {
		return
	}
	g.Registry.Remove(a.NetworkID())
	delete(g.avatars, player)
	delete(g.nextSeq, player)
	for id, b := range g.bombs {
		if b.Owner == player {
			g.removeBomb(id)
		}
	}
}

// Avatar 查找玩家头像
func (g *Game) Avatar(player int32) (*Avatar, bool) {
	a, ok := g.avatars[player]
	return a, ok
}

// Players 升序排列的玩家
func (g *Game) Players() []int32 {
	out := make([]int32, 0, len(g.avatars))
	for p := range g.avatars {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bombs 升序排列的炸弹
func (g *Game) Bombs() []*Bomb {
	ids := make([]int32, 0, len(g.bombs))
	for id := range g.bombs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Bomb, len(ids))
	for i, id := range ids {
		out[i] = g.bombs[id]
	}
	return out
}

// AliveCount 存活的玩家数
func (g *Game) AliveCount() int {
	n := 0
	for _, a := range g.avatars {
		if a.Alive() {
			n++
		}
	}
	return n
}

func (g *Game) spawnBomb(id, owner int32, at syncvar.Vector2) (*Bomb, error) {
	if !IsBombID(id) {
		return nil, fmt.Errorf("炸弹 ID %d 越界", id)
	}
	b := NewBomb(id, owner, at)
	if err := g.Registry.Add(b); err != nil {
		return nil, err
	}
	g.bombs[id] = b
	return b, nil
}

func (g *Game) removeBomb(id int32) {
	delete(g.bombs, id)
	g.Registry.Remove(id)
}

func (g *Game) liveBombs(owner int32) int {
	n := 0
	for _, b := range g.bombs {
		if b.Owner == owner {
			n++
		}
	}
	return n
}

// Step 推进一帧
func (g *Game) Step(commands map[int32]Command) {
	for _, p := range g.Players() {
		a := g.avatars[p]
		if !a.Alive() {
			continue
		}
		if cd := a.Cooldown.Value(); cd > 0 {
			a.Cooldown.Set(cd - 1)
		}
		cmd := commands[p]
		a.move(cmd.Move)
		if cmd.PlaceBomb && a.Cooldown.Value() == 0 && g.liveBombs(p) < MaxBombsPerPlayer {
			seq := g.nextSeq[p]
			g.nextSeq[p] = seq + 1
			if _, err := g.spawnBomb(BombID(p, seq), p, a.Pos.Value()); err == nil {
				a.Cooldown.Set(BombCooldownTicks)
			}
		}
	}

	for _, b := range g.Bombs() {
		fuse := b.Fuse.Value() - 1
		b.Fuse.Set(fuse)
		if fuse > 0 {
			continue
		}
		g.explode(b)
		g.removeBomb(b.NetworkID())
	}
}

func (g *Game) explode(b *Bomb) {
	center := b.Pos.Value()
	for _, p := range g.Players() {
		a := g.avatars[p]
		if !a.Alive() {
			continue
		}
		pos := a.Pos.Value()
		dx, dy := float64(pos.X-center.X), float64(pos.Y-center.Y)
		if dx*dx+dy*dy > BombRadius*BombRadius {
			continue
		}
		hp := a.HP.Value() - BombDamage
		if hp <= 0 {
			hp = 0
			if owner, ok := g.avatars[b.Owner]; ok && b.Owner != p {
				owner.Score.Set(owner.Score.Value() + 1)
			}
		}
		a.HP.Set(hp)
	}
}

// StepInputs 用一帧的玩家输入推进，无法解码的输入按空操作处理并返回错误
func (g *Game) StepInputs(inputs []input.Input) error {
	commands := make(map[int32]Command, len(inputs))
	var firstErr error
	for _, in := range inputs {
		cmd, err := CommandFromInput(in)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("玩家 %d: %w", in.Player, err)
			}
			continue
		}
		commands[in.Player] = cmd
	}
	g.Step(commands)
	return firstErr
}

// Snapshot 收集当前状态
func (g *Game) Snapshot(tick int64) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Tick:    tick,
		Factory: g.FactoryState(),
		Data:    g.Registry.CollectState(),
	}
}

// ApplySnapshot 先同步工厂状态再写回对象状态
func (g *Game) ApplySnapshot(s *snapshot.Snapshot) (syncvar.ApplyResult, error) {
	if err := g.ApplyFactory(s.Factory); err != nil {
		return syncvar.ApplyResult{}, err
	}
	res := g.Registry.ApplyState(s.Tick, s.Data)
	return res, res.Err
}

package core

import (
	"fmt"

	"elympics/pkg/snapshot"
	"elympics/pkg/syncvar"
)

// FactoryState 每个玩家一个部件：下一个炸弹序号与存活炸弹的网络 ID
// 部件存在即表示该玩家的头像存在
func (g *Game) FactoryState() snapshot.FactoryState {
	bombsByOwner := make(map[int32][]int32)
	for _, b := range g.Bombs() {
		bombsByOwner[b.Owner] = append(bombsByOwner[b.Owner], b.NetworkID())
	}

	var f snapshot.FactoryState
	for _, p := range g.Players() {
		w := syncvar.NewWriter()
		w.WriteInt32(g.nextSeq[p])
		ids := bombsByOwner[p]
		w.WriteInt32(int32(len(ids)))
		for _, id := range ids {
			w.WriteInt32(id)
		}
		f.Parts = append(f.Parts, snapshot.FactoryPart{Player: p, Data: w.Bytes()})
	}
	return f
}

type factoryPart struct {
	nextSeq int32
	bombs   []int32
}

func decodeFactoryPart(b []byte) (factoryPart, error) {
	r := syncvar.NewReader(b)
	part := factoryPart{nextSeq: r.ReadInt32()}
	n := r.ReadInt32()
	if n < 0 || int(n) > len(b) {
		return factoryPart{}, fmt.Errorf("工厂部件炸弹数非法: %d", n)
	}
	for i := int32(0); i < n; i++ {
		part.bombs = append(part.bombs, r.ReadInt32())
	}
	if err := r.Finish(); err != nil {
		return factoryPart{}, err
	}
	return part, nil
}

// ApplyFactory 按工厂状态生成或销毁头像与炸弹
// 新生成的对象使用默认值，随后由对象状态覆盖
func (g *Game) ApplyFactory(f snapshot.FactoryState) error {
	parts := make(map[int32]factoryPart, len(f.Parts))
	for _, p := range f.Parts {
		part, err := decodeFactoryPart(p.Data)
		if err != nil {
			return fmt.Errorf("玩家 %d 工厂状态: %w", p.Player, err)
		}
		parts[p.Player] = part
	}

	for _, p := range g.Players() {
		if _, ok := parts[p]; !ok {
			g.RemovePlayer(p)
		}
	}

	live := make(map[int32]int32)
	for player, part := range parts {
		if _, err := g.AddPlayer(player); err != nil {
			return err
		}
		g.nextSeq[player] = part.nextSeq
		for _, id := range part.bombs {
			live[id] = player
		}
	}

	for id := range g.bombs {
		if _, ok := live[id]; !ok {
			g.removeBomb(id)
		}
	}
	for id, owner := range live {
		if _, ok := g.bombs[id]; !ok {
			if _, err := g.spawnBomb(id, owner, syncvar.Vector2{}); err != nil {
				return fmt.Errorf("玩家 %d 工厂状态: %w", owner, err)
			}
		}
	}
	return nil
}

// ObjectIDs 工厂状态中存在的全部对象 ID
func ObjectIDs(f snapshot.FactoryState) (map[int32]struct{}, error) {
	ids := make(map[int32]struct{})
	for _, p := range f.Parts {
		part, err := decodeFactoryPart(p.Data)
		if err != nil {
			return nil, fmt.Errorf("玩家 %d 工厂状态: %w", p.Player, err)
		}
		ids[AvatarID(p.Player)] = struct{}{}
		for _, id := range part.bombs {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// Prune 删除快照中工厂状态之外的对象，补全精简快照后用于去掉已销毁的对象
func Prune(s *snapshot.Snapshot) error {
	ids, err := ObjectIDs(s.Factory)
	if err != nil {
		return err
	}
	kept := s.Data[:0]
	for _, d := range s.Data {
		if _, ok := ids[d.ObjectID]; ok {
			kept = append(kept, d)
		}
	}
	s.Data = kept
	return nil
}

package core

import "elympics/pkg/syncvar"

// Bomb 由玩家工厂生成的炸弹
type Bomb struct {
	id    int32
	Owner int32
	Pos   *syncvar.Var[syncvar.Vector3]
	Fuse  *syncvar.Var[int32]
}

// NewBomb 创建炸弹
func NewBomb(id, owner int32, at syncvar.Vector2) *Bomb {
	return &Bomb{
		id:    id,
		Owner: owner,
		// 容差按距离平方计
		Pos:  syncvar.NewVector3(syncvar.Vector3{X: at.X, Y: at.Y}, PositionTolerance*PositionTolerance),
		Fuse: syncvar.NewInt(BombFuseTicks),
	}
}

func (b *Bomb) NetworkID() int32 { return b.id }

func (b *Bomb) Vars() []syncvar.Serializable {
	return []syncvar.Serializable{b.Pos, b.Fuse}
}

// BombID 计算炸弹的网络 ID
func BombID(owner, seq int32) int32 {
	return BombIDBase + owner*BombIDStride + seq%BombIDStride
}

// BombOwner 从网络 ID 还原所属玩家
func BombOwner(id int32) int32 {
	return (id - BombIDBase) / BombIDStride
}

// IsBombID 是否为炸弹的网络 ID
func IsBombID(id int32) bool {
	return id >= BombIDBase
}

package core

import (
	"math"

	"elympics/pkg/syncvar"
)

// Avatar 玩家头像
type Avatar struct {
	Player   int32
	Pos      *syncvar.Var[syncvar.Vector2]
	Facing   *syncvar.Var[syncvar.Quaternion]
	HP       *syncvar.Var[int32]
	Score    *syncvar.Var[int64]
	Cooldown *syncvar.Var[int32]
}

// AvatarID 玩家头像的网络 ID
func AvatarID(player int32) int32 {
	return player + 1
}

// SpawnPoint 玩家出生点，按四角轮换
func SpawnPoint(player int32) syncvar.Vector2 {
	const margin = 48
	corners := [4]syncvar.Vector2{
		{X: margin, Y: margin},
		{X: ArenaWidth - margin, Y: ArenaHeight - margin},
		{X: ArenaWidth - margin, Y: margin},
		{X: margin, Y: ArenaHeight - margin},
	}
	return corners[int(player)%len(corners)]
}

// NewAvatar 创建头像
func NewAvatar(player int32) *Avatar {
	return &Avatar{
		Player:   player,
		Pos:      syncvar.NewVector2(SpawnPoint(player), PositionTolerance),
		Facing:   syncvar.NewQuaternion(syncvar.IdentityQuaternion, FacingTolerance),
		HP:       syncvar.NewInt(PlayerMaxHP),
		Score:    syncvar.NewLong(0),
		Cooldown: syncvar.NewInt(0),
	}
}

func (a *Avatar) NetworkID() int32 { return AvatarID(a.Player) }

func (a *Avatar) Vars() []syncvar.Serializable {
	return []syncvar.Serializable{a.Pos, a.Facing, a.HP, a.Score, a.Cooldown}
}

// Alive 是否存活
func (a *Avatar) Alive() bool {
	return a.HP.Value() > 0
}

// move 按方向移动一帧，限制在场地内
func (a *Avatar) move(dir syncvar.Vector2) {
	dx, dy := float64(dir.X), float64(dir.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	if length > 1 {
		dx, dy = dx/length, dy/length
	}

	pos := a.Pos.Value()
	pos.X = clamp(pos.X+float32(dx*PlayerSpeedPerTick), 0, ArenaWidth)
	pos.Y = clamp(pos.Y+float32(dy*PlayerSpeedPerTick), 0, ArenaHeight)
	a.Pos.Set(pos)
	a.Facing.Set(syncvar.QuaternionFromYaw(math.Atan2(dy, dx)))
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

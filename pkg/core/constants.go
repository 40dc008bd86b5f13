package core

// 场地配置
const (
	ArenaWidth  = 640
	ArenaHeight = 480
)

// 玩家配置
const (
	PlayerSpeedPerTick = 4.0 // 像素/帧
	PlayerMaxHP        = 100
	BombCooldownTicks  = 12 // 两次放置炸弹的最小间隔
	MaxBombsPerPlayer  = 2
)

// 炸弹配置（帧）
const (
	BombFuseTicks = 60   // 引信时长
	BombRadius    = 64.0 // 爆炸半径（像素）
	BombDamage    = 50
)

// 网络 ID 分配：玩家头像为 player+1，炸弹为 BombIDBase + player*BombIDStride + 序号
// 玩家编号不超过 MaxPlayerID，头像 ID 不会落入炸弹区间
const (
	BombIDBase   = 1000
	BombIDStride = 100000
	MaxPlayerID  = BombIDBase - 2
)

// 同步误差容忍度
const (
	PositionTolerance = 0.5 // 像素
	FacingTolerance   = 2.0 // 角度
)

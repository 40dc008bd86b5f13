package core

import (
	"fmt"

	"elympics/pkg/input"
)

// RpcForfeit 玩家认输，参数为空
const RpcForfeit uint32 = 1

// Forfeit 玩家认输，头像生命值归零
func (g *Game) Forfeit(player int32) bool {
	a, ok := g.avatars[player]
	if !ok || !a.Alive() {
		return false
	}
	a.HP.Set(0)
	return true
}

// RegisterRpcs 注册游戏的 RPC 处理函数
func (g *Game) RegisterRpcs(reg *input.RpcRegistry) error {
	return reg.Register(RpcForfeit, func(networkID int32, args []byte) error {
		if len(args) != 0 {
			return fmt.Errorf("认输参数非法: %d 字节", len(args))
		}
		if IsBombID(networkID) {
			return fmt.Errorf("对象 %d 不是玩家头像", networkID)
		}
		g.Forfeit(networkID - 1)
		return nil
	})
}

// ForfeitRpc 构造认输 RPC
func ForfeitRpc(player int32) input.RpcMessage {
	return input.RpcMessage{NetworkID: AvatarID(player), MethodID: RpcForfeit}
}

package core

import (
	"fmt"

	"elympics/pkg/input"
	"elympics/pkg/syncvar"
)

// Command 玩家在一帧内对头像的操作
type Command struct {
	Move      syncvar.Vector2 // 移动方向，长度大于 1 时归一化
	PlaceBomb bool
}

// EncodeCommand 编码操作
func EncodeCommand(c Command) []byte {
	w := syncvar.NewWriter()
	w.WriteFloat32(c.Move.X)
	w.WriteFloat32(c.Move.Y)
	w.WriteBool(c.PlaceBomb)
	return w.Bytes()
}

// DecodeCommand 解码操作
func DecodeCommand(b []byte) (Command, error) {
	r := syncvar.NewReader(b)
	c := Command{
		Move:      syncvar.Vector2{X: r.ReadFloat32(), Y: r.ReadFloat32()},
		PlaceBomb: r.ReadBool(),
	}
	if err := r.Finish(); err != nil {
		return Command{}, fmt.Errorf("解码操作失败: %w", err)
	}
	return c, nil
}

// NewInput 把操作打包成某帧的玩家输入
func NewInput(tick int64, player int32, c Command) input.Input {
	return input.Input{
		Tick:   tick,
		Player: player,
		Data:   []input.ObjectInput{{ObjectID: AvatarID(player), Payload: EncodeCommand(c)}},
	}
}

// CommandFromInput 取出玩家头像的操作，没有时返回空操作
func CommandFromInput(in input.Input) (Command, error) {
	payload, ok := in.Find(AvatarID(in.Player))
	if !ok {
		return Command{}, nil
	}
	return DecodeCommand(payload)
}

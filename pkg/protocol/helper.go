package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/input"
	"elympics/pkg/snapshot"
)

// ========== 客户端消息构造 ==========

// NewJoinRequestPacket 构造加入请求消息包
func NewJoinRequestPacket(token string) *Packet {
	req := &JoinRequest{Token: token}
	return &Packet{Type: MessageTypeJoinRequest, Payload: req.marshal()}
}

// NewPingPacket 构造对时请求消息包
func NewPingPacket(clientTime int64) *Packet {
	ping := &Ping{ClientTime: clientTime}
	return &Packet{Type: MessageTypePing, Payload: ping.marshal()}
}

// NewClientInputPacket 构造输入消息包
func NewClientInputPacket(batch input.Batch) *Packet {
	return &Packet{Type: MessageTypeClientInput, Payload: input.EncodeBatch(batch)}
}

// ========== 服务器消息构造 ==========

// NewJoinResponsePacket 构造加入响应消息包
func NewJoinResponsePacket(resp *JoinResponse) *Packet {
	return &Packet{Type: MessageTypeJoinResponse, Payload: resp.marshal()}
}

// NewJoinRejectedPacket 构造拒绝加入的响应
func NewJoinRejectedPacket(errorMessage string) *Packet {
	return NewJoinResponsePacket(&JoinResponse{ErrorMessage: errorMessage})
}

// NewPongPacket 构造对时响应消息包
func NewPongPacket(clientTime, receiveTime, transmitTime, serverTick int64) *Packet {
	pong := &Pong{
		ClientTime:   clientTime,
		ReceiveTime:  receiveTime,
		TransmitTime: transmitTime,
		ServerTick:   serverTick,
	}
	return &Packet{Type: MessageTypePong, Payload: pong.marshal()}
}

// NewSnapshotPacket 构造快照消息包，full 为 false 表示精简快照
func NewSnapshotPacket(s *snapshot.Snapshot, full bool) *Packet {
	b := appendBoolField(nil, 1, full)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, snapshot.Encode(s))
	return &Packet{Type: MessageTypeSnapshot, Payload: b}
}

// NewMatchEndPacket 构造对局结束消息包
func NewMatchEndPacket(reason string, lastTick int64) *Packet {
	end := &MatchEnd{Reason: reason, LastTick: lastTick}
	return &Packet{Type: MessageTypeMatchEnd, Payload: end.marshal()}
}

// ========== 序列化与反序列化 ==========

// MarshalPacket 将 Packet 对象转换为字节切片
func MarshalPacket(pkt *Packet) []byte {
	return pkt.marshal()
}

// UnmarshalPacket 将字节切片转换为 Packet 对象
func UnmarshalPacket(data []byte) (*Packet, error) {
	pkt := &Packet{}
	err := parseFields(data, func(num protowire.Number, f field) {
		switch num {
		case 1:
			pkt.Type = MessageType(f.varint())
		case 2:
			pkt.Payload = f.bytes()
		}
	})
	if err != nil {
		return nil, err
	}
	if pkt.Type == MessageTypeUnspecified {
		return nil, fmt.Errorf("%w: 缺少消息类型", ErrMalformed)
	}
	return pkt, nil
}

// ========== 消息解析辅助 ==========

func expect(pkt *Packet, t MessageType) error {
	if pkt.Type != t {
		return fmt.Errorf("%w: 期望 %s，实际 %s", ErrUnexpectedType, t, pkt.Type)
	}
	return nil
}

// ParseJoinRequest 从 Packet 中解析 JoinRequest
func ParseJoinRequest(pkt *Packet) (*JoinRequest, error) {
	if err := expect(pkt, MessageTypeJoinRequest); err != nil {
		return nil, err
	}
	req := &JoinRequest{}
	if err := req.unmarshal(pkt.Payload); err != nil {
		return nil, err
	}
	return req, nil
}

// ParseJoinResponse 从 Packet 中解析 JoinResponse
func ParseJoinResponse(pkt *Packet) (*JoinResponse, error) {
	if err := expect(pkt, MessageTypeJoinResponse); err != nil {
		return nil, err
	}
	resp := &JoinResponse{}
	if err := resp.unmarshal(pkt.Payload); err != nil {
		return nil, err
	}
	return resp, nil
}

// ParsePing 从 Packet 中解析 Ping
func ParsePing(pkt *Packet) (*Ping, error) {
	if err := expect(pkt, MessageTypePing); err != nil {
		return nil, err
	}
	ping := &Ping{}
	if err := ping.unmarshal(pkt.Payload); err != nil {
		return nil, err
	}
	return ping, nil
}

// ParsePong 从 Packet 中解析 Pong
func ParsePong(pkt *Packet) (*Pong, error) {
	if err := expect(pkt, MessageTypePong); err != nil {
		return nil, err
	}
	pong := &Pong{}
	if err := pong.unmarshal(pkt.Payload); err != nil {
		return nil, err
	}
	return pong, nil
}

// ParseClientInput 从 Packet 中解析上行输入
func ParseClientInput(pkt *Packet) (input.Batch, error) {
	if err := expect(pkt, MessageTypeClientInput); err != nil {
		return input.Batch{}, err
	}
	return input.DecodeBatch(pkt.Payload)
}

// ParseSnapshot 从 Packet 中解析快照及其是否完整
func ParseSnapshot(pkt *Packet) (*snapshot.Snapshot, bool, error) {
	if err := expect(pkt, MessageTypeSnapshot); err != nil {
		return nil, false, err
	}
	var full bool
	var raw []byte
	err := parseFields(pkt.Payload, func(num protowire.Number, f field) {
		switch num {
		case 1:
			full = f.bool()
		case 2:
			raw = f.bytes()
		}
	})
	if err != nil {
		return nil, false, err
	}
	s, err := snapshot.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return s, full, nil
}

// ParseMatchEnd 从 Packet 中解析 MatchEnd
func ParseMatchEnd(pkt *Packet) (*MatchEnd, error) {
	if err := expect(pkt, MessageTypeMatchEnd); err != nil {
		return nil, err
	}
	end := &MatchEnd{}
	if err := end.unmarshal(pkt.Payload); err != nil {
		return nil, err
	}
	return end, nil
}

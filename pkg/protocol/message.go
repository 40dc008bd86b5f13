// Package protocol 客户端与服务器之间的消息包
// 所有消息都按 protobuf 线格式编码，字段编号固定
package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformed 消息格式错误
	ErrMalformed = errors.New("protocol: 消息格式错误")
	// ErrUnexpectedType 消息类型不符
	ErrUnexpectedType = errors.New("protocol: 消息类型不符")
)

// MessageType 消息类型
type MessageType uint32

const (
	MessageTypeUnspecified MessageType = iota
	MessageTypeJoinRequest
	MessageTypeJoinResponse
	MessageTypePing
	MessageTypePong
	MessageTypeClientInput
	MessageTypeSnapshot
	MessageTypeMatchEnd
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeJoinRequest:
		return "join_request"
	case MessageTypeJoinResponse:
		return "join_response"
	case MessageTypePing:
		return "ping"
	case MessageTypePong:
		return "pong"
	case MessageTypeClientInput:
		return "client_input"
	case MessageTypeSnapshot:
		return "snapshot"
	case MessageTypeMatchEnd:
		return "match_end"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// Packet 消息信封
type Packet struct {
	Type    MessageType
	Payload []byte
}

// JoinRequest 携带对局令牌的加入请求
type JoinRequest struct {
	Token string
}

// JoinResponse 加入结果
type JoinResponse struct {
	Success      bool
	PlayerID     int32
	MatchID      string
	Tps          int32
	ServerTick   int64
	ErrorMessage string
}

// Ping 客户端发起的对时请求
type Ping struct {
	// ClientTime 发送时刻（unix 纳秒）
	ClientTime int64
}

// Pong 对时响应，带回 NTP 所需的三个时间戳
type Pong struct {
	ClientTime   int64
	ReceiveTime  int64
	TransmitTime int64
	ServerTick   int64
}

// MatchEnd 对局结束
type MatchEnd struct {
	Reason   string
	LastTick int64
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	return appendVarintField(b, num, protowire.EncodeBool(v))
}

func appendSint64Field(b []byte, num protowire.Number, v int64) []byte {
	return appendVarintField(b, num, protowire.EncodeZigZag(v))
}

// field 已经通过长度校验的字段值
type field struct {
	typ protowire.Type
	raw []byte
}

func (f field) varint() uint64 {
	if f.typ != protowire.VarintType {
		return 0
	}
	v, _ := protowire.ConsumeVarint(f.raw)
	return v
}

func (f field) sint64() int64 {
	return protowire.DecodeZigZag(f.varint())
}

func (f field) bool() bool {
	return protowire.DecodeBool(f.varint())
}

func (f field) bytes() []byte {
	if f.typ != protowire.BytesType {
		return nil
	}
	v, _ := protowire.ConsumeBytes(f.raw)
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (f field) string() string {
	return string(f.bytes())
}

// parseFields 遍历消息字段，未知字段跳过
func parseFields(b []byte, fn func(num protowire.Number, f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: 字段 %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		fn(num, field{typ: typ, raw: b[:m]})
		b = b[m:]
	}
	return nil
}

func (p *Packet) marshal() []byte {
	b := appendVarintField(nil, 1, uint64(p.Type))
	return appendBytesField(b, 2, p.Payload)
}

func (m *JoinRequest) marshal() []byte {
	return appendBytesField(nil, 1, []byte(m.Token))
}

func (m *JoinRequest) unmarshal(b []byte) error {
	return parseFields(b, func(num protowire.Number, f field) {
		if num == 1 {
			m.Token = f.string()
		}
	})
}

func (m *JoinResponse) marshal() []byte {
	b := appendBoolField(nil, 1, m.Success)
	b = appendVarintField(b, 2, uint64(uint32(m.PlayerID)))
	b = appendBytesField(b, 3, []byte(m.MatchID))
	b = appendVarintField(b, 4, uint64(uint32(m.Tps)))
	b = appendSint64Field(b, 5, m.ServerTick)
	return appendBytesField(b, 6, []byte(m.ErrorMessage))
}

func (m *JoinResponse) unmarshal(b []byte) error {
	return parseFields(b, func(num protowire.Number, f field) {
		switch num {
		case 1:
			m.Success = f.bool()
		case 2:
			m.PlayerID = int32(uint32(f.varint()))
		case 3:
			m.MatchID = f.string()
		case 4:
			m.Tps = int32(uint32(f.varint()))
		case 5:
			m.ServerTick = f.sint64()
		case 6:
			m.ErrorMessage = f.string()
		}
	})
}

func (m *Ping) marshal() []byte {
	return appendSint64Field(nil, 1, m.ClientTime)
}

func (m *Ping) unmarshal(b []byte) error {
	return parseFields(b, func(num protowire.Number, f field) {
		if num == 1 {
			m.ClientTime = f.sint64()
		}
	})
}

func (m *Pong) marshal() []byte {
	b := appendSint64Field(nil, 1, m.ClientTime)
	b = appendSint64Field(b, 2, m.ReceiveTime)
	b = appendSint64Field(b, 3, m.TransmitTime)
	return appendSint64Field(b, 4, m.ServerTick)
}

func (m *Pong) unmarshal(b []byte) error {
	return parseFields(b, func(num protowire.Number, f field) {
		switch num {
		case 1:
			m.ClientTime = f.sint64()
		case 2:
			m.ReceiveTime = f.sint64()
		case 3:
			m.TransmitTime = f.sint64()
		case 4:
			m.ServerTick = f.sint64()
		}
	})
}

func (m *MatchEnd) marshal() []byte {
	b := appendBytesField(nil, 1, []byte(m.Reason))
	return appendSint64Field(b, 2, m.LastTick)
}

func (m *MatchEnd) unmarshal(b []byte) error {
	return parseFields(b, func(num protowire.Number, f field) {
		switch num {
		case 1:
			m.Reason = f.string()
		case 2:
			m.LastTick = f.sint64()
		}
	})
}

package input

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/wire"
)

// ErrUnknownMethod 未注册的 RPC 方法
var ErrUnknownMethod = errors.New("input: 未注册的 RPC 方法")

// RpcMessage 一次排队的远程调用
type RpcMessage struct {
	NetworkID int32
	MethodID  uint32
	Args      []byte
}

// AppendRpc 编码一条 RPC
func AppendRpc(b []byte, m RpcMessage) []byte {
	b = protowire.AppendFixed32(b, uint32(m.NetworkID))
	b = protowire.AppendVarint(b, uint64(m.MethodID))
	return protowire.AppendBytes(b, m.Args)
}

// ReadRpc 从 r 中读取一条 RPC
func ReadRpc(r *wire.Reader) RpcMessage {
	id := int32(r.Fixed32())
	method := uint32(r.Varint())
	args := r.Bytes()
	return RpcMessage{NetworkID: id, MethodID: method, Args: args}
}

// RpcQueue 按帧刷出的 RPC 队列
type RpcQueue struct {
	pending []RpcMessage
}

// Enqueue 排队一次调用
func (q *RpcQueue) Enqueue(networkID int32, methodID uint32, args []byte) {
	q.pending = append(q.pending, RpcMessage{NetworkID: networkID, MethodID: methodID, Args: args})
}

// Len 排队中的调用数
func (q *RpcQueue) Len() int {
	return len(q.pending)
}

// Flush 取出全部排队的调用
func (q *RpcQueue) Flush() []RpcMessage {
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Handler RPC 处理函数
type Handler func(networkID int32, args []byte) error

// RpcRegistry 方法 ID 到处理函数的注册表，在组装同步对象时一次性建立
type RpcRegistry struct {
	handlers map[uint32]Handler
}

// NewRpcRegistry 创建注册表
func NewRpcRegistry() *RpcRegistry {
	return &RpcRegistry{handlers: make(map[uint32]Handler)}
}

// Register 注册处理函数，同一方法 ID 只能注册一次
func (r *RpcRegistry) Register(methodID uint32, h Handler) error {
	if h == nil {
		return fmt.Errorf("input: 方法 %d 的处理函数为空", methodID)
	}
	if _, exists := r.handlers[methodID]; exists {
		return fmt.Errorf("input: 方法 %d 重复注册", methodID)
	}
	r.handlers[methodID] = h
	return nil
}

// Dispatch 调用对应的处理函数
func (r *RpcRegistry) Dispatch(m RpcMessage) error {
	h, ok := r.handlers[m.MethodID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMethod, m.MethodID)
	}
	return h(m.NetworkID, m.Args)
}

// DispatchAll 依次调用，返回全部错误
func (r *RpcRegistry) DispatchAll(msgs []RpcMessage) error {
	var errs []error
	for _, m := range msgs {
		if err := r.Dispatch(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

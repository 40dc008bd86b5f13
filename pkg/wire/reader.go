// Package wire 基于 protowire 的紧凑二进制读取
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncated 数据不完整或格式错误
var ErrTruncated = errors.New("wire: 数据不完整")

// Reader 顺序读取 protowire 编码的字段，出错后所有读取返回零值
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader 创建读取器
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Err 第一个读取错误
func (r *Reader) Err() error { return r.err }

// Offset 已消耗的字节数
func (r *Reader) Offset() int { return r.off }

// Remaining 剩余字节数
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Fail 记录一个错误（只保留第一个）
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) parseFail(n int) {
	r.Fail(fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n)))
}

// Fixed64 读取 8 字节定长整数
func (r *Reader) Fixed64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.buf[r.off:])
	if n < 0 {
		r.parseFail(n)
		return 0
	}
	r.off += n
	return v
}

// Fixed32 读取 4 字节定长整数
func (r *Reader) Fixed32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.buf[r.off:])
	if n < 0 {
		r.parseFail(n)
		return 0
	}
	r.off += n
	return v
}

// Varint 读取变长整数
func (r *Reader) Varint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(r.buf[r.off:])
	if n < 0 {
		r.parseFail(n)
		return 0
	}
	r.off += n
	return v
}

// Count 读取计数前缀，超过剩余字节数视为损坏
func (r *Reader) Count() int {
	v := r.Varint()
	if r.err != nil {
		return 0
	}
	if v > uint64(r.Remaining()) {
		r.Fail(fmt.Errorf("%w: 计数 %d 超出剩余长度 %d", ErrTruncated, v, r.Remaining()))
		return 0
	}
	return int(v)
}

// Bytes 读取长度前缀的字节串（返回拷贝，不与输入缓冲共享）
func (r *Reader) Bytes() []byte {
	v := r.BytesView()
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// BytesView 读取长度前缀的字节串（与输入缓冲共享）
func (r *Reader) BytesView() []byte {
	if r.err != nil {
		return nil
	}
	v, n := protowire.ConsumeBytes(r.buf[r.off:])
	if n < 0 {
		r.parseFail(n)
		return nil
	}
	r.off += n
	return v
}

// String 读取长度前缀的字符串
func (r *Reader) String() string {
	return string(r.BytesView())
}

// Done 要求恰好消耗全部数据
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.buf) {
		return fmt.Errorf("wire: 尾部多余 %d 字节", len(r.buf)-r.off)
	}
	return nil
}

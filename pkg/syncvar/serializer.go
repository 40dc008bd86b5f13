// Package syncvar 同步变量、误差比较器与同步对象注册表
package syncvar

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"elympics/pkg/wire"
)

var (
	// ErrReadTooMuch 反序列化读取超出了数据末尾
	ErrReadTooMuch = errors.New("syncvar: 读取超出数据末尾")
	// ErrReadNotEnough 反序列化结束后仍有未读数据
	ErrReadNotEnough = errors.New("syncvar: 数据未读完")
)

// DesyncError 某个对象在某帧的序列化不一致，视为不同步
type DesyncError struct {
	ObjectID int32
	Tick     int64
	Cause    error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("syncvar: 对象 %d 在帧 %d 不同步: %v", e.ObjectID, e.Tick, e.Cause)
}

func (e *DesyncError) Unwrap() error {
	return e.Cause
}

// Writer 序列化同步变量
type Writer struct {
	buf []byte
}

// NewWriter 创建写入器
func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteFloat32(v float32) {
	w.buf = protowire.AppendFixed32(w.buf, math.Float32bits(v))
}

func (w *Writer) WriteInt32(v int32) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(int64(v)))
}

func (w *Writer) WriteInt64(v int64) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeZigZag(v))
}

func (w *Writer) WriteBool(v bool) {
	w.buf = protowire.AppendVarint(w.buf, protowire.EncodeBool(v))
}

func (w *Writer) WriteBytes(v []byte) {
	w.buf = protowire.AppendBytes(w.buf, v)
}

// Bytes 返回已写入数据的拷贝
func (w *Writer) Bytes() []byte {
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out
}

// Len 已写入字节数
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset 清空，复用底层内存
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// Reader 反序列化同步变量
// 越界读取记为 ErrReadTooMuch，之后的读取都返回零值
type Reader struct {
	r *wire.Reader
}

// NewReader 创建读取器
func NewReader(b []byte) *Reader {
	return &Reader{r: wire.NewReader(b)}
}

func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.r.Fixed32())
}

func (r *Reader) ReadInt32() int32 {
	return int32(protowire.DecodeZigZag(r.r.Varint()))
}

func (r *Reader) ReadInt64() int64 {
	return protowire.DecodeZigZag(r.r.Varint())
}

func (r *Reader) ReadBool() bool {
	return protowire.DecodeBool(r.r.Varint())
}

func (r *Reader) ReadBytes() []byte {
	return r.r.Bytes()
}

// Err 读取过程中的错误
func (r *Reader) Err() error {
	if err := r.r.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrReadTooMuch, err)
	}
	return nil
}

// Finish 要求恰好读完全部数据
func (r *Reader) Finish() error {
	if err := r.Err(); err != nil {
		return err
	}
	if n := r.r.Remaining(); n > 0 {
		return fmt.Errorf("%w: 剩余 %d 字节", ErrReadNotEnough, n)
	}
	return nil
}

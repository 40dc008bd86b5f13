// Package transport 带消息边界的连接：tcp/kcp 使用 4 字节长度前缀，ws 使用二进制帧
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MaxPacketSize = 256 * 1024      // 最大消息大小
	WriteTimeout  = 1 * time.Second // 写入超时
)

var (
	ErrPacketTooLarge = errors.New("transport: 消息过大")
	ErrEmptyPacket    = errors.New("transport: 空消息")
)

// Conn 按消息收发的连接
// ReadPacket 只能在一个 goroutine 中调用，WritePacket 可并发调用
type Conn interface {
	ReadPacket() ([]byte, error)
	WritePacket(data []byte) error
	SetReadDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// streamConn 在字节流上加 4 字节大端长度前缀
type streamConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// NewStreamConn 包装 tcp/kcp 连接
func NewStreamConn(conn net.Conn) Conn {
	return &streamConn{conn: conn}
}

func (c *streamConn) ReadPacket() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, length)
	}
	if length == 0 {
		return nil, ErrEmptyPacket
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

func (c *streamConn) WritePacket(data []byte) error {
	if len(data) > MaxPacketSize {
		return fmt.Errorf("%w (%d bytes)", ErrPacketTooLarge, len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	_, err := c.conn.Write(buf)
	return err
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

// wsConn 每个 websocket 二进制帧就是一条消息
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketConn 包装 websocket 连接
func NewWebSocketConn(conn *websocket.Conn) Conn {
	conn.SetReadLimit(MaxPacketSize)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadPacket() ([]byte, error) {
	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			return nil, ErrEmptyPacket
		}
		return data, nil
	}
}

func (c *wsConn) WritePacket(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"elympics/internal/transport"
	"elympics/pkg/protocol"
)

const (
	readTimeout      = 5 * time.Second  // 读取超时
	heartbeatTimeout = 15 * time.Second // 超过该时间没有收到任何消息即断开
	heartbeatCheck   = 5 * time.Second
	sendQueueSize    = 256
)

var ErrSendQueueFull = errors.New("发送队列满")

// Connection 表示一个客户端连接
type Connection struct {
	conn     transport.Conn
	server   *GameServer
	playerID int32
	log      *logrus.Entry

	// 上行输入限流
	limiter *rate.Limiter
	dropped atomic.Int64

	// 发送队列
	sendChan chan []byte
	closeCh  chan struct{}
	closed   bool
	closeMu  sync.Mutex

	lastRecvTime atomic.Value
}

// NewConnection 创建新连接，连接到服务器上
func NewConnection(conn transport.Conn, server *GameServer) *Connection {
	cfg := server.cfg
	c := &Connection{
		conn:     conn,
		server:   server,
		playerID: -1, // -1 表示未分配
		log:      server.log.WithField("remote", conn.RemoteAddr().String()),
		limiter:  rate.NewLimiter(rate.Limit(cfg.InputRatePerSecond), cfg.InputBurst),
		sendChan: make(chan []byte, sendQueueSize),
		closeCh:  make(chan struct{}),
	}
	c.lastRecvTime.Store(time.Now())
	return c
}

// Handle 处理连接
func (c *Connection) Handle(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	c.log.Debug("连接处理开始")

	wg.Add(3)
	go c.startHeartbeat(ctx, wg)
	go c.sendLoop(ctx, wg)
	go c.receiveLoop(ctx, wg)

	// 等待上下文取消或连接关闭
	select {
	case <-ctx.Done():
	case <-c.closeCh:
	}

	c.Close()
}

// Close 关闭连接
func (c *Connection) Close() {
	c.closeWithNotify(true)
}

// CloseWithoutNotify 关闭连接但不触发移除玩家逻辑
func (c *Connection) CloseWithoutNotify() {
	c.closeWithNotify(false)
}

func (c *Connection) closeWithNotify(notify bool) {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.closeCh)
	c.closeMu.Unlock()

	_ = c.conn.Close()

	if notify {
		if playerID := c.ID(); playerID >= 0 {
			c.server.removePlayer(playerID)
		}
	}

	c.log.WithField("player", c.ID()).Info("连接已关闭")
}

// Send 发送数据（异步）
func (c *Connection) Send(data []byte) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return fmt.Errorf("连接已关闭")
	}

	select {
	case c.sendChan <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Connection) sendPacket(pkt *protocol.Packet) {
	if err := c.Send(protocol.MarshalPacket(pkt)); err != nil {
		c.log.WithError(err).Warn("发送失败")
	}
}

// sendLoop 发送循环
func (c *Connection) sendLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case data := <-c.sendChan:
			if err := c.conn.WritePacket(data); err != nil {
				c.log.WithError(err).Warn("发送数据失败")
				c.Close()
				return
			}
		}
	}
}

// receiveLoop 接收循环
func (c *Connection) receiveLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		data, err := c.conn.ReadPacket()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				c.log.Debug("读取超时")
			case errors.Is(err, io.EOF):
			default:
				c.log.WithError(err).Debug("读取失败")
			}
			c.Close()
			return
		}

		receivedAt := time.Now()
		c.lastRecvTime.Store(receivedAt)
		if err := c.handleMessage(data, receivedAt); err != nil {
			c.log.WithError(err).Warn("处理消息失败")
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(data []byte, receivedAt time.Time) error {
	event, err := DecodePacket(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch event.Kind {
	case EventJoin:
		if c.ID() >= 0 {
			return fmt.Errorf("玩家 %d 重复加入", c.ID())
		}
		if err := c.server.handleJoinRequest(c, event.Join); err != nil {
			c.sendPacket(protocol.NewJoinRejectedPacket(err.Error()))
			return fmt.Errorf("处理加入请求失败: %w", err)
		}
		c.log.WithField("player", c.ID()).Info("加入成功")

	case EventInput:
		if c.ID() < 0 {
			return fmt.Errorf("未加入就发送输入")
		}
		if !c.limiter.Allow() {
			if n := c.dropped.Add(1); n%100 == 1 {
				c.log.WithField("dropped", n).Warn("输入过于频繁，丢弃")
			}
			return nil
		}
		event.Input.PlayerID = c.ID()
		c.server.handleClientInput(event.Input)

	case EventPing:
		event.Ping.ReceivedAt = receivedAt
		c.handlePing(event.Ping)

	default:
		return fmt.Errorf("未知消息类型")
	}

	return nil
}

// handlePing 立即回复 Pong，带上接收与发送时刻以及当前帧号
func (c *Connection) handlePing(ping *PingEvent) {
	pkt := protocol.NewPongPacket(
		ping.ClientTime,
		ping.ReceivedAt.UnixNano(),
		time.Now().UnixNano(),
		c.server.currentTick(),
	)
	c.sendPacket(pkt)
}

// String 返回连接的字符串表示
func (c *Connection) String() string {
	if c.ID() >= 0 {
		return fmt.Sprintf("Connection{%d, %s}", c.ID(), c.conn.RemoteAddr())
	}
	return fmt.Sprintf("Connection{%s}", c.conn.RemoteAddr())
}

func (c *Connection) ID() int32 {
	return atomic.LoadInt32(&c.playerID)
}

func (c *Connection) SetPlayerID(playerID int32) {
	atomic.StoreInt32(&c.playerID, playerID)
}

func (c *Connection) startHeartbeat(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(heartbeatCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			lastRecv, _ := c.lastRecvTime.Load().(time.Time)
			if time.Since(lastRecv) > heartbeatTimeout {
				c.log.Warn("心跳超时")
				c.Close()
				return
			}
		}
	}
}

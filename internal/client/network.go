// Package client 预测客户端：网络收发与单线程模拟循环
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"elympics/internal/logging"
	"elympics/internal/transport"
	"elympics/pkg/clocksync"
	"elympics/pkg/input"
	"elympics/pkg/protocol"
	"elympics/pkg/snapshot"
)

const joinTimeout = 10 * time.Second

var ErrSendQueueFull = errors.New("发送队列满")

// ReceivedSnapshot 收到的快照
type ReceivedSnapshot struct {
	Snapshot   *snapshot.Snapshot
	Full       bool
	ReceivedAt time.Time
}

// PongSample 一次完整的对时交换
type PongSample struct {
	Timestamps clocksync.Timestamps
	ServerTick int64
}

// NetworkClient 网络客户端，只在收发协程中运行，通过通道把消息交给模拟线程
type NetworkClient struct {
	conn       transport.Conn
	serverAddr string
	proto      string
	token      string
	log        *logrus.Entry
	now        func() time.Time

	// 玩家信息
	join *protocol.JoinResponse

	// 网络
	connected    atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	pingInterval time.Duration
	closeOnce    sync.Once

	// 消息队列
	snapshotChan chan ReceivedSnapshot
	pongChan     chan PongSample
	joinChan     chan *protocol.JoinResponse
	matchEndChan chan *protocol.MatchEnd
	dropped      atomic.Int64

	// 发送队列
	sendChan chan []byte

	// 错误
	errChan chan error
}

// NewNetworkClient 创建网络客户端
func NewNetworkClient(serverAddr, proto, token string, pingInterval time.Duration) *NetworkClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &NetworkClient{
		serverAddr:   serverAddr,
		proto:        proto,
		token:        token,
		log:          logging.Component("network").WithField("server", serverAddr),
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		pingInterval: pingInterval,
		snapshotChan: make(chan ReceivedSnapshot, 256),
		pongChan:     make(chan PongSample, 64),
		joinChan:     make(chan *protocol.JoinResponse, 1),
		matchEndChan: make(chan *protocol.MatchEnd, 1),
		sendChan:     make(chan []byte, 256),
		errChan:      make(chan error, 1),
	}
}

// Connect 连接到服务器并加入对局
func (nc *NetworkClient) Connect(ctx context.Context) (*protocol.JoinResponse, error) {
	nc.log.WithField("proto", nc.proto).Info("连接到服务器")

	conn, err := transport.Dial(ctx, nc.proto, nc.serverAddr)
	if err != nil {
		return nil, fmt.Errorf("连接服务器失败: %w", err)
	}
	nc.conn = conn
	nc.connected.Store(true)

	nc.wg.Add(2)
	go nc.receiveLoop()
	go nc.sendLoop()

	// 发送加入请求
	if err := nc.sendPacket(protocol.NewJoinRequestPacket(nc.token)); err != nil {
		nc.Close()
		return nil, fmt.Errorf("发送加入请求失败: %w", err)
	}

	timer := time.NewTimer(joinTimeout)
	defer timer.Stop()

	// 等待加入响应
	select {
	case resp := <-nc.joinChan:
		if !resp.Success {
			nc.Close()
			return nil, fmt.Errorf("加入被拒绝: %s", resp.ErrorMessage)
		}
		nc.join = resp
		nc.log.WithFields(logrus.Fields{
			"player": resp.PlayerID,
			"match":  resp.MatchID,
			"tick":   resp.ServerTick,
		}).Info("已加入对局")

	case err := <-nc.errChan:
		nc.Close()
		return nil, err

	case <-ctx.Done():
		nc.Close()
		return nil, ctx.Err()

	case <-timer.C:
		nc.Close()
		return nil, errors.New("等待加入响应超时")
	}

	if nc.pingInterval > 0 {
		nc.wg.Add(1)
		go nc.pingLoop()
	}
	return nc.join, nil
}

// Close 关闭连接
func (nc *NetworkClient) Close() {
	nc.closeOnce.Do(func() {
		nc.connected.Store(false)
		nc.cancel()
		if nc.conn != nil {
			_ = nc.conn.Close()
		}
		nc.wg.Wait()
		nc.log.Info("网络客户端已关闭")
	})
}

// IsConnected 检查是否已连接
func (nc *NetworkClient) IsConnected() bool {
	return nc.connected.Load()
}

// Dropped 因队列满丢弃的下行消息数
func (nc *NetworkClient) Dropped() int64 {
	return nc.dropped.Load()
}

// ========== 消息接收 ==========

// receiveLoop 接收循环
func (nc *NetworkClient) receiveLoop() {
	defer nc.wg.Done()

	for {
		data, err := nc.conn.ReadPacket()
		if err != nil {
			select {
			case <-nc.ctx.Done():
			default:
				if errors.Is(err, io.EOF) {
					err = errors.New("服务器关闭了连接")
				}
				nc.fail(fmt.Errorf("读取失败: %w", err))
			}
			return
		}

		if err := nc.handleMessage(data, nc.now()); err != nil {
			nc.log.WithError(err).Warn("处理消息失败")
		}
	}
}

func (nc *NetworkClient) fail(err error) {
	nc.connected.Store(false)
	select {
	case nc.errChan <- err:
	default:
	}
}

// handleMessage 处理接收到的消息
func (nc *NetworkClient) handleMessage(data []byte, receivedAt time.Time) error {
	pkt, err := protocol.UnmarshalPacket(data)
	if err != nil {
		return fmt.Errorf("反序列化失败: %w", err)
	}

	switch pkt.Type {
	case protocol.MessageTypeSnapshot:
		s, full, err := protocol.ParseSnapshot(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.snapshotChan <- ReceivedSnapshot{Snapshot: s, Full: full, ReceivedAt: receivedAt}:
		default:
			// 队列满，丢弃
			nc.dropped.Add(1)
		}

	case protocol.MessageTypePong:
		pong, err := protocol.ParsePong(pkt)
		if err != nil {
			return err
		}
		sample := PongSample{
			Timestamps: clocksync.Timestamps{
				Originate: time.Unix(0, pong.ClientTime),
				Receive:   time.Unix(0, pong.ReceiveTime),
				Transmit:  time.Unix(0, pong.TransmitTime),
				Reception: receivedAt,
			},
			ServerTick: pong.ServerTick,
		}
		select {
		case nc.pongChan <- sample:
		default:
			nc.dropped.Add(1)
		}

	case protocol.MessageTypeJoinResponse:
		resp, err := protocol.ParseJoinResponse(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.joinChan <- resp:
		default:
		}

	case protocol.MessageTypeMatchEnd:
		end, err := protocol.ParseMatchEnd(pkt)
		if err != nil {
			return err
		}
		select {
		case nc.matchEndChan <- end:
		default:
		}

	default:
		return fmt.Errorf("未知消息类型: %s", pkt.Type)
	}

	return nil
}

// ========== 消息发送 ==========

// sendLoop 发送循环
func (nc *NetworkClient) sendLoop() {
	defer nc.wg.Done()

	for {
		select {
		case <-nc.ctx.Done():
			return

		case data := <-nc.sendChan:
			if err := nc.conn.WritePacket(data); err != nil {
				nc.fail(fmt.Errorf("发送失败: %w", err))
				return
			}
		}
	}
}

// pingLoop 定期发送对时请求
func (nc *NetworkClient) pingLoop() {
	defer nc.wg.Done()

	ticker := time.NewTicker(nc.pingInterval)
	defer ticker.Stop()

	nc.sendPing()
	for {
		select {
		case <-nc.ctx.Done():
			return
		case <-ticker.C:
			nc.sendPing()
		}
	}
}

func (nc *NetworkClient) sendPing() {
	if err := nc.sendPacket(protocol.NewPingPacket(nc.now().UnixNano())); err != nil {
		nc.log.WithError(err).Debug("发送 ping 失败")
	}
}

func (nc *NetworkClient) sendPacket(pkt *protocol.Packet) error {
	select {
	case nc.sendChan <- protocol.MarshalPacket(pkt):
		return nil
	default:
		return ErrSendQueueFull
	}
}

// SendBatch 发送上行输入
func (nc *NetworkClient) SendBatch(batch input.Batch) error {
	if !nc.IsConnected() {
		return errors.New("未连接")
	}
	return nc.sendPacket(protocol.NewClientInputPacket(batch))
}

// ========== 状态接收（非阻塞） ==========

// DrainSnapshots 取出队列中全部快照
func (nc *NetworkClient) DrainSnapshots(dst []ReceivedSnapshot) []ReceivedSnapshot {
	for {
		select {
		case s := <-nc.snapshotChan:
			dst = append(dst, s)
		default:
			return dst
		}
	}
}

// DrainPongs 取出队列中全部对时样本
func (nc *NetworkClient) DrainPongs(dst []PongSample) []PongSample {
	for {
		select {
		case p := <-nc.pongChan:
			dst = append(dst, p)
		default:
			return dst
		}
	}
}

// ReceiveMatchEnd 接收对局结束
func (nc *NetworkClient) ReceiveMatchEnd() *protocol.MatchEnd {
	select {
	case end := <-nc.matchEndChan:
		return end
	default:
		return nil
	}
}

// Err 连接错误
func (nc *NetworkClient) Err() error {
	select {
	case err := <-nc.errChan:
		return err
	default:
		return nil
	}
}

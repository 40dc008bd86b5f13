// Package server 权威服务器：接受连接、校验 token、运行房间循环
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"elympics/internal/archive"
	"elympics/internal/config"
	"elympics/internal/logging"
	"elympics/internal/transport"
)

// GameServer 游戏服务器
type GameServer struct {
	cfg  config.Server
	log  *logrus.Entry
	room *Room

	// 网络
	listener transport.Listener

	// 控制
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewGameServer 创建新的游戏服务器，arch 为空时不归档回放
func NewGameServer(cfg config.Server, arch *archive.Archive) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())

	s := &GameServer{
		cfg:      cfg,
		log:      logging.Component("server"),
		ctx:      ctx,
		cancel:   cancel,
		shutdown: make(chan struct{}),
	}
	s.room = NewRoom(ctx, cfg, NewTokenIssuer(cfg.JWTSecret), arch)
	return s
}

// Listen 开始监听，之后 Addr 可用
func (s *GameServer) Listen() error {
	listener, err := transport.Listen(s.cfg.Proto, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("监听失败: %w", err)
	}
	s.listener = listener
	s.log.WithFields(logrus.Fields{"addr": listener.Addr().String(), "proto": s.cfg.Proto}).Info("服务器监听中")
	return nil
}

// Addr 实际监听地址
func (s *GameServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Room 房间
func (s *GameServer) Room() *Room {
	return s.room
}

// Start 启动服务器，阻塞直到 Shutdown
func (s *GameServer) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	// 启动房间循环
	s.wg.Add(1)
	go s.room.Run(&s.wg)

	// 启动连接接受循环
	s.wg.Add(1)
	go s.acceptLoop()

	// 等待关闭信号
	<-s.shutdown
	return nil
}

// Shutdown 优雅关闭服务器
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Info("正在关闭服务器...")

		s.cancel()
		s.room.Shutdown()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		close(s.shutdown)

		// 等待所有 goroutine 结束
		s.wg.Wait()
		s.log.Info("服务器已关闭")
	})
}

// acceptLoop 接受客户端连接
func (s *GameServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				s.log.Debug("停止接受新连接")
				return
			default:
			}
			if errors.Is(err, transport.ErrListenerClosed) {
				return
			}
			s.log.WithError(err).Warn("接受连接失败")
			continue
		}

		s.log.WithField("remote", conn.RemoteAddr().String()).Debug("新连接")

		connection := NewConnection(conn, s)
		s.wg.Add(1)
		go connection.Handle(s.ctx, &s.wg)
	}
}

// handleJoinRequest 处理加入请求
func (s *GameServer) handleJoinRequest(conn *Connection, join *JoinEvent) error {
	return s.room.Join(conn, join.Token)
}

// handleClientInput 处理客户端输入
func (s *GameServer) handleClientInput(ev *InputEvent) {
	s.room.EnqueueInput(ev)
}

// removePlayer 移除玩家
func (s *GameServer) removePlayer(playerID int32) {
	s.room.Leave(playerID)
}

func (s *GameServer) currentTick() int64 {
	return s.room.CurrentTick()
}

package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	kcp "github.com/xtaci/kcp-go/v5"
)

// DialTimeout 建立连接的超时
const DialTimeout = 5 * time.Second

// Dial 按协议连接服务器，ws 协议的 addr 可以是 host:port 或完整 URL
func Dial(ctx context.Context, proto, addr string) (Conn, error) {
	switch proto {
	case "", "tcp":
		d := net.Dialer{Timeout: DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		return NewStreamConn(conn), nil
	case "kcp":
		conn, err := kcp.DialWithOptions(addr, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		conn.SetStreamMode(true)
		conn.SetNoDelay(1, 10, 2, 1)
		return NewStreamConn(conn), nil
	case "ws":
		d := websocket.Dialer{HandshakeTimeout: DialTimeout}
		conn, _, err := d.DialContext(ctx, webSocketURL(addr), nil)
		if err != nil {
			return nil, err
		}
		return NewWebSocketConn(conn), nil
	default:
		return nil, fmt.Errorf("不支持的协议: %s", proto)
	}
}

func webSocketURL(addr string) string {
	if u, err := url.Parse(addr); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		return addr
	}
	return "ws://" + addr + WebSocketPath
}

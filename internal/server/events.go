package server

import (
	"time"

	"elympics/pkg/input"
)

type EventKind int

const (
	EventUnknown EventKind = iota
	EventJoin
	EventInput
	EventPing
)

type JoinEvent struct {
	Token string
}

type InputEvent struct {
	PlayerID int32
	Batch    input.Batch
}

type PingEvent struct {
	ClientTime int64
	// ReceivedAt 服务器读到该包的时间
	ReceivedAt time.Time
}

type ServerEvent struct {
	Kind  EventKind
	Join  *JoinEvent
	Input *InputEvent
	Ping  *PingEvent
}

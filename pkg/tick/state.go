package tick

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition 非法的同步状态切换
var ErrInvalidTransition = errors.New("tick: 非法的状态切换")

// SyncState 客户端同步状态
type SyncState int

const (
	Unsynchronized SyncState = iota
	Synchronizing
	Synchronized
	Reconciling
	Disconnected
)

func (s SyncState) String() string {
	switch s {
	case Unsynchronized:
		return "unsynchronized"
	case Synchronizing:
		return "synchronizing"
	case Synchronized:
		return "synchronized"
	case Reconciling:
		return "reconciling"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// Synchronizer 同步状态机
// Unsynchronized -> Synchronizing -> Synchronized <-> Reconciling，任意状态可进入 Disconnected
type Synchronizer struct {
	state      SyncState
	minSamples int
}

// NewSynchronizer 创建状态机，收集到 minSamples 个样本后进入已同步
func NewSynchronizer(minSamples int) *Synchronizer {
	if minSamples < 1 {
		minSamples = 1
	}
	return &Synchronizer{minSamples: minSamples}
}

func (s *Synchronizer) State() SyncState {
	return s.state
}

// Ready 是否可以开始预测
func (s *Synchronizer) Ready() bool {
	return s.state == Synchronized || s.state == Reconciling
}

func (s *Synchronizer) transition(from, to SyncState) error {
	if s.state != from {
		return fmt.Errorf("%w: %s -> %s（当前 %s）", ErrInvalidTransition, from, to, s.state)
	}
	s.state = to
	return nil
}

// Connect 首次连接
func (s *Synchronizer) Connect() error {
	return s.transition(Unsynchronized, Synchronizing)
}

// OnSample 报告已收集的样本数，返回是否刚进入已同步
func (s *Synchronizer) OnSample(samples int) bool {
	if s.state != Synchronizing || samples < s.minSamples {
		return false
	}
	s.state = Synchronized
	return true
}

// BeginReconcile 检测到预测超出容差
func (s *Synchronizer) BeginReconcile() error {
	return s.transition(Synchronized, Reconciling)
}

// EndReconcile 重放完成
func (s *Synchronizer) EndReconcile() error {
	return s.transition(Reconciling, Synchronized)
}

// Disconnect 断开连接，终态
func (s *Synchronizer) Disconnect() {
	s.state = Disconnected
}

package syncvar

import (
	"errors"
	"fmt"
	"sort"

	"elympics/pkg/snapshot"
)

// ErrUnknownObject 注册表中没有该对象
var ErrUnknownObject = errors.New("syncvar: 未知的同步对象")

// Behaviour 同步对象：一个网络 ID 和一组有序的同步变量
type Behaviour interface {
	NetworkID() int32
	Vars() []Serializable
}

// ApplyResult 应用一帧状态的结果
type ApplyResult struct {
	Applied []int32
	// Missing 快照中存在但本地未注册的对象
	Missing []int32
	// Failed 反序列化不一致的对象，其状态保持不变
	Failed []int32
	Err    error
}

// Registry 按网络 ID 索引的同步对象
type Registry struct {
	objects map[int32]Behaviour
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{objects: make(map[int32]Behaviour)}
}

// Add 注册对象，网络 ID 不能重复
func (r *Registry) Add(b Behaviour) error {
	id := b.NetworkID()
	if _, exists := r.objects[id]; exists {
		return fmt.Errorf("syncvar: 对象 %d 重复注册", id)
	}
	r.objects[id] = b
	return nil
}

// Remove 注销对象
func (r *Registry) Remove(id int32) bool {
	if _, ok := r.objects[id]; !ok {
		return false
	}
	delete(r.objects, id)
	return true
}

func (r *Registry) Get(id int32) (Behaviour, bool) {
	b, ok := r.objects[id]
	return b, ok
}

func (r *Registry) Len() int {
	return len(r.objects)
}

// IDs 升序排列的网络 ID
func (r *Registry) IDs() []int32 {
	ids := make([]int32, 0, len(r.objects))
	for id := range r.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Serialize 序列化单个对象
func Serialize(b Behaviour) []byte {
	w := NewWriter()
	for _, v := range b.Vars() {
		v.Serialize(w)
	}
	return w.Bytes()
}

// Deserialize 反序列化单个对象，失败时恢复原状态
func Deserialize(b Behaviour, state []byte) error {
	backup := Serialize(b)
	if err := deserialize(b, state); err != nil {
		_ = deserialize(b, backup)
		return err
	}
	return nil
}

func deserialize(b Behaviour, state []byte) error {
	rd := NewReader(state)
	for _, v := range b.Vars() {
		v.Deserialize(rd)
	}
	return rd.Finish()
}

// CollectState 按网络 ID 升序收集全部对象状态
func (r *Registry) CollectState() []snapshot.ObjectState {
	ids := r.IDs()
	out := make([]snapshot.ObjectState, 0, len(ids))
	for _, id := range ids {
		out = append(out, snapshot.ObjectState{ObjectID: id, State: Serialize(r.objects[id])})
	}
	return out
}

// ApplyState 把一帧的对象状态写回同步变量
// 单个对象不一致不影响其他对象，错误汇总在 ApplyResult.Err 中
func (r *Registry) ApplyState(tick int64, states []snapshot.ObjectState) ApplyResult {
	var res ApplyResult
	var errs []error
	for _, s := range states {
		b, ok := r.objects[s.ObjectID]
		if !ok {
			res.Missing = append(res.Missing, s.ObjectID)
			continue
		}
		if err := Deserialize(b, s.State); err != nil {
			res.Failed = append(res.Failed, s.ObjectID)
			errs = append(errs, &DesyncError{ObjectID: s.ObjectID, Tick: tick, Cause: err})
			continue
		}
		res.Applied = append(res.Applied, s.ObjectID)
	}
	res.Err = errors.Join(errs...)
	return res
}

// StatesEqual 用对象的比较器判断两份序列化状态是否在容差内相等
func (r *Registry) StatesEqual(id int32, a, b []byte) (bool, error) {
	obj, ok := r.objects[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownObject, id)
	}
	ra, rb := NewReader(a), NewReader(b)
	equal := true
	for _, v := range obj.Vars() {
		if !v.CompareSerialized(ra, rb) {
			equal = false
		}
	}
	if err := ra.Finish(); err != nil {
		return false, err
	}
	if err := rb.Finish(); err != nil {
		return false, err
	}
	return equal, nil
}

// Mispredicted 对比预测与权威状态，返回超出容差的对象
// 预测中缺失的对象视为预测错误；本地未注册的对象忽略
func (r *Registry) Mispredicted(tick int64, predicted, authoritative *snapshot.Snapshot) ([]int32, error) {
	var diverged []int32
	var errs []error
	for _, s := range authoritative.Data {
		if _, ok := r.objects[s.ObjectID]; !ok {
			continue
		}
		local, ok := predicted.Find(s.ObjectID)
		if !ok {
			diverged = append(diverged, s.ObjectID)
			continue
		}
		equal, err := r.StatesEqual(s.ObjectID, local, s.State)
		if err != nil {
			errs = append(errs, &DesyncError{ObjectID: s.ObjectID, Tick: tick, Cause: err})
			diverged = append(diverged, s.ObjectID)
			continue
		}
		if !equal {
			diverged = append(diverged, s.ObjectID)
		}
	}
	return diverged, errors.Join(errs...)
}

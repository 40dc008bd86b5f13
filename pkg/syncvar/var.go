package syncvar

// Serializable 可参与快照的同步变量
type Serializable interface {
	Serialize(w *Writer)
	Deserialize(r *Reader)
	// CompareSerialized 从两个读取器各读一个值，按比较器判断是否相等
	CompareSerialized(a, b *Reader) bool
}

// Var 带比较器与编解码的同步变量
type Var[T any] struct {
	value    T
	comparer Comparer[T]
	write    func(*Writer, T)
	read     func(*Reader) T
}

// NewVar 创建自定义类型的同步变量
func NewVar[T any](initial T, comparer Comparer[T], write func(*Writer, T), read func(*Reader) T) *Var[T] {
	return &Var[T]{value: initial, comparer: comparer, write: write, read: read}
}

func (v *Var[T]) Value() T {
	return v.value
}

func (v *Var[T]) Set(value T) {
	v.value = value
}

// Comparer 返回比较器
func (v *Var[T]) Comparer() Comparer[T] {
	return v.comparer
}

// Equals 在容差内与 other 比较
func (v *Var[T]) Equals(other T) bool {
	return v.comparer.Equals(v.value, other)
}

func (v *Var[T]) Serialize(w *Writer) {
	v.write(w, v.value)
}

func (v *Var[T]) Deserialize(r *Reader) {
	v.value = v.read(r)
}

func (v *Var[T]) CompareSerialized(a, b *Reader) bool {
	return v.comparer.Equals(v.read(a), v.read(b))
}

// NewFloat 浮点同步变量
func NewFloat(initial float32, tolerance float64) *Var[float32] {
	return NewVar(initial, Float32Comparer(tolerance), (*Writer).WriteFloat32, (*Reader).ReadFloat32)
}

// NewInt 整型同步变量，精确比较
func NewInt(initial int32) *Var[int32] {
	return NewVar(initial, Int32Comparer(0), (*Writer).WriteInt32, (*Reader).ReadInt32)
}

// NewLong 长整型同步变量，精确比较
func NewLong(initial int64) *Var[int64] {
	return NewVar(initial, Int64Comparer(0), (*Writer).WriteInt64, (*Reader).ReadInt64)
}

// NewBool 布尔同步变量
func NewBool(initial bool) *Var[bool] {
	return NewVar(initial, EquatableComparer[bool](), (*Writer).WriteBool, (*Reader).ReadBool)
}

// NewVector2 二维向量同步变量
func NewVector2(initial Vector2, tolerance float64) *Var[Vector2] {
	return NewVar(initial, Vector2Comparer(tolerance), writeVector2, readVector2)
}

// NewVector3 三维向量同步变量，tolerance 按距离平方计
func NewVector3(initial Vector3, tolerance float64) *Var[Vector3] {
	return NewVar(initial, Vector3Comparer(tolerance), writeVector3, readVector3)
}

// NewQuaternion 朝向同步变量，tolerance 为角度
func NewQuaternion(initial Quaternion, toleranceDegrees float64) *Var[Quaternion] {
	return NewVar(initial, QuaternionComparer(toleranceDegrees), writeQuaternion, readQuaternion)
}

func writeVector2(w *Writer, v Vector2) {
	w.WriteFloat32(v.X)
	w.WriteFloat32(v.Y)
}

func readVector2(r *Reader) Vector2 {
	return Vector2{X: r.ReadFloat32(), Y: r.ReadFloat32()}
}

func writeVector3(w *Writer, v Vector3) {
	w.WriteFloat32(v.X)
	w.WriteFloat32(v.Y)
	w.WriteFloat32(v.Z)
}

func readVector3(r *Reader) Vector3 {
	return Vector3{X: r.ReadFloat32(), Y: r.ReadFloat32(), Z: r.ReadFloat32()}
}

func writeQuaternion(w *Writer, q Quaternion) {
	w.WriteFloat32(q.X)
	w.WriteFloat32(q.Y)
	w.WriteFloat32(q.Z)
	w.WriteFloat32(q.W)
}

func readQuaternion(r *Reader) Quaternion {
	return Quaternion{X: r.ReadFloat32(), Y: r.ReadFloat32(), Z: r.ReadFloat32(), W: r.ReadFloat32()}
}

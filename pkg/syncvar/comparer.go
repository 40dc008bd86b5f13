package syncvar

import "math"

// Vector2 二维向量
type Vector2 struct {
	X, Y float32
}

// Add 向量相加
func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale 数乘
func (v Vector2) Scale(k float32) Vector2 {
	return Vector2{X: v.X * k, Y: v.Y * k}
}

// Vector3 三维向量
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion 单位四元数表示的朝向
type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion 无旋转
var IdentityQuaternion = Quaternion{W: 1}

// QuaternionFromYaw 绕 Z 轴旋转 yaw 弧度
func QuaternionFromYaw(yaw float64) Quaternion {
	s, c := math.Sincos(yaw / 2)
	return Quaternion{Z: float32(s), W: float32(c)}
}

// Comparer 同步变量的误差比较器
// Distance(a, b) <= Tolerance 时认为两个值相等，预测无需校正
type Comparer[T any] struct {
	Distance  func(a, b T) float64
	Tolerance float64
}

// Equals 判断在容差内是否相等
func (c Comparer[T]) Equals(a, b T) bool {
	return c.Distance(a, b) <= c.Tolerance
}

// Float32Comparer 绝对差
func Float32Comparer(tolerance float64) Comparer[float32] {
	return Comparer[float32]{
		Distance:  func(a, b float32) float64 { return math.Abs(float64(a) - float64(b)) },
		Tolerance: tolerance,
	}
}

// Int32Comparer 绝对差
func Int32Comparer(tolerance float64) Comparer[int32] {
	return Comparer[int32]{
		Distance:  func(a, b int32) float64 { return math.Abs(float64(a) - float64(b)) },
		Tolerance: tolerance,
	}
}

// Int64Comparer 绝对差
func Int64Comparer(tolerance float64) Comparer[int64] {
	return Comparer[int64]{
		Distance: func(a, b int64) float64 {
			if a > b {
				return float64(a - b)
			}
			return float64(b - a)
		},
		Tolerance: tolerance,
	}
}

// Vector2Comparer 欧氏距离
func Vector2Comparer(tolerance float64) Comparer[Vector2] {
	return Comparer[Vector2]{
		Distance: func(a, b Vector2) float64 {
			dx, dy := float64(a.X-b.X), float64(a.Y-b.Y)
			return math.Sqrt(dx*dx + dy*dy)
		},
		Tolerance: tolerance,
	}
}

// Vector3Comparer 距离的平方，容差与 Vector2Comparer 不在同一量纲
func Vector3Comparer(tolerance float64) Comparer[Vector3] {
	return Comparer[Vector3]{
		Distance: func(a, b Vector3) float64 {
			dx, dy, dz := float64(a.X-b.X), float64(a.Y-b.Y), float64(a.Z-b.Z)
			return dx*dx + dy*dy + dz*dz
		},
		Tolerance: tolerance,
	}
}

// QuaternionComparer 两个朝向之间的夹角（角度制）
func QuaternionComparer(toleranceDegrees float64) Comparer[Quaternion] {
	return Comparer[Quaternion]{
		Distance:  QuaternionAngle,
		Tolerance: toleranceDegrees,
	}
}

// QuaternionAngle 两个单位四元数之间的夹角（角度制）
func QuaternionAngle(a, b Quaternion) float64 {
	dot := float64(a.X)*float64(b.X) + float64(a.Y)*float64(b.Y) + float64(a.Z)*float64(b.Z) + float64(a.W)*float64(b.W)
	dot = math.Min(math.Abs(dot), 1)
	if dot > 1-1e-6 {
		return 0
	}
	return math.Acos(dot) * 2 * 180 / math.Pi
}

// EquatableComparer 精确比较，不相等距离为 1
func EquatableComparer[T comparable]() Comparer[T] {
	return Comparer[T]{
		Distance: func(a, b T) float64 {
			if a == b {
				return 0
			}
			return 1
		},
	}
}

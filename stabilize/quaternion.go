package stabilize

import "math"

// Quaternion is a float32 rotation, stored x, y, z, w the way the fusion
// math below expects: the vector part first, scalar last.
type Quaternion struct {
	X, Y, Z, W float32
}

// Identity returns the no-rotation quaternion.
func Identity() Quaternion { return Quaternion{0, 0, 0, 1} }

// FromAxisAngle builds a rotation of radians around axis.
func FromAxisAngle(axis Vector, radians float32) Quaternion {
	t := radians * 0.5
	s := float32(math.Sin(float64(t)))
	return Quaternion{axis.X * s, axis.Y * s, axis.Z * s, float32(math.Cos(float64(t)))}
}

// SetXYZW overwrites every component.
func (q *Quaternion) SetXYZW(x, y, z, w float32) {
	q.X, q.Y, q.Z, q.W = x, y, z, w
}

// Vector returns the quaternion's vector part.
func (q Quaternion) Vector() Vector { return Vector{q.X, q.Y, q.Z} }

// Conjugated negates the vector part, leaving W unchanged.
func (q Quaternion) Conjugated() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

// Norm is the squared length.
func (q Quaternion) Norm() float32 {
	return q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W
}

// Magnitude is the length.
func (q Quaternion) Magnitude() float32 {
	return float32(math.Sqrt(float64(q.Norm())))
}

// Scale multiplies every component by s.
func (q Quaternion) Scale(s float32) Quaternion {
	return Quaternion{q.X * s, q.Y * s, q.Z * s, q.W * s}
}

// UnitQuaternion divides by the current magnitude without guarding a
// zero-length quaternion, matching the source this is ported from —
// callers that might pass a zero quaternion should check IsZero first.
func (q Quaternion) UnitQuaternion() Quaternion {
	return q.Scale(1 / q.Magnitude())
}

// ToAxeAngle converts to an axis-angle representation packed back into a
// Quaternion: X/Y/Z hold the unit axis, W holds the angle in radians.
func (q Quaternion) ToAxeAngle() Quaternion {
	u := q.UnitQuaternion()
	n := float32(math.Sqrt(float64(u.X*u.X + u.Y*u.Y + u.Z*u.Z)))
	if n == 0 {
		return Quaternion{1, 0, 0, 0}
	}
	return Quaternion{u.X / n, u.Y / n, u.Z / n, 2 * float32(math.Acos(float64(u.W)))}
}

// Normalized returns a unit quaternion, or the identity if q is zero.
func (q Quaternion) Normalized() Quaternion {
	ls := q.Norm()
	if ls == 0 {
		return Identity()
	}
	return q.Scale(1 / float32(math.Sqrt(float64(ls))))
}

// Inverse assumes q is already a unit quaternion and returns its
// conjugate, which is cheaper than the general Inverted.
func (q Quaternion) Inverse() Quaternion {
	return q.Conjugated()
}

// Inverted divides the conjugate by the squared length, valid for any
// nonzero quaternion.
func (q Quaternion) Inverted() Quaternion {
	ls := q.Norm()
	c := q.Conjugated()
	return Quaternion{c.X / ls, c.Y / ls, c.Z / ls, c.W / ls}
}

// RotatedVector rotates v by q: q * (v, 0) * conjugate(q).
func (q Quaternion) RotatedVector(v Vector) Vector {
	p := Quaternion{v.X, v.Y, v.Z, 0}
	return q.Mul(p).Mul(q.Conjugated()).Vector()
}

// IsZero reports whether every component is exactly zero.
func (q Quaternion) IsZero() bool {
	return q.X == 0 && q.Y == 0 && q.Z == 0 && q.W == 0
}

// Add returns q + o, componentwise.
func (q Quaternion) Add(o Quaternion) Quaternion {
	return Quaternion{q.X + o.X, q.Y + o.Y, q.Z + o.Z, q.W + o.W}
}

// Sub returns q - o, componentwise.
func (q Quaternion) Sub(o Quaternion) Quaternion {
	return Quaternion{q.X - o.X, q.Y - o.Y, q.Z - o.Z, q.W - o.W}
}

// Neg returns -q, componentwise.
func (q Quaternion) Neg() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, -q.W}
}

// Mul composes rotations: q then o, i.e. the Hamilton product q*o.
func (q Quaternion) Mul(o Quaternion) Quaternion {
	return Quaternion{
		X: q.X*o.W + q.Y*o.Z - q.Z*o.Y + q.W*o.X,
		Y: -q.X*o.Z + q.Y*o.W + q.Z*o.X + q.W*o.Y,
		Z: q.X*o.Y - q.Y*o.X + q.Z*o.W + q.W*o.Z,
		W: -q.X*o.X - q.Y*o.Y - q.Z*o.Z + q.W*o.W,
	}
}

// DotQ returns the dot product of two quaternions.
func DotQ(p, q Quaternion) float32 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z + p.W*q.W
}

// LengthSquared returns q's squared length (same as Norm, kept as a free
// function for parity with the two-argument quaternion helpers below).
func LengthSquared(q Quaternion) float32 { return DotQ(q, q) }

// Length returns q's length.
func Length(q Quaternion) float32 {
	return float32(math.Sqrt(float64(LengthSquared(q))))
}

// Normalize returns a unit quaternion, or the identity if q is zero.
func Normalize(q Quaternion) Quaternion {
	ls := LengthSquared(q)
	if ls == 0 {
		return Identity()
	}
	return q.Scale(1 / float32(math.Sqrt(float64(ls))))
}

// InverseQ is the general (non-unit-assuming) inverse, the free-function
// form of Inverted.
func InverseQ(q Quaternion) Quaternion {
	ls := LengthSquared(q)
	c := q.Conjugated()
	return Quaternion{c.X / ls, c.Y / ls, c.Z / ls, c.W / ls}
}

// QuaternionFromMatrix3 builds a rotation quaternion from a row-major 3x3
// rotation matrix, using the standard trace-based branch to avoid
// dividing by a near-zero term.
func QuaternionFromMatrix3(m00, m01, m02, m10, m11, m12, m20, m21, m22 float32) Quaternion {
	trace := m00 + m11 + m22
	var s, x, y, z, w float32
	switch {
	case trace > 0:
		s = 0.5 / float32(math.Sqrt(float64(trace+1.0)))
		w = 0.25 / s
		x = (m21 - m12) * s
		y = (m02 - m20) * s
		z = (m10 - m01) * s
	case m00 > m11 && m00 > m22:
		s = 2.0 * float32(math.Sqrt(float64(1.0+m00-m11-m22)))
		w = (m21 - m12) / s
		x = 0.25 * s
		y = (m01 + m10) / s
		z = (m02 + m20) / s
	case m11 > m22:
		s = 2.0 * float32(math.Sqrt(float64(1.0+m11-m00-m22)))
		w = (m02 - m20) / s
		x = (m01 + m10) / s
		y = 0.25 * s
		z = (m12 + m21) / s
	default:
		s = 2.0 * float32(math.Sqrt(float64(1.0+m22-m00-m11)))
		w = (m10 - m01) / s
		x = (m02 + m20) / s
		y = (m12 + m21) / s
		z = 0.25 * s
	}
	return Quaternion{x, y, z, w}
}

// FromAxes builds the rotation whose columns are the given orthonormal
// axes.
func FromAxes(xAxis, yAxis, zAxis Vector) Quaternion {
	return QuaternionFromMatrix3(
		xAxis.X, yAxis.X, zAxis.X,
		xAxis.Y, yAxis.Y, zAxis.Y,
		xAxis.Z, yAxis.Z, zAxis.Z,
	)
}

// Package stabilize fuses CORI/IORI/GRAV orientation samples into a
// per-frame stabilization quaternion, in one of five modes ranging from
// no correction to full horizon-locked gravity alignment.
package stabilize

import "math"

// Vector is a 3-component float32 vector: gravity or a rotation axis.
type Vector struct {
	X, Y, Z float32
}

// Length returns the Euclidean norm.
func (v Vector) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Normalized returns v scaled to unit length, or the zero vector if v is
// already zero.
func (v Vector) Normalized() Vector {
	ls := v.X*v.X + v.Y*v.Y + v.Z*v.Z
	if ls == 0 {
		return Vector{}
	}
	inv := float32(1 / math.Sqrt(float64(ls)))
	return Vector{v.X * inv, v.Y * inv, v.Z * inv}
}

// IsZero reports whether every component is exactly zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Neg returns -v.
func (v Vector) Neg() Vector {
	return Vector{-v.X, -v.Y, -v.Z}
}

// Cross returns the cross product a × b.
func Cross(a, b Vector) Vector {
	return Vector{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Dot returns the dot product a · b.
func Dot(a, b Vector) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// Package xrmath converts between the two pose representations used by the
// client: quaternion+position poses reported by the headset runtime and the
// row-major homogeneous matrices expected by the remote streaming service.
//
// All functions are pure and stateless. Values are float32 to match the
// precision of both the tracking runtime and the wire format.
package xrmath

// RemoteScale is the fixed divisor applied to every vector component handed
// to the remote transform space.
const RemoteScale float32 = 1000

// Vec3 is a 3D vector in meters (or meters/second, radians/second).
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a rotation quaternion. Poses are expected to carry unit quaternions.
type Quat struct {
	X, Y, Z, W float32
}

// Pose is an orientation plus a position.
type Pose struct {
	Orientation Quat
	Position    Vec3
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// IdentityPose is a pose at the origin with no rotation.
var IdentityPose = Pose{Orientation: IdentityQuat}

// Matrix4 is a row-major 4x4 homogeneous transform: M[row][col].
type Matrix4 [4][4]float32

// Matrix34 is the top three rows of a row-major homogeneous transform.
// This is the layout the streaming service uses for device poses.
type Matrix34 [3][4]float32

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float32 {
	return sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// ToRemote scales v into the remote transform space.
func ToRemote(v Vec3) Vec3 {
	return Vec3{X: v.X / RemoteScale, Y: v.Y / RemoteScale, Z: v.Z / RemoteScale}
}

// Dot returns the 4D dot product of two quaternions.
func (q Quat) Dot(o Quat) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Neg returns -q, which represents the same rotation as q.
func (q Quat) Neg() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// Normalize returns q scaled to unit length. The zero quaternion maps to identity.
func (q Quat) Normalize() Quat {
	n := sqrt(q.Dot(q))
	if n == 0 {
		return IdentityQuat
	}
	return Quat{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

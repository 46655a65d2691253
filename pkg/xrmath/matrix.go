package xrmath

import "github.com/chewxy/math32"

func sqrt(x float32) float32 { return math32.Sqrt(x) }

// Identity returns the 4x4 identity matrix.
func Identity() Matrix4 {
	return Matrix4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Compose returns a∘b: the result transforms a point by b first, then by a.
// Accumulate transforms by left-multiplication.
func Compose(a, b Matrix4) Matrix4 {
	var out Matrix4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out[row][col] = a[row][0]*b[0][col] +
				a[row][1]*b[1][col] +
				a[row][2]*b[2][col] +
				a[row][3]*b[3][col]
		}
	}
	return out
}

// Translation returns a homogeneous translation matrix.
func Translation(x, y, z float32) Matrix4 {
	m := Identity()
	m[0][3] = x
	m[1][3] = y
	m[2][3] = z
	return m
}

// Rotation builds X, Y and Z rotation matrices independently and returns
// Rz∘(Ry∘Rx), so X is applied first.
func Rotation(radiansX, radiansY, radiansZ float32) Matrix4 {
	sinX, cosX := math32.Sincos(radiansX)
	rotationX := Matrix4{
		{1, 0, 0, 0},
		{0, cosX, -sinX, 0},
		{0, sinX, cosX, 0},
		{0, 0, 0, 1},
	}
	sinY, cosY := math32.Sincos(radiansY)
	rotationY := Matrix4{
		{cosY, 0, sinY, 0},
		{0, 1, 0, 0},
		{-sinY, 0, cosY, 0},
		{0, 0, 0, 1},
	}
	sinZ, cosZ := math32.Sincos(radiansZ)
	rotationZ := Matrix4{
		{cosZ, -sinZ, 0, 0},
		{sinZ, cosZ, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	return Compose(rotationZ, Compose(rotationY, rotationX))
}

// Matrix34 drops the homogeneous bottom row.
func (m Matrix4) Matrix34() Matrix34 {
	return Matrix34{m[0], m[1], m[2]}
}

// Matrix4 restores the homogeneous bottom row.
func (m Matrix34) Matrix4() Matrix4 {
	return Matrix4{m[0], m[1], m[2], {0, 0, 0, 1}}
}

// Translation returns the translation column.
func (m Matrix34) Translation() Vec3 {
	return Vec3{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

// TransformPoint applies m to p (w = 1).
func (m Matrix4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3],
		Y: m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3],
		Z: m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3],
	}
}

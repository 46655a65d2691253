package xrmath

// QuatToMatrix returns the 4x4 rotation matrix for q using the scalar/vector
// form. q must be a unit quaternion.
func QuatToMatrix(q Quat) Matrix4 {
	ww := q.W * q.W
	xx := q.X * q.X
	yy := q.Y * q.Y
	zz := q.Z * q.Z

	return Matrix4{
		{
			ww + xx - yy - zz,
			2 * (q.X*q.Y - q.W*q.Z),
			2 * (q.X*q.Z + q.W*q.Y),
			0,
		},
		{
			2 * (q.X*q.Y + q.W*q.Z),
			ww - xx + yy - zz,
			2 * (q.Y*q.Z - q.W*q.X),
			0,
		},
		{
			2 * (q.X*q.Z - q.W*q.Y),
			2 * (q.Y*q.Z + q.W*q.X),
			ww - xx - yy + zz,
			0,
		},
		{0, 0, 0, 1},
	}
}

// PoseToMatrix returns translation∘rotation for p: rotate first, then translate.
func PoseToMatrix(p Pose) Matrix4 {
	rotation := QuatToMatrix(p.Orientation)
	translation := Translation(p.Position.X, p.Position.Y, p.Position.Z)
	return Compose(translation, rotation)
}

// MatrixToQuaternion extracts the rotation of the upper 3x3 block of m.
//
// When the trace is positive the w-based formula is used. Otherwise the
// largest diagonal element selects the formula, so the divisor never
// approaches zero.
func MatrixToQuaternion(m Matrix34) Quat {
	var q Quat
	trace := m[0][0] + m[1][1] + m[2][2]
	if trace > 0 {
		s := 0.5 / sqrt(trace+1)
		q.W = 0.25 / s
		q.X = (m[2][1] - m[1][2]) * s
		q.Y = (m[0][2] - m[2][0]) * s
		q.Z = (m[1][0] - m[0][1]) * s
		return q
	}

	switch {
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2 * sqrt(1+m[0][0]-m[1][1]-m[2][2])
		q.W = (m[2][1] - m[1][2]) / s
		q.X = 0.25 * s
		q.Y = (m[0][1] + m[1][0]) / s
		q.Z = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := 2 * sqrt(1+m[1][1]-m[0][0]-m[2][2])
		q.W = (m[0][2] - m[2][0]) / s
		q.X = (m[0][1] + m[1][0]) / s
		q.Y = 0.25 * s
		q.Z = (m[1][2] + m[2][1]) / s
	default:
		s := 2 * sqrt(1+m[2][2]-m[0][0]-m[1][1])
		q.W = (m[1][0] - m[0][1]) / s
		q.X = (m[0][2] + m[2][0]) / s
		q.Y = (m[1][2] + m[2][1]) / s
		q.Z = 0.25 * s
	}
	return q
}

// MatrixToPose splits m into its rotation and translation.
func MatrixToPose(m Matrix34) Pose {
	return Pose{
		Orientation: MatrixToQuaternion(m),
		Position:    m.Translation(),
	}
}

// SameRotation reports whether a and b describe the same rotation within
// tol, treating q and -q as equal.
func SameRotation(a, b Quat, tol float32) bool {
	d := a.Dot(b)
	if d < 0 {
		d = -d
	}
	return 1-d <= tol
}

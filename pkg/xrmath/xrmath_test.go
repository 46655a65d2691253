package xrmath

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-5

func toMgl(m Matrix4) mgl32.Mat4 {
	var out mgl32.Mat4
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			out.Set(row, col, m[row][col])
		}
	}
	return out
}

func assertMatrixEqual(t *testing.T, want mgl32.Mat4, got Matrix4) {
	t.Helper()
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			assert.InDeltaf(t, want.At(row, col), got[row][col], tol, "M[%d][%d]", row, col)
		}
	}
}

func randomPose(r *rand.Rand) Pose {
	q := Quat{
		X: r.Float32()*2 - 1,
		Y: r.Float32()*2 - 1,
		Z: r.Float32()*2 - 1,
		W: r.Float32()*2 - 1,
	}.Normalize()
	return Pose{
		Orientation: q,
		Position: Vec3{
			X: r.Float32()*10 - 5,
			Y: r.Float32()*10 - 5,
			Z: r.Float32()*10 - 5,
		},
	}
}

func TestQuatToMatrix_MatchesMathgl(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		q := randomPose(r).Orientation
		want := mgl32.Quat{W: q.W, V: mgl32.Vec3{q.X, q.Y, q.Z}}.Mat4()
		assertMatrixEqual(t, want, QuatToMatrix(q))
	}
}

func TestCompose_MatchesMathgl(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 50; i++ {
		a := PoseToMatrix(randomPose(r))
		b := PoseToMatrix(randomPose(r))
		assertMatrixEqual(t, toMgl(a).Mul4(toMgl(b)), Compose(a, b))
	}
}

func TestCompose_AppliesRightOperandFirst(t *testing.T) {
	// Rotate 90° about Z, then translate +X.
	rot := Rotation(0, 0, math32.Pi/2)
	trans := Translation(1, 0, 0)

	p := Compose(trans, rot).TransformPoint(Vec3{X: 1})
	assert.InDelta(t, 1, p.X, tol)
	assert.InDelta(t, 1, p.Y, tol)
	assert.InDelta(t, 0, p.Z, tol)

	// Reversed order: translate first, then rotate.
	p = Compose(rot, trans).TransformPoint(Vec3{X: 1})
	assert.InDelta(t, 0, p.X, tol)
	assert.InDelta(t, 2, p.Y, tol)
}

func TestRotation_ComposesZYX(t *testing.T) {
	x, y, z := float32(0.3), float32(-0.7), float32(1.1)
	want := mgl32.HomogRotate3DZ(z).Mul4(mgl32.HomogRotate3DY(y)).Mul4(mgl32.HomogRotate3DX(x))
	assertMatrixEqual(t, want, Rotation(x, y, z))
}

func TestRotation_XOnly(t *testing.T) {
	m := Rotation(0.45, 0, 0)
	s, c := math32.Sincos(0.45)
	assert.InDelta(t, 1, m[0][0], tol)
	assert.InDelta(t, c, m[1][1], tol)
	assert.InDelta(t, -s, m[1][2], tol)
	assert.InDelta(t, s, m[2][1], tol)
	assert.InDelta(t, c, m[2][2], tol)
}

func TestPoseToMatrix_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		pose := randomPose(r)
		m := PoseToMatrix(pose).Matrix34()

		got := MatrixToPose(m)
		require.Truef(t, SameRotation(pose.Orientation, got.Orientation, tol),
			"rotation mismatch: want %+v got %+v", pose.Orientation, got.Orientation)
		require.Equal(t, pose.Position, got.Position, "position must round-trip exactly")
	}
}

func TestMatrixToQuaternion_Branches(t *testing.T) {
	h := math32.Sqrt(0.5)
	tests := []struct {
		name string
		m    Matrix34
		want Quat
	}{
		{
			name: "positive trace",
			m:    Identity().Matrix34(),
			want: IdentityQuat,
		},
		{
			name: "x dominant",
			m:    Matrix34{{1, 0, 0, 0}, {0, -1, 0, 0}, {0, 0, -1, 0}},
			want: Quat{X: 1},
		},
		{
			name: "y dominant",
			m:    Matrix34{{-1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, -1, 0}},
			want: Quat{Y: 1},
		},
		{
			name: "z dominant",
			m:    Matrix34{{-1, 0, 0, 0}, {0, -1, 0, 0}, {0, 0, 1, 0}},
			want: Quat{Z: 1},
		},
		{
			// m00 == m11 > m22: the tie falls through to the y branch.
			name: "x/y tie",
			m:    Matrix34{{0, 1, 0, 0}, {1, 0, 0, 0}, {0, 0, -1, 0}},
			want: Quat{X: h, Y: h},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MatrixToQuaternion(tc.m)
			assert.InDelta(t, tc.want.X, got.X, tol)
			assert.InDelta(t, tc.want.Y, got.Y, tol)
			assert.InDelta(t, tc.want.Z, got.Z, tol)
			assert.InDelta(t, tc.want.W, got.W, tol)
		})
	}
}

func TestToRemote(t *testing.T) {
	got := ToRemote(Vec3{X: 1000, Y: -250, Z: 1})
	assert.Equal(t, Vec3{X: 1, Y: -0.25, Z: 0.001}, got)
}

func TestQuatNormalize(t *testing.T) {
	assert.Equal(t, IdentityQuat, Quat{}.Normalize())

	q := Quat{X: 2, W: 2}.Normalize()
	assert.InDelta(t, 1, q.Dot(q), tol)
	assert.True(t, SameRotation(q, q.Neg(), tol))
}

func TestMatrix34_Translation(t *testing.T) {
	m := Translation(1, 2, 3).Matrix34()
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, m.Translation())
	assert.Equal(t, Translation(1, 2, 3), m.Matrix4())
}

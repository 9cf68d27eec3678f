package utils

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// result in radians
func QuatToEuler(q mgl32.Quat) (e mgl32.Vec3) {
	sinr_cosp := float64(2 * (q.W*q.X() + q.Y()*q.Z()))
	cosr_cosp := float64(1 - 2*(q.X()*q.X()+q.Y()*q.Y()))

	e[0] = float32(math.Atan2(sinr_cosp, cosr_cosp))

	sinp := float64(2 * (q.W*q.Y() - q.Z()*q.X()))
	if math.Abs(sinp) >= 1 {
		e[1] = math.Pi / 2
		if sinp < 0 {
			e[1] *= -1
		}
	} else {
		e[1] = float32(math.Asin(sinp))
	}

	siny_cosp := float64(2 * (q.W*q.Z() + q.X()*q.Y()))
	cosy_cosp := float64(1 - 2*(q.Y()*q.Y()+q.Z()*q.Z()))
	e[2] = float32(math.Atan2(siny_cosp, cosy_cosp))

	return e
}

// input in degrees, XYZ application order as the fbx sdk does it
func EulerDegreesToQuat(v mgl32.Vec3) mgl32.Quat {
	rx := mgl32.QuatRotate(mgl32.DegToRad(v[0]), mgl32.Vec3{1, 0, 0})
	ry := mgl32.QuatRotate(mgl32.DegToRad(v[1]), mgl32.Vec3{0, 1, 0})
	rz := mgl32.QuatRotate(mgl32.DegToRad(v[2]), mgl32.Vec3{0, 0, 1})
	return rz.Mul(ry).Mul(rx).Normalize()
}

// TRS composition. mgl32.Mat4 is column-major, so m[:] is already the
// flattened form the game's simd loader expects.
func ComposeMat4(translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(translation[0], translation[1], translation[2]).
		Mul4(rotation.Mat4()).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
}

func FloatArray32to64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

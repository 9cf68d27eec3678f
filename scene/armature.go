package scene

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/maxportland/metalman/utils"
)

// Bone rest transforms are parent-relative. Bones are stored in hierarchy
// order: a parent always precedes its children, so Parent indexes earlier
// entries (-1 for roots).
type Bone struct {
	Name   string
	Parent int

	RestTranslation mgl32.Vec3
	RestRotation    mgl32.Quat
	RestScale       mgl32.Vec3
}

type Armature struct {
	Name  string
	Bones []Bone
	users int
}

func (a *Armature) BoneIndex(name string) int {
	for i := range a.Bones {
		if a.Bones[i].Name == name {
			return i
		}
	}
	return -1
}

// Pose is the armature evaluated at one frame: per-bone matrices in
// armature space, in bone order.
type Pose struct {
	Matrices []mgl32.Mat4
}

// Evaluate poses every bone at a frame. Animated channels replace the
// bone's rest transform component-wise (fbx local TRS semantics); bones
// the action never touches keep their rest pose.
func (a *Armature) Evaluate(action *Action, frame float32) *Pose {
	pose := &Pose{Matrices: make([]mgl32.Mat4, len(a.Bones))}

	for i := range a.Bones {
		bone := &a.Bones[i]

		translation := bone.RestTranslation
		rotation := bone.RestRotation
		scale := bone.RestScale

		if action != nil {
			loc := action.SampleVec3(bone.Name, ChannelLocation, frame,
				[3]float32{translation[0], translation[1], translation[2]})
			translation = mgl32.Vec3{loc[0], loc[1], loc[2]}

			if hasRotationCurve(action, bone.Name) {
				rot := action.SampleVec3(bone.Name, ChannelRotationEuler, frame, restEulerDegrees(rotation))
				rotation = utils.EulerDegreesToQuat(mgl32.Vec3{rot[0], rot[1], rot[2]})
			}

			scl := action.SampleVec3(bone.Name, ChannelScale, frame,
				[3]float32{scale[0], scale[1], scale[2]})
			scale = mgl32.Vec3{scl[0], scl[1], scl[2]}
		}

		local := utils.ComposeMat4(translation, rotation, scale)
		if bone.Parent >= 0 {
			pose.Matrices[i] = pose.Matrices[bone.Parent].Mul4(local)
		} else {
			pose.Matrices[i] = local
		}
	}

	return pose
}

func hasRotationCurve(action *Action, bone string) bool {
	for i := 0; i < 3; i++ {
		if fc := action.Curve(bone, ChannelRotationEuler, i); fc != nil && len(fc.Keyframes) > 0 {
			return true
		}
	}
	return false
}

func restEulerDegrees(q mgl32.Quat) [3]float32 {
	e := utils.QuatToEuler(q)
	const radToDeg = 180.0 / 3.14159265358979323846
	return [3]float32{e[0] * radToDeg, e[1] * radToDeg, e[2] * radToDeg}
}

// LocalMatrix returns the bone transform relative to its parent (or to
// the armature for roots), computed the way the json exporter always did
// it: parent matrix inverted against the bone's armature-space matrix.
func (p *Pose) LocalMatrix(a *Armature, boneIndex int) mgl32.Mat4 {
	bone := &a.Bones[boneIndex]
	if bone.Parent < 0 {
		return p.Matrices[boneIndex]
	}
	return p.Matrices[bone.Parent].Inv().Mul4(p.Matrices[boneIndex])
}

// RestPose evaluates the armature with no action assigned.
func (a *Armature) RestPose() *Pose {
	return a.Evaluate(nil, 0)
}

// InverseBindMatrices derives skinning bind matrices from the rest pose.
func (a *Armature) InverseBindMatrices() []mgl32.Mat4 {
	rest := a.RestPose()
	out := make([]mgl32.Mat4, len(a.Bones))
	for i := range a.Bones {
		out[i] = rest.Matrices[i].Inv()
	}
	return out
}

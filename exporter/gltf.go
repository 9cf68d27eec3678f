package exporter

import (
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/scene"
	"github.com/maxportland/metalman/utils"
	"github.com/maxportland/metalman/utils/gltfutils"
)

// GLTFExporter bakes the scene into a glb: bone node hierarchy, one skin,
// skinned mesh primitives and the active action as a sampled animation.
type GLTFExporter struct{}

func (e *GLTFExporter) Extension() string { return "glb" }

func (e *GLTFExporter) Export(sc *scene.Scene, path string, profile config.ExportProfile) error {
	doc := gltfutils.NewDocument()

	armObj := sc.FirstArmature()
	var jointNodes []uint32
	var skinIndex *uint32
	if armObj != nil {
		jointNodes = exportBones(doc, armObj.Armature)
		ibm := gltfutils.WriteMat4s(doc, armObj.Armature.InverseBindMatrices())
		doc.Skins = append(doc.Skins, &gltf.Skin{
			Name:                armObj.Name,
			InverseBindMatrices: gltf.Index(ibm),
			Joints:              jointNodes,
		})
		skinIndex = gltf.Index(uint32(len(doc.Skins) - 1))
		// skeleton root enters the scene directly
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, jointNodes[0])
	}

	for _, o := range sc.Objects {
		if o.Type != scene.ObjectMesh || o.Mesh == nil {
			continue
		}
		meshIndex, err := exportMesh(doc, o.Mesh, profile)
		if err != nil {
			return errors.Wrapf(err, "Unable to export mesh %q", o.Name)
		}
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name: o.Name,
			Mesh: gltf.Index(meshIndex),
			Skin: skinIndex,
		})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}

	if armObj != nil && armObj.Action != nil {
		exportAnimation(doc, sc, armObj, jointNodes)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Unable to create %q", path)
	}
	defer f.Close()

	if err := gltfutils.ExportBinary(f, doc); err != nil {
		return errors.Wrapf(err, "Unable to encode glb %q", path)
	}
	return nil
}

func exportBones(doc *gltf.Document, arm *scene.Armature) []uint32 {
	jointNodes := make([]uint32, len(arm.Bones))
	for i := range arm.Bones {
		bone := &arm.Bones[i]
		node := &gltf.Node{
			Name:        bone.Name,
			Translation: bone.RestTranslation,
			Rotation:    bone.RestRotation.V.Vec4(bone.RestRotation.W),
			Scale:       bone.RestScale,
		}
		jointNodes[i] = uint32(len(doc.Nodes))
		doc.Nodes = append(doc.Nodes, node)

		if bone.Parent >= 0 {
			parent := doc.Nodes[jointNodes[bone.Parent]]
			parent.Children = append(parent.Children, jointNodes[i])
		}
	}
	return jointNodes
}

func exportMesh(doc *gltf.Document, m *scene.Mesh, profile config.ExportProfile) (uint32, error) {
	if len(m.Vertices) == 0 {
		return 0, errors.Errorf("Mesh without vertices")
	}

	attributes := make(map[string]uint32)
	attributes["POSITION"] = modeler.WritePosition(doc, m.Vertices)
	if len(m.Joints) == len(m.Vertices) {
		attributes["JOINTS_0"] = modeler.WriteJoints(doc, m.Joints)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(doc, m.Weights)
	}
	if profile != config.ProfileMinimal {
		if m.Normals != nil {
			attributes["NORMAL"] = modeler.WriteNormal(doc, m.Normals)
		}
		if m.UVs != nil {
			attributes["TEXCOORD_0"] = modeler.WriteTextureCoord(doc, m.UVs)
		}
	}
	indicesAccessor := modeler.WriteIndices(doc, m.Indices)

	primitive := &gltf.Primitive{
		Indices:    gltf.Index(indicesAccessor),
		Attributes: attributes,
	}

	if profile == config.ProfileFull && len(m.Materials) > 0 {
		mat := m.Materials[0]
		color := new([4]float32)
		*color = mat.Diffuse
		doc.Materials = append(doc.Materials, &gltf.Material{
			Name:        mat.Name,
			DoubleSided: true,
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: color,
			},
		})
		primitive.Material = gltf.Index(uint32(len(doc.Materials) - 1))
	}

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name:       m.Name,
		Primitives: []*gltf.Primitive{primitive},
	})
	return uint32(len(doc.Meshes) - 1), nil
}

// exportAnimation bakes the active action at every integer frame of its
// range into per-bone translation and rotation samplers.
func exportAnimation(doc *gltf.Document, sc *scene.Scene, armObj *scene.Object, jointNodes []uint32) {
	action := armObj.Action
	arm := armObj.Armature
	start, end := action.FrameRange()
	if end < start {
		return
	}

	frames := end - start + 1
	times := make([]float32, frames)
	for i := range times {
		times[i] = float32(i) / float32(sc.FPS)
	}
	timesAccessor := gltfutils.WriteTimes(doc, times)

	anim := &gltf.Animation{Name: action.Name}

	for iBone := range arm.Bones {
		bone := &arm.Bones[iBone]

		translations := make([][3]float32, frames)
		rotations := make([][4]float32, frames)
		for f := 0; f < frames; f++ {
			frame := float32(start + f)

			loc := action.SampleVec3(bone.Name, scene.ChannelLocation, frame,
				[3]float32{bone.RestTranslation[0], bone.RestTranslation[1], bone.RestTranslation[2]})
			translations[f] = loc

			rotation := bone.RestRotation
			if hasRotation(action, bone.Name) {
				rot := action.SampleVec3(bone.Name, scene.ChannelRotationEuler, frame, [3]float32{})
				rotation = utils.EulerDegreesToQuat(mgl32.Vec3{rot[0], rot[1], rot[2]})
			}
			rotations[f] = [4]float32{rotation.X(), rotation.Y(), rotation.Z(), rotation.W}
		}

		translationSampler := uint32(len(anim.Samplers))
		anim.Samplers = append(anim.Samplers, &gltf.AnimationSampler{
			Input:         gltf.Index(timesAccessor),
			Output:        gltf.Index(gltfutils.WriteVec3s(doc, translations)),
			Interpolation: gltf.InterpolationLinear,
		})
		anim.Channels = append(anim.Channels, &gltf.Channel{
			Sampler: gltf.Index(translationSampler),
			Target: gltf.ChannelTarget{
				Node: gltf.Index(jointNodes[iBone]),
				Path: gltf.TRSTranslation,
			},
		})

		rotationSampler := uint32(len(anim.Samplers))
		anim.Samplers = append(anim.Samplers, &gltf.AnimationSampler{
			Input:         gltf.Index(timesAccessor),
			Output:        gltf.Index(gltfutils.WriteQuats(doc, rotations)),
			Interpolation: gltf.InterpolationLinear,
		})
		anim.Channels = append(anim.Channels, &gltf.Channel{
			Sampler: gltf.Index(rotationSampler),
			Target: gltf.ChannelTarget{
				Node: gltf.Index(jointNodes[iBone]),
				Path: gltf.TRSRotation,
			},
		})
	}

	doc.Animations = append(doc.Animations, anim)
}

func hasRotation(action *scene.Action, bone string) bool {
	for i := 0; i < 3; i++ {
		if fc := action.Curve(bone, scene.ChannelRotationEuler, i); fc != nil && len(fc.Keyframes) > 0 {
			return true
		}
	}
	return false
}

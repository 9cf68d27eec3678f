package exporter

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mogaika/fbx"
	"github.com/mogaika/fbx/builders/bfbx73"
	"github.com/pkg/errors"

	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/scene"
	"github.com/maxportland/metalman/utils"
	"github.com/maxportland/metalman/utils/fbxbuilder"
)

const fbxKTimePerSecond = 46186158000

// FBXExporter writes the scene as a binary fbx wrapped in a zip archive.
// No builder helpers exist for deformer and animation records, those are
// assembled as raw nodes.
type FBXExporter struct{}

func (e *FBXExporter) Extension() string { return "fbz" }

func (e *FBXExporter) Export(sc *scene.Scene, path string, profile config.ExportProfile) error {
	f := fbxbuilder.NewFBXBuilder(path)

	var boneModelIds []int64
	var armature *scene.Armature
	var action *scene.Action

	if armObj := sc.FirstArmature(); armObj != nil {
		armature = armObj.Armature
		action = armObj.Action
		boneModelIds = e.exportSkeleton(f, armature)
	}

	for _, o := range sc.Objects {
		if o.Type != scene.ObjectMesh || o.Mesh == nil {
			continue
		}
		if err := e.exportMesh(f, o, armature, boneModelIds, profile); err != nil {
			return errors.Wrapf(err, "Unable to export mesh %q", o.Name)
		}
	}

	if armature != nil && action != nil {
		e.exportAnimation(f, sc, armature, action, boneModelIds)
	}

	w, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Unable to create %q", path)
	}
	defer w.Close()

	inner := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".fbx"
	return f.WriteZip(w, inner)
}

// exportSkeleton emits one LimbNode model per bone with its rest local
// transform and returns the model ids in bone order.
func (e *FBXExporter) exportSkeleton(f *fbxbuilder.FBXBuilder, armature *scene.Armature) []int64 {
	ids := make([]int64, len(armature.Bones))

	for i := range armature.Bones {
		bone := &armature.Bones[i]

		rot := utils.QuatToEuler(bone.RestRotation).Mul(180.0 / 3.14159265358979323846)

		modelId := f.GenerateId()
		ids[i] = modelId
		model := bfbx73.Model(modelId, bone.Name+"\x00\x01Model", "LimbNode").AddNodes(
			bfbx73.Version(232),
			bfbx73.Properties70().AddNodes(
				bfbx73.P("InheritType", "enum", "", "", int32(1)),
				bfbx73.P("DefaultAttributeIndex", "int", "Integer", "", int32(0)),
				bfbx73.P("Lcl Translation", "Lcl Translation", "", "A",
					float64(bone.RestTranslation[0]), float64(bone.RestTranslation[1]), float64(bone.RestTranslation[2])),
				bfbx73.P("Lcl Rotation", "Lcl Rotation", "", "A",
					float64(rot[0]), float64(rot[1]), float64(rot[2])),
				bfbx73.P("Lcl Scaling", "Lcl Scaling", "", "A",
					float64(bone.RestScale[0]), float64(bone.RestScale[1]), float64(bone.RestScale[2])),
			),
			bfbx73.Shading(true),
			bfbx73.Culling("CullingOff"),
		)

		attributeId := f.GenerateId()
		attribute := bfbx73.NodeAttribute(attributeId, bone.Name+"\x00\x01NodeAttribute", "LimbNode").AddNodes(
			bfbx73.TypeFlags("Skeleton"),
		)

		f.AddObjects(model, attribute)
		f.AddConnections(bfbx73.C("OO", attributeId, modelId))
		if bone.Parent >= 0 {
			f.AddConnections(bfbx73.C("OO", modelId, ids[bone.Parent]))
		} else {
			f.AddConnections(bfbx73.C("OO", modelId, 0))
		}
	}

	return ids
}

func (e *FBXExporter) exportMesh(f *fbxbuilder.FBXBuilder, o *scene.Object,
	armature *scene.Armature, boneModelIds []int64, profile config.ExportProfile) error {
	m := o.Mesh

	vertices := make([]float64, 0, len(m.Vertices)*3)
	for _, v := range m.Vertices {
		vertices = append(vertices, float64(v[0]), float64(v[1]), float64(v[2]))
	}

	if len(m.Indices)%3 != 0 {
		return errors.Errorf("Index count %d is not a triangle list", len(m.Indices))
	}
	indexes := make([]int32, 0, len(m.Indices))
	for i := 0; i < len(m.Indices); i += 3 {
		indexes = append(indexes,
			int32(m.Indices[i]), int32(m.Indices[i+1]), ^int32(m.Indices[i+2]))
	}

	geometryId := f.GenerateId()
	geometryLayer := bfbx73.Layer(0).AddNodes(
		bfbx73.Version(100),
	)
	geometry := bfbx73.Geometry(geometryId, "\x00\x01Geometry", "Mesh").AddNodes(
		bfbx73.Properties70().AddNodes(
			bfbx73.P("Color", "ColorRGB", "Color", "", float64(1), float64(1), float64(1)),
		),
		bfbx73.GeometryVersion(124),
		bfbx73.Vertices(vertices),
		bfbx73.PolygonVertexIndex(indexes),
		geometryLayer,
	)

	if profile != config.ProfileMinimal && len(m.Normals) == len(m.Vertices) {
		normals := make([]float64, 0, len(m.Normals)*3)
		for _, n := range m.Normals {
			normals = append(normals, float64(n[0]), float64(n[1]), float64(n[2]))
		}
		geometry.AddNode(
			bfbx73.LayerElementNormal(0).AddNodes(
				bfbx73.Version(101),
				bfbx73.Name(""),
				bfbx73.MappingInformationType("ByVertice"),
				bfbx73.ReferenceInformationType("Direct"),
				bfbx73.Normals(normals),
			),
		)
		geometryLayer.AddNode(
			bfbx73.LayerElement().AddNodes(
				bfbx73.Type("LayerElementNormal"),
				bfbx73.TypedIndex(0),
			),
		)
	}

	if profile != config.ProfileMinimal && len(m.UVs) == len(m.Vertices) {
		uv := make([]float64, 0, len(m.UVs)*2)
		for _, t := range m.UVs {
			uv = append(uv, float64(t[0]), float64(-t[1]))
		}
		uvindexes := make([]int32, 0, len(m.Indices))
		for _, idx := range m.Indices {
			uvindexes = append(uvindexes, int32(idx))
		}
		geometry.AddNode(
			bfbx73.LayerElementUV(0).AddNodes(
				bfbx73.Version(101),
				bfbx73.Name(""),
				bfbx73.MappingInformationType("ByPolygonVertex"),
				bfbx73.ReferenceInformationType("IndexToDirect"),
				bfbx73.UV(uv),
				bfbx73.UVIndex(uvindexes),
			),
		)
		geometryLayer.AddNode(
			bfbx73.LayerElement().AddNodes(
				bfbx73.Type("LayerElementUV"),
				bfbx73.TypedIndex(0),
			),
		)
	}

	modelId := f.GenerateId()
	model := bfbx73.Model(modelId, o.Name+"\x00\x01Model", "Mesh").AddNodes(
		bfbx73.Version(232),
		bfbx73.Properties70().AddNodes(
			bfbx73.P("InheritType", "enum", "", "", int32(1)),
			bfbx73.P("DefaultAttributeIndex", "int", "Integer", "", int32(0)),
			bfbx73.P("Lcl Translation", "Lcl Translation", "", "A", float64(0), float64(0), float64(0)),
			bfbx73.P("Lcl Rotation", "Lcl Rotation", "", "A", float64(0), float64(0), float64(0)),
			bfbx73.P("Lcl Scaling", "Lcl Scaling", "", "A", float64(1), float64(1), float64(1)),
		),
		bfbx73.Shading(true),
		bfbx73.Culling("CullingOff"),
	)

	f.AddObjects(model, geometry)
	f.AddConnections(
		bfbx73.C("OO", geometryId, modelId),
		bfbx73.C("OO", modelId, 0),
	)

	if profile == config.ProfileFull {
		e.exportMaterial(f, m, modelId)
	}

	if armature != nil && len(m.Joints) == len(m.Vertices) {
		e.exportSkin(f, m, armature, boneModelIds, geometryId)
	}

	return nil
}

func (e *FBXExporter) exportMaterial(f *fbxbuilder.FBXBuilder, m *scene.Mesh, modelId int64) {
	for _, mat := range m.Materials {
		materialId := f.GenerateId()
		material := bfbx73.Material(materialId, mat.Name+"\x00\x01Material", "").AddNodes(
			bfbx73.Version(102),
			bfbx73.ShadingModel("phong"),
			bfbx73.MultiLayer(0),
			bfbx73.Properties70().AddNodes(
				bfbx73.P("DiffuseColor", "Color", "", "A",
					float64(mat.Diffuse[0]), float64(mat.Diffuse[1]), float64(mat.Diffuse[2])),
				bfbx73.P("TransparencyFactor", "Number", "", "A", float64(1-mat.Diffuse[3])),
			),
		)
		f.AddObjects(material)
		f.AddConnections(bfbx73.C("OO", materialId, modelId))
	}
}

// exportSkin wires a Skin deformer with one Cluster per bone that any
// vertex references. Transform is the inverse bind matrix, TransformLink
// the bone's rest matrix in armature space.
func (e *FBXExporter) exportSkin(f *fbxbuilder.FBXBuilder, m *scene.Mesh,
	armature *scene.Armature, boneModelIds []int64, geometryId int64) {
	rest := armature.RestPose()

	type clusterData struct {
		indexes []int32
		weights []float64
	}
	clusters := make(map[int]*clusterData)

	for iVertex := range m.Joints {
		for k := 0; k < 4; k++ {
			w := m.Weights[iVertex][k]
			if w <= 0 {
				continue
			}
			bone := int(m.Joints[iVertex][k])
			c, ok := clusters[bone]
			if !ok {
				c = &clusterData{}
				clusters[bone] = c
			}
			c.indexes = append(c.indexes, int32(iVertex))
			c.weights = append(c.weights, float64(w))
		}
	}

	skinId := f.GenerateId()
	skin := rawNode("Deformer", skinId, "\x00\x01Deformer", "Skin")
	skin.AddNodes(
		rawNode("Version", int32(101)),
		rawNode("Link_DeformAcuracy", float64(50)),
	)
	f.AddObjects(skin)
	f.AddConnections(bfbx73.C("OO", skinId, geometryId))

	for iBone := range armature.Bones {
		c, ok := clusters[iBone]
		if !ok {
			continue
		}

		link := rest.Matrices[iBone]
		inv := link.Inv()
		clusterId := f.GenerateId()
		cluster := rawNode("Deformer", clusterId, armature.Bones[iBone].Name+"\x00\x01SubDeformer", "Cluster")
		cluster.AddNodes(
			rawNode("Version", int32(100)),
			rawNode("UserData", "", ""),
			rawNode("Indexes", c.indexes),
			rawNode("Weights", c.weights),
			rawNode("Transform", utils.FloatArray32to64(inv[:])),
			rawNode("TransformLink", utils.FloatArray32to64(link[:])),
		)
		f.AddObjects(cluster)
		f.AddConnections(
			bfbx73.C("OO", clusterId, skinId),
			bfbx73.C("OO", boneModelIds[iBone], clusterId),
		)
	}
}

var fbxChannelProps = map[scene.Channel]struct {
	curveNodeName string
	property      string
}{
	scene.ChannelLocation:      {"T", "Lcl Translation"},
	scene.ChannelRotationEuler: {"R", "Lcl Rotation"},
	scene.ChannelScale:         {"S", "Lcl Scaling"},
}

var fbxComponentProps = [3]string{"d|X", "d|Y", "d|Z"}

// exportAnimation writes one animation stack holding the scene's active
// take. Curves carry the native keyframes, not resampled ones.
func (e *FBXExporter) exportAnimation(f *fbxbuilder.FBXBuilder, sc *scene.Scene,
	armature *scene.Armature, action *scene.Action, boneModelIds []int64) {
	start, end := action.FrameRange()
	stopTime := frameToKTime(float32(end), sc.FPS)

	stackId := f.GenerateId()
	stack := rawNode("AnimationStack", stackId, action.Name+"\x00\x01AnimStack", "")
	stack.AddNodes(
		bfbx73.Properties70().AddNodes(
			bfbx73.P("LocalStart", "KTime", "Time", "", frameToKTime(float32(start), sc.FPS)),
			bfbx73.P("LocalStop", "KTime", "Time", "", stopTime),
			bfbx73.P("ReferenceStart", "KTime", "Time", "", frameToKTime(float32(start), sc.FPS)),
			bfbx73.P("ReferenceStop", "KTime", "Time", "", stopTime),
		),
	)

	layerId := f.GenerateId()
	layer := rawNode("AnimationLayer", layerId, "BaseLayer\x00\x01AnimLayer", "")

	f.AddObjects(stack, layer)
	f.AddConnections(bfbx73.C("OO", layerId, stackId))

	for iBone := range armature.Bones {
		boneName := armature.Bones[iBone].Name

		for channel, props := range fbxChannelProps {
			var curves [3]*scene.FCurve
			animated := false
			for i := 0; i < 3; i++ {
				curves[i] = action.Curve(boneName, channel, i)
				if curves[i] != nil && len(curves[i].Keyframes) > 0 {
					animated = true
				}
			}
			if !animated {
				continue
			}

			curveNodeId := f.GenerateId()
			curveNode := rawNode("AnimationCurveNode", curveNodeId, props.curveNodeName+"\x00\x01AnimCurveNode", "")
			curveNode.AddNodes(bfbx73.Properties70())
			f.AddObjects(curveNode)
			f.AddConnections(
				bfbx73.C("OO", curveNodeId, layerId),
				rawNode("C", "OP", curveNodeId, boneModelIds[iBone], props.property),
			)

			for i := 0; i < 3; i++ {
				fc := curves[i]
				if fc == nil || len(fc.Keyframes) == 0 {
					continue
				}
				e.exportCurve(f, sc, fc, curveNodeId, fbxComponentProps[i])
			}
		}
	}

	takes := f.Root().GetNode("Takes")
	if takes != nil {
		if current := takes.GetNode("Current"); current != nil {
			current.Properties[0] = action.Name
		}
	}
}

func (e *FBXExporter) exportCurve(f *fbxbuilder.FBXBuilder, sc *scene.Scene,
	fc *scene.FCurve, curveNodeId int64, property string) {
	times := make([]int64, 0, len(fc.Keyframes))
	values := make([]float32, 0, len(fc.Keyframes))
	for _, kf := range fc.Keyframes {
		times = append(times, frameToKTime(kf.Frame, sc.FPS))
		values = append(values, kf.Value)
	}

	curveId := f.GenerateId()
	curve := rawNode("AnimationCurve", curveId, "\x00\x01AnimCurve", "")
	curve.AddNodes(
		rawNode("Default", float64(0)),
		rawNode("KeyVer", int32(4008)),
		rawNode("KeyTime", times),
		rawNode("KeyValueFloat", values),
		// linear interpolation on every key
		rawNode("KeyAttrFlags", []int32{260}),
		rawNode("KeyAttrDataFloat", []float32{0, 0, 0, 0}),
		rawNode("KeyAttrRefCount", []int32{int32(len(times))}),
	)
	f.AddObjects(curve)
	f.AddConnections(rawNode("C", "OP", curveId, curveNodeId, property))
}

// frames are one-based, frame 1 sits at time zero
func frameToKTime(frame float32, fps int) int64 {
	return int64(float64(frame-1) / float64(fps) * fbxKTimePerSecond)
}

func rawNode(name string, properties ...interface{}) *fbx.Node {
	return &fbx.Node{Name: name, Properties: properties}
}

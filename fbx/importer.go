package fbx

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/maxportland/metalman/scene"
	"github.com/maxportland/metalman/utils"
)

// KTime units per second (fbx sdk KTIME_ONE_SECOND).
const ktimePerSecond = 46186158000

var actionNames utils.RandomNameGenerator

type fbxObject struct {
	id    int64
	name  string
	class string
	node  *Node
}

type connection struct {
	kind   string // OO or OP
	child  int64
	parent int64
	prop   string
}

type document struct {
	file    *File
	objects map[int64]*fbxObject
	conns   []connection

	// child id -> parent ids and reverse
	parentsOf  map[int64][]connection
	childrenOf map[int64][]connection
}

// Import parses an fbx file and appends its models, skinned meshes and
// animation takes to the scene, extending the open document in place.
// Imported object and action names get .001-style suffixes on collision
// so callers can tell fresh data from pre-existing data.
func Import(sc *scene.Scene, path string) error {
	f, err := ReadFile(path)
	if err != nil {
		return err
	}

	doc := &document{
		file:       f,
		objects:    make(map[int64]*fbxObject),
		parentsOf:  make(map[int64][]connection),
		childrenOf: make(map[int64][]connection),
	}
	if err := doc.index(); err != nil {
		return errors.Wrapf(err, "Unable to index fbx %q", filepath.Base(path))
	}

	return doc.populate(sc)
}

func (d *document) index() error {
	objects := d.file.Root.GetNode("Objects")
	if objects == nil {
		return errors.Errorf("No Objects record")
	}
	for _, n := range objects.Nodes {
		name, class := SplitObjectName(n.PropString(1))
		// names from older exporters may be in a legacy codepage
		name = utils.BytesToString([]byte(name))
		o := &fbxObject{
			id:    n.PropInt64(0),
			name:  name,
			class: class,
			node:  n,
		}
		d.objects[o.id] = o
	}

	connections := d.file.Root.GetNode("Connections")
	if connections == nil {
		return errors.Errorf("No Connections record")
	}
	for _, c := range connections.GetNodes("C") {
		conn := connection{
			kind:   c.PropString(0),
			child:  c.PropInt64(1),
			parent: c.PropInt64(2),
		}
		if conn.kind == "OP" {
			conn.prop = c.PropString(3)
		}
		d.conns = append(d.conns, conn)
		d.parentsOf[conn.child] = append(d.parentsOf[conn.child], conn)
		d.childrenOf[conn.parent] = append(d.childrenOf[conn.parent], conn)
	}

	return nil
}

func (d *document) modelsOfClass(classes ...string) []*fbxObject {
	var out []*fbxObject
	objects := d.file.Root.GetNode("Objects")
	for _, n := range objects.GetNodes("Model") {
		o := d.objects[n.PropInt64(0)]
		for _, class := range classes {
			if o.class == class {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

func (d *document) populate(sc *scene.Scene) error {
	boneIndexByModel, armObj := d.buildArmature(sc)
	d.buildMeshes(sc, boneIndexByModel)
	d.buildActions(sc, armObj)
	return nil
}

// buildArmature collects the limb node hierarchy into one armature
// object. Returns the model-id -> bone-index map used for skinning.
func (d *document) buildArmature(sc *scene.Scene) (map[int64]int, *scene.Object) {
	limbs := d.modelsOfClass("LimbNode", "Root")
	if len(limbs) == 0 {
		return nil, nil
	}

	limbSet := make(map[int64]*fbxObject, len(limbs))
	for _, limb := range limbs {
		limbSet[limb.id] = limb
	}

	// roots first, then depth-first so parents precede children
	var ordered []*fbxObject
	parentOf := make(map[int64]int64)
	var walk func(parent *fbxObject)
	walk = func(parent *fbxObject) {
		ordered = append(ordered, parent)
		for _, conn := range d.childrenOf[parent.id] {
			if child, ok := limbSet[conn.child]; ok && conn.kind == "OO" {
				parentOf[child.id] = parent.id
				walk(child)
			}
		}
	}
	for _, limb := range limbs {
		isRoot := true
		for _, conn := range d.parentsOf[limb.id] {
			if _, ok := limbSet[conn.parent]; ok && conn.kind == "OO" {
				isRoot = false
				break
			}
		}
		if isRoot {
			walk(limb)
		}
	}

	arm := &scene.Armature{Bones: make([]scene.Bone, 0, len(ordered))}
	boneIndexByModel := make(map[int64]int, len(ordered))
	for _, limb := range ordered {
		bone := scene.Bone{
			Name:         limb.name,
			Parent:       -1,
			RestScale:    mgl32.Vec3{1, 1, 1},
			RestRotation: mgl32.QuatIdent(),
		}
		if pid, ok := parentOf[limb.id]; ok {
			bone.Parent = boneIndexByModel[pid]
		}
		if p := limb.node.FindP("Lcl Translation"); p != nil {
			v := p.PVec3()
			bone.RestTranslation = mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
		}
		if p := limb.node.FindP("Lcl Rotation"); p != nil {
			v := p.PVec3()
			bone.RestRotation = utils.EulerDegreesToQuat(
				mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])})
		}
		if p := limb.node.FindP("Lcl Scaling"); p != nil {
			v := p.PVec3()
			bone.RestScale = mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
		}
		boneIndexByModel[limb.id] = len(arm.Bones)
		arm.Bones = append(arm.Bones, bone)
	}

	// armature object named after the skeleton root model
	name := sc.UniqueObjectName(ordered[0].name)
	arm.Name = name
	sc.AddArmature(arm)
	obj := &scene.Object{Name: name, Type: scene.ObjectArmature, Armature: arm}
	sc.LinkObject(obj)

	return boneIndexByModel, obj
}

func (d *document) buildMeshes(sc *scene.Scene, boneIndexByModel map[int64]int) {
	for _, model := range d.modelsOfClass("Mesh") {
		var geometry *fbxObject
		for _, conn := range d.childrenOf[model.id] {
			if o, ok := d.objects[conn.child]; ok && o.node.Name == "Geometry" {
				geometry = o
				break
			}
		}
		if geometry == nil {
			continue
		}

		mesh := d.buildGeometry(geometry, boneIndexByModel)
		if mesh == nil {
			continue
		}

		name := sc.UniqueObjectName(model.name)
		mesh.Name = name
		sc.AddMesh(mesh)

		d.buildMaterials(sc, model, mesh)

		sc.LinkObject(&scene.Object{Name: name, Type: scene.ObjectMesh, Mesh: mesh})
	}
}

// buildGeometry expands fbx control-point polygons into a triangle list.
// Negative polygon indexes mark the final corner of each polygon
// (xor-encoded); polygons fan-triangulate.
func (d *document) buildGeometry(geometry *fbxObject, boneIndexByModel map[int64]int) *scene.Mesh {
	verticesNode := geometry.node.GetNode("Vertices")
	indexNode := geometry.node.GetNode("PolygonVertexIndex")
	if verticesNode == nil || indexNode == nil {
		return nil
	}

	rawVertices := verticesNode.PropFloatSlice(0)
	rawIndexes := indexNode.PropIntSlice(0)

	controlPoints := make([][3]float32, len(rawVertices)/3)
	for i := range controlPoints {
		controlPoints[i] = [3]float32{
			float32(rawVertices[i*3]),
			float32(rawVertices[i*3+1]),
			float32(rawVertices[i*3+2]),
		}
	}

	mesh := &scene.Mesh{
		Vertices: controlPoints,
		Joints:   make([][4]uint16, len(controlPoints)),
		Weights:  make([][4]float32, len(controlPoints)),
	}

	var polygon []uint32
	for _, raw := range rawIndexes {
		idx := raw
		last := false
		if idx < 0 {
			idx = ^idx
			last = true
		}
		polygon = append(polygon, uint32(idx))
		if last {
			for i := 2; i < len(polygon); i++ {
				mesh.Indices = append(mesh.Indices, polygon[0], polygon[i-1], polygon[i])
			}
			polygon = polygon[:0]
		}
	}

	d.applyNormals(geometry, mesh)
	d.applyUVs(geometry, mesh)
	d.applySkin(geometry, mesh, boneIndexByModel)

	return mesh
}

func (d *document) applyNormals(geometry *fbxObject, mesh *scene.Mesh) {
	layer := geometry.node.GetNode("LayerElementNormal")
	if layer == nil {
		return
	}
	mapping := ""
	if m := layer.GetNode("MappingInformationType"); m != nil {
		mapping = m.PropString(0)
	}
	if mapping != "ByVertice" && mapping != "ByVertex" {
		// per-polygon-vertex normals are recomputed by the engine anyway
		return
	}
	normalsNode := layer.GetNode("Normals")
	if normalsNode == nil {
		return
	}
	raw := normalsNode.PropFloatSlice(0)
	if len(raw) < len(mesh.Vertices)*3 {
		return
	}
	mesh.Normals = make([][3]float32, len(mesh.Vertices))
	for i := range mesh.Normals {
		mesh.Normals[i] = [3]float32{
			float32(raw[i*3]), float32(raw[i*3+1]), float32(raw[i*3+2])}
	}
}

func (d *document) applyUVs(geometry *fbxObject, mesh *scene.Mesh) {
	layer := geometry.node.GetNode("LayerElementUV")
	if layer == nil {
		return
	}
	uvNode := layer.GetNode("UV")
	if uvNode == nil {
		return
	}
	raw := uvNode.PropFloatSlice(0)
	if len(raw) < len(mesh.Vertices)*2 {
		return
	}
	mesh.UVs = make([][2]float32, len(mesh.Vertices))
	for i := range mesh.UVs {
		mesh.UVs[i] = [2]float32{float32(raw[i*2]), float32(raw[i*2+1])}
	}
}

// applySkin resolves Skin deformers and their clusters into per-control
// point joint/weight pairs (up to four influences, strongest kept).
func (d *document) applySkin(geometry *fbxObject, mesh *scene.Mesh, boneIndexByModel map[int64]int) {
	if boneIndexByModel == nil {
		return
	}

	influences := make([]int, len(mesh.Vertices))

	for _, skinConn := range d.childrenOf[geometry.id] {
		skin, ok := d.objects[skinConn.child]
		if !ok || skin.node.Name != "Deformer" || skin.class != "Skin" {
			continue
		}
		for _, clusterConn := range d.childrenOf[skin.id] {
			cluster, ok := d.objects[clusterConn.child]
			if !ok || cluster.node.Name != "Deformer" || cluster.class != "Cluster" {
				continue
			}

			boneIndex := -1
			for _, limbConn := range d.childrenOf[cluster.id] {
				if idx, ok := boneIndexByModel[limbConn.child]; ok {
					boneIndex = idx
					break
				}
			}
			if boneIndex < 0 {
				continue
			}

			indexesNode := cluster.node.GetNode("Indexes")
			weightsNode := cluster.node.GetNode("Weights")
			if indexesNode == nil || weightsNode == nil {
				continue
			}
			indexes := indexesNode.PropIntSlice(0)
			weights := weightsNode.PropFloatSlice(0)

			for i, cp := range indexes {
				if int(cp) >= len(mesh.Vertices) || i >= len(weights) {
					continue
				}
				slot := influences[cp]
				if slot >= 4 {
					// keep the strongest four
					weakest := 0
					for j := 1; j < 4; j++ {
						if mesh.Weights[cp][j] < mesh.Weights[cp][weakest] {
							weakest = j
						}
					}
					if float32(weights[i]) <= mesh.Weights[cp][weakest] {
						continue
					}
					slot = weakest
				} else {
					influences[cp]++
				}
				mesh.Joints[cp][slot] = uint16(boneIndex)
				mesh.Weights[cp][slot] = float32(weights[i])
			}
		}
	}

	normalizeWeights(mesh.Weights)
}

func normalizeWeights(weights [][4]float32) {
	for i := range weights {
		sum := weights[i][0] + weights[i][1] + weights[i][2] + weights[i][3]
		if sum <= 0 {
			weights[i][0] = 1
			continue
		}
		for j := 0; j < 4; j++ {
			weights[i][j] /= sum
		}
	}
}

func (d *document) buildMaterials(sc *scene.Scene, model *fbxObject, mesh *scene.Mesh) {
	for _, conn := range d.childrenOf[model.id] {
		matObj, ok := d.objects[conn.child]
		if !ok || matObj.node.Name != "Material" {
			continue
		}
		mat := &scene.Material{Name: matObj.name, Diffuse: [4]float32{1, 1, 1, 1}}
		if p := matObj.node.FindP("DiffuseColor"); p != nil {
			v := p.PVec3()
			mat.Diffuse = [4]float32{float32(v[0]), float32(v[1]), float32(v[2]), 1}
		}
		sc.AddMaterial(mat)
		mesh.LinkMaterial(mat)

		for _, texConn := range d.childrenOf[matObj.id] {
			texObj, ok := d.objects[texConn.child]
			if !ok || texObj.node.Name != "Texture" {
				continue
			}
			tex := &scene.Texture{Name: texObj.name}
			sc.AddTexture(tex)
			mat.LinkTexture(tex)
			if fn := texObj.node.GetNode("RelativeFilename"); fn != nil {
				img := &scene.Image{Name: filepath.Base(fn.PropString(0)), Path: fn.PropString(0)}
				sc.AddImage(img)
				tex.LinkImage(img)
			}
		}
	}
}

// buildActions converts every animation stack into a scene action. Curves
// are resolved stack <- layer <- curve-node <- curve through OO/OP
// connections; the curve node's OP link to a limb model names the bone
// and channel.
func (d *document) buildActions(sc *scene.Scene, armObj *scene.Object) {
	objects := d.file.Root.GetNode("Objects")
	if objects == nil {
		return
	}

	var firstAction *scene.Action
	for _, stackNode := range objects.GetNodes("AnimationStack") {
		stack := d.objects[stackNode.PropInt64(0)]

		name := stack.name
		if name == "" {
			name = actionNames.RandomName()
			log.Printf("[fbx] Unnamed animation take, calling it %q", name)
		}
		action := &scene.Action{Name: sc.UniqueActionName(name)}

		for _, layerConn := range d.childrenOf[stack.id] {
			layer, ok := d.objects[layerConn.child]
			if !ok || layer.node.Name != "AnimationLayer" {
				continue
			}
			for _, cnConn := range d.childrenOf[layer.id] {
				curveNode, ok := d.objects[cnConn.child]
				if !ok || curveNode.node.Name != "AnimationCurveNode" {
					continue
				}
				d.appendCurves(action, curveNode)
			}
		}

		if len(action.FCurves) == 0 {
			continue
		}
		sc.AddAction(action)
		if firstAction == nil {
			firstAction = action
		}
	}

	// fbx has no explicit action binding; the take animates the models it
	// references. Mirror that by activating the first take on the
	// armature object this import produced.
	if armObj != nil && firstAction != nil {
		sc.SetAction(armObj, firstAction)
	}
}

func (d *document) appendCurves(action *scene.Action, curveNode *fbxObject) {
	var channel scene.Channel
	boneName := ""
	for _, conn := range d.parentsOf[curveNode.id] {
		if conn.kind != "OP" {
			continue
		}
		target, ok := d.objects[conn.parent]
		if !ok || target.node.Name != "Model" {
			continue
		}
		switch conn.prop {
		case "Lcl Translation":
			channel = scene.ChannelLocation
		case "Lcl Rotation":
			channel = scene.ChannelRotationEuler
		case "Lcl Scaling":
			channel = scene.ChannelScale
		default:
			continue
		}
		boneName = target.name
		break
	}
	if boneName == "" {
		return
	}

	for _, conn := range d.childrenOf[curveNode.id] {
		if conn.kind != "OP" {
			continue
		}
		curve, ok := d.objects[conn.child]
		if !ok || curve.node.Name != "AnimationCurve" {
			continue
		}

		index := -1
		switch conn.prop {
		case "d|X":
			index = 0
		case "d|Y":
			index = 1
		case "d|Z":
			index = 2
		}
		if index < 0 {
			continue
		}

		timesNode := curve.node.GetNode("KeyTime")
		valuesNode := curve.node.GetNode("KeyValueFloat")
		if timesNode == nil || valuesNode == nil {
			continue
		}
		times := timesNode.PropIntSlice(0)
		values := valuesNode.PropFloatSlice(0)
		if len(times) == 0 || len(times) != len(values) {
			continue
		}

		fc := action.EnsureCurve(boneName, channel, index)
		for i := range times {
			frame := d.ktimeToFrame(times[i])
			value := float32(values[i])
			fc.Keyframes = append(fc.Keyframes, scene.Keyframe{
				Frame:       frame,
				Value:       value,
				HandleLeft:  value,
				HandleRight: value,
			})
		}
	}
}

// ktimeToFrame maps fbx time to 1-based scene frames. Takes land on the
// timeline at 30 fps regardless of the configured playback rate.
func (d *document) ktimeToFrame(t int64) float32 {
	return 1 + float32(float64(t)/ktimePerSecond*30.0)
}

// TakeNames lists the animation take names defined in a file without
// importing it, handy for debug dumps.
func TakeNames(f *File) []string {
	var names []string
	objects := f.Root.GetNode("Objects")
	if objects == nil {
		return nil
	}
	for _, stack := range objects.GetNodes("AnimationStack") {
		name, _ := SplitObjectName(stack.PropString(1))
		names = append(names, strings.TrimSpace(name))
	}
	return names
}

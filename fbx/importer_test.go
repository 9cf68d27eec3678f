package fbx

import (
	"testing"

	"github.com/maxportland/metalman/scene"
)

// riggedTestFile has a two-bone skeleton and one animation take keying
// the root bone's translation.
func riggedTestFile(t *testing.T) []byte {
	const (
		hipsID  = 100
		spineID = 101
		stackID = 200
		layerID = 201
		cnID    = 202
		curveID = 203
	)

	return buildTestFile(t,
		&testNode{
			name: "Objects",
			nodes: []*testNode{
				{name: "Model", props: []interface{}{int64(hipsID), "mixamorig:Hips\x00\x01Model", "LimbNode"}},
				{name: "Model", props: []interface{}{int64(spineID), "mixamorig:Spine\x00\x01Model", "LimbNode"}},
				{name: "AnimationStack", props: []interface{}{int64(stackID), "walk\x00\x01AnimStack", ""}},
				{name: "AnimationLayer", props: []interface{}{int64(layerID), "BaseLayer\x00\x01AnimLayer", ""}},
				{name: "AnimationCurveNode", props: []interface{}{int64(cnID), "T\x00\x01AnimCurveNode", ""}},
				{
					name:  "AnimationCurve",
					props: []interface{}{int64(curveID), "\x00\x01AnimCurve", ""},
					nodes: []*testNode{
						{name: "KeyTime", props: []interface{}{[]int32{0}}},
						// KeyValueFloat is a float array in real files; the
						// importer accepts any numeric array
						{name: "KeyValueFloat", props: []interface{}{[]float64{5.5}}},
					},
				},
			},
		},
		&testNode{
			name: "Connections",
			nodes: []*testNode{
				{name: "C", props: []interface{}{"OO", int64(spineID), int64(hipsID)}},
				{name: "C", props: []interface{}{"OO", int64(layerID), int64(stackID)}},
				{name: "C", props: []interface{}{"OO", int64(cnID), int64(layerID)}},
				{name: "C", props: []interface{}{"OP", int64(cnID), int64(hipsID), "Lcl Translation"}},
				{name: "C", props: []interface{}{"OP", int64(curveID), int64(cnID), "d|X"}},
			},
		},
	)
}

func TestImportSkeletonAndTake(t *testing.T) {
	data := riggedTestFile(t)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sc := scene.NewScene(30)
	doc := &document{
		file:       f,
		objects:    make(map[int64]*fbxObject),
		parentsOf:  make(map[int64][]connection),
		childrenOf: make(map[int64][]connection),
	}
	if err := doc.index(); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := doc.populate(sc); err != nil {
		t.Fatalf("populate: %v", err)
	}

	arm := sc.FirstArmature()
	if arm == nil {
		t.Fatalf("no armature imported")
	}
	bones := arm.Armature.Bones
	if len(bones) != 2 {
		t.Fatalf("bones = %d", len(bones))
	}
	if bones[0].Name != "mixamorig:Hips" || bones[0].Parent != -1 {
		t.Errorf("root bone = %q parent %d", bones[0].Name, bones[0].Parent)
	}
	if bones[1].Name != "mixamorig:Spine" || bones[1].Parent != 0 {
		t.Errorf("child bone = %q parent %d", bones[1].Name, bones[1].Parent)
	}

	action := sc.ActionByName("walk")
	if action == nil {
		t.Fatalf("take not imported as action; library: %v", sc.ActionNames())
	}
	if arm.Action != action {
		t.Errorf("take not activated on the imported armature")
	}

	fc := action.Curve("mixamorig:Hips", scene.ChannelLocation, 0)
	if fc == nil || len(fc.Keyframes) != 1 {
		t.Fatalf("translation curve missing")
	}
	if fc.Keyframes[0].Value != 5.5 {
		t.Errorf("key value = %v", fc.Keyframes[0].Value)
	}
	if fc.Keyframes[0].Frame != 1 {
		t.Errorf("ktime 0 should land on frame 1, got %v", fc.Keyframes[0].Frame)
	}
}

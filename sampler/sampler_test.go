package sampler

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/maxportland/metalman/scene"
)

func TestSampleFrames(t *testing.T) {
	tests := []struct {
		start, end int
		stride     int
		count      int
	}{
		{1, 10, 1, 10},
		{1, 300, 1, 300},
		{1, 301, 2, 151},
		{1, 302, 2, 152},
		{0, 500, 2, 251},
		{1, 1, 1, 1},
	}

	for _, tt := range tests {
		frames := SampleFrames(tt.start, tt.end)
		if len(frames) != tt.count {
			t.Errorf("SampleFrames(%d, %d): got %d frames, expected %d",
				tt.start, tt.end, len(frames), tt.count)
		}
		if frames[0] != tt.start {
			t.Errorf("SampleFrames(%d, %d): first frame %d", tt.start, tt.end, frames[0])
		}
		if frames[len(frames)-1] != tt.end {
			t.Errorf("SampleFrames(%d, %d): last frame %d, expected %d",
				tt.start, tt.end, frames[len(frames)-1], tt.end)
		}
		for i := 1; i < len(frames)-1; i++ {
			if frames[i]-frames[i-1] != tt.stride {
				t.Errorf("SampleFrames(%d, %d): stride %d at index %d, expected %d",
					tt.start, tt.end, frames[i]-frames[i-1], i, tt.stride)
			}
		}
	}
}

func testRig() (*scene.Scene, *scene.Object) {
	sc := scene.NewScene(30)

	armature := sc.AddArmature(&scene.Armature{
		Name: "Armature",
		Bones: []scene.Bone{
			{Name: "mixamorig:Hips", Parent: -1,
				RestRotation: mgl32.QuatIdent(), RestScale: mgl32.Vec3{1, 1, 1}},
			{Name: "mixamorig:Spine", Parent: 0,
				RestTranslation: mgl32.Vec3{0, 10, 0},
				RestRotation:    mgl32.QuatIdent(), RestScale: mgl32.Vec3{1, 1, 1}},
		},
	})
	o := &scene.Object{Name: "Armature", Type: scene.ObjectArmature, Armature: armature}
	sc.LinkObject(o)

	action := sc.AddAction(&scene.Action{Name: "walk"})
	for axis := 0; axis < 3; axis++ {
		fc := action.EnsureCurve("mixamorig:Hips", scene.ChannelLocation, axis)
		fc.Keyframes = []scene.Keyframe{
			{Frame: 1, Value: 0},
			{Frame: 31, Value: float32(axis + 1)},
		}
	}
	sc.SetAction(o, action)

	return sc, o
}

func TestSampleDocument(t *testing.T) {
	sc, o := testRig()

	doc, err := Sample(sc, o.Armature, o.Action)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	if doc.Name != "walk" || doc.FPS != 30 || doc.BoneCount != 2 {
		t.Errorf("header mismatch: %q fps=%d bones=%d", doc.Name, doc.FPS, doc.BoneCount)
	}
	if doc.KeyframeCount != 31 || len(doc.Keyframes) != 31 {
		t.Fatalf("expected 31 keyframes, got %d/%d", doc.KeyframeCount, len(doc.Keyframes))
	}
	if math.Abs(doc.Duration-1.0) > 1e-9 {
		t.Errorf("duration %v, expected 1s", doc.Duration)
	}

	if doc.Bones[0].Name != "mixamorig_Hips" || doc.Bones[1].Name != "mixamorig_Spine" {
		t.Errorf("bone names not rewritten: %+v", doc.Bones)
	}
	if doc.Bones[1].ParentIndex != 0 || doc.Bones[0].ParentIndex != -1 {
		t.Errorf("parent indices wrong: %+v", doc.Bones)
	}

	first := doc.Keyframes[0]
	last := doc.Keyframes[len(doc.Keyframes)-1]
	if first.Time != 0 {
		t.Errorf("first keyframe time %v", first.Time)
	}
	if math.Abs(last.Time-1.0) > 1e-9 {
		t.Errorf("last keyframe time %v", last.Time)
	}

	// column-major: translation sits in elements 12..14
	hips := last.BoneTransforms[0]
	if hips[12] != 1 || hips[13] != 2 || hips[14] != 3 {
		t.Errorf("hips translation at frame 31 = (%v, %v, %v), expected (1, 2, 3)",
			hips[12], hips[13], hips[14])
	}

	// spine is parent-relative, so its matrix stays at the rest offset
	spine := last.BoneTransforms[1]
	if spine[12] != 0 || spine[13] != 10 || spine[14] != 0 {
		t.Errorf("spine local translation = (%v, %v, %v), expected rest (0, 10, 0)",
			spine[12], spine[13], spine[14])
	}
}

func TestSampleRewritesClipName(t *testing.T) {
	sc, o := testRig()

	take := sc.AddAction(&scene.Action{Name: "mixamo.com:Take 001"})
	fc := take.EnsureCurve("mixamorig:Hips", scene.ChannelLocation, 0)
	fc.Keyframes = []scene.Keyframe{{Frame: 1, Value: 0}, {Frame: 11, Value: 4}}

	doc, err := Sample(sc, o.Armature, take)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if doc.Name != "mixamo.com_Take 001" {
		t.Errorf("clip name %q, expected namespace separator rewritten", doc.Name)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	tests := []struct{ in, out string }{
		{"anims/walk.fbx", "anims/walk_animation.json"},
		{"run.FBX", "run_animation.json"},
		{"noext", "noext_animation.json"},
	}
	for _, tt := range tests {
		if got := DefaultOutputPath(tt.in); got != tt.out {
			t.Errorf("DefaultOutputPath(%q) = %q, expected %q", tt.in, got, tt.out)
		}
	}
}

func TestExportAllRestoresActiveAction(t *testing.T) {
	sc, o := testRig()
	original := o.Action

	idle := sc.AddAction(&scene.Action{Name: "idle"})
	fc := idle.EnsureCurve("mixamorig:Hips", scene.ChannelLocation, 1)
	fc.Keyframes = []scene.Keyframe{{Frame: 1, Value: 5}, {Frame: 11, Value: 5}}

	dir := t.TempDir()
	if err := ExportAll(sc, dir); err != nil {
		t.Fatalf("ExportAll: %v", err)
	}

	if o.Action != original {
		t.Errorf("active action not restored: got %v", o.Action)
	}
}

package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/exporter"
	"github.com/maxportland/metalman/scene"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("stub"), 0666); err != nil {
		t.Fatal(err)
	}
}

// stubImport plays the role of the fbx reader: the base mesh populates an
// armature plus a body mesh, animation files add one action each.
func stubImport(sc *scene.Scene, path string) error {
	name := filepath.Base(path)
	if name == "base.fbx" {
		armature := sc.AddArmature(&scene.Armature{
			Name: "Armature",
			Bones: []scene.Bone{
				{Name: "Hips", Parent: -1,
					RestRotation: mgl32.QuatIdent(), RestScale: mgl32.Vec3{1, 1, 1}},
			},
		})
		sc.LinkObject(&scene.Object{Name: "Armature", Type: scene.ObjectArmature, Armature: armature})

		mesh := sc.AddMesh(&scene.Mesh{Name: "Body",
			Vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
			Indices:  []uint32{0, 1, 2}})
		sc.LinkObject(&scene.Object{Name: "Body", Type: scene.ObjectMesh, Mesh: mesh})
		return nil
	}

	action := sc.AddAction(&scene.Action{Name: name + "|take"})
	for _, axis := range []int{0, 1, 2} {
		fc := action.EnsureCurve("Hips", scene.ChannelLocation, axis)
		fc.Keyframes = []scene.Keyframe{
			{Frame: 1, Value: float32(axis)},
			{Frame: 20, Value: float32(axis) * 10},
		}
	}

	// animation files also drag their own skeleton copy along
	armature := sc.AddArmature(&scene.Armature{
		Name: "Armature",
		Bones: []scene.Bone{
			{Name: "Hips", Parent: -1,
				RestRotation: mgl32.QuatIdent(), RestScale: mgl32.Vec3{1, 1, 1}},
		},
	})
	o := &scene.Object{Name: "Armature.001", Type: scene.ObjectArmature, Armature: armature}
	sc.LinkObject(o)
	sc.SetAction(o, action)
	return nil
}

func testRunner(t *testing.T, anims ...string) (*Runner, string) {
	t.Helper()
	src := t.TempDir()
	out := t.TempDir()

	touch(t, filepath.Join(src, "base.fbx"))
	for _, a := range anims {
		touch(t, filepath.Join(src, a))
	}

	r := NewRunner(&config.Category{
		Name:            "player",
		SourceDir:       src,
		OutputDir:       out,
		BaseMesh:        "base.fbx",
		StripRootMotion: true,
		Format:          "glb",
	}, 30)
	r.Import = stubImport
	r.ExportFile = func(e exporter.Exporter, sc *scene.Scene, path string) error {
		return os.WriteFile(path, []byte("archive"), 0666)
	}
	return r, out
}

func TestDiscoverExcludesBaseMesh(t *testing.T) {
	r, _ := testRunner(t, "Walk.fbx", "Run.fbx", "notes.txt")

	files, err := r.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %v", files)
	}
	if filepath.Base(files[0]) != "Run.fbx" || filepath.Base(files[1]) != "Walk.fbx" {
		t.Errorf("not sorted: %v", files)
	}
}

func TestRunCountsSumToTotal(t *testing.T) {
	r, out := testRunner(t, "Walk Forward.fbx", "Sword And Shield Attack (2).fbx")

	stats, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("total %d", stats.Total)
	}
	if stats.Succeeded+stats.Failed+stats.Skipped != stats.Total {
		t.Errorf("counts %+v do not sum to total", stats)
	}
	if stats.Succeeded != 2 {
		t.Errorf("expected 2 successes, got %+v", stats)
	}

	for _, want := range []string{"walk-forward.glb", "sword-and-shield-attack-2.glb"} {
		if _, err := os.Stat(filepath.Join(out, want)); err != nil {
			t.Errorf("missing output %q", want)
		}
	}
}

func TestRunSkipExisting(t *testing.T) {
	r, out := testRunner(t, "Walk.fbx")
	r.Category.SkipExisting = true
	touch(t, filepath.Join(out, "walk.glb"))

	stats, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 || stats.Succeeded != 0 {
		t.Errorf("expected one skip, got %+v", stats)
	}
}

func TestRunMissingBaseMeshIsFatal(t *testing.T) {
	r, _ := testRunner(t, "Walk.fbx")
	r.Category.BaseMesh = "nosuch.fbx"

	if _, err := r.Run(); err == nil {
		t.Error("expected fatal error for missing base mesh")
	}
}

func TestRunMissingArmatureFailsItemOnly(t *testing.T) {
	r, _ := testRunner(t, "Walk.fbx", "Run.fbx")
	realImport := r.Import
	r.Import = func(sc *scene.Scene, path string) error {
		if filepath.Base(path) == "base.fbx" {
			return nil // empty base mesh, no armature
		}
		return realImport(sc, path)
	}

	stats, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 2 || stats.Succeeded != 0 {
		t.Errorf("expected all items failed, got %+v", stats)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	r, _ := testRunner(t, "Walk.fbx", "Run.fbx")
	r.ExportFile = func(e exporter.Exporter, sc *scene.Scene, path string) error {
		if filepath.Base(path) == "run.glb" {
			panic("exporter blew up")
		}
		return os.WriteFile(path, []byte("archive"), 0666)
	}

	stats, err := r.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 || stats.Succeeded != 1 {
		t.Errorf("expected one failure one success, got %+v", stats)
	}
}

func TestProcessItemAssignsClipAndStripsRootMotion(t *testing.T) {
	r, _ := testRunner(t, "Walk.fbx")

	var exported *scene.Scene
	r.ExportFile = func(e exporter.Exporter, sc *scene.Scene, path string) error {
		exported = sc
		return nil
	}

	if _, err := r.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exported == nil {
		t.Fatal("nothing exported")
	}

	armObj := exported.FirstArmature()
	if armObj == nil || armObj.Action == nil {
		t.Fatal("clip not assigned to base armature")
	}

	// horizontal axes frozen to the first key, vertical untouched
	for _, axis := range []int{0, 2} {
		fc := armObj.Action.Curve("Hips", scene.ChannelLocation, axis)
		for _, kf := range fc.Keyframes {
			if kf.Value != float32(axis) {
				t.Errorf("axis %d not frozen: %v", axis, kf.Value)
			}
		}
	}
	fc := armObj.Action.Curve("Hips", scene.ChannelLocation, 1)
	if fc.Keyframes[1].Value != 10 {
		t.Errorf("vertical axis modified: %v", fc.Keyframes[1].Value)
	}

	if exported.FrameStart != 1 || exported.FrameEnd != 20 {
		t.Errorf("frame range %d..%d, expected 1..20", exported.FrameStart, exported.FrameEnd)
	}

	// the animation file's duplicate skeleton is gone
	if exported.Object("Armature.001") != nil {
		t.Error("imported duplicate armature not removed")
	}
	if len(exported.Objects) != 2 {
		t.Errorf("expected base mesh objects only, got %d", len(exported.Objects))
	}
}

package exporter

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/maxportland/metalman/config"
	"github.com/maxportland/metalman/scene"
)

type recordingExporter struct {
	profiles []config.ExportProfile
	failOn   config.ExportProfile
}

func (r *recordingExporter) Extension() string { return "glb" }

func (r *recordingExporter) Export(sc *scene.Scene, path string, profile config.ExportProfile) error {
	r.profiles = append(r.profiles, profile)
	if profile == r.failOn {
		return errors.Errorf("parameter mismatch")
	}
	return os.WriteFile(path, []byte("ok"), 0666)
}

func TestForFormat(t *testing.T) {
	if e, err := ForFormat("glb"); err != nil || e.Extension() != "glb" {
		t.Errorf("glb: %v %v", e, err)
	}
	if e, err := ForFormat("fbz"); err != nil || e.Extension() != "fbz" {
		t.Errorf("fbz: %v %v", e, err)
	}
	if _, err := ForFormat("obj"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestExportFileRetriesWithMinimalProfile(t *testing.T) {
	config.SetExportProfile(config.ProfileAuto)
	sc := scene.NewScene(30)
	path := filepath.Join(t.TempDir(), "sub", "out.glb")

	r := &recordingExporter{failOn: config.ProfileFull}
	if err := ExportFile(r, sc, path); err != nil {
		t.Fatalf("ExportFile: %v", err)
	}

	if len(r.profiles) != 2 || r.profiles[0] != config.ProfileFull || r.profiles[1] != config.ProfileMinimal {
		t.Errorf("profile sequence %v", r.profiles)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output missing after retry: %v", err)
	}
}

func TestExportFileNoRetryOnMinimalFailure(t *testing.T) {
	config.SetExportProfile(config.ProfileMinimal)
	sc := scene.NewScene(30)
	path := filepath.Join(t.TempDir(), "out.glb")

	r := &recordingExporter{failOn: config.ProfileMinimal}
	if err := ExportFile(r, sc, path); err == nil {
		t.Fatal("expected error")
	}
	if len(r.profiles) != 1 {
		t.Errorf("expected a single attempt, got %v", r.profiles)
	}
}

func exportTestScene() *scene.Scene {
	sc := scene.NewScene(30)

	armature := sc.AddArmature(&scene.Armature{
		Name: "Armature",
		Bones: []scene.Bone{
			{Name: "Hips", Parent: -1,
				RestRotation: mgl32.QuatIdent(), RestScale: mgl32.Vec3{1, 1, 1}},
			{Name: "Spine", Parent: 0,
				RestTranslation: mgl32.Vec3{0, 1, 0},
				RestRotation:    mgl32.QuatIdent(), RestScale: mgl32.Vec3{1, 1, 1}},
		},
	})
	armObj := &scene.Object{Name: "Armature", Type: scene.ObjectArmature, Armature: armature}
	sc.LinkObject(armObj)

	mat := sc.AddMaterial(&scene.Material{Name: "skin", Diffuse: [4]float32{1, 0.5, 0.25, 1}})
	mesh := sc.AddMesh(&scene.Mesh{
		Name:     "Body",
		Vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:  [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		UVs:      [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Indices:  []uint32{0, 1, 2},
		Joints:   [][4]uint16{{0, 0, 0, 0}, {0, 1, 0, 0}, {1, 0, 0, 0}},
		Weights:  [][4]float32{{1, 0, 0, 0}, {0.5, 0.5, 0, 0}, {1, 0, 0, 0}},
	})
	mesh.LinkMaterial(mat)
	sc.LinkObject(&scene.Object{Name: "Body", Type: scene.ObjectMesh, Mesh: mesh})

	action := sc.AddAction(&scene.Action{Name: "walk"})
	fc := action.EnsureCurve("Hips", scene.ChannelLocation, 1)
	fc.Keyframes = []scene.Keyframe{{Frame: 1, Value: 0}, {Frame: 10, Value: 2}}
	sc.SetAction(armObj, action)
	sc.SetFrameRange(1, 10)

	return sc
}

func TestGLTFExportWritesBinaryFile(t *testing.T) {
	sc := exportTestScene()
	path := filepath.Join(t.TempDir(), "walk.glb")

	e := &GLTFExporter{}
	if err := e.Export(sc, path, config.ProfileFull); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 12 || string(data[:4]) != "glTF" {
		t.Errorf("not a binary gltf file (%d bytes)", len(data))
	}
}

func TestFBXExportWritesZipArchive(t *testing.T) {
	sc := exportTestScene()
	path := filepath.Join(t.TempDir(), "walk.fbz")

	e := &FBXExporter{}
	if err := e.Export(sc, path, config.ProfileFull); err != nil {
		t.Fatalf("Export: %v", err)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("output is not a zip: %v", err)
	}
	defer zr.Close()

	if len(zr.File) != 1 || zr.File[0].Name != "walk.fbx" {
		t.Fatalf("unexpected archive contents: %v", zr.File)
	}

	f, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	magic := make([]byte, 18)
	if _, err := f.Read(magic); err != nil {
		t.Fatal(err)
	}
	if string(magic) != "Kaydara FBX Binary" {
		t.Errorf("inner file is not binary fbx: %q", magic)
	}
}

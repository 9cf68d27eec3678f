// Package sampler bakes an armature action into the json keyframe format
// the MetalMan runtime streams at load time. The game plays these back
// directly instead of evaluating fbx curves.
package sampler

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/maxportland/metalman/scene"
)

// frame spans longer than this get sampled at every other frame
const strideThreshold = 300

type Bone struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	ParentIndex int    `json:"parentIndex"`
}

type Keyframe struct {
	Time           float64       `json:"time"`
	BoneTransforms [][16]float32 `json:"boneTransforms"`
}

type Document struct {
	Name          string     `json:"name"`
	Duration      float64    `json:"duration"`
	FPS           int        `json:"fps"`
	BoneCount     int        `json:"boneCount"`
	KeyframeCount int        `json:"keyframeCount"`
	Bones         []Bone     `json:"bones"`
	Keyframes     []Keyframe `json:"keyframes"`
}

// boneTable lists bones in hierarchy order with runtime-safe names. The
// game engine treats ':' as a path separator, so it is rewritten.
func boneTable(a *scene.Armature) []Bone {
	bones := make([]Bone, len(a.Bones))
	for i := range a.Bones {
		bones[i] = Bone{
			Name:        strings.Replace(a.Bones[i].Name, ":", "_", -1),
			Index:       i,
			ParentIndex: a.Bones[i].Parent,
		}
	}
	return bones
}

// SampleFrames returns the frames to bake: every frame of the action's
// range, or every other frame when the total frame count exceeds the
// threshold. The last frame is always present so playback never cuts
// short.
func SampleFrames(start, end int) []int {
	stride := 1
	if end-start+1 > strideThreshold {
		stride = 2
	}

	frames := make([]int, 0, (end-start)/stride+1)
	for f := start; f <= end; f += stride {
		frames = append(frames, f)
	}
	if frames[len(frames)-1] != end {
		frames = append(frames, end)
	}
	return frames
}

// Sample bakes one action against an armature.
func Sample(sc *scene.Scene, armature *scene.Armature, action *scene.Action) (*Document, error) {
	if armature == nil {
		return nil, errors.Errorf("No armature to sample")
	}
	if action == nil {
		return nil, errors.Errorf("No action assigned to armature %q", armature.Name)
	}

	start, end := action.FrameRange()
	frames := SampleFrames(start, end)

	doc := &Document{
		Name:          strings.Replace(action.Name, ":", "_", -1),
		Duration:      float64(end-start) / float64(sc.FPS),
		FPS:           sc.FPS,
		BoneCount:     len(armature.Bones),
		KeyframeCount: len(frames),
		Bones:         boneTable(armature),
		Keyframes:     make([]Keyframe, 0, len(frames)),
	}

	for _, frame := range frames {
		pose := armature.Evaluate(action, float32(frame))

		kf := Keyframe{
			Time:           float64(frame-start) / float64(sc.FPS),
			BoneTransforms: make([][16]float32, len(armature.Bones)),
		}
		for iBone := range armature.Bones {
			local := pose.LocalMatrix(armature, iBone)
			// mgl32.Mat4 is column-major already
			copy(kf.BoneTransforms[iBone][:], local[:])
		}
		doc.Keyframes = append(doc.Keyframes, kf)
	}

	return doc, nil
}

// DefaultOutputPath places the json beside the source file, with the
// extension swapped for the _animation suffix.
func DefaultOutputPath(sourcePath string) string {
	stem := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	return stem + "_animation.json"
}

func WriteDocument(doc *Document, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "Unable to marshal %q", doc.Name)
	}
	if err := ioutil.WriteFile(path, data, 0666); err != nil {
		return errors.Wrapf(err, "Unable to write %q", path)
	}
	return nil
}

// Export samples the armature's active action and writes it to path.
func Export(sc *scene.Scene, path string) error {
	armObj := sc.FirstArmature()
	if armObj == nil {
		return errors.Errorf("Scene contains no armature object")
	}

	doc, err := Sample(sc, armObj.Armature, armObj.Action)
	if err != nil {
		return err
	}

	log.Printf("[sampler] %q: %d bones, %d keyframes, %.2fs",
		doc.Name, doc.BoneCount, doc.KeyframeCount, doc.Duration)
	return WriteDocument(doc, path)
}

// ExportAll bakes every action in the scene library into outDir, assigning
// each to the armature in turn and restoring the previously active action
// afterwards.
func ExportAll(sc *scene.Scene, outDir string) error {
	armObj := sc.FirstArmature()
	if armObj == nil {
		return errors.Errorf("Scene contains no armature object")
	}

	original := armObj.Action
	defer sc.SetAction(armObj, original)

	for _, action := range sc.Lib.Actions {
		sc.SetAction(armObj, action)

		doc, err := Sample(sc, armObj.Armature, action)
		if err != nil {
			return errors.Wrapf(err, "Unable to sample action %q", action.Name)
		}

		path := filepath.Join(outDir, strings.Replace(action.Name, ":", "_", -1)+"_animation.json")
		if err := WriteDocument(doc, path); err != nil {
			return err
		}
		log.Printf("[sampler] Wrote %q (%d keyframes)", path, doc.KeyframeCount)
	}

	return nil
}

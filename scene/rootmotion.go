package scene

// RootBoneCandidates are the root bone naming conventions seen across the
// animation packs the game ships with (Mixamo humanoids, the mutant and
// castle guard creature rigs).
var RootBoneCandidates = []string{
	"mixamorig:Hips",
	"mixamorig_Hips",
	"Hips",
	"Root",
	"pelvis",
	"Mutant:Hips",
	"Mutant_Hips",
}

// StripRootMotion freezes horizontal root translation: every keyframe on
// the X and Z location curves of a root bone candidate is overwritten,
// handles included, with that curve's first keyframe value. Vertical (Y)
// motion is kept so jumps and crouches survive; horizontal displacement
// becomes the game logic's job.
func StripRootMotion(action *Action) {
	if action == nil {
		return
	}
	for _, name := range RootBoneCandidates {
		stripRootMotionForBone(action, name)
	}
}

func stripRootMotionForBone(action *Action, rootBoneName string) {
	for _, axis := range []int{0, 2} {
		fc := action.Curve(rootBoneName, ChannelLocation, axis)
		if fc == nil || len(fc.Keyframes) == 0 {
			continue
		}
		first := fc.Keyframes[0].Value
		for i := range fc.Keyframes {
			kf := &fc.Keyframes[i]
			kf.Value = first
			kf.HandleLeft = first
			kf.HandleRight = first
		}
	}
}

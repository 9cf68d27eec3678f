package scene

import "math"

type Channel int

const (
	ChannelLocation Channel = iota
	ChannelRotationEuler
	ChannelScale
)

func (c Channel) String() string {
	switch c {
	case ChannelLocation:
		return "location"
	case ChannelRotationEuler:
		return "rotation_euler"
	case ChannelScale:
		return "scale"
	}
	return "unknown"
}

// Keyframe holds a keyed value plus its bezier handle values. Only the
// value component of the handles is tracked; the pipeline never moves
// keys along the time axis.
type Keyframe struct {
	Frame       float32
	Value       float32
	HandleLeft  float32
	HandleRight float32
}

// FCurve keys one component of one bone channel. Keyframes stay sorted
// by frame.
type FCurve struct {
	BoneName  string
	Channel   Channel
	Index     int
	Keyframes []Keyframe
}

// Evaluate samples the curve at a frame with linear interpolation and
// constant extrapolation past the ends.
func (fc *FCurve) Evaluate(frame float32) float32 {
	kfs := fc.Keyframes
	if len(kfs) == 0 {
		return 0
	}
	if frame <= kfs[0].Frame {
		return kfs[0].Value
	}
	if frame >= kfs[len(kfs)-1].Frame {
		return kfs[len(kfs)-1].Value
	}
	for i := 1; i < len(kfs); i++ {
		if frame > kfs[i].Frame {
			continue
		}
		a, b := &kfs[i-1], &kfs[i]
		if b.Frame == a.Frame {
			return b.Value
		}
		t := (frame - a.Frame) / (b.Frame - a.Frame)
		return a.Value + t*(b.Value-a.Value)
	}
	return kfs[len(kfs)-1].Value
}

// Action is a named animation clip: a bag of fcurves assignable to an
// armature object.
type Action struct {
	Name    string
	FCurves []*FCurve
	users   int
}

func (a *Action) Curve(bone string, channel Channel, index int) *FCurve {
	for _, fc := range a.FCurves {
		if fc.BoneName == bone && fc.Channel == channel && fc.Index == index {
			return fc
		}
	}
	return nil
}

func (a *Action) EnsureCurve(bone string, channel Channel, index int) *FCurve {
	if fc := a.Curve(bone, channel, index); fc != nil {
		return fc
	}
	fc := &FCurve{BoneName: bone, Channel: channel, Index: index}
	a.FCurves = append(a.FCurves, fc)
	return fc
}

// FrameRange returns the closed integer interval covered by any keyframe.
// An action without keys spans [0, 0].
func (a *Action) FrameRange() (int, int) {
	first := true
	var lo, hi float64
	for _, fc := range a.FCurves {
		for _, kf := range fc.Keyframes {
			f := float64(kf.Frame)
			if first {
				lo, hi = f, f
				first = false
				continue
			}
			lo = math.Min(lo, f)
			hi = math.Max(hi, f)
		}
	}
	if first {
		return 0, 0
	}
	return int(math.Floor(lo)), int(math.Ceil(hi))
}

// SampleVec3 evaluates the three components of a bone channel at a frame,
// falling back to def for components without a curve.
func (a *Action) SampleVec3(bone string, channel Channel, frame float32, def [3]float32) [3]float32 {
	out := def
	for i := 0; i < 3; i++ {
		if fc := a.Curve(bone, channel, i); fc != nil && len(fc.Keyframes) > 0 {
			out[i] = fc.Evaluate(frame)
		}
	}
	return out
}

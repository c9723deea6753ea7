package model

import "github.com/go-gl/mathgl/mgl32"

// Keyframe is one time-indexed pose of an animation channel.
type Keyframe struct {
	// Input is the keyframe time in seconds from the channel start.
	Input float32
	// Matrix is the pose applied to the mesh at this keyframe.
	Matrix mgl32.Mat4
}

// AnimationChannel is a looping, keyframed pose track for one mesh.
// Keyframes must be sorted ascending by Input and non-empty for animated
// meshes; Duration is the loop length in seconds.
type AnimationChannel struct {
	Duration  float32
	Keyframes []Keyframe
}

// Sample returns the pose at the given elapsed time: the last keyframe
// whose input precedes elapsed modulo the channel duration.
//
// Parameters:
//   - elapsed: seconds since animation start
//
// Returns:
//   - mgl32.Mat4: the sampled pose
func (c AnimationChannel) Sample(elapsed float32) mgl32.Mat4 {
	if len(c.Keyframes) == 0 {
		return mgl32.Ident4()
	}

	wrapped := elapsed
	if c.Duration > 0 {
		wrapped = mod32(elapsed, c.Duration)
	}

	// Partition point: first keyframe with input >= wrapped.
	lo, hi := 0, len(c.Keyframes)
	for lo < hi {
		mid := (lo + hi) / 2
		if c.Keyframes[mid].Input < wrapped {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return c.Keyframes[0].Matrix
	}
	return c.Keyframes[lo-1].Matrix
}

func mod32(a, b float32) float32 {
	m := a - b*float32(int(a/b))
	if m < 0 {
		m += b
	}
	return m
}

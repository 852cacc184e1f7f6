package keypoint

import "math"

// Round truncates every numeric leaf of a decoded payload to the given number
// of fractional digits, returning a new value tree. Containers are rebuilt so
// the input (which may be a live cache entry) is never mutated. Non-numeric
// leaves pass through unchanged. A negative decimals disables rounding and
// returns the input as-is.
//
// Rounding is idempotent: applying the same precision twice yields the value
// of the first application.
func Round(v any, decimals int) any {
	if decimals < 0 {
		return v
	}
	pow := math.Pow10(decimals)
	// Past float64 range the scale factor overflows to +Inf and shifting a
	// zero leaf would produce NaN. Every value is already exact at such a
	// precision, so the payload passes through.
	if math.IsInf(pow, 0) {
		return v
	}
	return roundNode(v, pow)
}

func roundNode(v any, pow float64) any {
	switch n := v.(type) {
	case float64:
		shifted := n * pow
		// Values too large to shift are already integral at this precision.
		if math.IsInf(shifted, 0) {
			return n
		}
		return math.Round(shifted) / pow
	case []any:
		out := make([]any, len(n))
		for i, el := range n {
			out[i] = roundNode(el, pow)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, el := range n {
			out[k] = roundNode(el, pow)
		}
		return out
	default:
		return v
	}
}

// RoundFrames applies Round to every frame's payload, preserving frame order.
// With a negative decimals the input slice is returned untouched.
func RoundFrames(frames []Frame, decimals int) []Frame {
	if decimals < 0 || len(frames) == 0 {
		return frames
	}

	out := make([]Frame, len(frames))
	for i, f := range frames {
		out[i] = Frame{
			FrameNumber: f.FrameNumber,
			Keypoints:   Round(f.Keypoints, decimals),
		}
	}
	return out
}

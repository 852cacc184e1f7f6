// Package keypoint defines the per-frame keypoint payload and its codec.
//
// Payloads arrive from the store as serialized JSON produced by the upstream
// extraction pipeline: nested arrays of coordinates, occasionally maps keyed
// by landmark group. Decoded values use the closed node set float64 / []any /
// map[string]any plus passthrough leaves (string, bool, nil).
package keypoint

import (
	"errors"
	"fmt"

	gojson "github.com/goccy/go-json"
)

// ErrDecode indicates a stored payload is not valid serialized keypoint data.
var ErrDecode = errors.New("invalid keypoint payload")

// Frame is one decoded observation of a word: its sequence number within the
// word plus the keypoint structure extracted for that frame.
type Frame struct {
	// FrameNumber is the position of this frame within the word's sequence.
	FrameNumber int `json:"frame_number"`

	// Keypoints is the decoded payload. A frame whose stored payload failed
	// to decode carries an empty sequence here instead of failing the batch.
	Keypoints any `json:"keypoints"`
}

// Decode parses a raw stored payload into its in-memory form.
// Returns ErrDecode when the raw bytes are not valid JSON.
func Decode(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	var v any
	if err := gojson.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

// Encode serializes a decoded payload back to its wire form. It cannot fail
// for values produced by Decode; the error return covers hand-built payloads
// containing non-encodable leaves.
func Encode(v any) ([]byte, error) {
	data, err := gojson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode keypoint payload: %w", err)
	}
	return data, nil
}

// DecodeFrames parses a serialized frame set as written by Encode. It is the
// typed counterpart of Decode for whole-word results moving through caches.
func DecodeFrames(raw []byte) ([]Frame, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	var frames []Frame
	if err := gojson.Unmarshal(raw, &frames); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return frames, nil
}

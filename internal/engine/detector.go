package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/attentive-data/focus.report/internal/gaze"
)

// keypointFrame is the wire shape of a landmark frame posted by a
// client that runs the face-mesh model itself.
type keypointFrame struct {
	Keypoints []gaze.Keypoint `json:"keypoints"`
}

// KeypointDetector decodes frames whose payload is a JSON keypoint
// document produced by an upstream landmark model. It is the detector
// used when clients ship landmarks rather than raw images.
type KeypointDetector struct{}

// Detect unmarshals the frame payload. An empty payload is an empty
// frame, not an error; malformed JSON is a detection failure, which the
// engine treats as "no face".
func (KeypointDetector) Detect(_ context.Context, f Frame) ([]gaze.Keypoint, error) {
	if len(f.Data) == 0 {
		return nil, nil
	}
	var doc keypointFrame
	if err := json.Unmarshal(f.Data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keypoint frame: %w", err)
	}
	return doc.Keypoints, nil
}

// Package gaze classifies whether a face is oriented toward the screen
// from a fixed set of facial landmark keypoints supplied by an external
// detector. The classifier is a pure function over a single frame; it
// keeps no state between calls.
package gaze

import "math"

// Landmark names follow the keypoint naming used by the upstream
// face-mesh detector. All six are required for classification.
const (
	NoseTip       = "noseTip"
	LeftEyeInner  = "leftEyeInner"
	RightEyeInner = "rightEyeInner"
	LeftEyeOuter  = "leftEyeOuter"
	RightEyeOuter = "rightEyeOuter"
	Chin          = "chin"
)

// Classification thresholds. These are empirically fixed constants,
// not learned parameters.
const (
	// HorizontalLookThreshold is the maximum nose-to-eye-centre offset,
	// normalised by eye width, for the gaze to count as on-screen.
	HorizontalLookThreshold = 0.18
	// VerticalLookMin and VerticalLookMax bound the nose-to-eye-centre
	// vertical offset, normalised by nose-to-chin distance.
	VerticalLookMin = 0.25
	VerticalLookMax = 0.75
	// verticalConfBand is the half-width of the vertical confidence band
	// around its centre (0.5).
	verticalConfBand = 0.25
)

// Keypoint is a single 2D facial landmark position.
type Keypoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Name string  `json:"name,omitempty"`
}

// Result is the per-frame classification output. Confidence is on a
// 0..100 scale.
type Result struct {
	Looking    bool    `json:"looking"`
	Confidence float64 `json:"confidence"`
}

// requiredLandmarks lists the six keypoints the classifier needs.
var requiredLandmarks = []string{
	NoseTip, LeftEyeInner, RightEyeInner, LeftEyeOuter, RightEyeOuter, Chin,
}

// Classify returns the gaze classification for one frame of landmarks.
// If any required landmark is missing the result is the neutral
// {Looking: false, Confidence: 0}; Classify never panics on malformed
// input.
func Classify(points []Keypoint) Result {
	found := make(map[string]Keypoint, len(requiredLandmarks))
	for _, p := range points {
		switch p.Name {
		case NoseTip, LeftEyeInner, RightEyeInner, LeftEyeOuter, RightEyeOuter, Chin:
			found[p.Name] = p
		}
	}
	for _, name := range requiredLandmarks {
		if _, ok := found[name]; !ok {
			return Result{}
		}
	}

	nose := found[NoseTip]
	chin := found[Chin]
	leftInner := found[LeftEyeInner]
	rightInner := found[RightEyeInner]
	leftOuter := found[LeftEyeOuter]
	rightOuter := found[RightEyeOuter]

	// Eye centre is the midpoint of the two inner corners.
	eyeCentreX := (leftInner.X + rightInner.X) / 2
	eyeCentreY := (leftInner.Y + rightInner.Y) / 2

	// Denominators are floored at 1 to avoid division by zero on
	// degenerate landmark sets.
	eyeWidth := math.Abs(rightOuter.X - leftOuter.X)
	if eyeWidth < 1 {
		eyeWidth = 1
	}
	noseToChin := math.Abs(chin.Y - nose.Y)
	if noseToChin < 1 {
		noseToChin = 1
	}

	horizontalRatio := math.Abs(nose.X-eyeCentreX) / eyeWidth
	verticalRatio := math.Abs(nose.Y-eyeCentreY) / noseToChin

	looking := horizontalRatio < HorizontalLookThreshold &&
		verticalRatio > VerticalLookMin && verticalRatio < VerticalLookMax

	horizConf := math.Max(0, 1-horizontalRatio/HorizontalLookThreshold)
	vertConf := math.Max(0, 1-math.Abs(verticalRatio-0.5)/verticalConfBand)

	return Result{
		Looking:    looking,
		Confidence: (horizConf + vertConf) / 2 * 100,
	}
}

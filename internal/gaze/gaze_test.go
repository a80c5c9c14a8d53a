package gaze

import (
	"math"
	"testing"
)

// centredFace returns a landmark set for a face looking straight at the
// screen: nose on the eye-centre axis, vertical ratio at the band centre.
func centredFace() []Keypoint {
	return []Keypoint{
		{X: 100, Y: 100, Name: LeftEyeOuter},
		{X: 140, Y: 100, Name: LeftEyeInner},
		{X: 180, Y: 100, Name: RightEyeInner},
		{X: 220, Y: 100, Name: RightEyeOuter},
		{X: 160, Y: 150, Name: NoseTip},
		{X: 160, Y: 250, Name: Chin},
	}
}

func TestClassify_CentredFaceLooking(t *testing.T) {
	res := Classify(centredFace())

	if !res.Looking {
		t.Error("expected centred face to be classified as looking")
	}
	if math.Abs(res.Confidence-100) > 1e-9 {
		t.Errorf("expected confidence 100 for centred face, got %v", res.Confidence)
	}
}

func TestClassify_HeadTurnedAway(t *testing.T) {
	points := centredFace()
	// Push the nose 40px off the eye-centre axis: horizontal ratio
	// becomes 40/120 = 0.333, beyond the 0.18 threshold.
	for i := range points {
		if points[i].Name == NoseTip {
			points[i].X = 200
		}
	}

	res := Classify(points)
	if res.Looking {
		t.Error("expected turned head to be classified as not looking")
	}
	// Horizontal sub-score saturates at 0, vertical stays near 1.
	if math.Abs(res.Confidence-50) > 1 {
		t.Errorf("expected confidence near 50, got %v", res.Confidence)
	}
}

func TestClassify_HeadTiltedUp(t *testing.T) {
	points := centredFace()
	// Nose nearly level with the eyes: vertical ratio drops below 0.25.
	for i := range points {
		if points[i].Name == NoseTip {
			points[i].Y = 105
		}
	}

	res := Classify(points)
	if res.Looking {
		t.Error("expected tilted head to be classified as not looking")
	}
}

func TestClassify_MissingLandmarks(t *testing.T) {
	full := centredFace()
	for drop := range full {
		points := make([]Keypoint, 0, len(full)-1)
		for i, p := range full {
			if i != drop {
				points = append(points, p)
			}
		}

		res := Classify(points)
		if res.Looking {
			t.Errorf("dropping %s: expected Looking=false", full[drop].Name)
		}
		if res.Confidence != 0 {
			t.Errorf("dropping %s: expected Confidence=0, got %v", full[drop].Name, res.Confidence)
		}
	}
}

func TestClassify_EmptyAndUnnamedInput(t *testing.T) {
	if res := Classify(nil); res.Looking || res.Confidence != 0 {
		t.Errorf("nil input: got %+v, want neutral result", res)
	}
	if res := Classify([]Keypoint{}); res.Looking || res.Confidence != 0 {
		t.Errorf("empty input: got %+v, want neutral result", res)
	}
	// Unnamed points never satisfy the required landmark set.
	res := Classify([]Keypoint{{X: 1, Y: 2}, {X: 3, Y: 4}})
	if res.Looking || res.Confidence != 0 {
		t.Errorf("unnamed input: got %+v, want neutral result", res)
	}
}

func TestClassify_DegenerateGeometry(t *testing.T) {
	// All landmarks stacked on a single point. Denominators floor at 1,
	// so the ratios stay finite.
	points := make([]Keypoint, 0, len(requiredLandmarks))
	for _, name := range requiredLandmarks {
		points = append(points, Keypoint{X: 50, Y: 50, Name: name})
	}

	res := Classify(points)
	if math.IsNaN(res.Confidence) || math.IsInf(res.Confidence, 0) {
		t.Fatalf("expected finite confidence, got %v", res.Confidence)
	}
	if res.Confidence < 0 || res.Confidence > 100 {
		t.Errorf("confidence out of range: %v", res.Confidence)
	}
}

func TestClassify_ConfidenceAlwaysInRange(t *testing.T) {
	// Sweep the nose across a wide range of offsets; the blended
	// confidence must stay within [0, 100] everywhere.
	for dx := -300.0; dx <= 300.0; dx += 7.5 {
		for dy := -300.0; dy <= 300.0; dy += 7.5 {
			points := centredFace()
			for i := range points {
				if points[i].Name == NoseTip {
					points[i].X += dx
					points[i].Y += dy
				}
			}

			res := Classify(points)
			if res.Confidence < 0 || res.Confidence > 100 {
				t.Fatalf("dx=%v dy=%v: confidence out of range: %v", dx, dy, res.Confidence)
			}
		}
	}
}

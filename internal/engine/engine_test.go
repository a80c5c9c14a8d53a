package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attentive-data/focus.report/internal/focus"
	"github.com/attentive-data/focus.report/internal/gaze"
	"github.com/attentive-data/focus.report/internal/monitoring"
	"github.com/attentive-data/focus.report/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func centredLandmarks() []gaze.Keypoint {
	return []gaze.Keypoint{
		{X: 100, Y: 100, Name: gaze.LeftEyeOuter},
		{X: 140, Y: 100, Name: gaze.LeftEyeInner},
		{X: 180, Y: 100, Name: gaze.RightEyeInner},
		{X: 220, Y: 100, Name: gaze.RightEyeOuter},
		{X: 160, Y: 150, Name: gaze.NoseTip},
		{X: 160, Y: 250, Name: gaze.Chin},
	}
}

// stubDetector returns canned keypoints, optionally blocking until
// released.
type stubDetector struct {
	mu      sync.Mutex
	points  []gaze.Keypoint
	err     error
	block   chan struct{}
	calls   int
	lastCtx context.Context
}

func (d *stubDetector) Detect(ctx context.Context, f Frame) ([]gaze.Keypoint, error) {
	d.mu.Lock()
	d.calls++
	d.lastCtx = ctx
	block := d.block
	points, err := d.points, d.err
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return points, err
}

func (d *stubDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool { return !e.inflight.Load() },
		2*time.Second, time.Millisecond)
}

func TestEngine_PublishesSnapshotToSubscribers(t *testing.T) {
	det := &stubDetector{points: centredLandmarks()}
	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	e := New(det, nil, clock)
	defer e.Close()

	var mu sync.Mutex
	var got []focus.Snapshot
	e.Subscribe(func(s focus.Snapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})

	require.True(t, e.OnFrame(Frame{Timestamp: clock.Now()}))
	waitIdle(t, e)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.True(t, got[0].FaceDetected)
	assert.True(t, got[0].Looking)
	assert.Equal(t, 100.0, got[0].Confidence)

	latest := e.Latest()
	assert.Equal(t, got[0], latest)
}

func TestEngine_SkipsFrameWhileDetectionInFlight(t *testing.T) {
	det := &stubDetector{points: centredLandmarks(), block: make(chan struct{})}
	e := New(det, nil, nil)
	defer e.Close()

	require.True(t, e.OnFrame(Frame{}))

	// A second frame while the detector is busy is skipped, not queued.
	assert.False(t, e.OnFrame(Frame{}))
	assert.False(t, e.OnFrame(Frame{}))

	close(det.block)
	waitIdle(t, e)

	assert.Equal(t, 1, det.callCount())
	assert.True(t, e.OnFrame(Frame{}), "engine accepts frames again once idle")
	waitIdle(t, e)
}

func TestEngine_DetectorErrorReadsAsNoFace(t *testing.T) {
	det := &stubDetector{err: errors.New("model crashed")}
	e := New(det, nil, nil)
	defer e.Close()

	require.True(t, e.OnFrame(Frame{}))
	waitIdle(t, e)

	snap := e.Latest()
	assert.False(t, snap.FaceDetected)
	assert.False(t, snap.Looking)
	assert.Zero(t, snap.Confidence)
}

func TestEngine_DebounceAcrossFrames(t *testing.T) {
	det := &stubDetector{points: centredLandmarks()}
	clock := timeutil.NewMockClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	e := New(det, nil, clock)
	defer e.Close()

	require.True(t, e.OnFrame(Frame{}))
	waitIdle(t, e)
	require.True(t, e.Latest().FaceDetected)

	// A dropout 100ms later is inside the debounce window.
	det.mu.Lock()
	det.points = nil
	det.mu.Unlock()
	clock.Advance(100 * time.Millisecond)

	require.True(t, e.OnFrame(Frame{}))
	waitIdle(t, e)
	assert.True(t, e.Latest().FaceDetected, "single dropout within 200ms still present")

	// 300ms of absence crosses the window.
	clock.Advance(300 * time.Millisecond)
	require.True(t, e.OnFrame(Frame{}))
	waitIdle(t, e)
	assert.False(t, e.Latest().FaceDetected)
}

func TestEngine_Unsubscribe(t *testing.T) {
	det := &stubDetector{points: centredLandmarks()}
	e := New(det, nil, nil)
	defer e.Close()

	var mu sync.Mutex
	count := 0
	id := e.Subscribe(func(focus.Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	require.True(t, e.OnFrame(Frame{}))
	waitIdle(t, e)

	e.Unsubscribe(id)
	require.True(t, e.OnFrame(Frame{}))
	waitIdle(t, e)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestEngine_CloseRejectsFramesAndCancelsDetection(t *testing.T) {
	det := &stubDetector{block: make(chan struct{})}
	e := New(det, nil, nil)

	require.True(t, e.OnFrame(Frame{}))
	e.Close()
	waitIdle(t, e)

	assert.False(t, e.OnFrame(Frame{}), "closed engine accepts no frames")

	det.mu.Lock()
	ctx := det.lastCtx
	det.mu.Unlock()
	require.NotNil(t, ctx)
	assert.Error(t, ctx.Err(), "pending detection context is cancelled")
}

func TestKeypointDetector(t *testing.T) {
	var det KeypointDetector

	points, err := det.Detect(context.Background(), Frame{})
	require.NoError(t, err)
	assert.Empty(t, points)

	payload, err := json.Marshal(map[string]interface{}{"keypoints": centredLandmarks()})
	require.NoError(t, err)
	points, err = det.Detect(context.Background(), Frame{Data: payload})
	require.NoError(t, err)
	require.Len(t, points, 6)
	assert.Equal(t, gaze.LeftEyeOuter, points[0].Name)

	_, err = det.Detect(context.Background(), Frame{Data: []byte("{broken")})
	assert.Error(t, err)
}

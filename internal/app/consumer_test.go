package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/panoptes/internal/behavior"
	"github.com/ayusman/panoptes/internal/capture"
	"github.com/ayusman/panoptes/internal/detector"
	"github.com/ayusman/panoptes/internal/exchange"
	"github.com/ayusman/panoptes/internal/frame"
	"github.com/ayusman/panoptes/internal/log"
)

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu      sync.Mutex
	batches [][]behavior.Detection
	evicted []int
}

func (o *recordingObserver) Observe(batch []behavior.Detection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, batch)
}

func (o *recordingObserver) Forget(ids []int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evicted = append(o.evicted, ids...)
}

func (o *recordingObserver) snapshot() ([][]behavior.Detection, []int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]behavior.Detection(nil), o.batches...), append([]int(nil), o.evicted...)
}

func frameAt(offset time.Duration) *frame.Frame {
	f := capture.SolidFrame(4, 4, 0)
	f.Timestamp = base.Add(offset)
	return f
}

func seconds(offset time.Duration) float64 {
	return float64(base.Add(offset).UnixNano()) / 1e9
}

type consumerFixture struct {
	frames   *exchange.Frames
	results  *exchange.Results
	det      *detector.MockDetector
	observer *recordingObserver
	consumer *Consumer
}

func newConsumerFixture(cfg behavior.Config) *consumerFixture {
	fx := &consumerFixture{
		frames:   exchange.NewFrames(),
		results:  exchange.NewResults(),
		det:      detector.NewMockDetector(),
		observer: &recordingObserver{},
	}
	fx.consumer = NewConsumer(fx.frames, fx.results, fx.det, behavior.NewRegistry(cfg),
		WithObserver(fx.observer),
		WithConsumerLogger(log.Discard()),
		WithPollInterval(time.Millisecond))
	return fx
}

func TestConsumer_StepWithoutFrame(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())

	assert.False(t, fx.consumer.Step())
	assert.Zero(t, fx.det.Calls())
	_, ok := fx.results.Snapshot()
	assert.False(t, ok)
}

func TestConsumer_StepPublishes(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())
	fx.det.SetObservations([]detector.Observation{
		{TrackID: 7, Box: detector.Box{0.1, 0.1, 0.5, 0.9}, Keypoints: detector.HandsUpPose()},
	})

	seq := fx.frames.Publish(frameAt(0))
	require.True(t, fx.consumer.Step())

	snap, ok := fx.results.Snapshot()
	require.True(t, ok)
	assert.Equal(t, seq, snap.FrameSeq)
	assert.Greater(t, snap.Throughput, 0.0)
	require.Len(t, snap.Detections, 1)

	d := snap.Detections[0]
	assert.Equal(t, 7, d.TrackID)
	assert.Equal(t, behavior.HandsUp, d.Action)
	// observations without a capture time take the frame's
	assert.InDelta(t, seconds(0), d.Timestamp, 1e-6)

	assert.Equal(t, seq, fx.consumer.LastSeen())
	assert.Equal(t, uint64(1), fx.consumer.Processed())
	assert.Equal(t, 1, fx.consumer.Tracks())

	batches, _ := fx.observer.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, behavior.HandsUp, batches[0][0].Action)
}

func TestConsumer_NoReprocessing(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())

	fx.frames.Publish(frameAt(0))
	assert.True(t, fx.consumer.Step())
	assert.False(t, fx.consumer.Step())
	assert.False(t, fx.consumer.Step())
	assert.Equal(t, 1, fx.det.Calls())

	fx.frames.Publish(frameAt(time.Second))
	assert.True(t, fx.consumer.Step())
	assert.Equal(t, 2, fx.det.Calls())
	assert.Equal(t, uint64(2), fx.results.Published())
}

func TestConsumer_SkipsOverwrittenFrames(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())

	fx.frames.Publish(frameAt(0))
	fx.frames.Publish(frameAt(time.Second))
	last := fx.frames.Publish(frameAt(2 * time.Second))

	assert.True(t, fx.consumer.Step())
	assert.False(t, fx.consumer.Step())
	assert.Equal(t, 1, fx.det.Calls())

	snap, _ := fx.results.Snapshot()
	assert.Equal(t, last, snap.FrameSeq)
	assert.Equal(t, uint64(2), fx.frames.Stats().Dropped)
}

func TestConsumer_DetectorErrorKeepsPreviousSnapshot(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())
	fx.det.SetObservations([]detector.Observation{{TrackID: 1, Keypoints: detector.NeutralPose()}})

	first := fx.frames.Publish(frameAt(0))
	require.True(t, fx.consumer.Step())
	before, _ := fx.results.Snapshot()

	fx.det.SetError(errors.New("model crashed"))
	failing := fx.frames.Publish(frameAt(time.Second))
	assert.True(t, fx.consumer.Step())

	after, ok := fx.results.Snapshot()
	require.True(t, ok)
	assert.Equal(t, before.Seq, after.Seq)
	assert.Equal(t, first, after.FrameSeq)
	assert.Equal(t, uint64(1), fx.consumer.Failures())

	// the failing frame is not retried
	assert.Equal(t, failing, fx.consumer.LastSeen())
	fx.det.SetError(nil)
	assert.False(t, fx.consumer.Step())
	assert.Equal(t, 2, fx.det.Calls())

	batches, _ := fx.observer.snapshot()
	assert.Len(t, batches, 1)
}

func TestConsumer_EvictsStaleTracks(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())
	fx.det.Script(
		[]detector.Observation{{TrackID: 1, Keypoints: detector.NeutralPose()}, {TrackID: 2, Keypoints: detector.NeutralPose()}},
		[]detector.Observation{{TrackID: 2, Keypoints: detector.NeutralPose()}},
		[]detector.Observation{{TrackID: 2, Keypoints: detector.NeutralPose()}},
	)

	fx.frames.Publish(frameAt(0))
	fx.consumer.Step()
	assert.Equal(t, 2, fx.consumer.Tracks())

	fx.frames.Publish(frameAt(3 * time.Second))
	fx.consumer.Step()
	assert.Equal(t, 2, fx.consumer.Tracks())

	fx.frames.Publish(frameAt(6 * time.Second))
	fx.consumer.Step()
	assert.Equal(t, 1, fx.consumer.Tracks())

	_, evicted := fx.observer.snapshot()
	assert.Equal(t, []int{1}, evicted)
}

func TestConsumer_ExplicitCaptureTimeWins(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())
	fx.det.SetObservations([]detector.Observation{{TrackID: 3, CaptureTime: 42.5}})

	fx.frames.Publish(frameAt(0))
	fx.consumer.Step()

	snap, _ := fx.results.Snapshot()
	require.Len(t, snap.Detections, 1)
	assert.Equal(t, 42.5, snap.Detections[0].Timestamp)
	assert.Equal(t, behavior.Neutral, snap.Detections[0].Action)
}

func TestConsumer_ModelClockKeepsTracks(t *testing.T) {
	fx := newConsumerFixture(behavior.Config{Window: 1, Decay: 500 * time.Millisecond, StaleAfter: 5 * time.Second})
	fx.det.Script(
		[]detector.Observation{{TrackID: 7, Keypoints: detector.HandsUpPose(), CaptureTime: 10.0}},
		[]detector.Observation{{TrackID: 7, Keypoints: detector.NeutralPose(), CaptureTime: 10.1}},
	)

	var labels []behavior.Label
	for _, offset := range []time.Duration{0, 100 * time.Millisecond} {
		fx.frames.Publish(frameAt(offset))
		require.True(t, fx.consumer.Step())
		snap, _ := fx.results.Snapshot()
		require.Len(t, snap.Detections, 1)
		labels = append(labels, snap.Detections[0].Action)
	}

	assert.Equal(t, []behavior.Label{behavior.HandsUp, behavior.HandsUp}, labels)
	assert.Equal(t, 1, fx.consumer.Tracks())
	_, evicted := fx.observer.snapshot()
	assert.Empty(t, evicted)
}

func TestConsumer_DecayAcrossFrames(t *testing.T) {
	fx := newConsumerFixture(behavior.Config{Window: 1, Decay: 500 * time.Millisecond, StaleAfter: 5 * time.Second})
	fx.det.Script(
		[]detector.Observation{{TrackID: 7, Keypoints: detector.HandsUpPose()}},
		[]detector.Observation{{TrackID: 7, Keypoints: detector.NeutralPose()}},
		[]detector.Observation{{TrackID: 7, Keypoints: detector.NeutralPose()}},
	)

	want := []struct {
		offset time.Duration
		label  behavior.Label
	}{
		{0, behavior.HandsUp},
		{200 * time.Millisecond, behavior.HandsUp},
		{700 * time.Millisecond, behavior.Neutral},
	}
	for _, w := range want {
		fx.frames.Publish(frameAt(w.offset))
		require.True(t, fx.consumer.Step())
		snap, _ := fx.results.Snapshot()
		require.Len(t, snap.Detections, 1)
		assert.Equal(t, w.label, snap.Detections[0].Action, "at %v", w.offset)
	}
}

func TestConsumer_Run(t *testing.T) {
	fx := newConsumerFixture(behavior.DefaultConfig())
	fx.det.SetObservations([]detector.Observation{{TrackID: 1, Keypoints: detector.NeutralPose()}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.consumer.Run(ctx) }()

	for i := 0; i < 3; i++ {
		seq := fx.frames.Publish(frameAt(time.Duration(i) * 100 * time.Millisecond))
		require.Eventually(t, func() bool {
			snap, ok := fx.results.Snapshot()
			return ok && snap.FrameSeq == seq
		}, 2*time.Second, time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

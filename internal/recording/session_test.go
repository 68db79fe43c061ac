package recording

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/junsooki/airmac-recorder/internal/encoder"
)

type fakeSource struct {
	mu          sync.Mutex
	frame       image.Image
	cursor      image.Point
	subs        map[int]func(time.Duration)
	nextID      int
	snapshots   int
	cursorCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frame: image.NewRGBA(image.Rect(0, 0, 4, 4)),
		subs:  make(map[int]func(time.Duration)),
	}
}

func (f *fakeSource) Snapshot() image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	if f.frame == nil {
		return nil
	}
	return f.frame
}

func (f *fakeSource) OnSync(fn func(time.Duration)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeSource) CursorPosition() image.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursorCalls++
	return f.cursor
}

func (f *fakeSource) fire(ts time.Duration) {
	f.mu.Lock()
	subs := make([]func(time.Duration), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ts)
	}
}

func (f *fakeSource) setCursor(x, y int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = image.Pt(x, y)
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) counts() (snapshots, cursorCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots, f.cursorCalls
}

type fakeEncoder struct {
	mu         sync.Mutex
	delays     []time.Duration
	finalized  int
	late       int
	hold       bool
	err        error
	onComplete func(*encoder.Artifact, error)
}

func (e *fakeEncoder) AddFrame(img image.Image, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finalized > 0 {
		e.late++
		return
	}
	e.delays = append(e.delays, delay)
}

func (e *fakeEncoder) Finalize(onComplete func(*encoder.Artifact, error)) {
	e.mu.Lock()
	e.finalized++
	if e.hold {
		e.onComplete = onComplete
		e.mu.Unlock()
		return
	}
	a, err := e.resultLocked()
	e.mu.Unlock()
	onComplete(a, err)
}

func (e *fakeEncoder) resultLocked() (*encoder.Artifact, error) {
	if e.err != nil {
		return nil, e.err
	}
	if len(e.delays) == 0 {
		return nil, encoder.ErrNoFrames
	}
	return &encoder.Artifact{
		Data:        []byte("GIF89a"),
		ContentType: "image/gif",
		Frames:      len(e.delays),
	}, nil
}

func (e *fakeEncoder) complete() {
	e.mu.Lock()
	fn := e.onComplete
	a, err := e.resultLocked()
	e.mu.Unlock()
	fn(a, err)
}

func (e *fakeEncoder) recorded() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Duration(nil), e.delays...)
}

func (e *fakeEncoder) lateFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.late
}

func quietOptions(clk *clocktesting.FakeClock) Options {
	log, _ := test.NewNullLogger()
	return Options{Clock: clk, Logger: log}
}

func TestSession_SyncScenario(t *testing.T) {
	src := newFakeSource()
	enc := &fakeEncoder{}
	clk := clocktesting.NewFakeClock(epoch)

	sess, err := Start(src, enc, quietOptions(clk))
	require.NoError(t, err)
	assert.Equal(t, StateActive, sess.State())

	src.fire(ms(0))
	src.fire(ms(10))
	src.fire(ms(25))

	pending, err := sess.Stop()
	require.NoError(t, err)
	assert.Equal(t, StateStopped, sess.State())

	a, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, a.Frames)
	assert.Equal(t, []time.Duration{0, ms(25)}, enc.recorded())

	st := sess.Stats()
	assert.Equal(t, int64(2), st.Accepted)
	assert.Equal(t, int64(1), st.Rejected)
	assert.Equal(t, epoch, st.StartedAt)
}

func TestSession_CursorPolling(t *testing.T) {
	src := newFakeSource()
	enc := &fakeEncoder{}
	clk := clocktesting.NewFakeClock(epoch)
	opts := quietOptions(clk)
	opts.PollInterval = ms(5)

	sess, err := Start(src, enc, opts)
	require.NoError(t, err)
	require.True(t, clk.HasWaiters())

	src.setCursor(1, 1)
	clk.Step(ms(5))
	require.Eventually(t, func() bool { return sess.Stats().Accepted == 1 }, time.Second, time.Millisecond)

	src.setCursor(2, 2)
	clk.Step(ms(5))
	require.Eventually(t, func() bool { return sess.Stats().Rejected == 1 }, time.Second, time.Millisecond)

	src.setCursor(3, 3)
	clk.Step(ms(25))
	require.Eventually(t, func() bool { return sess.Stats().Accepted == 2 }, time.Second, time.Millisecond)

	pending, err := sess.Stop()
	require.NoError(t, err)
	_, err = pending.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{0, ms(30)}, enc.recorded())
}

func TestSession_UnchangedCursorDoesNotCapture(t *testing.T) {
	src := newFakeSource()
	clk := clocktesting.NewFakeClock(epoch)
	opts := quietOptions(clk)
	opts.PollInterval = ms(5)

	sess, err := Start(src, &fakeEncoder{}, opts)
	require.NoError(t, err)

	// One call seeds the cursor at Start.
	_, calls := src.counts()
	require.Equal(t, 1, calls)

	clk.Step(ms(5))
	require.Eventually(t, func() bool {
		_, calls := src.counts()
		return calls == 2
	}, time.Second, time.Millisecond)

	_, err = sess.Stop()
	require.NoError(t, err)

	snapshots, _ := src.counts()
	assert.Zero(t, snapshots)
	assert.Zero(t, sess.Stats().Accepted)
}

func TestSession_StopTwice(t *testing.T) {
	sess, err := Start(newFakeSource(), &fakeEncoder{}, quietOptions(clocktesting.NewFakeClock(epoch)))
	require.NoError(t, err)

	_, err = sess.Stop()
	require.NoError(t, err)

	pending, err := sess.Stop()
	assert.ErrorIs(t, err, ErrSessionStopped)
	assert.Nil(t, pending)
}

func TestSession_NoFramesAfterStop(t *testing.T) {
	src := newFakeSource()
	enc := &fakeEncoder{}
	clk := clocktesting.NewFakeClock(epoch)

	sess, err := Start(src, enc, quietOptions(clk))
	require.NoError(t, err)
	require.Equal(t, 1, src.subscribers())

	src.fire(ms(0))
	_, err = sess.Stop()
	require.NoError(t, err)

	assert.Zero(t, src.subscribers())
	assert.False(t, clk.HasWaiters())

	src.fire(ms(100))
	src.setCursor(9, 9)
	clk.Step(time.Second)

	assert.Len(t, enc.recorded(), 1)
	assert.Zero(t, enc.lateFrames())
}

func TestSession_ConcurrentTriggersDuringStop(t *testing.T) {
	src := newFakeSource()
	enc := &fakeEncoder{}
	clk := clocktesting.NewFakeClock(epoch)
	opts := quietOptions(clk)
	opts.PollInterval = ms(1)

	sess, err := Start(src, enc, opts)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		quit = make(chan struct{})
	)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-quit:
					return
				default:
				}
				src.fire(ms(i * 25))
				src.setCursor(g, i)
				clk.Step(ms(1))
			}
		}(g)
	}

	time.Sleep(20 * time.Millisecond)
	pending, err := sess.Stop()
	require.NoError(t, err)
	frames := len(enc.recorded())

	// Triggers keep arriving after Stop; none may reach the encoder.
	time.Sleep(10 * time.Millisecond)
	close(quit)
	wg.Wait()

	assert.Equal(t, frames, len(enc.recorded()))
	assert.Zero(t, enc.lateFrames())

	select {
	case <-pending.Done():
	default:
		t.Fatal("pending artifact not resolved")
	}
}

func TestPendingArtifact_ResolvesOnceAfterEncoder(t *testing.T) {
	src := newFakeSource()
	enc := &fakeEncoder{hold: true}

	sess, err := Start(src, enc, quietOptions(clocktesting.NewFakeClock(epoch)))
	require.NoError(t, err)
	src.fire(ms(0))

	pending, err := sess.Stop()
	require.NoError(t, err)

	select {
	case <-pending.Done():
		t.Fatal("resolved before the encoder completed")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	enc.complete()
	<-pending.Done()
	first, err := pending.Result()
	require.NoError(t, err)
	require.NotNil(t, first)

	pending.resolve(nil, encoder.ErrNoFrames)
	again, err := pending.Wait(context.Background())
	assert.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, enc.finalized)
}

func TestSession_FinalizeErrorReachesPending(t *testing.T) {
	sess, err := Start(newFakeSource(), &fakeEncoder{}, quietOptions(clocktesting.NewFakeClock(epoch)))
	require.NoError(t, err)

	pending, err := sess.Stop()
	require.NoError(t, err)

	a, err := pending.Wait(context.Background())
	assert.Nil(t, a)
	assert.ErrorIs(t, err, encoder.ErrNoFrames)
}

func TestSession_SkipsWhenNothingRendered(t *testing.T) {
	src := newFakeSource()
	src.frame = nil
	enc := &fakeEncoder{}

	sess, err := Start(src, enc, quietOptions(clocktesting.NewFakeClock(epoch)))
	require.NoError(t, err)

	src.fire(ms(0))
	src.fire(ms(50))
	_, err = sess.Stop()
	require.NoError(t, err)

	st := sess.Stats()
	assert.Equal(t, int64(2), st.Skipped)
	assert.Zero(t, st.Accepted)
	assert.Zero(t, st.Rejected)
	assert.Empty(t, enc.recorded())

	// A skip does not anchor the scheduler: the first real frame is still
	// accepted with no delay.
	d := sess.scheduler.Evaluate(ms(60))
	assert.True(t, d.Accepted)
	assert.Equal(t, time.Duration(0), d.Delay)
}

func TestStart_RejectsMissingCollaborators(t *testing.T) {
	opts := quietOptions(clocktesting.NewFakeClock(epoch))

	_, err := Start(nil, &fakeEncoder{}, opts)
	assert.Error(t, err)

	_, err = Start(newFakeSource(), nil, opts)
	assert.Error(t, err)
}

func TestSession_Logging(t *testing.T) {
	log, hook := test.NewNullLogger()
	clk := clocktesting.NewFakeClock(epoch)

	sess, err := Start(newFakeSource(), &fakeEncoder{}, Options{Clock: clk, Logger: log})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "recording started", entry.Message)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, sess.ID(), entry.Data["session"])
	assert.Equal(t, DefaultMinInterval, entry.Data["min_interval"])

	_, err = sess.Stop()
	require.NoError(t, err)
	assert.Equal(t, "recording stopped, finalizing", hook.LastEntry().Message)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}

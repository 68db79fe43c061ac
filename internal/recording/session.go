package recording

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/junsooki/airmac-recorder/internal/encoder"
)

// ErrSessionStopped is returned by Stop on a session that was already stopped.
var ErrSessionStopped = errors.New("recording: session already stopped")

// State is the lifecycle state of a Session.
type State int

const (
	StateActive State = iota
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	// MinInterval is the minimum spacing between frames.
	MinInterval time.Duration
	// PollInterval is the cursor polling period; defaults to MinInterval.
	PollInterval time.Duration
	Clock        clock.WithTicker
	Logger       logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = o.MinInterval
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Stats counts what happened to captures during a session.
type Stats struct {
	StartedAt time.Time
	Accepted  int64
	Rejected  int64
	// Skipped counts triggers that found nothing rendered yet.
	Skipped int64
}

// Session records one source into one encoder. Sync events and cursor polls
// are funneled through a single goroutine, so the scheduler and cursor state
// are never touched concurrently.
type Session struct {
	id        string
	source    Source
	enc       encoder.AnimationEncoder
	scheduler *Scheduler
	log       logrus.FieldLogger
	startedAt time.Time

	// Loop-owned.
	cursor image.Point

	syncCh      chan time.Duration
	stopCh      chan struct{}
	loopDone    chan struct{}
	unsubscribe func()

	mu    sync.Mutex
	state State

	accepted atomic.Int64
	rejected atomic.Int64
	skipped  atomic.Int64
}

// Start begins recording src into enc.
func Start(src Source, enc encoder.AnimationEncoder, opts Options) (*Session, error) {
	if src == nil {
		return nil, pkgerrors.New("recording: nil source")
	}
	if enc == nil {
		return nil, pkgerrors.New("recording: nil encoder")
	}
	opts = opts.withDefaults()

	id := uuid.NewString()
	s := &Session{
		id:        id,
		source:    src,
		enc:       enc,
		scheduler: NewScheduler(opts.MinInterval, opts.Clock),
		log:       opts.Logger.WithField("session", id),
		startedAt: opts.Clock.Now(),
		cursor:    src.CursorPosition(),
		syncCh:    make(chan time.Duration),
		stopCh:    make(chan struct{}),
		loopDone:  make(chan struct{}),
		state:     StateActive,
	}

	ticker := opts.Clock.NewTicker(opts.PollInterval)
	s.unsubscribe = src.OnSync(s.deliverSync)
	go s.loop(ticker)

	s.log.WithFields(logrus.Fields{
		"min_interval":  opts.MinInterval,
		"poll_interval": opts.PollInterval,
	}).Info("recording started")
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns capture counters.
func (s *Session) Stats() Stats {
	return Stats{
		StartedAt: s.startedAt,
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Skipped:   s.skipped.Load(),
	}
}

// Stop ends the recording and asks the encoder to finalize. Once Stop
// returns no further frame reaches the encoder. The returned
// PendingArtifact resolves when the encoder is done.
//
// Stopping twice is a caller error and returns ErrSessionStopped.
func (s *Session) Stop() (*PendingArtifact, error) {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil, ErrSessionStopped
	}
	s.state = StateStopped
	close(s.stopCh)
	s.mu.Unlock()

	<-s.loopDone
	s.unsubscribe()

	st := s.Stats()
	s.log.WithFields(logrus.Fields{
		"accepted": st.Accepted,
		"rejected": st.Rejected,
		"skipped":  st.Skipped,
	}).Info("recording stopped, finalizing")

	pending := newPendingArtifact()
	s.enc.Finalize(pending.resolve)
	return pending, nil
}

// deliverSync runs on the source's goroutine. It hands the event to the loop
// and returns without effect once the session is stopping.
func (s *Session) deliverSync(ts time.Duration) {
	select {
	case s.syncCh <- ts:
	case <-s.stopCh:
	}
}

func (s *Session) loop(ticker clock.Ticker) {
	defer close(s.loopDone)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case ts := <-s.syncCh:
			// A handed-off event is processed even if stop raced it; Stop
			// waits for this loop, so it still lands before Finalize.
			s.onSync(ts)
		case <-ticker.C():
			s.onPoll()
		}
	}
}

func (s *Session) onSync(ts time.Duration) {
	img := s.source.Snapshot()
	if img == nil {
		s.skipped.Add(1)
		return
	}
	s.submit(img, s.scheduler.Evaluate(ts), "sync")
}

func (s *Session) onPoll() {
	pos := s.source.CursorPosition()
	if pos == s.cursor {
		return
	}
	s.cursor = pos

	img := s.source.Snapshot()
	if img == nil {
		s.skipped.Add(1)
		return
	}
	s.submit(img, s.scheduler.EvaluateProjected(), "cursor")
}

func (s *Session) submit(img image.Image, d Decision, trigger string) {
	if !d.Accepted {
		s.rejected.Add(1)
		return
	}
	s.accepted.Add(1)
	s.enc.AddFrame(img, d.Delay)
	s.log.WithFields(logrus.Fields{
		"trigger": trigger,
		"delay":   d.Delay,
	}).Trace("frame accepted")
}

// PendingArtifact is the eventual result of finalizing a recording.
type PendingArtifact struct {
	once     sync.Once
	done     chan struct{}
	artifact *encoder.Artifact
	err      error
}

func newPendingArtifact() *PendingArtifact {
	return &PendingArtifact{done: make(chan struct{})}
}

func (p *PendingArtifact) resolve(a *encoder.Artifact, err error) {
	p.once.Do(func() {
		p.artifact = a
		p.err = err
		close(p.done)
	})
}

// Done is closed once the result is available.
func (p *PendingArtifact) Done() <-chan struct{} {
	return p.done
}

// Result returns the artifact and error. It must only be called after Done
// is closed.
func (p *PendingArtifact) Result() (*encoder.Artifact, error) {
	return p.artifact, p.err
}

// Wait blocks until the artifact is ready or ctx is done.
func (p *PendingArtifact) Wait(ctx context.Context) (*encoder.Artifact, error) {
	select {
	case <-p.done:
		return p.artifact, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

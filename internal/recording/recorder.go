package recording

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/junsooki/airmac-recorder/internal/encoder"
)

var (
	ErrAlreadyRecording = errors.New("recording: already recording")
	ErrNotRecording     = errors.New("recording: not recording")
)

// Recorder runs at most one Session at a time against a source and saves
// each finished recording to a Store.
type Recorder struct {
	source     Source
	newEncoder func() encoder.AnimationEncoder
	still      *encoder.JPEGEncoder
	store      *Store

	mu      sync.Mutex
	opts    Options
	active  *Session
	onSaved func(path string, err error)
}

// NewRecorder creates a Recorder. newEncoder is called once per session.
func NewRecorder(src Source, newEncoder func() encoder.AnimationEncoder, store *Store, opts Options) *Recorder {
	return &Recorder{
		source:     src,
		newEncoder: newEncoder,
		still:      encoder.NewJPEGEncoder(encoder.DefaultJPEGQuality),
		store:      store,
		opts:       opts.withDefaults(),
	}
}

// OnSaved registers a callback for recordings finished through Toggle.
func (r *Recorder) OnSaved(fn func(path string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSaved = fn
}

// SetOptions replaces the session options. An active session keeps the
// options it was started with.
func (r *Recorder) SetOptions(opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts.withDefaults()
}

// Recording reports whether a session is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start begins a new session.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked()
}

func (r *Recorder) startLocked() error {
	if r.active != nil {
		return ErrAlreadyRecording
	}
	sess, err := Start(r.source, r.newEncoder(), r.opts)
	if err != nil {
		return pkgerrors.Wrap(err, "start recording")
	}
	r.active = sess
	return nil
}

// Stop ends the active session, waits for the encoder and saves the
// artifact. It returns the saved file path.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	sess, pending, err := r.detach()
	if err != nil {
		return "", err
	}
	return r.save(ctx, sess, pending)
}

// Toggle starts a session when idle, or stops the active one and saves it
// in the background, reporting through the OnSaved callback. The choice is
// made under the lock, so concurrent toggles alternate.
func (r *Recorder) Toggle(ctx context.Context) {
	r.mu.Lock()
	log := r.opts.Logger
	sess := r.active
	if sess == nil {
		err := r.startLocked()
		r.mu.Unlock()
		if err != nil {
			log.WithError(err).Error("toggle recording on")
		}
		return
	}
	r.active = nil
	r.mu.Unlock()

	pending, err := sess.Stop()
	if err != nil {
		log.WithError(err).Error("toggle recording off")
		return
	}
	go func() {
		path, err := r.save(ctx, sess, pending)
		r.mu.Lock()
		cb := r.onSaved
		r.mu.Unlock()
		if cb != nil {
			cb(path, err)
		}
	}()
}

// Screenshot saves the current frame as a still image, independent of any
// active session.
func (r *Recorder) Screenshot() (string, error) {
	img := r.source.Snapshot()
	if img == nil {
		return "", pkgerrors.New("nothing rendered yet")
	}
	artifact, err := r.still.Encode(img)
	if err != nil {
		return "", err
	}
	path, err := r.store.Save(uuid.NewString(), artifact)
	if err != nil {
		return "", err
	}
	r.logger().WithField("path", path).Info("screenshot saved")
	return path, nil
}

func (r *Recorder) detach() (*Session, *PendingArtifact, error) {
	r.mu.Lock()
	sess := r.active
	r.active = nil
	r.mu.Unlock()

	if sess == nil {
		return nil, nil, ErrNotRecording
	}
	pending, err := sess.Stop()
	if err != nil {
		return nil, nil, err
	}
	return sess, pending, nil
}

func (r *Recorder) save(ctx context.Context, sess *Session, pending *PendingArtifact) (string, error) {
	artifact, err := pending.Wait(ctx)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "finalize recording %s", sess.ID())
	}
	path, err := r.store.Save(sess.ID(), artifact)
	if err != nil {
		return "", err
	}
	r.logger().WithFields(logrus.Fields{
		"session":  sess.ID(),
		"path":     path,
		"frames":   artifact.Frames,
		"bytes":    len(artifact.Data),
		"duration": artifact.Duration,
	}).Info("recording saved")
	return path, nil
}

func (r *Recorder) logger() logrus.FieldLogger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.Logger
}

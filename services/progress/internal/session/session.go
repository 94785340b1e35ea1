// Package session tracks the ephemeral playback state of one open lesson and
// decides when accumulated watch time should be flushed into the progress
// ledger. The session is never the system of record; everything durable goes
// through the flush path.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/learning-platform/services/progress/internal/outline"
)

// State is the playback lifecycle position of the session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

// DefaultFlushThresholdSeconds is the accumulated watch time between
// cadence flushes while playing.
const DefaultFlushThresholdSeconds = 30

var ErrInvalidTransition = errors.New("invalid playback state transition")

// FlushRequest is the unit handed to the flush path. Final marks the
// teardown flush emitted on Close.
type FlushRequest struct {
	Ref               outline.Ref
	PositionSeconds   int
	DeltaWatchSeconds int
	ClientTsMs        int64
	Final             bool
}

// Hooks receives session outputs. OnFlush must not block; hand the request to
// a Flusher. OnCompletionPrompt signals that content ended on a lesson not
// yet completed. Whoever consumes it decides whether to confirm; the session
// itself never marks a lesson complete.
type Hooks struct {
	OnFlush            func(FlushRequest)
	OnCompletionPrompt func(outline.Ref)
}

// Session is a single-lesson playback tracker. Not safe for concurrent use;
// one player owns one session.
type Session struct {
	state          State
	ref            outline.Ref
	completed      bool // completion known at open time
	autoplay       bool
	startedAt      time.Time
	currentTime    int
	watchSeconds   int // accumulated wall-clock seconds while playing
	flushedSeconds int // portion of watchSeconds already emitted
	sinceFlush     int
	flushThreshold int
	hooks          Hooks
	now            func() time.Time
}

// Option tweaks session construction.
type Option func(*Session)

// WithAutoplay makes Ready land in Playing instead of Paused.
func WithAutoplay() Option {
	return func(s *Session) { s.autoplay = true }
}

// WithFlushThreshold overrides the cadence threshold, in accumulated seconds.
func WithFlushThreshold(seconds int) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.flushThreshold = seconds
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(hooks Hooks, opts ...Option) *Session {
	s := &Session{
		state:          StateIdle,
		flushThreshold: DefaultFlushThresholdSeconds,
		hooks:          hooks,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State          { return s.state }
func (s *Session) Ref() outline.Ref      { return s.ref }
func (s *Session) CurrentTime() int      { return s.currentTime }
func (s *Session) WatchSeconds() int     { return s.watchSeconds }
func (s *Session) UnflushedSeconds() int { return s.watchSeconds - s.flushedSeconds }

// Open starts a session for ref. completed tells the session whether the
// ledger already has this lesson completed, which suppresses the completion
// prompt on End.
func (s *Session) Open(ref outline.Ref, completed bool) error {
	if s.state != StateIdle && s.state != StateEnded {
		return transitionErr(s.state, "open")
	}
	s.state = StateLoading
	s.ref = ref
	s.completed = completed
	s.startedAt = s.now().UTC()
	s.currentTime = 0
	s.watchSeconds = 0
	s.flushedSeconds = 0
	s.sinceFlush = 0
	return nil
}

// Ready marks the content loaded. Autoplay decides whether playback starts
// immediately.
func (s *Session) Ready() error {
	if s.state != StateLoading {
		return transitionErr(s.state, "ready")
	}
	if s.autoplay {
		s.state = StatePlaying
	} else {
		s.state = StatePaused
	}
	return nil
}

func (s *Session) Play() error {
	if s.state != StatePaused {
		return transitionErr(s.state, "play")
	}
	s.state = StatePlaying
	return nil
}

// Pause stops accumulation and emits a cadence flush when there is anything
// unflushed, so a long pause never strands watch time locally.
func (s *Session) Pause() error {
	if s.state != StatePlaying {
		return transitionErr(s.state, "pause")
	}
	s.state = StatePaused
	if s.UnflushedSeconds() > 0 {
		s.emitFlush(false)
	}
	return nil
}

// Tick advances the session by one second of wall clock while playing and
// records the player's current media position. Watch time deliberately
// tracks wall-clock-while-playing, not media-time deltas; a seek does not
// rewrite history.
func (s *Session) Tick(currentTime int) error {
	if s.state != StatePlaying {
		return transitionErr(s.state, "tick")
	}
	if currentTime >= 0 {
		s.currentTime = currentTime
	}
	s.watchSeconds++
	s.sinceFlush++
	if s.sinceFlush >= s.flushThreshold {
		s.emitFlush(false)
	}
	return nil
}

// End records that content reached its natural end. The flush is
// unconditional; the completion prompt fires only when the lesson was not
// already complete.
func (s *Session) End() error {
	if s.state != StatePlaying {
		return transitionErr(s.state, "end")
	}
	s.state = StateEnded
	s.emitFlush(false)
	if !s.completed && s.hooks.OnCompletionPrompt != nil {
		s.hooks.OnCompletionPrompt(s.ref)
	}
	return nil
}

// Close tears the session down from any state, emitting one final flush when
// a lesson was open. Delivery of that flush is best-effort; state lost on an
// abrupt client exit is bounded by the flush threshold.
func (s *Session) Close() {
	if s.state != StateIdle {
		s.emitFlush(true)
	}
	s.state = StateIdle
	s.ref = outline.Ref{}
	s.completed = false
	s.currentTime = 0
	s.watchSeconds = 0
	s.flushedSeconds = 0
	s.sinceFlush = 0
}

func (s *Session) emitFlush(final bool) {
	req := FlushRequest{
		Ref:               s.ref,
		PositionSeconds:   s.currentTime,
		DeltaWatchSeconds: s.UnflushedSeconds(),
		ClientTsMs:        s.now().UnixMilli(),
		Final:             final,
	}
	s.flushedSeconds = s.watchSeconds
	s.sinceFlush = 0
	if s.hooks.OnFlush != nil {
		s.hooks.OnFlush(req)
	}
}

func transitionErr(from State, op string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, op, from)
}

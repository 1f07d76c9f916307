// Package session holds the per-call streaming state: the frame
// accumulator, the flush state machine, the pipeline that turns buffered
// caller audio into a spoken reply, and the process-wide registry of
// active calls.
package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// State models the lifecycle of one call's streaming session. At most one
// pipeline run is in flight per session: media frames arriving while in
// StateFlushing are dropped rather than queued, bounding loss by pipeline
// latency instead of building a backlog.
type State int

const (
	// StateStreaming accepts and accumulates media frames.
	StateStreaming State = iota
	// StateFlushing has a pipeline run in flight; frames are dropped.
	StateFlushing
	// StateTerminated is reached on the stop event; the session is dead.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateFlushing:
		return "flushing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// PipelineRunner executes one flush: transcode, transcribe, reply,
// synthesize, publish. It returns the user transcript and assistant reply
// so the session can append them to history.
type PipelineRunner interface {
	Run(ctx context.Context, callSID string, raw []byte, history []Turn) (user, reply string, err error)
}

// Config tunes the frame accumulator. The values have no stated duration
// semantics; they are byte thresholds negotiated with the deployment.
type Config struct {
	// FlushBytes is the buffered byte count that triggers a pipeline run.
	FlushBytes int
	// MinFrameBytes discards frames too small to carry usable signal.
	MinFrameBytes int
}

// DefaultConfig mirrors the deployment defaults.
func DefaultConfig() Config {
	return Config{FlushBytes: 30000, MinFrameBytes: 160}
}

// Session is the live state for one active call.
type Session struct {
	CallSID   string
	StartedAt time.Time

	pipe PipelineRunner
	cfg  Config

	mu       sync.Mutex
	state    State
	frames   [][]byte
	buffered int
	history  []Turn

	flushes       uint64
	droppedPaused uint64

	inflight sync.WaitGroup
}

// New creates a streaming session for callSID with an empty history and
// buffer.
func New(callSID string, cfg Config, pipe PipelineRunner) *Session {
	if cfg.FlushBytes <= 0 {
		cfg.FlushBytes = DefaultConfig().FlushBytes
	}
	if cfg.MinFrameBytes <= 0 {
		cfg.MinFrameBytes = DefaultConfig().MinFrameBytes
	}
	return &Session{
		CallSID:   callSID,
		StartedAt: time.Now(),
		pipe:      pipe,
		cfg:       cfg,
		state:     StateStreaming,
	}
}

// Media ingests one decoded frame from the live media channel. Frames
// below the minimum size are discarded; frames arriving while a pipeline
// run is in flight are dropped. Crossing the flush threshold atomically
// detaches the buffer and starts a pipeline run without blocking ingestion.
func (s *Session) Media(frame []byte) {
	s.mu.Lock()
	if s.state != StateStreaming {
		if s.state == StateFlushing {
			s.droppedPaused++
		}
		s.mu.Unlock()
		return
	}
	if len(frame) < s.cfg.MinFrameBytes {
		s.mu.Unlock()
		return
	}
	s.frames = append(s.frames, frame)
	s.buffered += len(frame)
	if s.buffered < s.cfg.FlushBytes {
		s.mu.Unlock()
		return
	}

	raw := make([]byte, 0, s.buffered)
	for _, f := range s.frames {
		raw = append(raw, f...)
	}
	s.frames = nil
	s.buffered = 0
	s.state = StateFlushing
	s.flushes++
	s.inflight.Add(1)
	s.mu.Unlock()

	go s.runFlush(raw)
}

func (s *Session) runFlush(raw []byte) {
	defer s.inflight.Done()
	defer s.endFlush()

	user, reply, err := s.pipe.Run(context.Background(), s.CallSID, raw, s.History())
	if err != nil {
		log.Printf("[%s] pipeline run failed: %v", s.CallSID, err)
		return
	}
	s.appendExchange(user, reply)
}

// endFlush returns the session to streaming unless it terminated while
// the run was in flight.
func (s *Session) endFlush() {
	s.mu.Lock()
	if s.state == StateFlushing {
		s.state = StateStreaming
	}
	s.mu.Unlock()
}

// appendExchange records the user turn then the assistant turn. History is
// append-only; a run that finished after the stop event appends nothing.
func (s *Session) appendExchange(user, assistant string) {
	s.mu.Lock()
	if s.state != StateTerminated {
		s.history = append(s.history, Turn{Role: "user", Content: user})
		s.history = append(s.history, Turn{Role: "assistant", Content: assistant})
	}
	s.mu.Unlock()
}

// Stop ends the session: buffered un-flushed audio is discarded and any
// in-flight run's result will be dropped.
func (s *Session) Stop() {
	s.mu.Lock()
	s.state = StateTerminated
	s.frames = nil
	s.buffered = 0
	s.mu.Unlock()
}

// Wait blocks until any in-flight pipeline run has finished.
func (s *Session) Wait() { s.inflight.Wait() }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Buffered reports the current ingestion buffer byte count.
func (s *Session) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffered
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Info is a point-in-time snapshot for the call-debug listing.
type Info struct {
	CallSID       string    `json:"call_sid"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	BufferedBytes int       `json:"buffered_bytes"`
	Turns         int       `json:"turns"`
	Flushes       uint64    `json:"flushes"`
	DroppedFrames uint64    `json:"dropped_frames_while_busy"`
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		CallSID:       s.CallSID,
		State:         s.state.String(),
		StartedAt:     s.StartedAt,
		BufferedBytes: s.buffered,
		Turns:         len(s.history),
		Flushes:       s.flushes,
		DroppedFrames: s.droppedPaused,
	}
}

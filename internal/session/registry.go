package session

import (
	"log"
	"sort"
	"sync"
)

// Registry is the process-wide table of active call sessions. Sessions
// are created on the start event and released on stop or connection close.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg  Config
	pipe PipelineRunner
}

// NewRegistry builds an empty registry; every session it creates shares
// cfg and pipe.
func NewRegistry(cfg Config, pipe PipelineRunner) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		pipe:     pipe,
	}
}

// Start creates (or returns the existing) session for callSID.
func (r *Registry) Start(callSID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[callSID]; ok {
		log.Printf("[%s] start event for already-active session", callSID)
		return existing
	}
	sess := New(callSID, r.cfg, r.pipe)
	r.sessions[callSID] = sess
	log.Printf("[%s] session started (%d active)", callSID, len(r.sessions))
	return sess
}

// Get returns the session for callSID, if any.
func (r *Registry) Get(callSID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[callSID]
	return sess, ok
}

// Stop terminates and releases the session for callSID.
func (r *Registry) Stop(callSID string) {
	r.mu.Lock()
	sess, ok := r.sessions[callSID]
	if ok {
		delete(r.sessions, callSID)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	sess.Stop()
	log.Printf("[%s] session stopped (%d active)", callSID, remaining)
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot lists all active sessions for the call-debug page, ordered by
// call SID for stable output.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CallSID < infos[j].CallSID })
	return infos
}

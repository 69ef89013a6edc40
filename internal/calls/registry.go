package calls

import (
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

var (
	// ErrCallEnded is returned for chunks and lookups that arrive after a
	// call was torn down.
	ErrCallEnded   = errors.New("call has ended")
	ErrUnknownCall = errors.New("unknown call")
)

// Registry maps call ids to live sessions. Ended calls leave a tombstone for
// a retention window so late audio is dropped instead of starting a new call.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ended    *gocache.Cache
}

func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ended:    gocache.New(retention, retention/2),
	}
}

// GetOrCreate returns the live session for id, calling create under the
// registry lock if there is none. created reports whether create ran.
func (r *Registry) GetOrCreate(id string, create func() *Session) (s *Session, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, false, nil
	}
	if _, ok := r.ended.Get(id); ok {
		return nil, false, ErrCallEnded
	}
	s = create()
	r.sessions[id] = s
	return s, true, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	if _, ok := r.ended.Get(id); ok {
		return nil, ErrCallEnded
	}
	return nil, ErrUnknownCall
}

// Remove takes the session out of the registry and tombstones its id. ok is
// false when the call was not live.
func (r *Registry) Remove(id, reason string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	r.ended.SetDefault(id, reason)
	return s, true
}

// EndReason reports why a recently ended call was torn down.
func (r *Registry) EndReason(id string) (string, bool) {
	v, ok := r.ended.Get(id)
	if !ok {
		return "", false
	}
	reason, _ := v.(string)
	return reason, true
}

// Idle lists sessions with no activity since before cutoff.
func (r *Registry) Idle(cutoff time.Time) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

package navfake

import (
	"sync"

	"github.com/jrsteele09/go-admin-console/navigation"
)

var _ navigation.Port = (*Recorder)(nil)

// Recorder is a navigation.Port that records every navigation.
type Recorder struct {
	mu     sync.Mutex
	routes []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) GoTo(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *Recorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

// Last returns the most recent navigation or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.routes) == 0 {
		return ""
	}
	return r.routes[len(r.routes)-1]
}

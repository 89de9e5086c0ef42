// Package status holds the dynamizer's externally visible state, the
// PlayerStatus of spec.md §3. It exists so the HTTP task can read a
// consistent snapshot without ever touching the dynamizer's MPD
// connection or internal data structures, per the concurrency model in
// spec.md §5.
package status

import (
	"sync"
	"time"

	"github.com/kungpfui/cantatadyn/internal/util"
)

// State is one of the dynamizer's externally visible phases.
type State string

const (
	Idle      State = "IDLE"
	Starting  State = "STARTING"
	HaveSongs State = "HAVE_SONGS"
	NoSongs   State = "NO_SONGS"
)

// Snapshot is an immutable copy of PlayerStatus safe to read after the
// call returns.
type Snapshot struct {
	State      State
	Dynamic    bool
	Timestamp  int64
	ActiveName string
}

// Facade guards PlayerStatus with a mutex: the dynamizer task is the
// only writer, the HTTP task only reads via Snapshot. Every mutation
// also emits the new Snapshot on Events, for the HTTP surface's SSE
// stream.
type Facade struct {
	Events *util.Emitter

	mu    sync.RWMutex
	state Snapshot
}

// New constructs a Facade starting in IDLE with dynamic mode off.
func New() *Facade {
	return &Facade{state: Snapshot{State: Idle}, Events: &util.Emitter{}}
}

// Snapshot returns an atomic copy of the current status.
func (f *Facade) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Facade) emit() {
	if f.Events != nil {
		f.Events.Emit(f.Snapshot())
	}
}

// SetState updates the phase without touching the timestamp; phase
// transitions alone (e.g. HAVE_SONGS -> NO_SONGS as the queue empties)
// are not "user-visible rule-file mutations" per spec.md §3.
func (f *Facade) SetState(s State) {
	f.mu.Lock()
	f.state.State = s
	f.mu.Unlock()
	f.emit()
}

// Touch bumps the timestamp and overwrites the active rule name and
// dynamic flag with the given values, used whenever a control message mutates the rule store
// or flips dynamic mode, per spec.md §3.
func (f *Facade) Touch(activeName string, dynamic bool) {
	f.mu.Lock()
	f.state.ActiveName = activeName
	f.state.Dynamic = dynamic
	f.state.Timestamp = time.Now().Unix()
	f.mu.Unlock()
	f.emit()
}

// SetDynamic flips dynamic mode and bumps the timestamp, leaving the
// active name untouched.
func (f *Facade) SetDynamic(dynamic bool) {
	f.mu.Lock()
	f.state.Dynamic = dynamic
	f.state.Timestamp = time.Now().Unix()
	f.mu.Unlock()
	f.emit()
}

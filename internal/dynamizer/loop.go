package dynamizer

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/kungpfui/cantatadyn/internal/control"
	"github.com/kungpfui/cantatadyn/internal/history"
	"github.com/kungpfui/cantatadyn/internal/mpd"
	"github.com/kungpfui/cantatadyn/internal/rules"
	"github.com/kungpfui/cantatadyn/internal/status"
	log "github.com/sirupsen/logrus"
)

// Conn is the subset of *mpd.Conn the loop drives directly.
type Conn interface {
	Status() (mpd.Attrs, error)
	Stats() (mpd.Attrs, error)
	Playlist() ([]mpd.Attrs, error)
	Delete(idx int) error
	Add(uri string) error
	Play(pos int) error
	Idle(subsystems ...string) ([]string, error)
	ReadMessages() ([]mpd.Attrs, error)
	SendMessage(channel, payload string) error
	FindFiles(expr string) ([]string, error)
	ListArtists() ([]string, error)
	StickerFindRatings() (map[string]int, error)
	StickerGetRating(file string) (int, bool)
	LsinfoDuration(file string) (int, bool)
}

// Loop is the dynamizer's main state machine, per spec.md §4.5. It
// owns a single MPD connection exclusively; nothing else may issue
// commands on it, per the concurrency model in spec.md §5.
type Loop struct {
	Conn       Conn
	Rules      *rules.Engine
	History    *history.Buffer
	Status     *status.Facade
	ServerMode bool

	mu         sync.Mutex
	dynamic    bool
	pool       []string
	poolDirty  bool
	lastDBTime string

	dispatcher *control.Dispatcher
}

// NewLoop wires a Loop together with its control dispatcher.
func NewLoop(conn Conn, engine *rules.Engine, hist *history.Buffer, st *status.Facade, serverMode bool, rulesDir, activeLink string, queue control.QueueClearer) *Loop {
	l := &Loop{
		Conn:       conn,
		Rules:      engine,
		History:    hist,
		Status:     st,
		ServerMode: serverMode,
		poolDirty:  true,
	}
	l.dispatcher = &control.Dispatcher{
		RulesDir:   rulesDir,
		ActiveLink: activeLink,
		Status:     st,
		Queue:      queue,
		Loop:       l,
	}
	return l
}

// SetDynamic implements control.Dynamizer.
func (l *Loop) SetDynamic(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dynamic = on
}

// InvalidatePool implements control.Dynamizer.
func (l *Loop) InvalidatePool() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.poolDirty = true
}

func (l *Loop) isDynamic() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dynamic
}

// Run executes the nine-step iteration forever, or until err is
// returned by a fatal condition (there is none in the current design;
// transport failures degrade to empty replies per spec.md §7).
func (l *Loop) Run() error {
	for {
		if err := l.iterate(); err != nil {
			log.WithError(err).Warn("dynamizer: iteration failed, continuing")
		}
	}
}

// RunOnce executes a single iteration, used by the --test CLI mode.
func (l *Loop) RunOnce() error {
	return l.iterate()
}

func (l *Loop) iterate() error {
	if !l.isDynamic() {
		l.Status.SetState(status.Idle)
		l.Conn.Idle(l.idleSubsystems()...)
		l.drainMessages()
		return nil
	}
	l.Status.SetState(status.Starting)

	statusAttrs, _ := l.Conn.Status()
	songIdx := atoiDefault(statusAttrs["song"], -1)
	isPlaying := statusAttrs["state"] == "play"

	statsAttrs, _ := l.Conn.Stats()
	if dbUpdate := statsAttrs["db_update"]; dbUpdate != "" && dbUpdate != l.lastDBTime {
		l.lastDBTime = dbUpdate
		l.mu.Lock()
		l.poolDirty = true
		l.mu.Unlock()
	}

	playlist, _ := l.Conn.Playlist()
	length := len(playlist)

	if err := l.Rules.Read(); err != nil {
		log.WithError(err).Warn("dynamizer: rule read failed")
	}
	current := l.Rules.Current()

	// Trim: keep the current track near the middle of the queue.
	want := current.DesiredQueueLength / 2
	if songIdx >= 0 {
		toDelete := songIdx - (want - 1)
		for i := 0; i < toDelete && length > 0; i++ {
			if err := l.Conn.Delete(0); err != nil {
				break
			}
			length--
			songIdx--
		}
	}

	l.mu.Lock()
	dirty := l.poolDirty || l.Rules.ConsumeChanged()
	l.mu.Unlock()
	if dirty || len(l.pool) == 0 {
		pool, err := BuildPool(l.Conn, current)
		if err == nil {
			l.pool = pool
		}
		l.mu.Lock()
		l.poolDirty = false
		l.mu.Unlock()
	}

	addedAny := false
	wasEmpty := length == 0
	failures := 0
	for length < current.DesiredQueueLength && len(l.pool) > 0 {
		idx := rand.Intn(len(l.pool))
		file := l.pool[idx]

		if !passesDuration(l.Conn, current, file) || !passesRating(l.Conn, current, file) {
			l.pool = removeAt(l.pool, idx)
			continue
		}

		bypassHistory := failures >= 100
		if !bypassHistory && !l.History.CanAdd(file, len(l.pool)) {
			failures++
			continue
		}

		if err := l.Conn.Add(file); err != nil {
			l.pool = removeAt(l.pool, idx)
			continue
		}
		l.History.StoreSong(file)
		length++
		failures = 0
		addedAny = true
	}

	if wasEmpty && !isPlaying && addedAny && length >= current.DesiredQueueLength {
		l.Conn.Play(0)
	}

	l.drainMessages()

	if len(l.pool) > 0 {
		l.Status.SetState(status.HaveSongs)
		l.Conn.Idle(l.idleSubsystems()...)
	} else {
		l.Status.SetState(status.NoSongs)
		l.Conn.Idle(l.idleSubsystems()...)
	}
	return nil
}

func (l *Loop) idleSubsystems() []string {
	if l.ServerMode {
		return []string{"player", "playlist", "message"}
	}
	return []string{"player", "playlist"}
}

// drainMessages reads and dispatches any pending control messages,
// per spec.md §5: "drained before the next dynamizer iteration."
func (l *Loop) drainMessages() {
	if !l.ServerMode {
		return
	}
	msgs, err := l.Conn.ReadMessages()
	if err != nil {
		return
	}
	for _, m := range msgs {
		payload, ok := m["message"]
		if !ok {
			continue
		}
		clientID, reply := l.dispatcher.Dispatch(payload)
		l.Conn.SendMessage(mpd.OutChannel(clientID), reply)
	}
}

func removeAt(s []string, i int) []string {
	s[i] = s[len(s)-1]
	return s[:len(s)-1]
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Package sync keeps local views of server-side notifications and
// messages current by polling the gateway. There is no push channel:
// each client polls once on start, then on every tick and on demand.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// State is the fetch state of a sync client.
type State int

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// ErrStopped is returned by operations on a stopped client.
var ErrStopped = errors.New("sync: client stopped")

// fetchTimeout is the maximum time allowed for a single poll.
const fetchTimeout = 30 * time.Second

// updateBuffer is the capacity of a client's update channel.
const updateBuffer = 16

// runner drives the polling loop of one client: an immediate poll, then
// one per tick or trigger until stopped.
type runner struct {
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	triggerCh chan struct{}
	wg        gosync.WaitGroup

	mu      gosync.Mutex
	running bool
	stopped bool
}

func newRunner(interval time.Duration) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		triggerCh: make(chan struct{}, 1),
	}
}

// start launches the loop. It reports false if the loop already ran.
func (r *runner) start(poll func(ctx context.Context)) bool {
	r.mu.Lock()
	if r.running || r.stopped {
		r.mu.Unlock()
		return false
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.loop(poll)
	return true
}

func (r *runner) loop(poll func(ctx context.Context)) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.once(poll)

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.once(poll)
		case <-r.triggerCh:
			r.once(poll)
		}
	}
}

func (r *runner) once(poll func(ctx context.Context)) {
	if r.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, fetchTimeout)
	defer cancel()
	poll(ctx)
}

// trigger requests an immediate poll. Requests made while one is
// already queued collapse into it.
func (r *runner) trigger() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// stop cancels in-flight polls and waits for the loop to exit.
func (r *runner) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

// feed is a buffered update channel read by the Bubble Tea runtime. The
// owner serializes send and close under its own lock.
type feed[T any] struct {
	ch     chan T
	closed bool
}

func newFeed[T any]() *feed[T] {
	return &feed[T]{ch: make(chan T, updateBuffer)}
}

// send never blocks. When the buffer is full the oldest update is
// discarded; every update carries a full snapshot.
func (f *feed[T]) send(v T) {
	if f.closed {
		return
	}
	select {
	case f.ch <- v:
		return
	default:
	}
	select {
	case <-f.ch:
	default:
	}
	select {
	case f.ch <- v:
	default:
	}
}

func (f *feed[T]) close() {
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}

// wait returns a tea.Cmd that delivers the next update, or nil once the
// feed is closed.
func (f *feed[T]) wait() tea.Cmd {
	ch := f.ch
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return v
	}
}

// readLedger records read flags confirmed by local writes. Stamps come
// from the owning client's logical clock, so a confirmation is newer
// than a poll exactly when it happened after the poll started.
type readLedger struct {
	confirmed map[string]confirmation
}

type confirmation struct {
	read  bool
	stamp uint64
}

func newReadLedger() readLedger {
	return readLedger{confirmed: make(map[string]confirmation)}
}

func (l readLedger) confirm(id string, read bool, stamp uint64) {
	l.confirmed[id] = confirmation{read: read, stamp: stamp}
}

// resolve returns the read flag that wins between a server value taken
// from a poll started at pollStamp and any local confirmation.
func (l readLedger) resolve(id string, server bool, pollStamp uint64) bool {
	c, ok := l.confirmed[id]
	if ok && c.stamp > pollStamp {
		return c.read
	}
	return server
}

// prune forgets confirmations that an applied poll already reflects.
func (l readLedger) prune(appliedStamp uint64) {
	for id, c := range l.confirmed {
		if c.stamp <= appliedStamp {
			delete(l.confirmed, id)
		}
	}
}

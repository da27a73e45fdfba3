package netmon

import (
	"context"
	"log"
	"sync"
	"time"
)

// Probe reports whether the remote system is reachable right now.
type Probe func(ctx context.Context) error

// Listener receives the new connectivity state on every transition.
type Listener func(online bool)

// Monitor is the single source of truth for connectivity state. Transitions
// are delivered to every live subscriber, in subscription order, before the
// call that triggered them returns, so dependent components observe state
// deterministically.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	order     []int
	listeners map[int]Listener
}

func New(initialOnline bool) *Monitor {
	return &Monitor{
		online:    initialOnline,
		listeners: make(map[int]Listener),
	}
}

// Online returns the current state. No side effects.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a listener and returns its unsubscribe function.
func (m *Monitor) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.order = append(m.order, id)
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// SetOnline records a state observation. Listeners run synchronously and
// only on an actual transition.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	notify := make([]Listener, 0, len(m.listeners))
	for _, id := range m.order {
		if fn, ok := m.listeners[id]; ok {
			notify = append(notify, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range notify {
		fn(online)
	}
}

// Run polls the probe on the given interval until ctx is done, feeding
// observations into SetOnline. The first probe fires immediately.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, probe Probe) {
	if interval < 1 {
		interval = 10 * time.Second
	}

	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()

		err := probe(probeCtx)
		if err != nil && m.Online() {
			log.Printf("[netmon] connectivity lost: %v", err)
		}
		m.SetOnline(err == nil)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

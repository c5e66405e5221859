package jsvm

import "sync"

// arena collects the release funcs for everything a Context installs into its
// runtime. Funcs run in reverse registration order.
type arena struct {
	mu       sync.Mutex
	releases []func()
	released bool
}

func (a *arena) add(release func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		release()
		return
	}
	a.releases = append(a.releases, release)
}

// release runs every registered func once. Later calls are no-ops.
func (a *arena) release() {
	a.mu.Lock()
	releases := a.releases
	a.releases = nil
	a.released = true
	a.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// size reports how many release funcs are still held.
func (a *arena) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.releases)
}

package services

import (
	"sync"
	"sync/atomic"
)

// RunGuard keeps at most one act in flight per key inside this process.
// The key is the (workspace, entry node) pair.
type RunGuard struct {
	mu          sync.Mutex
	holders     map[string]string
	activeCount atomic.Int64
}

func NewRunGuard() *RunGuard {
	return &RunGuard{holders: make(map[string]string)}
}

func runKey(workspaceID, entryNodeID string) string {
	return workspaceID + "\x00" + entryNodeID
}

// Acquire claims key for actID. When another act holds the key it returns
// that act's id and false. Re-acquiring by the holder succeeds.
func (g *RunGuard) Acquire(key, actID string) (holder string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, held := g.holders[key]; held && h != actID {
		return h, false
	}
	if _, held := g.holders[key]; !held {
		g.activeCount.Add(1)
	}
	g.holders[key] = actID
	return actID, true
}

// Release frees key if actID holds it.
func (g *RunGuard) Release(key, actID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holders[key] == actID {
		delete(g.holders, key)
		g.activeCount.Add(-1)
	}
}

// Replace hands key from holder to actID. It fails when holder no longer
// holds key.
func (g *RunGuard) Replace(key, holder, actID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holders[key] != holder {
		return false
	}
	g.holders[key] = actID
	return true
}

// Active reports how many keys are held.
func (g *RunGuard) Active() int {
	return int(g.activeCount.Load())
}

// keyedMutex serializes work per key, e.g. writes to one act document.
type keyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	m, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

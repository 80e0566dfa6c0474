package workflow

import "sync"

// Gate admits one top-level collection or scan at a time. A second caller
// is turned away instead of queued.
// ⭐ SSOT: 수집/스캔 동시 실행 차단은 여기서만
type Gate struct {
	mu sync.Mutex
}

// TryAcquire takes the gate without blocking
func (g *Gate) TryAcquire() bool {
	return g.mu.TryLock()
}

// Release frees the gate. Only the holder may call it.
func (g *Gate) Release() {
	g.mu.Unlock()
}

// Busy reports whether a run currently holds the gate
func (g *Gate) Busy() bool {
	if g.mu.TryLock() {
		g.mu.Unlock()
		return false
	}
	return true
}

package embedded

import (
	"sync"

	"walletd/go-backend/internal/daemon"
	"walletd/go-backend/internal/daemon/ports"
)

// handleSlot holds at most one live session. All access goes through a
// slotGuard obtained from acquire.
//
// A holder that panics poisons the slot: release recovers the panic, turns it
// into an unexpected error for that holder, and every later acquire returns
// the same error instead of the session. Poisoning is never cleared.
type handleSlot struct {
	mu       sync.Mutex
	handle   ports.Handle
	poisoned error
	onPanic  func(recovered any)
}

type slotGuard struct {
	slot *handleSlot
}

func (s *handleSlot) acquire() (*slotGuard, error) {
	s.mu.Lock()
	if s.poisoned != nil {
		err := s.poisoned
		s.mu.Unlock()
		return nil, err
	}
	return &slotGuard{slot: s}, nil
}

// acquireIgnoringPoison locks the slot even when it is poisoned so a stop can
// still reclaim the session. The poison, if any, is returned with the guard.
func (s *handleSlot) acquireIgnoringPoison() (*slotGuard, error) {
	s.mu.Lock()
	return &slotGuard{slot: s}, s.poisoned
}

func (g *slotGuard) peek() (ports.Handle, bool) {
	return g.slot.handle, g.slot.handle != nil
}

// take empties the slot. A second take reports false.
func (g *slotGuard) take() (ports.Handle, bool) {
	h := g.slot.handle
	g.slot.handle = nil
	return h, h != nil
}

func (g *slotGuard) put(h ports.Handle) {
	g.slot.handle = h
}

// release must be deferred directly by the holder so that recover sees the
// holder's panic.
func (g *slotGuard) release(errp *error) {
	if r := recover(); r != nil {
		poison := daemon.Unexpectedf("daemon panic: %v", r)
		g.slot.poisoned = poison
		if errp != nil {
			*errp = poison
		}
		if g.slot.onPanic != nil {
			g.slot.onPanic(r)
		}
	}
	g.slot.mu.Unlock()
}

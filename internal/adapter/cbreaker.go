package adapter

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// MicroBreaker is a minimal circuit breaker: opens after N consecutive
// failures, allows a single probe after the open window elapses.
type MicroBreaker struct {
	mu               sync.Mutex
	st               breakerState
	consecutiveFails int
	failThreshold    int
	openFor          time.Duration
	nextTryAt        time.Time
	probeInFlight    bool
}

func NewMicroBreaker(threshold int, openFor time.Duration) *MicroBreaker {
	return &MicroBreaker{failThreshold: threshold, openFor: openFor}
}

func (b *MicroBreaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.st {
	case stateClosed:
		return true
	case stateOpen:
		return time.Now().After(b.nextTryAt) && !b.probeInFlight
	case stateHalfOpen:
		return !b.probeInFlight
	default:
		return true
	}
}

func (b *MicroBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.st {
	case stateClosed:
		return true
	case stateOpen:
		if now.After(b.nextTryAt) && !b.probeInFlight {
			b.st = stateHalfOpen
			b.probeInFlight = true
			return true
		}
		return false
	case stateHalfOpen:
		if !b.probeInFlight {
			b.probeInFlight = true
			return true
		}
		return false
	default:
		return true
	}
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	b.consecutiveFails = 0
	b.st = stateClosed
	b.probeInFlight = false
	b.mu.Unlock()
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	if b.st == stateHalfOpen {
		b.st = stateOpen
		b.nextTryAt = time.Now().Add(b.openFor)
		b.probeInFlight = false
		b.mu.Unlock()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failThreshold {
		b.st = stateOpen
		b.nextTryAt = time.Now().Add(b.openFor)
	}

	b.mu.Unlock()
}

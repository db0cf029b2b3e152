package metatx

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// NonceTracker hands out forwarder nonces. Acquisition is serialized per
// (forwarder, sender) pair and every nonce handed out stays in flight until it
// is released or the source moves past it.
//
// Without reservation the returned nonce is always the value read from the
// source, so two in-flight requests from the same sender can still carry the
// same nonce until the first one is mined. With reservation the tracker
// returns the lowest nonce at or above the source value that is not in flight.
type NonceTracker struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inFlight map[string]map[string]int
	reserve  bool
}

// NonceTrackerOption configures a NonceTracker.
type NonceTrackerOption func(*NonceTracker)

// ReservePending makes Acquire skip nonces already handed out in this process.
func ReservePending(enabled bool) NonceTrackerOption {
	return func(t *NonceTracker) {
		t.reserve = enabled
	}
}

// NewNonceTracker creates an empty tracker.
func NewNonceTracker(opts ...NonceTrackerOption) *NonceTracker {
	t := &NonceTracker{
		locks:    make(map[string]*sync.Mutex),
		inFlight: make(map[string]map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func nonceKey(forwarder, from string) string {
	return strings.ToLower(forwarder) + ":" + strings.ToLower(from)
}

func (t *NonceTracker) lockFor(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

// Acquire reads the sender's nonce from source and marks the returned nonce
// as in flight for the pair.
func (t *NonceTracker) Acquire(ctx context.Context, source NonceSource, forwarder, from string) (*big.Int, error) {
	if source == nil {
		return nil, NewInvariantError("no forwarder nonce source configured")
	}

	key := nonceKey(forwarder, from)
	l := t.lockFor(key)
	l.Lock()
	defer l.Unlock()

	onChain, err := source.GetNonce(ctx, forwarder, from)
	if err != nil {
		return nil, fmt.Errorf("failed to read forwarder nonce: %w", err)
	}
	if onChain == nil {
		return nil, fmt.Errorf("forwarder returned no nonce for %s", from)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	held := t.inFlight[key]
	if held == nil {
		held = make(map[string]int)
		t.inFlight[key] = held
	}
	// anything below the source value has been mined
	for n := range held {
		v, _ := new(big.Int).SetString(n, 10)
		if v.Cmp(onChain) < 0 {
			delete(held, n)
		}
	}

	nonce := new(big.Int).Set(onChain)
	if t.reserve {
		for held[nonce.String()] > 0 {
			nonce.Add(nonce, big.NewInt(1))
		}
	}
	held[nonce.String()]++

	return nonce, nil
}

// Release returns a nonce that was acquired but never used in a signed
// forward request, so a later Acquire can hand it out again.
func (t *NonceTracker) Release(forwarder, from string, nonce *big.Int) {
	if nonce == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := nonceKey(forwarder, from)
	held := t.inFlight[key]
	n := nonce.String()
	if held[n] <= 1 {
		delete(held, n)
	} else {
		held[n]--
	}
	if len(held) == 0 {
		delete(t.inFlight, key)
	}
}

// Pending returns the nonce after the highest one in flight for the pair, or
// nil if nothing is in flight.
func (t *NonceTracker) Pending(forwarder, from string) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var highest *big.Int
	for n := range t.inFlight[nonceKey(forwarder, from)] {
		v, _ := new(big.Int).SetString(n, 10)
		if highest == nil || v.Cmp(highest) > 0 {
			highest = v
		}
	}
	if highest == nil {
		return nil
	}
	return highest.Add(highest, big.NewInt(1))
}

// Reset forgets every in-flight nonce for the pair.
func (t *NonceTracker) Reset(forwarder, from string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, nonceKey(forwarder, from))
}

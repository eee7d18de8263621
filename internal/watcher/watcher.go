// Package watcher decides when the parser chain should re-run. Dispensary
// menus are client-rendered SPAs: route changes never reload the page, and
// product details paint progressively, so detection has to be debounced
// after navigation and retried for a bounded window.
package watcher

import (
	"context"
	"log"
	"sync"
	"time"
)

type state int

const (
	stateIdle state = iota
	stateWatching
)

// Config wires the watcher to its owner.
type Config struct {
	// SettleDelay is how long to wait after a navigation before the first
	// detection attempt, to let the framework finish painting.
	SettleDelay time.Duration
	// WatchWindow bounds the retry watch; after it elapses on a page with
	// no product the watcher stops observing entirely.
	WatchWindow time.Duration
	// RetryInterval spaces the bounded retry attempts.
	RetryInterval time.Duration

	// Detect runs the parser chain and reports whether a product was found.
	Detect func() bool
	// OnNavigate resets per-page state before the next detection cycle.
	OnNavigate func()
}

// Watcher is the idle/watching state machine fed by DOM mutation events.
type Watcher struct {
	cfg Config

	mu          sync.Mutex
	state       state
	lastAddress string
	settleTimer *time.Timer
	retryCancel context.CancelFunc
}

// New builds a watcher. Detect is required; OnNavigate may be nil.
func New(cfg Config) *Watcher {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 1500 * time.Millisecond
	}
	if cfg.WatchWindow <= 0 {
		cfg.WatchWindow = 15 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Watcher{cfg: cfg}
}

// Start moves idle -> watching and arms detection for the initial address.
func (w *Watcher) Start(address string) {
	w.mu.Lock()
	if w.state == stateWatching {
		w.mu.Unlock()
		return
	}
	w.state = stateWatching
	w.lastAddress = address
	w.mu.Unlock()

	w.armDetection()
}

// Stop moves back to idle and cancels any pending timers.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = stateIdle
	w.cancelPendingLocked()
}

// OnMutation is called for every DOM mutation batch with the current
// address. Only an address change re-arms detection; same-address
// mutations are absorbed by the pending settle timer or retry watch.
func (w *Watcher) OnMutation(address string) {
	w.mu.Lock()
	if w.state != stateWatching || address == w.lastAddress {
		w.mu.Unlock()
		return
	}
	w.lastAddress = address
	w.cancelPendingLocked()
	w.mu.Unlock()

	log.Printf("[Watcher] navigation to %s", address)
	if w.cfg.OnNavigate != nil {
		w.cfg.OnNavigate()
	}
	w.armDetection()
}

// armDetection schedules one debounced detection after the settle delay.
// If that attempt misses, a bounded retry watch takes over.
func (w *Watcher) armDetection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != stateWatching {
		return
	}

	w.settleTimer = time.AfterFunc(w.cfg.SettleDelay, func() {
		if w.cfg.Detect() {
			return
		}
		w.startRetryWatch()
	})
}

// startRetryWatch retries detection until a product is found or the watch
// window elapses. The ticker is tied to a cancellable context so the
// success path shuts it down instead of racing it.
func (w *Watcher) startRetryWatch() {
	w.mu.Lock()
	if w.state != stateWatching {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WatchWindow)
	w.retryCancel = cancel
	w.mu.Unlock()

	go func() {
		defer cancel()
		ticker := time.NewTicker(w.cfg.RetryInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					log.Printf("[Watcher] no product within watch window, stopping")
				}
				return
			case <-ticker.C:
				if w.cfg.Detect() {
					return
				}
			}
		}
	}()
}

// cancelPendingLocked stops the settle timer and retry watch. Caller holds
// the mutex.
func (w *Watcher) cancelPendingLocked() {
	if w.settleTimer != nil {
		w.settleTimer.Stop()
		w.settleTimer = nil
	}
	if w.retryCancel != nil {
		w.retryCancel()
		w.retryCancel = nil
	}
}

// Package quit provides the cooperative-shutdown primitive shared by every
// supervised process: a one-way cancellation token tripped by a termination
// signal and polled by application code, plus an interruptible sleep.
package quit

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Token is a process-wide cancellation flag. It starts clear, is tripped at
// most once, and never resets. The signal-handling path is the intended
// writer; everything else only reads.
type Token struct {
	tripped  atomic.Bool
	done     chan struct{}
	closeOne sync.Once

	stopOnce sync.Once
	stop     func()
}

// NewToken returns a clear token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Requested reports whether shutdown has been requested.
func (t *Token) Requested() bool {
	return t.tripped.Load()
}

// Trip marks shutdown as requested. Subsequent calls are no-ops.
func (t *Token) Trip() {
	t.tripped.Store(true)
	t.closeOne.Do(func() { close(t.done) })
}

// Done returns a channel closed once shutdown has been requested.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Install registers a handler for the given signals (SIGINT+SIGTERM when
// none are given) that trips the token on first delivery. The handler is
// the only writer of the flag.
func (t *Token) Install(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	go func() {
		<-ch
		t.Trip()
	}()
	t.stopOnce.Do(func() {
		t.stop = func() { signal.Stop(ch) }
	})
}

// Uninstall detaches the signal handler registered by Install. Intended for
// tests; a supervised process keeps its handler for its whole life.
func (t *Token) Uninstall() {
	if t.stop != nil {
		t.stop()
	}
}

// Sleep waits up to total, in increments no larger than step, returning as
// soon as the token trips. Reports true when the full duration elapsed and
// false when the sleep was cut short by a shutdown request. A step <= 0
// defaults to one second.
func (t *Token) Sleep(total, step time.Duration) bool {
	if step <= 0 {
		step = time.Second
	}
	deadline := time.Now().Add(total)
	for {
		if t.Requested() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining < step {
			select {
			case <-t.done:
				return false
			case <-time.After(remaining):
				return true
			}
		}
		select {
		case <-t.done:
			return false
		case <-time.After(step):
		}
	}
}

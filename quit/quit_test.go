package quit_test

import (
	"testing"
	"time"

	"daemonkit/quit"
)

func TestTokenStartsClear(t *testing.T) {
	tok := quit.NewToken()
	if tok.Requested() {
		t.Fatal("fresh token reports requested")
	}
	select {
	case <-tok.Done():
		t.Fatal("fresh token done channel is closed")
	default:
	}
}

func TestTripIsStickyAndIdempotent(t *testing.T) {
	tok := quit.NewToken()
	tok.Trip()
	tok.Trip()
	if !tok.Requested() {
		t.Fatal("tripped token reports not requested")
	}
	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after trip")
	}
}

func TestSleepRunsFullDuration(t *testing.T) {
	tok := quit.NewToken()
	start := time.Now()
	if !tok.Sleep(50*time.Millisecond, 10*time.Millisecond) {
		t.Fatal("Sleep reported interruption without a trip")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("Sleep returned after %v, want >= 50ms", elapsed)
	}
}

func TestSleepReturnsPromptlyAfterTrip(t *testing.T) {
	tok := quit.NewToken()
	go func() {
		time.Sleep(30 * time.Millisecond)
		tok.Trip()
	}()

	start := time.Now()
	if tok.Sleep(10*time.Second, 20*time.Millisecond) {
		t.Fatal("Sleep reported full elapse despite trip")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Sleep took %v after trip, want well under the total", elapsed)
	}
}

func TestSleepOnTrippedTokenReturnsImmediately(t *testing.T) {
	tok := quit.NewToken()
	tok.Trip()
	start := time.Now()
	if tok.Sleep(10*time.Second, time.Second) {
		t.Fatal("Sleep reported full elapse on tripped token")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Sleep took %v on tripped token", elapsed)
	}
}

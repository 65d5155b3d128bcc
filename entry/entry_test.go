package entry_test

import (
	"errors"
	"testing"

	"daemonkit/entry"
	"daemonkit/quit"
)

func noop(map[string]any, *quit.Token) error { return nil }

func TestRegisterAndResolve(t *testing.T) {
	reg := entry.NewRegistry()
	reg.Register("demo", "heartbeat", noop)

	fn, err := reg.Resolve("demo:heartbeat")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if fn == nil {
		t.Fatal("Resolve returned nil func")
	}
}

func TestResolveUnknownReference(t *testing.T) {
	reg := entry.NewRegistry()
	if _, err := reg.Resolve("demo:missing"); !errors.Is(err, entry.ErrNotFound) {
		t.Fatalf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestResolveMalformedReference(t *testing.T) {
	reg := entry.NewRegistry()
	reg.Register("demo", "heartbeat", noop)

	for _, ref := range []string{"", "demo", "demo:", ":heartbeat", "a:b:c"} {
		if _, err := reg.Resolve(ref); !errors.Is(err, entry.ErrInvalidReference) {
			t.Fatalf("Resolve(%q) error = %v, want ErrInvalidReference", ref, err)
		}
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := entry.NewRegistry()
	reg.Register("demo", "heartbeat", noop)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.Register("demo", "heartbeat", noop)
}

func TestReferencesSorted(t *testing.T) {
	reg := entry.NewRegistry()
	reg.Register("b", "two", noop)
	reg.Register("a", "one", noop)
	reg.Register("a", "zero", noop)

	got := reg.References()
	want := []string{"a:one", "a:zero", "b:two"}
	if len(got) != len(want) {
		t.Fatalf("References = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("References = %v, want %v", got, want)
		}
	}
}

func TestSplitReference(t *testing.T) {
	container, name, err := entry.SplitReference(" demo : heartbeat ")
	if err != nil {
		t.Fatalf("SplitReference: %v", err)
	}
	if container != "demo" || name != "heartbeat" {
		t.Fatalf("SplitReference = %q, %q", container, name)
	}
}

package transport

import (
	"net/netip"
	"testing"
)

func TestResolveEndpoint(t *testing.T) {
	ep, err := ResolveEndpoint("127.0.0.1:2641")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if want := netip.MustParseAddrPort("127.0.0.1:2641"); ep != want {
		t.Fatalf("got %s, expected %s", ep, want)
	}

	ep, err = ResolveEndpoint("localhost:2641")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !ep.Addr().IsLoopback() {
		t.Fatalf("expected a loopback address, got %s", ep)
	}
	if ep.Port() != 2641 {
		t.Fatalf("expected port 2641, got %d", ep.Port())
	}

	if _, err := ResolveEndpoint("not an address"); err == nil {
		t.Fatal("expected error")
	}
}

func TestConnStateString(t *testing.T) {
	for state, want := range map[ConnState]string{
		StateAcquired: "acquired",
		StateIdle:     "idle",
		StateClosed:   "closed",
	} {
		if got := state.String(); got != want {
			t.Fatalf("got %q, expected %q", got, want)
		}
	}
}

func TestParseAcquireTimeoutAction(t *testing.T) {
	for s, want := range map[string]AcquireTimeoutAction{
		"":     TimeoutNone,
		"none": TimeoutNone,
		"fail": TimeoutFail,
		"new":  TimeoutNew,
	} {
		got, err := ParseAcquireTimeoutAction(s)
		if err != nil {
			t.Fatalf("%q: unexpected error: %s", s, err)
		}
		if got != want {
			t.Fatalf("%q: got %s, expected %s", s, got, want)
		}
	}
	if _, err := ParseAcquireTimeoutAction("bogus"); err == nil {
		t.Fatal("expected error")
	}
}

func TestConfig_Validate(t *testing.T) {
	c := NewConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	c.SelectionOrder = "random"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown selection order")
	}

	c = NewConfig()
	c.AcquireTimeoutAction = "sometimes"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown timeout action")
	}
}

package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestCheckHealthy(t *testing.T) {
	m := NewMonitor(Config{})
	m.Register("episodic", &fakePinger{})

	if got := m.Check(context.Background(), "episodic"); got != Healthy {
		t.Errorf("Check = %f, want %f", got, Healthy)
	}
}

func TestCheckDegradedThenUnreachable(t *testing.T) {
	m := NewMonitor(Config{MaxFailures: 3, OpenTimeout: time.Minute})
	p := &fakePinger{err: errors.New("connection refused")}
	m.Register("semantic", p)
	ctx := context.Background()

	// First two failures leave the breaker closed: degraded.
	if got := m.Check(ctx, "semantic"); got != Degraded {
		t.Errorf("first failure: Check = %f, want %f", got, Degraded)
	}
	if got := m.Check(ctx, "semantic"); got != Degraded {
		t.Errorf("second failure: Check = %f, want %f", got, Degraded)
	}

	// Third consecutive failure opens the breaker.
	if got := m.Check(ctx, "semantic"); got != Unreachable {
		t.Errorf("third failure: Check = %f, want %f", got, Unreachable)
	}

	// While open, probes short-circuit.
	if got := m.Check(ctx, "semantic"); got != Unreachable {
		t.Errorf("open breaker: Check = %f, want %f", got, Unreachable)
	}
}

func TestRecoveryAfterOpenTimeout(t *testing.T) {
	m := NewMonitor(Config{MaxFailures: 1, OpenTimeout: 10 * time.Millisecond})
	p := &fakePinger{err: errors.New("down")}
	m.Register("state", p)
	ctx := context.Background()

	if got := m.Check(ctx, "state"); got != Unreachable {
		t.Fatalf("Check = %f, want %f", got, Unreachable)
	}

	p.err = nil
	time.Sleep(20 * time.Millisecond)

	if got := m.Check(ctx, "state"); got != Healthy {
		t.Errorf("after recovery: Check = %f, want %f", got, Healthy)
	}
}

func TestCheckUnknownStore(t *testing.T) {
	m := NewMonitor(Config{})
	if got := m.Check(context.Background(), "nope"); got != Unreachable {
		t.Errorf("Check = %f, want %f", got, Unreachable)
	}
}

func TestOverall(t *testing.T) {
	m := NewMonitor(Config{MaxFailures: 5})
	m.Register("a", &fakePinger{})
	m.Register("b", &fakePinger{err: errors.New("down")})

	got := m.Overall(context.Background())
	want := (Healthy + Degraded) / 2
	if got != want {
		t.Errorf("Overall = %f, want %f", got, want)
	}
}

func TestOverallEmpty(t *testing.T) {
	m := NewMonitor(Config{})
	if got := m.Overall(context.Background()); got != Healthy {
		t.Errorf("empty monitor Overall = %f, want %f", got, Healthy)
	}
}

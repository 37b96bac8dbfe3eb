package staking

import "testing"

const t0 uint64 = 1_700_000_000

func TestDelayedInitialValueEffectiveImmediately(t *testing.T) {
	d := NewDelayed[uint64](42)
	if got := d.Value(t0); got != 42 {
		t.Fatalf("initial value: got %d", got)
	}
	if _, _, ok := d.Pending(t0); ok {
		t.Fatalf("initial value must not be pending")
	}
}

func TestDelayedChangeActivatesAfterDelay(t *testing.T) {
	d := NewDelayed[uint64](1)
	d.Set(t0, 2)

	if got := d.Value(t0 + ParamUpdateDelay); got != 1 {
		t.Fatalf("value at exactly the delay: got %d want 1", got)
	}
	if got := d.Value(t0 + ParamUpdateDelay + 1); got != 2 {
		t.Fatalf("value after the delay: got %d want 2", got)
	}
	v, at, ok := d.Pending(t0 + 10)
	if !ok || v != 2 || at != t0+ParamUpdateDelay+1 {
		t.Fatalf("pending: v=%d at=%d ok=%v", v, at, ok)
	}
	if _, _, ok := d.Pending(t0 + ParamUpdateDelay + 1); ok {
		t.Fatalf("applied change still reported pending")
	}
}

func TestDelayedOverwriteBeforeActivation(t *testing.T) {
	d := NewDelayed[uint64](1)
	d.Set(t0, 2)
	d.Set(t0+60, 3)
	if got := d.Value(t0 + ParamUpdateDelay + 1); got != 1 {
		t.Fatalf("overwrite restarts the delay: got %d want 1", got)
	}
	if got := d.Value(t0 + 60 + ParamUpdateDelay + 1); got != 3 {
		t.Fatalf("overwritten value: got %d want 3", got)
	}
}

func TestDelayedCollapsesElapsedChange(t *testing.T) {
	d := NewDelayed[uint64](1)
	d.Set(t0, 2)
	later := t0 + ParamUpdateDelay + 100
	d.Set(later, 3)
	if d.Old != 2 {
		t.Fatalf("elapsed change must become the old value, got %d", d.Old)
	}
	if got := d.Value(later); got != 2 {
		t.Fatalf("value while new change pending: got %d want 2", got)
	}
}

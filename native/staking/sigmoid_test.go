package staking

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestSigmoidRejectsInvalidParameters(t *testing.T) {
	p := DefaultSigmoid()
	p.A.AddUint64(&p.A, 1)
	if _, err := NewSigmoid(p); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("a above half the ceiling must be rejected, got %v", err)
	}
	p = DefaultSigmoid()
	p.C.Clear()
	if _, err := NewSigmoid(p); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("c == 0 must be rejected, got %v", err)
	}
}

func TestSigmoidZeroBeforeOffset(t *testing.T) {
	p := DefaultSigmoid()
	p.B = 3600
	s, err := NewSigmoid(p)
	if err != nil {
		t.Fatalf("new sigmoid: %v", err)
	}
	for _, elapsed := range []uint64{0, 1, 3599, 3600} {
		rate, err := s.Calculate(t0, elapsed)
		if err != nil {
			t.Fatalf("calculate: %v", err)
		}
		if !rate.IsZero() {
			t.Fatalf("rate at %d must be zero, got %s", elapsed, rate.Dec())
		}
	}
	rate, _ := s.Calculate(t0, 3601)
	if rate.IsZero() {
		t.Fatalf("rate after the offset must be positive")
	}
}

func TestSigmoidNegativeOffset(t *testing.T) {
	p := DefaultSigmoid()
	p.B = -86400
	s, err := NewSigmoid(p)
	if err != nil {
		t.Fatalf("new sigmoid: %v", err)
	}
	rate, err := s.Calculate(t0, 0)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rate.IsZero() {
		t.Fatalf("negative offset must yield a rate at zero elapsed")
	}
}

func TestSigmoidMonotonicAndBounded(t *testing.T) {
	s, err := NewSigmoid(DefaultSigmoid())
	if err != nil {
		t.Fatalf("new sigmoid: %v", err)
	}
	prev := new(uint256.Int)
	for elapsed := uint64(0); elapsed <= 3*secondsPerYear; elapsed += 3571 {
		rate, err := s.Calculate(t0, elapsed)
		if err != nil {
			t.Fatalf("calculate(%d): %v", elapsed, err)
		}
		if rate.Lt(prev) {
			t.Fatalf("rate decreased at %d: %s < %s", elapsed, rate.Dec(), prev.Dec())
		}
		if rate.Gt(maxSupplyBasedRate) {
			t.Fatalf("rate above a at %d: %s", elapsed, rate.Dec())
		}
		prev = rate
	}
}

func TestSigmoidWorkedExampleRate(t *testing.T) {
	s, err := NewSigmoid(DefaultSigmoid())
	if err != nil {
		t.Fatalf("new sigmoid: %v", err)
	}
	rate, err := s.Calculate(t0, 14*24*60*60)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if want := mustUint("26794859829094161"); !rate.Eq(want) {
		t.Fatalf("14 day rate: got %s want %s", rate.Dec(), want.Dec())
	}
}

func TestSigmoidSaturatesOnOverflow(t *testing.T) {
	p := DefaultSigmoid()
	p.C.SetAllOne()
	s, err := NewSigmoid(p)
	if err != nil {
		t.Fatalf("new sigmoid: %v", err)
	}
	rate, err := s.Calculate(t0, 10)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !rate.Eq(&p.A) {
		t.Fatalf("overflowing radicand must saturate at a, got %s", rate.Dec())
	}
}

func TestSigmoidDelayedUpdate(t *testing.T) {
	s, err := NewSigmoid(DefaultSigmoid())
	if err != nil {
		t.Fatalf("new sigmoid: %v", err)
	}
	next := DefaultSigmoid()
	next.A.Clear()
	if err := s.SetParameters(t0, next); err != nil {
		t.Fatalf("set: %v", err)
	}
	if rate, _ := s.Calculate(t0+ParamUpdateDelay, 86400); rate.IsZero() {
		t.Fatalf("old curve must apply until the delay passes")
	}
	if rate, _ := s.Calculate(t0+ParamUpdateDelay+1, 86400); !rate.IsZero() {
		t.Fatalf("new curve must apply after the delay")
	}
}

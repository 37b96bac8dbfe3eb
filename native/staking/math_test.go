package staking

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestSqrtSmallValues(t *testing.T) {
	cases := map[uint64]uint64{0: 0, 1: 1, 2: 1, 3: 1, 4: 2, 8: 2, 9: 3, 15: 3, 16: 4, 1_000_000: 1000, 999_999: 999}
	for in, want := range cases {
		if got := Sqrt(uint256.NewInt(in)); got.Uint64() != want {
			t.Fatalf("sqrt(%d): got %s want %d", in, got.Dec(), want)
		}
	}
}

func TestSqrtMaxInputConverges(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	root, iterations := sqrtIter(max)
	want := new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	if !root.Eq(want) {
		t.Fatalf("sqrt(max): got %s want %s", root.Hex(), want.Hex())
	}
	if iterations > maxSqrtIterations {
		t.Fatalf("sqrt(max) took %d iterations", iterations)
	}
}

func TestSqrtFloorProperty(t *testing.T) {
	inputs := []*uint256.Int{
		mustUint("10000000000000"),
		mustUint("1463132160000000000"),
		mustUint("340282366920938463463374607431768211455"),
		mustUint("57896044618658097711785492504343953926634992332820282019728792003956564819967"),
	}
	for _, x := range inputs {
		root := Sqrt(x)
		sq, overflow := new(uint256.Int).MulOverflow(root, root)
		if overflow || sq.Gt(x) {
			t.Fatalf("sqrt(%s)=%s is too large", x.Dec(), root.Dec())
		}
		next := new(uint256.Int).AddUint64(root, 1)
		nextSq, overflow := new(uint256.Int).MulOverflow(next, next)
		if !overflow && !nextSq.Gt(x) {
			t.Fatalf("sqrt(%s)=%s is too small", x.Dec(), root.Dec())
		}
	}
}

func TestMulDivWidensIntermediate(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	got, err := MulDiv(max, max, max)
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if !got.Eq(max) {
		t.Fatalf("mulDiv(max,max,max): got %s", got.Hex())
	}
	if _, err := MulDiv(max, uint256.NewInt(2), uint256.NewInt(1)); !errors.Is(err, errArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int)); !errors.Is(err, errDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	got, err = MulDiv(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
	if err != nil || got.Uint64() != 10 {
		t.Fatalf("mulDiv floors: got %v err %v", got, err)
	}
}

func TestSubSigned(t *testing.T) {
	if v, neg := SubSigned(10, 3); neg || v.Uint64() != 7 {
		t.Fatalf("10-3: got %v neg=%v", v, neg)
	}
	if v, neg := SubSigned(10, -5); neg || v.Uint64() != 15 {
		t.Fatalf("10-(-5): got %v neg=%v", v, neg)
	}
	if v, neg := SubSigned(3, 10); !neg || !v.IsZero() {
		t.Fatalf("3-10 must be negative")
	}
	v, neg := SubSigned(^uint64(0), -1)
	if neg || v.IsUint64() {
		t.Fatalf("max+1 must widen past 64 bits")
	}
}

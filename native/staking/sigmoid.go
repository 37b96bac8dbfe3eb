package staking

import (
	"fmt"

	"github.com/holiman/uint256"
)

// SigmoidParams shape the personal emission rate curve
// a*k/sqrt(k^2+c) where k = elapsed-b.
type SigmoidParams struct {
	// A is the asymptotic rate, scaled by One.
	A uint256.Int
	// B shifts the curve along the time axis, in seconds. The rate is zero
	// until elapsed time exceeds B.
	B int64
	// C controls how quickly the curve approaches A. Must be non-zero.
	C uint256.Int
}

// Validate enforces the bounds accepted by SetParameters.
func (p SigmoidParams) Validate() error {
	if p.A.Gt(maxSupplyBasedRate) {
		return fmt.Errorf("%w: sigmoid a exceeds %s", ErrInvalidParameter, maxSupplyBasedRate.Dec())
	}
	if p.C.IsZero() {
		return fmt.Errorf("%w: sigmoid c must be non-zero", ErrInvalidParameter)
	}
	return nil
}

func (p SigmoidParams) String() string {
	return fmt.Sprintf("a=%s b=%d c=%s", p.A.Dec(), p.B, p.C.Dec())
}

// Sigmoid is the personal rate curve with delayed parameter updates.
type Sigmoid struct {
	params Delayed[SigmoidParams]
}

// NewSigmoid constructs a curve initialised to params.
func NewSigmoid(params SigmoidParams) (*Sigmoid, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Sigmoid{params: NewDelayed(params)}, nil
}

// Parameters returns the parameters effective at now.
func (s *Sigmoid) Parameters(now uint64) SigmoidParams {
	return s.params.Value(now)
}

// Pending exposes a queued parameter change, if any.
func (s *Sigmoid) Pending(now uint64) (SigmoidParams, uint64, bool) {
	return s.params.Pending(now)
}

// SetParameters validates and queues new curve parameters.
func (s *Sigmoid) SetParameters(now uint64, params SigmoidParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.params.Set(now, params)
	return nil
}

// Calculate returns the personal rate for a deposit that has been staked for
// elapsed seconds, using the parameters effective at now.
func (s *Sigmoid) Calculate(now, elapsed uint64) (*uint256.Int, error) {
	return calculateSigmoid(s.Parameters(now), elapsed)
}

func calculateSigmoid(p SigmoidParams, elapsed uint64) (*uint256.Int, error) {
	k, negative := SubSigned(elapsed, p.B)
	if negative || k.IsZero() || p.A.IsZero() {
		return new(uint256.Int), nil
	}
	k2, overflow := new(uint256.Int).MulOverflow(k, k)
	if overflow {
		return new(uint256.Int).Set(&p.A), nil
	}
	radicand, overflow := new(uint256.Int).AddOverflow(k2, &p.C)
	if overflow {
		return new(uint256.Int).Set(&p.A), nil
	}
	root := Sqrt(radicand)
	if root.IsZero() {
		return new(uint256.Int), nil
	}
	return MulDiv(&p.A, k, root)
}

func (s *Sigmoid) clone() *Sigmoid {
	if s == nil {
		return nil
	}
	copied := *s
	return &copied
}

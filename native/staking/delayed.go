package staking

// ParamUpdateDelay is the number of seconds a parameter change stays pending.
const ParamUpdateDelay uint64 = 7 * 24 * 60 * 60

// Delayed holds a tunable value whose changes become effective only after
// ParamUpdateDelay has strictly elapsed.
//
// NewDelayed initialises the value, effective immediately, with ChangedAt
// == 0 and nothing pending. Set first folds an already effective pending
// value into Old, then records the new pending value. At most one change is
// pending at a time.
type Delayed[T any] struct {
	Old       T
	New       T
	ChangedAt uint64
}

// NewDelayed returns a container initialised to v.
func NewDelayed[T any](v T) Delayed[T] {
	return Delayed[T]{Old: v, New: v}
}

func (d *Delayed[T]) elapsed(now uint64) bool {
	return now > d.ChangedAt+ParamUpdateDelay
}

// Value resolves the effective value at now.
func (d *Delayed[T]) Value(now uint64) T {
	if d.elapsed(now) {
		return d.New
	}
	return d.Old
}

// Set records v as the pending value.
func (d *Delayed[T]) Set(now uint64, v T) {
	if d.elapsed(now) {
		d.Old = d.New
	}
	d.New = v
	d.ChangedAt = now
}

// Pending reports the value awaiting activation and the first second at which
// it applies. ok is false when nothing is pending.
func (d *Delayed[T]) Pending(now uint64) (value T, effectiveAt uint64, ok bool) {
	if d.ChangedAt == 0 || d.elapsed(now) {
		var zero T
		return zero, 0, false
	}
	return d.New, d.EffectiveAt(), true
}

// EffectiveAt is the first unix second at which New is served.
func (d *Delayed[T]) EffectiveAt() uint64 {
	return d.ChangedAt + ParamUpdateDelay + 1
}

package params

const (
	// KeyStaking stores the staking pool parameter set.
	KeyStaking = "pool/staking"
	// KeyPool stores the pool identity written at initialisation.
	KeyPool = "pool/identity"
)

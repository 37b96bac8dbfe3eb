package vault

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"stakevault/config"
	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/storage"
	"stakevault/storage/journal"
)

const t0 int64 = 1_700_000_000

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time           { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func address(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	raw[len(raw)-1] = b
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

var (
	admin = address(0xA1)
	alice = address(0x01)
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Administrators = []string{admin.String()}
	return cfg
}

func openService(t *testing.T, cfg *config.Config, clock *testClock, db storage.Database) *Service {
	t.Helper()
	svc, err := Open(cfg, Options{DB: db, JournalPath: ":memory:", Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func rewardAddress(t *testing.T, cfg *config.Config) crypto.Address {
	t.Helper()
	params, err := cfg.ToStakingConfig()
	require.NoError(t, err)
	return params.LiquidityRewardAddress
}

func TestServiceForcedWithdrawalLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	cfg := testConfig(t)
	svc := openService(t, cfg, clock, storage.NewMemDB())

	require.NoError(t, svc.Initialize(ctx))
	require.ErrorIs(t, svc.Initialize(ctx), staking.ErrAlreadyInitialized)

	require.ErrorIs(t, svc.Mint(ctx, alice, alice, units(1)), staking.ErrUnauthorized)
	require.NoError(t, svc.Mint(ctx, admin, alice, units(1000)))
	require.NoError(t, svc.Approve(ctx, alice, units(1000)))

	before, err := svc.Digest()
	require.NoError(t, err)

	deposit, err := svc.Deposit(ctx, alice, units(1000))
	require.NoError(t, err)
	require.EqualValues(t, 1, deposit.Slot)
	require.Equal(t, units(1000).Dec(), deposit.NewBalance.Dec())

	after, err := svc.Digest()
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	result, err := svc.ForceWithdraw(ctx, alice, 1, staking.AmountAll())
	require.NoError(t, err)
	require.Equal(t, units(970).Dec(), result.Paid.Dec())
	require.Equal(t, units(30).Dec(), result.Fee.Dec())

	balance, err := svc.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, units(970).Dec(), balance.Dec())
	rewards, err := svc.Balance(rewardAddress(t, cfg))
	require.NoError(t, err)
	require.Equal(t, units(30).Dec(), rewards.Dec())

	staked, err := svc.TotalStaked()
	require.NoError(t, err)
	require.True(t, staked.IsZero())

	withdrawals, err := svc.Events(ctx, journal.Filter{Type: events.TypeStakeWithdrawn})
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	attrs, err := withdrawals[0].Decoded()
	require.NoError(t, err)
	require.Equal(t, "true", attrs["forced"])

	deposits, err := svc.Events(ctx, journal.Filter{Type: events.TypeStakeDeposited})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	require.NotEqual(t, deposits[0].OperationID, withdrawals[0].OperationID)
}

func TestServiceRequestedWithdrawal(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	svc := openService(t, testConfig(t), clock, storage.NewMemDB())

	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Mint(ctx, admin, alice, units(100)))
	require.NoError(t, svc.Approve(ctx, alice, units(100)))
	_, err := svc.Deposit(ctx, alice, units(100))
	require.NoError(t, err)

	status, err := svc.RequestWithdrawal(ctx, alice, 1)
	require.NoError(t, err)
	require.Equal(t, staking.PhaseLocked, status.Phase)

	_, err = svc.Withdraw(ctx, alice, 1, staking.AmountAll())
	require.ErrorIs(t, err, staking.ErrWithdrawalTooEarly)

	clock.Advance(12 * time.Hour)
	status, err = svc.WithdrawalStatus(alice, 1)
	require.NoError(t, err)
	require.Equal(t, staking.PhaseExecutable, status.Phase)

	estimate, err := svc.EstimateAccrual(alice, 1)
	require.NoError(t, err)
	require.False(t, estimate.UserShare.IsZero())

	result, err := svc.Withdraw(ctx, alice, 1, staking.AmountAll())
	require.NoError(t, err)
	require.True(t, result.Fee.IsZero())
	require.Equal(t, estimate.UserShare.Dec(), result.Accrued.Dec())
	require.Equal(t, new(uint256.Int).Add(units(100), estimate.UserShare).Dec(), result.Paid.Dec())
}

func TestServiceFailedOperationLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	svc := openService(t, testConfig(t), clock, storage.NewMemDB())

	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Mint(ctx, admin, alice, units(10)))
	count, err := svc.journal.Count(ctx)
	require.NoError(t, err)
	digest, err := svc.Digest()
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, alice, units(10))
	require.Error(t, err)

	balance, err := svc.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, units(10).Dec(), balance.Dec())
	last, err := svc.LastSlot(alice)
	require.NoError(t, err)
	require.Zero(t, last)
	after, err := svc.journal.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, count, after)
	unchanged, err := svc.Digest()
	require.NoError(t, err)
	require.Equal(t, digest, unchanged)
}

func TestServiceJournalFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	sink := &events.Recorder{}
	svc, err := Open(testConfig(t), Options{DB: storage.NewMemDB(), JournalPath: ":memory:", Clock: clock.Now, Sink: sink})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Mint(ctx, admin, alice, units(10)))
	require.NoError(t, svc.Approve(ctx, alice, units(10)))
	published := len(sink.Events())
	require.NotZero(t, published)
	digest, err := svc.Digest()
	require.NoError(t, err)

	require.NoError(t, svc.journal.Close())
	_, err = svc.Deposit(ctx, alice, units(10))
	require.Error(t, err)

	last, err := svc.LastSlot(alice)
	require.NoError(t, err)
	require.Zero(t, last)
	staked, err := svc.TotalStaked()
	require.NoError(t, err)
	require.True(t, staked.IsZero())
	balance, err := svc.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, units(10).Dec(), balance.Dec())
	pool, err := svc.Balance(svc.Pool())
	require.NoError(t, err)
	require.True(t, pool.IsZero())
	unchanged, err := svc.Digest()
	require.NoError(t, err)
	require.Equal(t, digest, unchanged)
	require.Len(t, sink.Events(), published)
}

// flakyDB rejects batch writes while failWrites is set.
type flakyDB struct {
	storage.Database
	failWrites bool
}

var errDiskFull = errors.New("disk full")

func (db *flakyDB) Write(batch *storage.Batch) error {
	if db.failWrites {
		return errDiskFull
	}
	return db.Database.Write(batch)
}

func TestServiceStateWriteFailureRollsBackJournal(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	db := &flakyDB{Database: storage.NewMemDB()}
	svc := openService(t, testConfig(t), clock, db)

	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Mint(ctx, admin, alice, units(10)))
	require.NoError(t, svc.Approve(ctx, alice, units(10)))
	count, err := svc.journal.Count(ctx)
	require.NoError(t, err)

	db.failWrites = true
	_, err = svc.Deposit(ctx, alice, units(4))
	require.ErrorIs(t, err, errDiskFull)

	after, err := svc.journal.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, count, after)
	last, err := svc.LastSlot(alice)
	require.NoError(t, err)
	require.Zero(t, last)
	balance, err := svc.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, units(10).Dec(), balance.Dec())

	db.failWrites = false
	result, err := svc.Deposit(ctx, alice, units(4))
	require.NoError(t, err)
	require.EqualValues(t, 1, result.Slot)
	balance, err = svc.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, units(6).Dec(), balance.Dec())
}

func TestServicePushPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	cfg := testConfig(t)

	svc, err := Open(cfg, Options{Clock: clock.Now})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Mint(ctx, admin, alice, units(100)))
	require.NoError(t, svc.Push(ctx, alice, 0, units(60)))
	require.NoError(t, svc.Push(ctx, alice, 1, units(40)))
	require.ErrorIs(t, svc.Push(ctx, alice, 9, units(1)), staking.ErrInvalidSlot)
	digest, err := svc.Digest()
	require.NoError(t, err)
	root, err := svc.StateRoot()
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	require.FileExists(t, filepath.Join(cfg.DataDir, "journal.db"))

	reopened, err := Open(cfg, Options{Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	pos, err := reopened.Position(alice, 1)
	require.NoError(t, err)
	require.Equal(t, units(100).Dec(), pos.Balance.Dec())
	pool, err := reopened.Balance(reopened.Pool())
	require.NoError(t, err)
	require.Equal(t, units(100).Dec(), pool.Dec())
	again, err := reopened.Digest()
	require.NoError(t, err)
	require.Equal(t, digest, again)
	rootAgain, err := reopened.StateRoot()
	require.NoError(t, err)
	require.Equal(t, root, rootAgain)

	records, err := reopened.Events(ctx, journal.Filter{Type: events.TypeStakeDeposited})
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestServiceSetParameter(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	svc := openService(t, testConfig(t), clock, storage.NewMemDB())
	require.NoError(t, svc.Initialize(ctx))

	require.ErrorIs(t, svc.SetParameter(ctx, alice, staking.ParamFee, "5"), staking.ErrUnauthorized)
	require.ErrorIs(t, svc.SetParameter(ctx, admin, "bogus", "1"), staking.ErrInvalidParameter)
	require.ErrorIs(t, svc.SetParameter(ctx, admin, staking.ParamFee, "101"), staking.ErrInvalidParameter)
	require.ErrorIs(t, svc.SetParameter(ctx, admin, staking.ParamSigmoid, "a=5,b=0"), staking.ErrInvalidParameter)

	require.NoError(t, svc.SetParameter(ctx, admin, staking.ParamFee, "5"))
	require.NoError(t, svc.SetParameter(ctx, admin, staking.ParamWithdrawalLockDuration, "6h"))
	require.NoError(t, svc.SetParameter(ctx, admin, staking.ParamSigmoid, "a=5,b=-60,c=1000"))

	view, err := svc.Parameters()
	require.NoError(t, err)
	require.Equal(t, "30000000000000000", view.Effective.Fee.Dec())
	require.Len(t, view.Pending, 3)
	effectiveAt := uint64(t0) + uint64(staking.ParamUpdateDelay) + 1
	for _, change := range view.Pending {
		require.Equal(t, effectiveAt, change.EffectiveAt, change.Name)
	}

	changed, err := svc.Events(ctx, journal.Filter{Type: events.TypeStakeParameterChanged})
	require.NoError(t, err)
	require.Len(t, changed, 3)
	attrs, err := changed[0].Decoded()
	require.NoError(t, err)
	require.Equal(t, admin.String(), attrs["changedBy"])

	clock.Advance(time.Duration(staking.ParamUpdateDelay+1) * time.Second)
	view, err = svc.Parameters()
	require.NoError(t, err)
	require.Empty(t, view.Pending)
	require.Equal(t, "50000000000000000", view.Effective.Fee.Dec())
	require.EqualValues(t, 6*3600, view.Effective.WithdrawalLockDuration)
}

func TestServiceClaimStrayFunds(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	svc := openService(t, testConfig(t), clock, storage.NewMemDB())
	require.NoError(t, svc.Initialize(ctx))

	_, err := svc.ClaimStrayFunds(ctx, admin, admin)
	require.ErrorIs(t, err, staking.ErrNothingToClaim)

	require.NoError(t, svc.Mint(ctx, admin, svc.Pool(), units(5)))
	claimed, err := svc.ClaimStrayFunds(ctx, admin, admin)
	require.NoError(t, err)
	require.Equal(t, units(5).Dec(), claimed.Dec())
	balance, err := svc.Balance(admin)
	require.NoError(t, err)
	require.Equal(t, units(5).Dec(), balance.Dec())
}

func TestParseSigmoid(t *testing.T) {
	params, err := parseSigmoid("a=7.5, b=3600, c=10000000000000")
	require.NoError(t, err)
	defaults := staking.DefaultSigmoid()
	require.Equal(t, defaults.A.Dec(), params.A.Dec())
	require.EqualValues(t, 3600, params.B)

	_, err = parseSigmoid("a=7.5,b=0,c=1,d=2")
	require.Error(t, err)
	_, err = parseSigmoid("a")
	require.Error(t, err)

	seconds, err := parseSeconds("90m")
	require.NoError(t, err)
	require.EqualValues(t, 5400, seconds)
	seconds, err = parseSeconds("3600")
	require.NoError(t, err)
	require.EqualValues(t, 3600, seconds)
}

func TestServiceBoltBackend(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{now: time.Unix(t0, 0)}
	cfg := testConfig(t)
	cfg.Backend = "bolt"

	svc, err := Open(cfg, Options{JournalPath: ":memory:", Clock: clock.Now})
	require.NoError(t, err)
	require.NoError(t, svc.Initialize(ctx))
	require.NoError(t, svc.Mint(ctx, admin, alice, units(3)))
	require.NoError(t, svc.Close())
	require.FileExists(t, filepath.Join(cfg.StatePath(), "state.db"))

	reopened, err := Open(cfg, Options{JournalPath: ":memory:", Clock: clock.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	balance, err := reopened.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, units(3).Dec(), balance.Dec())
	require.ErrorIs(t, reopened.Initialize(ctx), staking.ErrAlreadyInitialized)
}

package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stakevault/config"
	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/native/token"
	"stakevault/observability"
	"stakevault/observability/metrics"
	vaultotel "stakevault/observability/otel"
	"stakevault/storage"
	"stakevault/storage/journal"
	"stakevault/storage/trie"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("vault: service closed")

// Options overrides the collaborators derived from the configuration.
type Options struct {
	// DB replaces the store opened from cfg.Backend at cfg.StatePath().
	DB storage.Database
	// JournalPath replaces cfg.JournalPath(). Use ":memory:" for a private
	// in-memory journal.
	JournalPath string
	Clock       func() time.Time
	Logger      *slog.Logger
	// Sink observes committed events. Events of failed operations never
	// reach it.
	Sink events.Emitter
}

// Service wires the staking engine to persistence, the event journal and the
// observability stack. Every mutating call runs under a fresh operation id.
type Service struct {
	mu       sync.Mutex
	cfg      *config.Config
	db       storage.Database
	pending  *storage.Overlay
	ledger   *token.Ledger
	engine   *staking.Engine
	admins   *staking.StaticAdministrators
	journal  *journal.Journal
	recorder *events.Recorder
	publish  events.Fanout
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.StakingMetrics
	otlp     *vaultotel.Instruments
	clock    func() time.Time
	closed   bool
}

// Open builds a service from cfg, restoring any persisted ledger state.
func Open(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vault: config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	adminAddrs, err := cfg.AdministratorAddresses()
	if err != nil {
		return nil, err
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("pool", cfg.PoolAddress().String()))

	db := opts.DB
	ownsDB := false
	if db == nil {
		opened, err := storage.Open(cfg.Backend, cfg.StatePath())
		if err != nil {
			return nil, fmt.Errorf("vault: open state: %w", err)
		}
		db = opened
		ownsDB = true
	}
	closeDB := func() {
		if ownsDB {
			db.Close()
		}
	}

	journalPath := opts.JournalPath
	switch journalPath {
	case "":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			closeDB()
			return nil, fmt.Errorf("vault: create data dir: %w", err)
		}
		journalPath = cfg.JournalPath()
	case ":memory:":
		journalPath = ""
	}
	jrnl, err := journal.Open(journalPath)
	if err != nil {
		closeDB()
		return nil, err
	}

	ledger := token.NewLedger(cfg.TokenSymbol)
	ledger.SetClock(clock)
	if err := ledger.Load(db); err != nil {
		_ = jrnl.Close()
		closeDB()
		return nil, err
	}
	instruments, err := vaultotel.NewInstruments()
	if err != nil {
		_ = jrnl.Close()
		closeDB()
		return nil, fmt.Errorf("vault: telemetry instruments: %w", err)
	}

	recorder := &events.Recorder{}
	ledger.SetEmitter(recorder)
	pending := storage.NewOverlay(db)

	admins := staking.NewStaticAdministrators(adminAddrs...)
	engine := staking.NewEngine(cfg.PoolAddress())
	engine.SetState(staking.NewKVState(pending))
	engine.SetLedger(ledger)
	engine.SetAdministrators(admins)
	engine.SetEmitter(recorder)
	engine.SetClock(clock)
	engine.SetLogger(logger)
	ledger.RegisterReceiver(engine.Pool(), engine)

	return &Service{
		cfg:      cfg,
		db:       db,
		pending:  pending,
		ledger:   ledger,
		engine:   engine,
		admins:   admins,
		journal:  jrnl,
		recorder: recorder,
		publish:  events.Fanout{observability.EventCounter{}, opts.Sink},
		logger:   logger,
		tracer:   vaultotel.Tracer(),
		metrics:  metrics.Staking(),
		otlp:     instruments,
		clock:    clock,
	}, nil
}

// Close releases the journal and the state database.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.journal.Close()
	s.db.Close()
	return err
}

// Pool returns the custody address.
func (s *Service) Pool() crypto.Address { return s.engine.Pool() }

// run executes fn as one operation: it is traced, persisted, journaled and
// measured. State writes are buffered and reach the database in one batch
// inside the journal transaction; on any failure the buffer is dropped and
// the ledger reverted, so a failed operation leaves no trace.
func (s *Service) run(ctx context.Context, name string, fn func(ctx context.Context) error) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return uuid.Nil, ErrClosed
	}
	opID := uuid.New()
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "vault."+name,
		trace.WithAttributes(attribute.String("operation_id", opID.String())))
	defer span.End()
	logger := s.logger.With(slog.String("operation", name), slog.String("operation_id", opID.String()))

	s.recorder.Reset()
	snapshot := s.ledger.Snapshot()
	err := fn(ctx)
	if err == nil {
		err = s.persist(ctx, opID)
	}
	if err != nil {
		s.ledger.RevertToSnapshot(snapshot)
		s.pending.Discard()
	} else {
		s.ledger.Commit()
	}
	result, elapsed := outcome(err), time.Since(start)
	s.metrics.ObserveOperation(name, result, elapsed)
	s.otlp.RecordOperation(ctx, name, result, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("vault operation failed", slog.Any("error", err))
		return opID, err
	}
	committed := s.recorder.Events()
	for _, evt := range committed {
		s.publish.Emit(evt)
	}
	s.observe(committed)
	span.SetAttributes(attribute.Int("events", len(committed)))
	span.SetStatus(codes.Ok, "committed")
	logger.Info("vault operation committed", slog.Int("events", len(committed)))
	return opID, nil
}

// persist stages the ledger next to the engine writes and journals the
// operation's events. The staged writes are flushed inside the journal
// transaction.
func (s *Service) persist(ctx context.Context, opID uuid.UUID) error {
	if err := s.ledger.Save(s.pending); err != nil {
		return fmt.Errorf("vault: save ledger: %w", err)
	}
	evts := append(s.recorder.Events(), s.ledger.PendingEvents()...)
	return s.journal.Append(ctx, opID, evts, func() error {
		if err := s.pending.Flush(); err != nil {
			return fmt.Errorf("vault: write state: %w", err)
		}
		return nil
	})
}

func (s *Service) observe(committed []events.Event) {
	pool := s.engine.Pool()
	for _, evt := range committed {
		switch e := evt.(type) {
		case events.TokenSupply:
			if e.To.Equal(pool) {
				s.metrics.AddEmission(e.Delta)
			}
		case events.StakeWithdrawn:
			s.metrics.AddFee(e.Fee)
		}
	}
	if staked, err := s.engine.TotalStaked(); err == nil {
		s.metrics.SetTotalStaked(staked)
	}
	if balance, err := s.ledger.BalanceOf(pool); err == nil {
		s.metrics.SetPoolBalance(balance)
	}
	if err := metrics.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
		s.logger.Warn("metrics textfile export failed", slog.Any("error", err))
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case staking.IsInvalidInput(err):
		return "invalid"
	case errors.Is(err, staking.ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}

// Initialize installs the configured parameters.
func (s *Service) Initialize(ctx context.Context) error {
	params, err := s.cfg.ToStakingConfig()
	if err != nil {
		return err
	}
	_, err = s.run(ctx, "initialize", func(ctx context.Context) error {
		return s.engine.Initialize(ctx, params)
	})
	return err
}

// Mint credits new tokens on the local ledger. Only administrators may mint.
func (s *Service) Mint(ctx context.Context, caller, to crypto.Address, amount *uint256.Int) error {
	_, err := s.run(ctx, "mint", func(ctx context.Context) error {
		if err := s.admins.RequireAuthorized(caller); err != nil {
			return err
		}
		return s.ledger.Mint(ctx, to, amount)
	})
	return err
}

// Approve lets the pool pull up to amount from owner on Deposit.
func (s *Service) Approve(ctx context.Context, owner crypto.Address, amount *uint256.Int) error {
	_, err := s.run(ctx, "approve", func(context.Context) error {
		return s.ledger.Approve(owner, s.engine.Pool(), amount)
	})
	return err
}

// Deposit opens a new slot funded from an existing allowance.
func (s *Service) Deposit(ctx context.Context, from crypto.Address, amount *uint256.Int) (staking.DepositResult, error) {
	var result staking.DepositResult
	_, err := s.run(ctx, "deposit", func(ctx context.Context) error {
		var err error
		result, err = s.engine.Deposit(ctx, from, amount)
		return err
	})
	return result, err
}

// DepositToSlot tops up an existing slot funded from an existing allowance.
func (s *Service) DepositToSlot(ctx context.Context, from crypto.Address, slot uint64, amount *uint256.Int) (staking.DepositResult, error) {
	var result staking.DepositResult
	_, err := s.run(ctx, "depositToSlot", func(ctx context.Context) error {
		var err error
		result, err = s.engine.DepositToSlot(ctx, from, slot, amount)
		return err
	})
	return result, err
}

// Push transfers amount to the pool and notifies it. A zero slot opens a new
// one.
func (s *Service) Push(ctx context.Context, from crypto.Address, slot uint64, amount *uint256.Int) error {
	var data []byte
	if slot > 0 {
		data = staking.EncodeSlotData(slot)
	}
	_, err := s.run(ctx, "push", func(ctx context.Context) error {
		return s.ledger.TransferAndCall(ctx, from, s.engine.Pool(), amount, data)
	})
	return err
}

// RequestWithdrawal opens the timed withdrawal window for a slot.
func (s *Service) RequestWithdrawal(ctx context.Context, addr crypto.Address, slot uint64) (staking.WithdrawalStatus, error) {
	var status staking.WithdrawalStatus
	_, err := s.run(ctx, "requestWithdrawal", func(ctx context.Context) error {
		var err error
		status, err = s.engine.RequestWithdrawal(ctx, addr, slot)
		return err
	})
	return status, err
}

// Withdraw executes a requested withdrawal inside its window.
func (s *Service) Withdraw(ctx context.Context, addr crypto.Address, slot uint64, amount staking.Amount) (staking.WithdrawResult, error) {
	var result staking.WithdrawResult
	_, err := s.run(ctx, "makeRequestedWithdrawal", func(ctx context.Context) error {
		var err error
		result, err = s.engine.MakeRequestedWithdrawal(ctx, addr, slot, amount)
		return err
	})
	return result, err
}

// ForceWithdraw withdraws immediately and pays the fee.
func (s *Service) ForceWithdraw(ctx context.Context, addr crypto.Address, slot uint64, amount staking.Amount) (staking.WithdrawResult, error) {
	var result staking.WithdrawResult
	_, err := s.run(ctx, "makeForcedWithdrawal", func(ctx context.Context) error {
		var err error
		result, err = s.engine.MakeForcedWithdrawal(ctx, addr, slot, amount)
		return err
	})
	return result, err
}

// ClaimStrayFunds sweeps pool surplus to to.
func (s *Service) ClaimStrayFunds(ctx context.Context, caller, to crypto.Address) (*uint256.Int, error) {
	var claimed *uint256.Int
	_, err := s.run(ctx, "claimStrayFunds", func(ctx context.Context) error {
		var err error
		claimed, err = s.engine.ClaimStrayFunds(ctx, caller, to)
		return err
	})
	return claimed, err
}

// SetParameter queues an administrator parameter change. value uses the
// same notation as the configuration file; see parseParameter.
func (s *Service) SetParameter(ctx context.Context, caller crypto.Address, name, value string) error {
	apply, err := s.parseParameter(strings.TrimSpace(name), value)
	if err != nil {
		return err
	}
	_, err = s.run(ctx, "set:"+strings.TrimSpace(name), func(ctx context.Context) error {
		return apply(ctx, caller)
	})
	return err
}

// Balance returns the token balance of addr.
func (s *Service) Balance(addr crypto.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.BalanceOf(addr)
}

// Position returns a committed slot record.
func (s *Service) Position(addr crypto.Address, slot uint64) (*staking.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Position(addr, slot)
}

// LastSlot returns the highest slot id issued to addr.
func (s *Service) LastSlot(addr crypto.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.LastSlot(addr)
}

// TotalStaked returns the sum of all slot balances.
func (s *Service) TotalStaked() (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.TotalStaked()
}

// EstimateAccrual previews the accrual of a slot if it were settled now.
func (s *Service) EstimateAccrual(addr crypto.Address, slot uint64) (staking.Accrual, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, err := s.engine.Position(addr, slot)
	if err != nil {
		return staking.Accrual{}, err
	}
	return s.engine.EstimateAccrual(pos.DepositedAt, pos.Balance)
}

// Parameters returns the effective parameters and queued changes.
func (s *Service) Parameters() (staking.ParametersView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Parameters()
}

// SupplyBasedRate returns the current supply based rate component.
func (s *Service) SupplyBasedRate() (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SupplyBasedRate()
}

// WithdrawalStatus reports the withdrawal phase of a slot.
func (s *Service) WithdrawalStatus(addr crypto.Address, slot uint64) (staking.WithdrawalStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.WithdrawalStatus(addr, slot)
}

// Events lists journaled events.
func (s *Service) Events(ctx context.Context, filter journal.Filter) ([]journal.Record, error) {
	return s.journal.List(ctx, filter)
}

// ExportEvents writes journaled events to a parquet file at path.
func (s *Service) ExportEvents(ctx context.Context, path string, filter journal.Filter) (int, error) {
	return s.journal.ExportParquet(ctx, path, filter)
}

// Digest commits to the full persisted state.
func (s *Service) Digest() (storage.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.ComputeDigest(s.db, nil)
}

// StateRoot returns the Merkle Patricia root over the full persisted state.
func (s *Service) StateRoot() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return trie.StateRoot(s.db, nil)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/services/vault"
	"stakevault/storage/journal"
)

func formatTimestamp(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func runInitCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: stakectl init")
		return 1
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		if err := svc.Initialize(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Pool %s initialised\n", svc.Pool())
		return nil
	})
}

func runMintCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintln(stderr, "Usage: stakectl mint <caller> <to> <amount>")
		return 1
	}
	caller, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	to, err := parseAddress(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	amount, err := parseTokens(args[2])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		if err := svc.Mint(ctx, caller, to, amount); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Minted %s to %s\n", formatTokens(amount), to)
		return nil
	})
}

func runApproveCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakectl approve <owner> <amount>")
		return 1
	}
	owner, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	amount, err := parseTokens(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		if err := svc.Approve(ctx, owner, amount); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Pool may pull %s from %s\n", formatTokens(amount), owner)
		return nil
	})
}

func printDeposit(w io.Writer, result staking.DepositResult) {
	fmt.Fprintf(w, "Slot %d of %s\n", result.Slot, result.Account)
	fmt.Fprintf(w, "  Balance: %s\n", formatTokens(result.NewBalance))
	fmt.Fprintf(w, "  Accrued: %s over %ds\n", formatTokens(result.Accrued), result.Elapsed)
}

func runDepositCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakectl deposit <from> <amount>")
		return 1
	}
	from, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	amount, err := parseTokens(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		result, err := svc.Deposit(ctx, from, amount)
		if err != nil {
			return err
		}
		printDeposit(stdout, result)
		return nil
	})
}

func runDepositToCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintln(stderr, "Usage: stakectl deposit-to <from> <slot> <amount>")
		return 1
	}
	from, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	slot, err := parseSlot(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	amount, err := parseTokens(args[2])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		result, err := svc.DepositToSlot(ctx, from, slot, amount)
		if err != nil {
			return err
		}
		printDeposit(stdout, result)
		return nil
	})
}

func runPushCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 && len(args) != 3 {
		fmt.Fprintln(stderr, "Usage: stakectl push <from> <amount> [slot]")
		return 1
	}
	from, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	amount, err := parseTokens(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	var slot uint64
	if len(args) == 3 {
		if slot, err = parseSlot(args[2]); err != nil {
			return fail(stderr, err)
		}
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		if err := svc.Push(ctx, from, slot, amount); err != nil {
			return err
		}
		last, err := svc.LastSlot(from)
		if err != nil {
			return err
		}
		if slot == 0 {
			slot = last
		}
		fmt.Fprintf(stdout, "Pushed %s into slot %d\n", formatTokens(amount), slot)
		return nil
	})
}

func printStatus(w io.Writer, status staking.WithdrawalStatus) {
	fmt.Fprintf(w, "  Withdrawal: %s\n", status.Phase)
	if status.Phase == staking.PhaseNoRequest {
		return
	}
	fmt.Fprintf(w, "  Requested:  %s\n", formatTimestamp(status.RequestedAt))
	fmt.Fprintf(w, "  Opens:      %s\n", formatTimestamp(status.LockEnd))
	fmt.Fprintf(w, "  Closes:     %s\n", formatTimestamp(status.UnlockEnd))
}

func runRequestCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakectl request <addr> <slot>")
		return 1
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	slot, err := parseSlot(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		status, err := svc.RequestWithdrawal(ctx, addr, slot)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Withdrawal requested for slot %d\n", slot)
		printStatus(stdout, status)
		return nil
	})
}

func runWithdrawCommand(flags globalFlags, args []string, stdout, stderr io.Writer, forced bool) int {
	name := "withdraw"
	if forced {
		name = "force-withdraw"
	}
	if len(args) != 2 && len(args) != 3 {
		fmt.Fprintf(stderr, "Usage: stakectl %s <addr> <slot> [amount|all]\n", name)
		return 1
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	slot, err := parseSlot(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	raw := ""
	if len(args) == 3 {
		raw = args[2]
	}
	amount, err := parseWithdrawAmount(raw)
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		withdraw := svc.Withdraw
		if forced {
			withdraw = svc.ForceWithdraw
		}
		result, err := withdraw(ctx, addr, slot, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Withdrew from slot %d of %s\n", result.Slot, result.Account)
		fmt.Fprintf(stdout, "  Paid:      %s\n", formatTokens(result.Paid))
		fmt.Fprintf(stdout, "  Fee:       %s\n", formatTokens(result.Fee))
		fmt.Fprintf(stdout, "  Accrued:   %s over %ds\n", formatTokens(result.Accrued), result.Elapsed)
		fmt.Fprintf(stdout, "  Remaining: %s\n", formatTokens(result.NewBalance))
		return nil
	})
}

func runSetParamCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 3 {
		fmt.Fprintln(stderr, "Usage: stakectl set-param <caller> <name> <value>")
		return 1
	}
	caller, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		if err := svc.SetParameter(ctx, caller, args[1], args[2]); err != nil {
			return err
		}
		view, err := svc.Parameters()
		if err != nil {
			return err
		}
		for _, change := range view.Pending {
			if change.Name == args[1] {
				fmt.Fprintf(stdout, "%s = %s effective at %s\n", change.Name, change.Value, formatTimestamp(change.EffectiveAt))
			}
		}
		return nil
	})
}

func runClaimCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakectl claim <caller> <to>")
		return 1
	}
	caller, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	to, err := parseAddress(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		claimed, err := svc.ClaimStrayFunds(ctx, caller, to)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Claimed %s to %s\n", formatTokens(claimed), to)
		return nil
	})
}

func runBalanceCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: stakectl balance <addr>")
		return 1
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	return withService(flags, stderr, func(_ context.Context, svc *vault.Service) error {
		balance, err := svc.Balance(addr)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s\n", addr, formatTokens(balance))
		return nil
	})
}

func runPositionCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 && len(args) != 2 {
		fmt.Fprintln(stderr, "Usage: stakectl position <addr> [slot]")
		return 1
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	var only uint64
	if len(args) == 2 {
		if only, err = parseSlot(args[1]); err != nil {
			return fail(stderr, err)
		}
	}
	return withService(flags, stderr, func(_ context.Context, svc *vault.Service) error {
		last, err := svc.LastSlot(addr)
		if err != nil {
			return err
		}
		if only > last {
			return staking.ErrInvalidSlot
		}
		from, to := uint64(1), last
		if only > 0 {
			from, to = only, only
		}
		if last == 0 {
			fmt.Fprintf(stdout, "No slots for %s\n", addr)
			return nil
		}
		for slot := from; slot <= to; slot++ {
			if err := printPosition(stdout, svc, addr, slot); err != nil {
				return err
			}
		}
		return nil
	})
}

func printPosition(w io.Writer, svc *vault.Service, addr crypto.Address, slot uint64) error {
	pos, err := svc.Position(addr, slot)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Slot %d of %s\n", slot, addr)
	fmt.Fprintf(w, "  Balance:    %s\n", formatTokens(pos.Balance))
	if pos.IsEmpty() {
		return nil
	}
	fmt.Fprintf(w, "  Since:      %s\n", formatTimestamp(pos.DepositedAt))
	accrual, err := svc.EstimateAccrual(addr, slot)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Accruing:   %s\n", formatTokens(accrual.UserShare))
	status, err := svc.WithdrawalStatus(addr, slot)
	if err != nil {
		return err
	}
	printStatus(w, status)
	return nil
}

func runParamsCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: stakectl params")
		return 1
	}
	return withService(flags, stderr, func(_ context.Context, svc *vault.Service) error {
		view, err := svc.Parameters()
		if err != nil {
			return err
		}
		supplyRate, err := svc.SupplyBasedRate()
		if err != nil {
			return err
		}
		eff := view.Effective
		fmt.Fprintf(stdout, "Parameters at %s\n", formatTimestamp(view.Timestamp))
		fmt.Fprintf(stdout, "  %s: %s\n", staking.ParamFee, formatRate(eff.Fee))
		fmt.Fprintf(stdout, "  %s: %ds\n", staking.ParamWithdrawalLockDuration, eff.WithdrawalLockDuration)
		fmt.Fprintf(stdout, "  %s: %ds\n", staking.ParamWithdrawalUnlockDuration, eff.WithdrawalUnlockDuration)
		fmt.Fprintf(stdout, "  %s: %s\n", staking.ParamTotalSupplyFactor, formatRate(eff.TotalSupplyFactor))
		fmt.Fprintf(stdout, "  %s: %s\n", staking.ParamLiquidityRewardAddress, eff.LiquidityRewardAddress)
		fmt.Fprintf(stdout, "  %s: %s\n", staking.ParamSigmoid, eff.Sigmoid)
		fmt.Fprintf(stdout, "  supplyBasedRate: %s\n", formatRate(supplyRate))
		for _, change := range view.Pending {
			fmt.Fprintf(stdout, "Pending %s = %s at %s\n", change.Name, change.Value, formatTimestamp(change.EffectiveAt))
		}
		return nil
	})
}

func runEventsCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	eventType := fs.String("type", "", "only events of this type")
	limit := fs.Int("limit", 0, "maximum number of events")
	since := fs.Uint64("since", 0, "only events at or after this unix second")
	export := fs.String("export", "", "write matching events to this parquet file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "Usage: stakectl events [--type t] [--limit n] [--since ts] [--export file.parquet]")
		return 1
	}
	filter := journal.Filter{Type: *eventType, Limit: *limit, Since: *since}
	return withService(flags, stderr, func(ctx context.Context, svc *vault.Service) error {
		if *export != "" {
			n, err := svc.ExportEvents(ctx, *export, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Exported %d events to %s\n", n, *export)
			return nil
		}
		records, err := svc.Events(ctx, filter)
		if err != nil {
			return err
		}
		for _, record := range records {
			fmt.Fprintf(stdout, "%s %s %s %s\n", formatTimestamp(record.Timestamp), record.Type, record.OperationID, record.Attributes)
		}
		return nil
	})
}

func runDigestCommand(flags globalFlags, args []string, stdout, stderr io.Writer) int {
	if len(args) != 0 {
		fmt.Fprintln(stderr, "Usage: stakectl digest")
		return 1
	}
	return withService(flags, stderr, func(_ context.Context, svc *vault.Service) error {
		digest, err := svc.Digest()
		if err != nil {
			return err
		}
		root, err := svc.StateRoot()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "digest:     %s\n", digest)
		fmt.Fprintf(stdout, "state root: %s\n", root.Hex())
		return nil
	})
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
